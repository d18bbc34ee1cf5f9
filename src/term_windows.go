//go:build windows

package main

import (
	"os"

	"golang.org/x/sys/windows"
)

// isTerminal returns true if the file descriptor is a terminal
func isTerminal(fd int) bool {
	h := windows.Handle(fd)
	var mode uint32
	err := windows.GetConsoleMode(h, &mode)
	return err == nil
}

// hostGeometry reports the visible window size of the console behind f.
func hostGeometry(f *os.File) (Geometry, bool) {
	h := windows.Handle(f.Fd())
	var info windows.ConsoleScreenBufferInfo
	if err := windows.GetConsoleScreenBufferInfo(h, &info); err != nil {
		return Geometry{}, false
	}
	cols := int(info.Window.Right - info.Window.Left + 1)
	rows := int(info.Window.Bottom - info.Window.Top + 1)
	if cols <= 0 || rows <= 0 {
		return Geometry{}, false
	}
	return Geometry{Rows: uint16(rows), Cols: uint16(cols)}, true
}

// ignoreBrokenPipe is a no-op: Windows reports a closed pipe as a write
// error.
func ignoreBrokenPipe() {}
