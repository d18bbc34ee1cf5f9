//go:build !windows

package main

import (
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term"
)

// isTerminal returns true if the file descriptor is a terminal
func isTerminal(fd int) bool {
	return term.IsTerminal(fd)
}

// hostGeometry reports the size of the terminal behind f, if it is one.
func hostGeometry(f *os.File) (Geometry, bool) {
	fd := int(f.Fd())
	if !isTerminal(fd) {
		return Geometry{}, false
	}
	cols, rows, err := term.GetSize(fd)
	if err != nil || cols <= 0 || rows <= 0 {
		return Geometry{}, false
	}
	return Geometry{Rows: clampUint16(rows), Cols: clampUint16(cols)}, true
}

func clampUint16(v int) uint16 {
	if v > 0xFFFF {
		return 0xFFFF
	}
	return uint16(v)
}

// ignoreBrokenPipe turns writes to a closed stdout into EPIPE errors instead
// of killing the process, so only the output relay ends.
func ignoreBrokenPipe() {
	signal.Ignore(syscall.SIGPIPE)
}
