//go:build !windows

package main

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
)

const defaultShell = "/bin/zsh"

var defaultShellArgs = []string{"-i"}

// Session owns the PTY controller side and the shell attached to its
// subordinate side.
type Session struct {
	ptmx *os.File
	tty  *os.File
	cmd  *exec.Cmd

	done      chan struct{}
	exitCode  int
	closeOnce sync.Once
}

// openPTY allocates a PTY pair with the given initial size.
func openPTY(g Geometry) (*Session, error) {
	ptmx, tty, err := pty.Open()
	if err != nil {
		return nil, &PTYError{Op: opOpen, Err: err}
	}
	if err := pty.Setsize(ptmx, winsize(g)); err != nil {
		_ = ptmx.Close()
		_ = tty.Close()
		return nil, &PTYError{Op: opOpen, Err: err}
	}
	return &Session{ptmx: ptmx, tty: tty, done: make(chan struct{})}, nil
}

// Spawn starts shell on the subordinate side as a new session leader whose
// controlling terminal is the PTY.
func (s *Session) Spawn(shell string, opts spawnOptions) error {
	if s.tty == nil {
		return &PTYError{Op: opSpawn, Err: errors.New("subordinate side already handed off")}
	}
	cmd := exec.Command(shell, opts.Args...)
	cmd.Dir = opts.Dir
	cmd.Env = opts.Env
	cmd.Stdin = s.tty
	cmd.Stdout = s.tty
	cmd.Stderr = s.tty
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true, Setctty: true}
	if err := cmd.Start(); err != nil {
		return &PTYError{Op: opSpawn, Err: err}
	}
	// The child holds its own copy; keeping ours open would hide the
	// shell's exit from the read side.
	_ = s.tty.Close()
	s.tty = nil
	s.cmd = cmd
	go s.reap()
	return nil
}

func (s *Session) reap() {
	err := s.cmd.Wait()
	s.exitCode = exitCodeFromErr(err)
	close(s.done)
}

// Done is closed once the shell has exited and been reaped.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// ExitCode is only meaningful after Done is closed.
func (s *Session) ExitCode() int {
	return s.exitCode
}

// Pid returns the shell's process id, or 0 before Spawn.
func (s *Session) Pid() int {
	if s.cmd == nil || s.cmd.Process == nil {
		return 0
	}
	return s.cmd.Process.Pid
}

// Resize applies g to the live PTY. It is an ioctl on the controller side
// and does not interfere with reads or writes on the views.
func (s *Session) Resize(g Geometry) error {
	if err := pty.Setsize(s.ptmx, winsize(g)); err != nil {
		return &PTYError{Op: opResize, Err: err}
	}
	return nil
}

// Size reads the current geometry back from the PTY.
func (s *Session) Size() (Geometry, error) {
	ws, err := pty.GetsizeFull(s.ptmx)
	if err != nil {
		return Geometry{}, &PTYError{Op: opResize, Err: err}
	}
	return Geometry{Rows: ws.Rows, Cols: ws.Cols}, nil
}

// Reader returns a duplicated descriptor of the controller side reserved
// for the output relay.
func (s *Session) Reader() (io.ReadCloser, error) {
	return s.view("ptmx-read")
}

// Writer returns a duplicated descriptor of the controller side reserved
// for the dispatcher.
func (s *Session) Writer() (io.WriteCloser, error) {
	return s.view("ptmx-write")
}

func (s *Session) view(name string) (*os.File, error) {
	raw, err := s.ptmx.SyscallConn()
	if err != nil {
		return nil, &PTYError{Op: opViews, Err: err}
	}
	var (
		fd     int
		dupErr error
	)
	if err := raw.Control(func(f uintptr) {
		fd, dupErr = unix.FcntlInt(f, unix.F_DUPFD_CLOEXEC, 0)
	}); err != nil {
		return nil, &PTYError{Op: opViews, Err: err}
	}
	if dupErr != nil {
		return nil, &PTYError{Op: opViews, Err: dupErr}
	}
	return os.NewFile(uintptr(fd), name), nil
}

// Close releases the controller side and hangs up the shell's process
// group, the same thing the kernel does when the bridge exits.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.tty != nil {
			_ = s.tty.Close()
		}
		err = s.ptmx.Close()
		if s.cmd != nil && s.cmd.Process != nil {
			select {
			case <-s.done:
			default:
				_ = syscall.Kill(-s.cmd.Process.Pid, syscall.SIGHUP)
			}
		}
	})
	return err
}

func winsize(g Geometry) *pty.Winsize {
	return &pty.Winsize{Rows: g.Rows, Cols: g.Cols}
}
