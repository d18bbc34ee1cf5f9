//go:build windows

package main

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"syscall"

	"github.com/UserExistsError/conpty"
)

const defaultShell = "powershell.exe"

// PowerShell is interactive by default.
var defaultShellArgs []string

// Session wraps a ConPTY. ConPTY allocates the pseudo console and the
// process in one call, so openPTY only records the initial size and the
// console itself comes to life in Spawn.
type Session struct {
	mu   sync.Mutex
	size Geometry
	cpty *conpty.ConPty

	done      chan struct{}
	exitCode  int
	closeOnce sync.Once
}

// openPTY checks that ConPTY is available and records the initial size.
func openPTY(g Geometry) (*Session, error) {
	if !conpty.IsConPtyAvailable() {
		return nil, &PTYError{Op: opOpen, Err: conpty.ErrConPtyUnsupported}
	}
	return &Session{size: g, done: make(chan struct{})}, nil
}

// Spawn starts shell inside a new pseudo console of the recorded size.
func (s *Session) Spawn(shell string, opts spawnOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cpty != nil {
		return &PTYError{Op: opSpawn, Err: errors.New("shell already running")}
	}
	parts := make([]string, 0, len(opts.Args)+1)
	for _, arg := range append([]string{shell}, opts.Args...) {
		parts = append(parts, syscall.EscapeArg(arg))
	}
	cmdLine := strings.Join(parts, " ")
	options := []conpty.ConPtyOption{
		conpty.ConPtyDimensions(int(s.size.Cols), int(s.size.Rows)),
	}
	if opts.Dir != "" {
		options = append(options, conpty.ConPtyWorkDir(opts.Dir))
	}
	if len(opts.Env) > 0 {
		options = append(options, conpty.ConPtyEnv(opts.Env))
	}
	cpty, err := conpty.Start(cmdLine, options...)
	if err != nil {
		return &PTYError{Op: opSpawn, Err: err}
	}
	s.cpty = cpty
	go s.reap()
	return nil
}

func (s *Session) reap() {
	code, err := s.cpty.Wait(context.Background())
	if err != nil {
		s.exitCode = 1
	} else {
		s.exitCode = int(code)
	}
	close(s.done)
	// The output pipe only reaches EOF once the pseudo console is gone.
	_ = s.Close()
}

// Done is closed once the shell has exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// ExitCode is only meaningful after Done is closed.
func (s *Session) ExitCode() int {
	return s.exitCode
}

// Pid returns the shell's process id, or 0 before Spawn.
func (s *Session) Pid() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cpty == nil {
		return 0
	}
	return int(s.cpty.Pid())
}

// Resize applies g to the pseudo console, or to the recorded size when
// the shell has not been started yet.
func (s *Session) Resize(g Geometry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cpty != nil {
		if err := s.cpty.Resize(int(g.Cols), int(g.Rows)); err != nil {
			return &PTYError{Op: opResize, Err: err}
		}
	}
	s.size = g
	return nil
}

// Size returns the last applied geometry; ConPTY has no size query.
func (s *Session) Size() (Geometry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size, nil
}

// Reader returns the console's output side. Closing it does not close
// the console.
func (s *Session) Reader() (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cpty == nil {
		return nil, &PTYError{Op: opViews, Err: errors.New("shell not started")}
	}
	return io.NopCloser(s.cpty), nil
}

// Writer returns the console's input side. Closing it does not close the
// console.
func (s *Session) Writer() (io.WriteCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cpty == nil {
		return nil, &PTYError{Op: opViews, Err: errors.New("shell not started")}
	}
	return nopWriteCloser{s.cpty}, nil
}

// Close tears down the pseudo console, which terminates the shell. It is
// also called once the shell exits.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.cpty != nil {
			err = s.cpty.Close()
		}
	})
	return err
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
