package main

import (
	"errors"
	"fmt"
)

// Geometry is the row/column size reported to programs running in the PTY.
// Pixel dimensions are never set.
type Geometry struct {
	Rows uint16
	Cols uint16
}

func (g Geometry) String() string {
	return fmt.Sprintf("%dx%d", g.Cols, g.Rows)
}

// defaultGeometry matches the usual terminal default of 80 columns by 24 rows.
var defaultGeometry = Geometry{Rows: 24, Cols: 80}

const (
	opOpen   = "open"
	opSpawn  = "spawn"
	opViews  = "views"
	opResize = "resize"
)

var (
	// ErrAllocation is returned when the OS cannot provide a pseudoterminal.
	ErrAllocation = errors.New("pseudoterminal allocation failed")
	// ErrSpawn is returned when the shell cannot be found or started.
	ErrSpawn = errors.New("shell spawn failed")
	// ErrViews is returned when independent read/write views of the PTY cannot be created.
	ErrViews = errors.New("pseudoterminal views unavailable")
)

// PTYError records the PTY operation that failed and the underlying OS error.
type PTYError struct {
	Op  string
	Err error
}

func (e *PTYError) Error() string {
	return fmt.Sprintf("pty %s: %v", e.Op, e.Err)
}

func (e *PTYError) Unwrap() error {
	return e.Err
}

// Is maps the failing operation onto the setup error class it belongs to.
func (e *PTYError) Is(target error) bool {
	switch target {
	case ErrAllocation:
		return e.Op == opOpen
	case ErrSpawn:
		return e.Op == opSpawn
	case ErrViews:
		return e.Op == opViews
	default:
		return false
	}
}

// spawnOptions describes how the shell is started inside the PTY.
type spawnOptions struct {
	Args []string
	Dir  string
	Env  []string
}

// resizer is the resize capability the dispatcher holds on the session.
type resizer interface {
	Resize(g Geometry) error
}
