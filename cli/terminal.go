package cli

import (
	"fmt"
	"os"

	"golang.org/x/term"
)

// Terminal puts stdin in raw mode so single key presses arrive without
// echo or line buffering.
type Terminal struct {
	fd       int
	oldState *term.State
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// MakeRaw switches f to raw mode. Call Restore before exiting.
func MakeRaw(f *os.File) (*Terminal, error) {
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return nil, fmt.Errorf("%s is not a terminal", f.Name())
	}
	old, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("failed to set raw mode: %w", err)
	}
	return &Terminal{fd: fd, oldState: old}, nil
}

// Restore returns the terminal to the state before MakeRaw.
func (t *Terminal) Restore() error {
	if t == nil || t.oldState == nil {
		return nil
	}
	err := term.Restore(t.fd, t.oldState)
	t.oldState = nil
	return err
}
