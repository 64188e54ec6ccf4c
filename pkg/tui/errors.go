package tui

import "errors"

var (
	// ErrAborted signals the user aborted input (e.g., Ctrl+C).
	ErrAborted = errors.New("tui: aborted")
	// ErrNoSteps is returned when the session has no visible step to edit.
	ErrNoSteps = errors.New("tui: no visible step")
)
