package command

import "errors"

// ErrHandlerPanicked is surfaced as a command failure (status bit set)
// when a handler panics instead of returning an error.
var ErrHandlerPanicked = errors.New("command: handler panicked")

// ErrNoDevice is returned when IDENTIFY is dispatched without a
// parsed device descriptor (should not occur via Dispatch, which
// always parses one for this tag; guards direct callers of
// handleIdentify, e.g. tests).
var ErrNoDevice = errors.New("command: identify requires a parsed device")
