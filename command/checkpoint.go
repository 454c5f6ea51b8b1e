package command

// handleCheckpoint is the Go port of _cmd_execute_checkpoint, an empty
// stub in the source with no behavior beyond "dispatch succeeds and
// appends nothing" — the source assigns it no semantics, and giving it
// real persistence behavior would reach past spec.md's Non-goal
// excluding key-value-store persistence across restarts (see
// SPEC_FULL.md §11).
func handleCheckpoint(cmd *Command) error { return nil }
