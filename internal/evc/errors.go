package evc

import "fmt"

// ErrConflictUnresolvable is raised when branching cannot proceed: a
// resolution's parameters don't match its conflict's kind, or interactive
// resolution is disabled and a required marker is absent.
type ErrConflictUnresolvable struct {
	Reason string
}

func (e *ErrConflictUnresolvable) Error() string {
	return fmt.Sprintf("conflict unresolvable: %s", e.Reason)
}
