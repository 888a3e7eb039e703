package booking

import "fmt"

// ValidationError reports a structurally malformed request: bad time strings,
// end before start, missing ids. Rejected before any lookup.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// PolicyViolation reports a request that is well-formed but violates clinic
// policy (business hours, advance-booking bounds, movement restriction).
// The user must change the request; it is never retried automatically.
type PolicyViolation struct {
	Reason string
}

func (e *PolicyViolation) Error() string {
	return e.Reason
}

// ConflictError carries the full accumulated conflict list so the caller can
// render every reason at once.
type ConflictError struct {
	Conflicts []ConflictDetail
}

func (e *ConflictError) Error() string {
	if len(e.Conflicts) == 1 {
		return e.Conflicts[0].Message
	}
	return fmt.Sprintf("%d scheduling conflicts found", len(e.Conflicts))
}

// StateError names an illegal (status, event) transition attempt.
type StateError struct {
	From  string
	Event string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("illegal transition: cannot apply %q to appointment in status %q", e.Event, e.From)
}

// NotFoundError reports an unknown entity id.
type NotFoundError struct {
	Entity string
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}
