package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"frameforge/internal/domain"
	"frameforge/internal/store"
)

var (
	ErrInvalidState  = errors.New("invalid state")
	ErrPrecondition  = errors.New("precondition failed")
	ErrRevisionLimit = errors.New("revision limit exceeded")
	// ErrSessionNotFound is the store's not-found sentinel so either name
	// matches with errors.Is.
	ErrSessionNotFound = store.ErrNotFound
)

// InvalidStateError is returned when an operation is called while the
// session is in a phase that does not allow it.
type InvalidStateError struct {
	Op      string
	Current domain.Phase
	Allowed []domain.Phase
}

func (e *InvalidStateError) Error() string {
	allowed := make([]string, 0, len(e.Allowed))
	for _, p := range e.Allowed {
		allowed = append(allowed, string(p))
	}
	return fmt.Sprintf("%s: session is %s, requires %s", e.Op, e.Current, strings.Join(allowed, " or "))
}

func (e *InvalidStateError) Is(target error) bool { return target == ErrInvalidState }

// PreconditionError reports an unmet condition other than the phase.
type PreconditionError struct {
	Op        string
	Condition string
	Details   map[string]any
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Condition)
}

func (e *PreconditionError) Is(target error) bool { return target == ErrPrecondition }

type RevisionLimitError struct {
	Limit int
}

func (e *RevisionLimitError) Error() string {
	return fmt.Sprintf("approve: revision limit of %d reached", e.Limit)
}

func (e *RevisionLimitError) Is(target error) bool { return target == ErrRevisionLimit }

func invalidState(op string, current domain.Phase, allowed ...domain.Phase) error {
	return &InvalidStateError{Op: op, Current: current, Allowed: allowed}
}
