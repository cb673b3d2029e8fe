package schema

import (
	"errors"
	"fmt"
	"strings"

	"frameforge/internal/domain"
)

// ErrValidation matches every *ValidationError via errors.Is.
var ErrValidation = errors.New("validation failed")

// Violation is one failed constraint. Path uses dotted JSON field names with
// bracketed indexes, e.g. "scenes[2].end".
type Violation struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (v Violation) String() string {
	if v.Path == "" {
		return v.Message
	}
	return v.Path + ": " + v.Message
}

// ValidationError carries every violation found in one payload.
type ValidationError struct {
	Kind       domain.ResultKind `json:"kind"`
	Violations []Violation       `json:"violations"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.String())
	}
	return fmt.Sprintf("invalid %s: %s", e.Kind, strings.Join(parts, "; "))
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

type collector struct {
	kind       domain.ResultKind
	violations []Violation
}

func (c *collector) add(path, format string, args ...any) {
	c.violations = append(c.violations, Violation{Path: path, Message: fmt.Sprintf(format, args...)})
}

func (c *collector) err() error {
	if len(c.violations) == 0 {
		return nil
	}
	return &ValidationError{Kind: c.kind, Violations: c.violations}
}
