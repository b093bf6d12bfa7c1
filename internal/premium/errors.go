package premium

import (
	"errors"
	"fmt"
)

// ErrValidation marks malformed or out-of-range input rejected before any
// computation runs. Inputs are never silently defaulted inside the
// pipeline.
var ErrValidation = errors.New("invalid input")

// ErrInvariant marks a computed value that violates a pipeline invariant.
// It signals a defect in caller-supplied rate configuration rather than a
// transient fault.
var ErrInvariant = errors.New("computation invariant violated")

// ValidationError carries enough context to display or log which stage
// rejected which field.
type ValidationError struct {
	Stage  string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s %s", e.Stage, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// InvariantError reports a violated invariant together with the offending
// value.
type InvariantError struct {
	Stage  string
	Detail string
	Value  float64
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("%s: %s (%.2f)", e.Stage, e.Detail, e.Value)
}

func (e *InvariantError) Unwrap() error { return ErrInvariant }
