package analyses

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrNotReady            = errors.New("analysis not ready")
	ErrPaymentRequired     = errors.New("payment required")
	ErrUpstreamUnavailable = errors.New("extraction service unavailable")
	ErrUpstreamError       = errors.New("extraction service error")
	ErrValidation          = errors.New("validation failed")
)

// ErrNoChange returned from an Update mutation leaves the record untouched,
// including UpdatedAt. Update itself then returns no error.
var ErrNoChange = errors.New("no change")

// ValidationError describes a rejected input field.
type ValidationError struct {
	Field string
	Issue string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Issue)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewValidationError returns a *ValidationError for field.
func NewValidationError(field, issue string) error {
	return &ValidationError{Field: field, Issue: issue}
}
