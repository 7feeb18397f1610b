package app

import (
	"errors"
	"fmt"
)

// Sentinels the HTTP layer maps to status codes via errors.Is.
var (
	// ErrNotFound indicates the requested ticket or customer data does not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates invalid input from the caller.
	ErrValidation = errors.New("validation error")

	// ErrUnavailable indicates a required dependency is not configured.
	ErrUnavailable = errors.New("service unavailable")
)

// NotFoundError wraps ErrNotFound with a descriptive message.
func NotFoundError(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrNotFound)
}

// ValidationError wraps ErrValidation, keeping cause in the chain.
func ValidationError(cause error) error {
	return fmt.Errorf("%w: %w", ErrValidation, cause)
}

// UnavailableError wraps ErrUnavailable with the missing component's name.
func UnavailableError(component string) error {
	return fmt.Errorf("%s is not configured: %w", component, ErrUnavailable)
}
