package storage

import (
	"errors"
	"fmt"
)

// ErrAlertNotFound is returned when an alert id is unknown.
var ErrAlertNotFound = errors.New("storage: alert not found")

// ValidationError reports malformed alert input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid alert %s: %s", e.Field, e.Message)
}

func invalid(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
