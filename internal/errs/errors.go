// Package errs defines the error taxonomy shared by the engine's components.
// Callers branch on error kind with errors.Is/errors.As; mapping kinds to
// user-visible status codes is the HTTP layer's concern.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a record or job is absent.
	ErrNotFound = errors.New("record not found")

	// ErrConflict is returned for duplicate unique fields, duplicate plugin
	// ids, duplicate contributed endpoint/schema names, and restrict-delete
	// violations.
	ErrConflict = errors.New("conflict")

	// ErrStorage is returned when the storage backend fails.
	ErrStorage = errors.New("storage error")

	// ErrNotSupported is returned when an unknown custom operation is invoked.
	ErrNotSupported = errors.New("operation not supported")

	// ErrScheduleParse is returned for an unparseable schedule string.
	ErrScheduleParse = errors.New("invalid schedule")

	// ErrValidation is returned when input violates a field descriptor.
	ErrValidation = errors.New("validation failed")
)

// FieldError represents a validation error on a specific field.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError contains one or more field-level validation errors.
type ValidationError struct {
	Resource string
	Errors   []FieldError
}

// Error implements the error interface.
func (ve *ValidationError) Error() string {
	switch len(ve.Errors) {
	case 0:
		return fmt.Sprintf("validation failed for %s", ve.Resource)
	case 1:
		return fmt.Sprintf("validation failed for %s: %s: %s", ve.Resource, ve.Errors[0].Field, ve.Errors[0].Message)
	default:
		return fmt.Sprintf("validation failed for %s: %d errors", ve.Resource, len(ve.Errors))
	}
}

// Unwrap makes ValidationError match errors.Is(err, ErrValidation).
func (ve *ValidationError) Unwrap() error {
	return ErrValidation
}

// Conflictf wraps ErrConflict with a formatted message.
func Conflictf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// NotFoundf wraps ErrNotFound with a formatted message.
func NotFoundf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// Storagef wraps ErrStorage with a formatted message.
func Storagef(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrStorage, fmt.Sprintf(format, args...))
}

// NotSupportedf wraps ErrNotSupported with a formatted message.
func NotSupportedf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrNotSupported, fmt.Sprintf(format, args...))
}

// IsNotFound returns true if the error is ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict returns true if the error is ErrConflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsValidation returns true if the error is a validation error.
func IsValidation(err error) bool {
	if errors.Is(err, ErrValidation) {
		return true
	}
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotSupported returns true if the error is ErrNotSupported.
func IsNotSupported(err error) bool {
	return errors.Is(err, ErrNotSupported)
}
