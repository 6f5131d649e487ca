package registry

import (
	"errors"
	"fmt"
)

// ErrNotRegistered is returned when resolving a unit that was never
// registered. Recoverable by the caller; check with errors.Is.
var ErrNotRegistered = errors.New("migration unit not registered")

// RegistrationError reports registry misuse. Always the caller's bug:
// these fail fast rather than degrade.
type RegistrationError struct {
	// Code identifies the error category.
	Code RegistrationErrorCode

	// Unit names the offending migration unit, if known.
	Unit string

	// Message is a human-readable description.
	Message string
}

// RegistrationErrorCode categorizes registration errors.
type RegistrationErrorCode string

const (
	// ErrCodeNilUnit indicates a nil migration unit was passed.
	ErrCodeNilUnit RegistrationErrorCode = "NIL_UNIT"

	// ErrCodeEmptyTypes indicates an empty or invalid entity type list.
	ErrCodeEmptyTypes RegistrationErrorCode = "EMPTY_TYPES"
)

// Error implements the error interface.
func (e *RegistrationError) Error() string {
	if e.Unit != "" {
		return fmt.Sprintf("%s: %s (unit=%s)", e.Code, e.Message, e.Unit)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}
