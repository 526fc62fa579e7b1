// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages. This package has no infrastructure dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain error kinds that can be used for error checking with errors.Is().
var (
	// ErrValidation marks malformed input detected before any state mutation.
	ErrValidation = errors.New("validation error")

	// ErrNotFound marks a referenced group, session or pass that does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrAlreadyExists marks an entity that collides with an existing one.
	ErrAlreadyExists = errors.New("entity already exists")

	// ErrStateConflict marks a requested transition that violates a domain invariant.
	ErrStateConflict = errors.New("state conflict")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "group", "session"
	Op      string // Operation that failed, e.g., "Attend", "AddPass"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Group domain errors
var (
	ErrGroupNotFound      = NewDomainError("group", "Find", ErrNotFound, "group not found")
	ErrGroupAlreadyExists = NewDomainError("group", "Create", ErrAlreadyExists, "group already exists")
	ErrSessionNotFound    = NewDomainError("group", "FindSession", ErrNotFound, "no session found by id given")
	ErrEmptyRoster        = NewDomainError("group", "SetStudents", ErrValidation, "empty student roster given")

	// ErrDuplicateAttendance is returned by the group-level attendance path.
	ErrDuplicateAttendance = NewDomainError("group", "Attend", ErrStateConflict,
		"student attendance for the session has already been registered")
	ErrNotRegistered = NewDomainError("group", "Attend", ErrStateConflict,
		"non registered student cannot attend group sessions")
	ErrExpiredPass = NewDomainError("group", "Attend", ErrStateConflict, "the pass given is expired")
)

// Session domain errors
var (
	ErrAlreadyAttended = NewDomainError("session", "Attend", ErrStateConflict, "user has already attended this session")
	ErrLivePassExists  = NewDomainError("session", "AddPass", ErrStateConflict, "user already has a valid pass for this session")
	ErrInvalidPassCode = NewDomainError("session", "Attend", ErrStateConflict, "no valid pass with given code found")
	ErrCodeExhausted   = NewDomainError("session", "AddPass", ErrStateConflict, "could not draw a unique pass code")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if the error is an "already exists" error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsStateConflict checks if the error is a rejected state transition.
func IsStateConflict(err error) bool {
	return errors.Is(err, ErrStateConflict)
}
