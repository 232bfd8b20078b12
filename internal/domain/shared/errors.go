// Package shared contains common domain types, errors and events
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")
	ErrInvalidEntity = errors.New("invalid entity")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrNegativeValue   = errors.New("value cannot be negative")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrInvalidFormat   = errors.New("invalid format")

	// State errors
	ErrInvalidState     = errors.New("invalid state")
	ErrStateTransition  = errors.New("invalid state transition")
	ErrAlreadyProcessed = errors.New("already processed")
	ErrExpired          = errors.New("expired")

	// Concurrency errors
	ErrConcurrentModification = errors.New("concurrent modification detected")
	ErrOptimisticLock         = errors.New("optimistic lock failure")

	// External service errors
	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "exam", "schedule", "progression"
	Op      string // Operation that failed, e.g., "Create", "Complete"
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

// Exam domain errors
var (
	ErrExamNotFound      = NewDomainError("exam", "Find", ErrNotFound, "exam not found")
	ErrExamAlreadyExists = NewDomainError("exam", "Create", ErrAlreadyExists, "exam already exists")
	ErrExamNoSubjects    = NewDomainError("exam", "Validate", ErrValidation, "exam must have at least one subject")
	ErrInvalidPageCount  = NewDomainError("exam", "Validate", ErrValueOutOfRange, "workbook pages must be at least 1")
	ErrEmptyExamName     = NewDomainError("exam", "Validate", ErrEmptyValue, "exam name cannot be empty")
	ErrEmptySubjectName  = NewDomainError("exam", "Validate", ErrEmptyValue, "subject name cannot be empty")
)

// Schedule domain errors
var (
	ErrTaskNotFound     = NewDomainError("schedule", "Find", ErrNotFound, "task not found")
	ErrInvalidTaskType  = NewDomainError("schedule", "Validate", ErrInvalidInput, "invalid task type")
	ErrInvalidPriority  = NewDomainError("schedule", "Validate", ErrInvalidInput, "invalid task priority")
	ErrTaskPastExamDate = NewDomainError("schedule", "Validate", ErrInvalidState, "task scheduled on or after exam date")
)

// Progression domain errors
var (
	ErrUserStateNotFound  = NewDomainError("progression", "Find", ErrNotFound, "user state not found")
	ErrNoProtectionTokens = NewDomainError("progression", "UseProtection", ErrInvalidState, "no streak protection tokens left")
	ErrUserStateConflict  = NewDomainError("progression", "Save", ErrOptimisticLock, "user state was modified concurrently")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrNegativeValue) ||
		errors.Is(err, ErrValueOutOfRange)
}

// IsConflict checks if the error is an optimistic-lock conflict.
// Callers are expected to re-read the state and retry the transition.
func IsConflict(err error) bool {
	return errors.Is(err, ErrOptimisticLock) || errors.Is(err, ErrConcurrentModification)
}

// IsRetryable checks if the operation can be retried as-is.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrConcurrentModification)
}
