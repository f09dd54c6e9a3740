// Package shared contains common domain types, errors and value objects
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound = errors.New("entity not found")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrNegativeValue   = errors.New("value cannot be negative")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrInvalidFormat   = errors.New("invalid format")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "outcome", "achievement", "prerequisite"
	Op      string // Operation that failed, e.g., "Find", "Validate"
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

// Outcome domain errors
var (
	ErrProgramNotFound        = NewDomainError("outcome", "FindProgram", ErrNotFound, "program not found")
	ErrCourseNotFound         = NewDomainError("outcome", "FindCourse", ErrNotFound, "course not found")
	ErrOutcomeNotFound        = NewDomainError("outcome", "FindOutcome", ErrNotFound, "course outcome not found")
	ErrProgramOutcomeNotFound = NewDomainError("outcome", "FindProgramOutcome", ErrNotFound, "program outcome not found")
	ErrMappingNotFound        = NewDomainError("outcome", "FindMapping", ErrNotFound, "outcome mapping not found")
	ErrInvalidThreshold       = NewDomainError("outcome", "Validate", ErrValueOutOfRange, "threshold must be between 0 and 1")
	ErrInvalidTier            = NewDomainError("outcome", "Validate", ErrInvalidInput, "invalid contribution tier")
	ErrCourseHasNoOutcomes    = NewDomainError("outcome", "Calculate", ErrInvalidInput, "course has no outcomes")
)

// Assessment domain errors
var (
	ErrStudentNotFound   = NewDomainError("assessment", "FindStudent", ErrNotFound, "student not found")
	ErrInvalidWeight     = NewDomainError("assessment", "Validate", ErrNegativeValue, "assessment weight cannot be negative")
	ErrInvalidMaxScore   = NewDomainError("assessment", "Validate", ErrNegativeValue, "question max score cannot be negative")
	ErrInvalidScoreValue = NewDomainError("assessment", "Validate", ErrNegativeValue, "score cannot be negative")
)

// Prerequisite domain errors
var (
	ErrRuleNotFound       = NewDomainError("prerequisite", "FindRule", ErrNotFound, "prerequisite rule not found")
	ErrInvalidRuleType    = NewDomainError("prerequisite", "Validate", ErrInvalidInput, "invalid prerequisite type")
	ErrSelfPrerequisite   = NewDomainError("prerequisite", "Validate", ErrInvalidInput, "course cannot be its own prerequisite")
	ErrEmptyCandidateSet  = NewDomainError("prerequisite", "Suggest", ErrEmptyValue, "at least one candidate outcome is required")
	ErrInvalidRatio       = NewDomainError("prerequisite", "Validate", ErrValueOutOfRange, "required ratio must be between 0 and 1")
	ErrInvalidPayloadJSON = NewDomainError("prerequisite", "DecodeCondition", ErrInvalidFormat, "condition payload is not valid JSON")
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
		errors.Is(err, ErrValueOutOfRange) ||
		errors.Is(err, ErrInvalidFormat)
}
