package shared

import "fmt"

// Error codes shared across bounded contexts
const (
	CodeValidation          = "VALIDATION_ERROR"
	CodeNotFound            = "NOT_FOUND"
	CodeConflict            = "CONFLICT"
	CodeInvalidState        = "INVALID_STATE"
	CodeConcurrencyConflict = "CONCURRENCY_CONFLICT"
	CodePersistence         = "PERSISTENCE_ERROR"
	CodeClientNotActive     = "CLIENT_NOT_ACTIVE"
	CodeClientNotFound      = "CLIENT_NOT_FOUND"
)

// DomainError represents a domain-level error
type DomainError struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
	cause   error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause, if any
func (e *DomainError) Unwrap() error {
	return e.cause
}

// Is matches domain errors by code so sentinel comparisons survive wrapping
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error carrying the given details
func (e *DomainError) WithDetails(details ...string) *DomainError {
	cp := *e
	cp.Details = append([]string(nil), details...)
	return &cp
}

// WithCause returns a copy of the error wrapping cause
func (e *DomainError) WithCause(cause error) *DomainError {
	cp := *e
	cp.cause = cause
	return &cp
}

// NewValidationError creates a validation error with optional field details
func NewValidationError(message string, details ...string) *DomainError {
	return NewDomainError(CodeValidation, message).WithDetails(details...)
}

// NewConflictError creates a state or uniqueness conflict error
func NewConflictError(message string) *DomainError {
	return NewDomainError(CodeConflict, message)
}

// NewPersistenceError wraps a storage failure. The message stays generic.
func NewPersistenceError(cause error) *DomainError {
	return NewDomainError(CodePersistence, "Failed to persist data").WithCause(cause)
}

// Common domain errors
var (
	ErrNotFound            = NewDomainError(CodeNotFound, "Resource not found")
	ErrAlreadyExists       = NewDomainError(CodeConflict, "Resource already exists")
	ErrInvalidInput        = NewDomainError(CodeValidation, "Invalid input provided")
	ErrConcurrencyConflict = NewDomainError(CodeConcurrencyConflict, "Resource was modified by another process")
	ErrInvalidState        = NewDomainError(CodeInvalidState, "Operation not allowed in current state")
)
