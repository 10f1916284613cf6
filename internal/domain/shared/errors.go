package shared

import (
	"errors"
	"fmt"
)

// Codes shared by every aggregate. Aggregate packages define their own on top.
const (
	CodeNotFound            = "NOT_FOUND"
	CodeAlreadyExists       = "ALREADY_EXISTS"
	CodeInvalidInput        = "INVALID_INPUT"
	CodeInvalidState        = "INVALID_STATE"
	CodeConcurrencyConflict = "CONCURRENCY_CONFLICT"
)

// DomainError is a business rule rejection. Code is stable and machine
// readable; Message is returned to callers verbatim.
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewDomainError creates a DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message}
}

// DomainErrorf creates a DomainError with a formatted message
func DomainErrorf(code, format string, args ...any) *DomainError {
	return NewDomainError(code, fmt.Sprintf(format, args...))
}

func (e *DomainError) Error() string {
	return e.Message
}

// Is matches any DomainError carrying the same code, so a specific rejection
// satisfies errors.Is against the sentinel for its code.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	return ok && t.Code == e.Code
}

// CodeOf returns the code of the first DomainError in err's chain, or "" if there is none
func CodeOf(err error) string {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ""
}

var (
	// ErrAlreadyExists rejects a write that would break a uniqueness rule
	ErrAlreadyExists = NewDomainError(CodeAlreadyExists, "Resource already exists")
	// ErrConcurrencyConflict reports a lost optimistic version race. Retrying may succeed.
	ErrConcurrencyConflict = NewDomainError(CodeConcurrencyConflict, "Resource was modified by another process")
)
