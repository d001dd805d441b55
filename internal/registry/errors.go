package registry

import "fmt"

// DomainError is the failure a handler reports when its operation cannot be
// fulfilled. Code and Message are safe to show to callers; Cause is not.
type DomainError struct {
	Code    string
	Message string
	Cause   error
}

// NewDomainError builds a DomainError wrapping cause.
func NewDomainError(code, message string, cause error) *DomainError {
	return &DomainError{Code: code, Message: message, Cause: cause}
}

func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the cause for errors.Is/errors.As.
func (e *DomainError) Unwrap() error { return e.Cause }
