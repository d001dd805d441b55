package dispatch

import (
	"fmt"
	"net/http"

	"calendar-mcp/internal/schema"
)

// Kind classifies a failed invocation.
type Kind string

const (
	KindMalformedRequest Kind = "malformed_request"
	KindValidation       Kind = "validation_error"
	KindToolNotFound     Kind = "tool_not_found"
	KindUnauthorized     Kind = "unauthorized"
	KindForbidden        Kind = "forbidden"
	KindHandler          Kind = "handler_error"
)

// Status maps the kind to its HTTP status class.
func (k Kind) Status() int {
	switch k {
	case KindMalformedRequest, KindValidation:
		return http.StatusBadRequest
	case KindToolNotFound:
		return http.StatusNotFound
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// Error is the structured failure returned across the dispatch boundary.
// Only Kind, Message, ToolName, Code and Fields are meant for callers.
type Error struct {
	Kind     Kind                `json:"kind"`
	Message  string              `json:"message"`
	ToolName string              `json:"toolName,omitempty"`
	Code     string              `json:"code,omitempty"`
	Fields   []schema.FieldError `json:"fields,omitempty"`
	Cause    error               `json:"-"`
}

func (e *Error) Error() string {
	if e.ToolName != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.ToolName, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the cause for errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.Cause }

// NewError builds an Error of the given kind.
func NewError(kind Kind, toolName, message string, cause error) *Error {
	return &Error{Kind: kind, ToolName: toolName, Message: message, Cause: cause}
}
