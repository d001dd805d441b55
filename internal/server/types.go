package server

import (
	"strings"

	"calendar-mcp/internal/dispatch"
)

// ToolCall names a tool and its parameters.
type ToolCall struct {
	ToolName   string         `json:"toolName"`
	Parameters map[string]any `json:"parameters"`
}

// MessageRequest is the body of POST /mcp/message. Bodies without toolCall
// may name the tool at top level with parameters or arguments.
type MessageRequest struct {
	ToolCall   *ToolCall      `json:"toolCall"`
	Name       string         `json:"name"`
	Parameters map[string]any `json:"parameters"`
	Arguments  map[string]any `json:"arguments"`
}

func (m MessageRequest) request() (dispatch.Request, bool) {
	if m.ToolCall != nil {
		return dispatch.Request{ToolName: m.ToolCall.ToolName, Parameters: m.ToolCall.Parameters}, true
	}
	if strings.TrimSpace(m.Name) == "" {
		return dispatch.Request{}, false
	}
	params := m.Parameters
	if params == nil {
		params = m.Arguments
	}
	return dispatch.Request{ToolName: m.Name, Parameters: params}, true
}

// MessageResponse wraps a successful invocation.
type MessageResponse struct {
	ToolResponse *dispatch.Response `json:"toolResponse"`
}

// ErrorResponse wraps a failed one.
type ErrorResponse struct {
	Error *dispatch.Error `json:"error"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string `json:"status"`
	Tools  int    `json:"tools"`
}
