package tool

import (
	"context"
	"fmt"
	"time"
)

// Built-in tool names recognized by the dispatcher's injection and
// normalization rules.
const (
	SearchTool   = "search_documents"
	ConcludeTool = "conclude_document_chunks"
)

// Error codes carried by ToolError.
const (
	CodeTimeout      = "timeout"
	CodeNotConnected = "not_connected"
	CodeNotFound     = "not_found"
	CodeExecution    = "execution"
)

// Info describes one callable tool as published by the transport.
type Info struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`    // Name of the tool that failed
	Message string `json:"message"` // Error message
	Code    string `json:"code"`    // Error code for categorization
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}

// Transport executes tools on behalf of the dispatcher. Implementations must
// be safe for concurrent use; parallel branches share one transport.
type Transport interface {
	// ListTools returns the published tool catalogue.
	ListTools(ctx context.Context) ([]Info, error)

	// CallTool executes a tool within the timeout and returns its textual
	// result.
	CallTool(ctx context.Context, name string, args map[string]any, timeout time.Duration) (string, error)

	// Reconnect re-establishes an invalidated session.
	Reconnect(ctx context.Context) error

	// Close releases the transport.
	Close() error
}
