// Package tool exposes plain Go functions as bus-routable tools. A Host
// bundles any number of function tools behind a single core.ToolProvider,
// validating arguments against a JSON-Schema-like parameter spec before
// invoking the wrapped function.
package tool

import (
	"context"
	"fmt"
)

// Func is the implementation signature for a function tool. The returned map
// becomes the Data payload of the execution result.
type Func func(ctx context.Context, args map[string]any) (map[string]any, error)

// Error represents a failure raised by a tool implementation, carrying a
// machine-readable code alongside the message.
type Error struct {
	Tool    string `json:"tool"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewError creates an Error with the given details.
func NewError(tool, message, code string) *Error {
	return &Error{Tool: tool, Message: message, Code: code}
}
