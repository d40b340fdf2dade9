package tool

import (
	"context"
	"fmt"

	"github.com/hupe1980/agentbus/core"
	"github.com/hupe1980/agentbus/internal/util"
)

// FuncTool adapts a plain Go function into a named tool with a declared
// parameter schema.
//
// Responsibilities:
//   - Holds a lightweight JSON-Schema-like parameter specification
//   - Validates supplied arguments against that schema before execution
//   - Normalizes error handling so callers receive *Error with consistent
//     codes: VALIDATION_ERROR for schema mismatches, EXECUTION_ERROR for
//     failures from the wrapped function (custom codes preserved when the
//     function returns *Error directly)
//
// A FuncTool has no internal mutable state after construction and is safe
// for concurrent use by multiple goroutines.
type FuncTool struct {
	name        string
	description string
	parameters  map[string]any
	fn          Func
}

// New constructs a FuncTool from an explicit schema and function.
//
// Example:
//
//	sum := tool.New(
//	  "calculate_sum",
//	  "Calculate the sum of two numbers",
//	  map[string]any{
//	    "type": "object",
//	    "properties": map[string]any{
//	      "a": map[string]any{"type": "number"},
//	      "b": map[string]any{"type": "number"},
//	    },
//	    "required": []string{"a", "b"},
//	  },
//	  func(ctx context.Context, args map[string]any) (map[string]any, error) {
//	    return map[string]any{"sum": args["a"].(float64) + args["b"].(float64)}, nil
//	  },
//	)
func New(name, description string, parameters map[string]any, fn Func) *FuncTool {
	return &FuncTool{
		name:        name,
		description: description,
		parameters:  parameters,
		fn:          fn,
	}
}

// Name returns the unique tool name used for routing.
func (t *FuncTool) Name() string { return t.name }

// Description returns the short natural language description of the tool.
func (t *FuncTool) Description() string { return t.description }

// Parameters returns the JSON schema describing expected arguments.
func (t *FuncTool) Parameters() map[string]any { return t.parameters }

// Info returns the tool metadata in the form the describe protocol expects.
func (t *FuncTool) Info() *core.ToolInfo {
	return &core.ToolInfo{
		Name:        t.name,
		Description: t.description,
		Parameters:  t.parameters,
	}
}

// Call validates the provided args against the declared schema then invokes
// the wrapped function. Validation or execution failures are wrapped (or
// passed through) as *Error for uniform downstream handling.
func (t *FuncTool) Call(ctx context.Context, args map[string]any) (map[string]any, error) {
	if err := util.ValidateParameters(args, t.parameters); err != nil {
		return nil, &Error{
			Tool:    t.name,
			Message: fmt.Sprintf("parameter validation failed: %v", err),
			Code:    "VALIDATION_ERROR",
		}
	}

	result, err := t.fn(ctx, args)
	if err != nil {
		if toolErr, ok := err.(*Error); ok {
			return nil, toolErr
		}
		return nil, &Error{
			Tool:    t.name,
			Message: err.Error(),
			Code:    "EXECUTION_ERROR",
		}
	}

	return result, nil
}
