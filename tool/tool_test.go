package tool

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentbus/core"
)

func sumTool() *FuncTool {
	return New(
		"calculate_sum",
		"Calculate the sum of two numbers",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"a": map[string]any{"type": "number"},
				"b": map[string]any{"type": "number"},
			},
			"required": []string{"a", "b"},
		},
		func(ctx context.Context, args map[string]any) (map[string]any, error) {
			return map[string]any{"sum": args["a"].(float64) + args["b"].(float64)}, nil
		},
	)
}

func TestFuncToolCall(t *testing.T) {
	data, err := sumTool().Call(context.Background(), map[string]any{"a": 2.0, "b": 3.0})
	require.NoError(t, err)
	assert.Equal(t, 5.0, data["sum"])
}

func TestFuncToolValidation(t *testing.T) {
	_, err := sumTool().Call(context.Background(), map[string]any{"a": 2.0})

	var toolErr *Error
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "VALIDATION_ERROR", toolErr.Code)
	assert.Equal(t, "calculate_sum", toolErr.Tool)
}

func TestFuncToolExecutionError(t *testing.T) {
	boom := New("boom", "always fails", map[string]any{"type": "object"},
		func(ctx context.Context, args map[string]any) (map[string]any, error) {
			return nil, errors.New("kaboom")
		})

	_, err := boom.Call(context.Background(), nil)

	var toolErr *Error
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "EXECUTION_ERROR", toolErr.Code)
	assert.Equal(t, "kaboom", toolErr.Message)
}

func TestFuncToolCustomErrorPreserved(t *testing.T) {
	custom := New("quota", "checks quota", map[string]any{"type": "object"},
		func(ctx context.Context, args map[string]any) (map[string]any, error) {
			return nil, NewError("quota", "limit exceeded", "QUOTA_EXCEEDED")
		})

	_, err := custom.Call(context.Background(), nil)

	var toolErr *Error
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "QUOTA_EXCEEDED", toolErr.Code)
}

func TestHostCapabilities(t *testing.T) {
	host := NewHost("local")
	zeta := New("zeta", "does nothing", map[string]any{"type": "object"},
		func(ctx context.Context, args map[string]any) (map[string]any, error) {
			return nil, nil
		})
	require.NoError(t, host.Add(sumTool(), zeta))

	assert.Equal(t, []string{"calculate_sum", "zeta"}, host.Capabilities())

	tools, err := host.AvailableTools(context.Background())
	require.NoError(t, err)
	assert.Equal(t, host.Capabilities(), tools)
}

func TestHostRejectsDuplicates(t *testing.T) {
	host := NewHost("local")
	require.NoError(t, host.Add(sumTool()))
	assert.Error(t, host.Add(sumTool()))
	assert.Error(t, host.Add(nil))
}

func TestHostExecuteTool(t *testing.T) {
	host := NewHost("local")
	require.NoError(t, host.Add(sumTool()))

	result, err := host.ExecuteTool(context.Background(), "calculate_sum", map[string]any{"a": 1.0, "b": 2.0})
	require.NoError(t, err)
	assert.Equal(t, core.ToolStatusCompleted, result.Status)
	assert.True(t, result.Success)
	assert.Equal(t, 3.0, result.Data["sum"])
}

func TestHostExecuteUnknownTool(t *testing.T) {
	host := NewHost("local")

	result, err := host.ExecuteTool(context.Background(), "missing", nil)
	require.NoError(t, err)
	assert.Equal(t, core.ToolStatusNotFound, result.Status)
	assert.False(t, result.Success)
}

func TestHostExecuteToolFailure(t *testing.T) {
	host := NewHost("local")
	require.NoError(t, host.Add(New("boom", "always fails", map[string]any{"type": "object"},
		func(ctx context.Context, args map[string]any) (map[string]any, error) {
			return nil, errors.New("kaboom")
		})))

	result, err := host.ExecuteTool(context.Background(), "boom", nil)
	require.NoError(t, err)
	assert.Equal(t, core.ToolStatusFailed, result.Status)
	assert.Contains(t, result.Error, "kaboom")
}

func TestHostDescribeTool(t *testing.T) {
	host := NewHost("local")
	require.NoError(t, host.Add(sumTool()))

	info, err := host.DescribeTool(context.Background(), "calculate_sum")
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, "calculate_sum", info.Name)
	assert.Equal(t, "Calculate the sum of two numbers", info.Description)

	info, err = host.DescribeTool(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, info)
}
