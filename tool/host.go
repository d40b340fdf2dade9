package tool

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/agentbus/core"
	"github.com/hupe1980/agentbus/logging"
)

// Compile-time interface assertions.
var (
	_ core.ToolProvider  = (*Host)(nil)
	_ core.ToolDescriber = (*Host)(nil)
)

// HostOptions configures a Host.
type HostOptions struct {
	// Logger receives execution events. Defaults to the standard slog logger.
	Logger logging.Logger
}

// Host bundles function tools behind a single tool provider. Register a Host
// with the tool names it serves as capabilities:
//
//	host := tool.NewHost("local")
//	host.Add(sumTool, clockTool)
//	registry.Register(core.ServiceTypeTool, host, func(o *registry.RegisterOptions) {
//	  o.Capabilities = host.Capabilities()
//	})
type Host struct {
	name   string
	logger logging.Logger

	mu    sync.RWMutex
	tools map[string]*FuncTool
}

// NewHost creates an empty Host with the given provider name.
func NewHost(name string, optFns ...func(o *HostOptions)) *Host {
	opts := HostOptions{
		Logger: logging.NewDefaultSlogLogger(),
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Host{
		name:   name,
		logger: opts.Logger,
		tools:  make(map[string]*FuncTool),
	}
}

// Add registers tools with the host. Tool names must be unique within a host.
func (h *Host) Add(tools ...*FuncTool) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, t := range tools {
		if t == nil || t.Name() == "" {
			return errors.New("tool must have a name")
		}
		if _, exists := h.tools[t.Name()]; exists {
			return fmt.Errorf("duplicate tool name: %s", t.Name())
		}
		h.tools[t.Name()] = t
	}

	return nil
}

// Name returns the provider name.
func (h *Host) Name() string { return h.name }

// IsHealthy reports readiness. A Host executes in-process and is always ready.
func (h *Host) IsHealthy(ctx context.Context) bool { return true }

// Capabilities returns the sorted tool names, suitable for registration.
func (h *Host) Capabilities() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.tools))
	for name := range h.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// AvailableTools lists the tool names this host can execute.
func (h *Host) AvailableTools(ctx context.Context) ([]string, error) {
	return h.Capabilities(), nil
}

// DescribeTool returns metadata for a hosted tool, or nil when unknown.
func (h *Host) DescribeTool(ctx context.Context, name string) (*core.ToolInfo, error) {
	h.mu.RLock()
	t, ok := h.tools[name]
	h.mu.RUnlock()

	if !ok {
		return nil, nil
	}

	return t.Info(), nil
}

// ExecuteTool runs the named tool. Unknown names and tool-level failures are
// reported through the result status, not the error return; the error return
// is reserved for infrastructure faults.
func (h *Host) ExecuteTool(ctx context.Context, name string, params map[string]any) (*core.ToolResult, error) {
	h.mu.RLock()
	t, ok := h.tools[name]
	h.mu.RUnlock()

	if !ok {
		return &core.ToolResult{
			ToolName: name,
			Status:   core.ToolStatusNotFound,
			Error:    fmt.Sprintf("tool not hosted: %s", name),
		}, nil
	}

	start := time.Now()

	data, err := t.Call(ctx, params)
	if err != nil {
		h.logger.Warn("tool execution failed", "host", h.name, "tool", name, "error", err.Error())

		return &core.ToolResult{
			ToolName: name,
			Status:   core.ToolStatusFailed,
			Error:    err.Error(),
		}, nil
	}

	h.logger.Debug("tool executed", "host", h.name, "tool", name, "duration_ms", time.Since(start).Milliseconds())

	return &core.ToolResult{
		ToolName: name,
		Status:   core.ToolStatusCompleted,
		Success:  true,
		Data:     data,
	}, nil
}
