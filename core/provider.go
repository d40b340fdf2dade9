package core

import (
	"context"
	"time"
)

// Provider is the minimal contract every registered service implementation
// satisfies. Providers are registered with the ServiceRegistry by an external
// bootstrapper and are only ever invoked through a bus.
//
// Provider implementations should:
//   - Return a name that is unique within their service type
//   - Keep IsHealthy cheap; it may be called on every selection
//   - Be safe for concurrent use
type Provider interface {
	// Name returns the unique identifier for this provider within its
	// service type.
	Name() string

	// IsHealthy reports whether the provider is ready to handle requests.
	// A false result is treated as a selection failure, not an error.
	IsHealthy(ctx context.Context) bool
}

// CommunicationProvider sends and fetches messages on external channels
// (chat adapters, CLI, webhooks).
type CommunicationProvider interface {
	Provider

	// SendMessage delivers content to the given channel.
	SendMessage(ctx context.Context, channelID, content string) error

	// FetchMessages returns up to limit recent messages from the channel,
	// newest last.
	FetchMessages(ctx context.Context, channelID string, limit int) ([]FetchedMessage, error)
}

// FetchedMessage is a single message retrieved from a communication channel.
type FetchedMessage struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"channel_id"`
	AuthorID  string    `json:"author_id"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ToolProvider executes named tools with structured arguments. Providers
// declare every tool they host as a registration capability so the bus can
// route by declaration instead of runtime discovery.
type ToolProvider interface {
	Provider

	// AvailableTools lists the tool names this provider can execute.
	AvailableTools(ctx context.Context) ([]string, error)

	// ExecuteTool runs the named tool and returns its result. Unknown tool
	// names return a NOT_FOUND result, not an error.
	ExecuteTool(ctx context.Context, name string, params map[string]any) (*ToolResult, error)
}

// ToolDescriber is an optional extension of ToolProvider. When implemented,
// the tool bus validates arguments against the declared parameter schema
// before dispatching.
type ToolDescriber interface {
	// DescribeTool returns metadata for a hosted tool, or nil when the
	// tool is unknown.
	DescribeTool(ctx context.Context, name string) (*ToolInfo, error)
}

// ToolExecutionStatus classifies the outcome of a tool execution.
type ToolExecutionStatus string

const (
	// ToolStatusCompleted indicates the tool ran to completion.
	ToolStatusCompleted ToolExecutionStatus = "completed"
	// ToolStatusFailed indicates the tool ran but reported an error.
	ToolStatusFailed ToolExecutionStatus = "failed"
	// ToolStatusNotFound indicates no provider hosts the requested tool.
	ToolStatusNotFound ToolExecutionStatus = "not_found"
	// ToolStatusTimeout indicates the execution exceeded its time bound.
	ToolStatusTimeout ToolExecutionStatus = "timeout"
)

// ToolResult is the outcome of a single tool execution. CorrelationID is
// assigned by the bus and can be used to retrieve the result later.
type ToolResult struct {
	ToolName      string              `json:"tool_name"`
	Status        ToolExecutionStatus `json:"status"`
	Success       bool                `json:"success"`
	Data          map[string]any      `json:"data,omitempty"`
	Error         string              `json:"error,omitempty"`
	CorrelationID string              `json:"correlation_id"`
}

// ToolInfo describes a hosted tool. Parameters is a JSON Schema object
// (minimal subset: type/properties/required).
type ToolInfo struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// LLMProvider produces completions for normalized chat requests.
type LLMProvider interface {
	Provider

	// Call performs one completion. Implementations must honor ctx
	// cancellation; the bus enforces a deadline on every call.
	Call(ctx context.Context, req LLMRequest) (*LLMResponse, error)
}

// LLMMessage is a single chat message in provider-neutral form.
type LLMMessage struct {
	Role    string `json:"role"` // "system", "user" or "assistant"
	Content string `json:"content"`
}

// LLMRequest captures the normalized input for a completion call.
type LLMRequest struct {
	Messages    []LLMMessage `json:"messages"`
	MaxTokens   int          `json:"max_tokens,omitempty"`
	Temperature float64      `json:"temperature,omitempty"`
}

// LLMResponse is the completed output of an LLM call.
type LLMResponse struct {
	Content      string        `json:"content"`
	Model        string        `json:"model"`
	FinishReason string        `json:"finish_reason,omitempty"`
	Usage        ResourceUsage `json:"usage"`
}

// ResourceUsage accounts tokens consumed by a completion.
type ResourceUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// WiseProvider answers guidance requests and acknowledges deferrals. Multiple
// wise providers may be registered; the wise bus fans requests out to all of
// them and arbitrates the responses.
type WiseProvider interface {
	Provider

	// ProvideGuidance returns this authority's answer to a guidance
	// request, including a confidence score used for arbitration.
	ProvideGuidance(ctx context.Context, req GuidanceRequest) (*GuidanceResponse, error)

	// SendDeferral notifies the authority that a decision was deferred.
	// The returned identifier acknowledges receipt.
	SendDeferral(ctx context.Context, def Deferral) (string, error)
}

// GuidanceRequest asks wise authorities for a recommendation.
type GuidanceRequest struct {
	// Context describes the situation needing guidance.
	Context string `json:"context"`
	// Capability is the domain tag the answering provider must declare
	// (e.g. "policy_interpretation"). Validated against the capability
	// firewall before any provider is contacted.
	Capability string `json:"capability,omitempty"`
	// Options are the candidate choices, if the caller has narrowed any.
	Options []string `json:"options,omitempty"`
}

// GuidanceResponse is one authority's answer. Responses are ranked by
// Confidence; on ties the first responder wins.
type GuidanceResponse struct {
	ProviderName string  `json:"provider_name"`
	Guidance     string  `json:"guidance"`
	Confidence   float64 `json:"confidence"`
	Reasoning    string  `json:"reasoning,omitempty"`
	// Degraded marks a synthesized response returned when no provider
	// answered within the arbitration window.
	Degraded bool `json:"degraded,omitempty"`
}

// Deferral records a decision handed off to a wise authority.
type Deferral struct {
	ThoughtID  string            `json:"thought_id"`
	TaskID     string            `json:"task_id,omitempty"`
	Reason     string            `json:"reason"`
	DeferUntil *time.Time        `json:"defer_until,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// RuntimeControlProvider manages the lifecycle of an agent processor.
type RuntimeControlProvider interface {
	Provider

	// PauseProcessing suspends the processor.
	PauseProcessing(ctx context.Context) error

	// ResumeProcessing resumes a paused processor.
	ResumeProcessing(ctx context.Context) error

	// QueueStatus reports the processor's queue depth and throughput.
	QueueStatus(ctx context.Context) (*ProcessorQueueStatus, error)

	// Shutdown stops the processor permanently.
	Shutdown(ctx context.Context, reason string) error
}

// ProcessorQueueStatus is a point-in-time view of a processor queue.
type ProcessorQueueStatus struct {
	ProcessorName  string  `json:"processor_name"`
	QueueSize      int     `json:"queue_size"`
	MaxSize        int     `json:"max_size"`
	ProcessingRate float64 `json:"processing_rate"`
}
