package testutil

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/agentbus/core"
)

// FakeBehavior scripts how a fake provider responds. Zero value means every
// call succeeds immediately.
type FakeBehavior struct {
	// Err is returned by every call when set.
	Err error

	// FailFirst makes the first N calls fail, later ones succeed.
	FailFirst int

	// Delay is applied before answering. Combined with a short bus call
	// timeout it simulates a hung provider; the fake still honors ctx so
	// goroutines unwind.
	Delay time.Duration

	// Unhealthy makes IsHealthy report false.
	Unhealthy bool
}

// fakeBase implements core.Provider plus shared call accounting.
type fakeBase struct {
	name     string
	behavior FakeBehavior
	calls    atomic.Int64
}

func (f *fakeBase) Name() string { return f.name }

func (f *fakeBase) IsHealthy(_ context.Context) bool { return !f.behavior.Unhealthy }

// Calls returns how many scripted operations were invoked (health checks
// excluded).
func (f *fakeBase) Calls() int { return int(f.calls.Load()) }

// step applies the scripted delay and failure behavior for one call.
func (f *fakeBase) step(ctx context.Context) error {
	n := f.calls.Add(1)

	if f.behavior.Delay > 0 {
		select {
		case <-time.After(f.behavior.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.behavior.Err != nil {
		return f.behavior.Err
	}
	if int(n) <= f.behavior.FailFirst {
		return fmt.Errorf("%s: scripted failure %d", f.name, n)
	}
	return nil
}

// FakeCommunication is a scriptable communication adapter that records sent
// messages.
type FakeCommunication struct {
	fakeBase

	mu   sync.Mutex
	sent []string

	// Messages is returned by FetchMessages.
	Messages []core.FetchedMessage
}

// NewFakeCommunication creates a scriptable communication provider.
func NewFakeCommunication(name string, behavior FakeBehavior) *FakeCommunication {
	return &FakeCommunication{fakeBase: fakeBase{name: name, behavior: behavior}}
}

// SendMessage records the content on success.
func (f *FakeCommunication) SendMessage(ctx context.Context, channelID, content string) error {
	if err := f.step(ctx); err != nil {
		return err
	}
	f.mu.Lock()
	f.sent = append(f.sent, channelID+":"+content)
	f.mu.Unlock()
	return nil
}

// FetchMessages returns the scripted messages.
func (f *FakeCommunication) FetchMessages(ctx context.Context, _ string, limit int) ([]core.FetchedMessage, error) {
	if err := f.step(ctx); err != nil {
		return nil, err
	}
	if limit > 0 && limit < len(f.Messages) {
		return f.Messages[:limit], nil
	}
	return f.Messages, nil
}

// Sent returns every successfully delivered "channel:content" pair.
func (f *FakeCommunication) Sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

// FakeTool is a scriptable tool provider hosting a fixed set of tool names.
type FakeTool struct {
	fakeBase

	// Tools maps hosted tool names to their info. Nil info is allowed.
	Tools map[string]*core.ToolInfo

	// Result is returned on successful execution; when nil a minimal
	// completed result is synthesized.
	Result *core.ToolResult
}

// NewFakeTool creates a scriptable tool provider.
func NewFakeTool(name string, behavior FakeBehavior, tools ...string) *FakeTool {
	hosted := make(map[string]*core.ToolInfo, len(tools))
	for _, t := range tools {
		hosted[t] = nil
	}
	return &FakeTool{fakeBase: fakeBase{name: name, behavior: behavior}, Tools: hosted}
}

// AvailableTools lists the hosted tool names.
func (f *FakeTool) AvailableTools(_ context.Context) ([]string, error) {
	names := make([]string, 0, len(f.Tools))
	for t := range f.Tools {
		names = append(names, t)
	}
	return names, nil
}

// ExecuteTool runs the scripted behavior and returns the canned result.
func (f *FakeTool) ExecuteTool(ctx context.Context, name string, params map[string]any) (*core.ToolResult, error) {
	if err := f.step(ctx); err != nil {
		return nil, err
	}
	if f.Result != nil {
		return f.Result, nil
	}
	return &core.ToolResult{
		ToolName: name,
		Status:   core.ToolStatusCompleted,
		Success:  true,
		Data:     map[string]any{"echo": params, "provider": f.name},
	}, nil
}

// DescribeTool returns the hosted tool's info, or nil for unknown names.
func (f *FakeTool) DescribeTool(_ context.Context, name string) (*core.ToolInfo, error) {
	info, ok := f.Tools[name]
	if !ok {
		return nil, nil
	}
	return info, nil
}

// FakeLLM is a scriptable completion provider.
type FakeLLM struct {
	fakeBase

	// Content is the completion text; defaults to the provider name.
	Content string
}

// NewFakeLLM creates a scriptable LLM provider.
func NewFakeLLM(name string, behavior FakeBehavior) *FakeLLM {
	return &FakeLLM{fakeBase: fakeBase{name: name, behavior: behavior}}
}

// Call returns a canned completion.
func (f *FakeLLM) Call(ctx context.Context, req core.LLMRequest) (*core.LLMResponse, error) {
	if err := f.step(ctx); err != nil {
		return nil, err
	}
	content := f.Content
	if content == "" {
		content = f.name
	}
	return &core.LLMResponse{
		Content:      content,
		Model:        f.name,
		FinishReason: "stop",
		Usage: core.ResourceUsage{
			PromptTokens:     len(req.Messages),
			CompletionTokens: 1,
			TotalTokens:      len(req.Messages) + 1,
		},
	}, nil
}

// FakeWise is a scriptable wise authority.
type FakeWise struct {
	fakeBase

	// Confidence and Guidance shape the canned guidance response.
	Confidence float64
	Guidance   string

	deferrals atomic.Int64
}

// NewFakeWise creates a scriptable wise authority.
func NewFakeWise(name string, behavior FakeBehavior, confidence float64) *FakeWise {
	return &FakeWise{fakeBase: fakeBase{name: name, behavior: behavior}, Confidence: confidence}
}

// ProvideGuidance returns the canned answer with this authority's confidence.
func (f *FakeWise) ProvideGuidance(ctx context.Context, req core.GuidanceRequest) (*core.GuidanceResponse, error) {
	if err := f.step(ctx); err != nil {
		return nil, err
	}
	guidance := f.Guidance
	if guidance == "" && len(req.Options) > 0 {
		guidance = req.Options[0]
	}
	return &core.GuidanceResponse{
		Guidance:   guidance,
		Confidence: f.Confidence,
	}, nil
}

// SendDeferral acknowledges with a synthetic identifier.
func (f *FakeWise) SendDeferral(ctx context.Context, def core.Deferral) (string, error) {
	if err := f.step(ctx); err != nil {
		return "", err
	}
	f.deferrals.Add(1)
	return "ack-" + f.name + "-" + def.ThoughtID, nil
}

// Deferrals returns how many deferrals were acknowledged.
func (f *FakeWise) Deferrals() int { return int(f.deferrals.Load()) }

// FakeRuntime is a scriptable runtime control provider tracking processor
// state.
type FakeRuntime struct {
	fakeBase

	mu       sync.Mutex
	paused   bool
	shutdown bool
	reason   string

	// Status is returned by QueueStatus; nil synthesizes one.
	Status *core.ProcessorQueueStatus
}

// NewFakeRuntime creates a scriptable runtime control provider.
func NewFakeRuntime(name string, behavior FakeBehavior) *FakeRuntime {
	return &FakeRuntime{fakeBase: fakeBase{name: name, behavior: behavior}}
}

// PauseProcessing marks the processor paused.
func (f *FakeRuntime) PauseProcessing(ctx context.Context) error {
	if err := f.step(ctx); err != nil {
		return err
	}
	f.mu.Lock()
	f.paused = true
	f.mu.Unlock()
	return nil
}

// ResumeProcessing clears the paused flag.
func (f *FakeRuntime) ResumeProcessing(ctx context.Context) error {
	if err := f.step(ctx); err != nil {
		return err
	}
	f.mu.Lock()
	f.paused = false
	f.mu.Unlock()
	return nil
}

// QueueStatus returns the scripted or a synthesized status.
func (f *FakeRuntime) QueueStatus(ctx context.Context) (*core.ProcessorQueueStatus, error) {
	if err := f.step(ctx); err != nil {
		return nil, err
	}
	if f.Status != nil {
		return f.Status, nil
	}
	return &core.ProcessorQueueStatus{ProcessorName: f.name, QueueSize: 0, MaxSize: 100}, nil
}

// Shutdown records the shutdown reason.
func (f *FakeRuntime) Shutdown(ctx context.Context, reason string) error {
	if err := f.step(ctx); err != nil {
		return err
	}
	f.mu.Lock()
	f.shutdown = true
	f.reason = reason
	f.mu.Unlock()
	return nil
}

// Paused reports the processor's paused flag.
func (f *FakeRuntime) Paused() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.paused
}

// ShutdownReason returns whether shutdown was called and with which reason.
func (f *FakeRuntime) ShutdownReason() (bool, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.shutdown, f.reason
}

var (
	_ core.CommunicationProvider  = (*FakeCommunication)(nil)
	_ core.ToolProvider           = (*FakeTool)(nil)
	_ core.ToolDescriber          = (*FakeTool)(nil)
	_ core.LLMProvider            = (*FakeLLM)(nil)
	_ core.WiseProvider           = (*FakeWise)(nil)
	_ core.RuntimeControlProvider = (*FakeRuntime)(nil)
)
