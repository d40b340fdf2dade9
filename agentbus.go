// Package agentbus provides a resilient in-process service mesh for agent
// runtimes: a service registry with per-provider circuit breakers and five
// typed message buses (communication, tool, LLM, wise authority and runtime
// control) routing operations to registered providers with priority
// ordering, selection strategies and fallback.
//
// Typical usage:
//
//	mesh := agentbus.New()
//	defer mesh.Stop()
//
//	mesh.Registry().Register(core.ServiceTypeLLM, openai.New())
//	mesh.Start(ctx)
//
//	resp, err := mesh.LLM().Call(ctx, req)
package agentbus

import (
	"context"
	"fmt"

	"github.com/hupe1980/agentbus/bus"
	"github.com/hupe1980/agentbus/config"
	"github.com/hupe1980/agentbus/core"
	"github.com/hupe1980/agentbus/logging"
	"github.com/hupe1980/agentbus/registry"
)

// Options configures a BusManager.
type Options struct {
	// Config supplies queue, timeout and breaker bounds. Defaults to
	// config.Default().
	Config *config.Config

	// Logger is shared by the registry and every bus. When nil a logger
	// is built from Config.Logging.
	Logger logging.Logger
}

// BusManager wires the service registry to one bus per service type and
// manages their lifecycle as a unit.
type BusManager struct {
	registry *registry.ServiceRegistry
	comm     *bus.CommunicationBus
	tool     *bus.ToolBus
	llm      *bus.LLMBus
	wise     *bus.WiseBus
	runtime  *bus.RuntimeControlBus
	logger   logging.Logger
}

// New creates a BusManager with its registry and all five buses.
func New(optFns ...func(o *Options)) *BusManager {
	opts := Options{Config: config.Default()}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Config == nil {
		opts.Config = config.Default()
	}
	if opts.Logger == nil {
		opts.Logger = loggerFromConfig(opts.Config.Logging)
	}

	cfg := opts.Config
	logger := opts.Logger

	reg := registry.New(func(o *registry.Options) {
		o.Logger = logger
		o.BreakerConfig = registry.CircuitBreakerConfig{
			FailureThreshold:  cfg.Breaker.FailureThreshold,
			RecoveryTimeout:   cfg.Breaker.RecoveryTimeout(),
			SuccessThreshold:  cfg.Breaker.SuccessThreshold,
			MaxHalfOpenProbes: cfg.Breaker.MaxHalfOpenProbes,
		}
	})

	busOpts := func(bc config.BusConfig) func(o *bus.Options) {
		return func(o *bus.Options) {
			o.QueueCapacity = bc.QueueCapacity
			o.CallTimeout = bc.CallTimeout()
			o.DrainTimeout = bc.DrainTimeout()
			o.Logger = logger
		}
	}

	return &BusManager{
		registry: reg,
		comm:     bus.NewCommunicationBus(reg, busOpts(cfg.Communication)),
		tool:     bus.NewToolBus(reg, busOpts(cfg.Tool)),
		llm:      bus.NewLLMBus(reg, busOpts(cfg.LLM)),
		wise: bus.NewWiseBus(reg, func(o *bus.WiseOptions) {
			busOpts(cfg.Wise.BusConfig)(&o.Options)
			o.GuidanceTimeout = cfg.Wise.GuidanceTimeout()
		}),
		runtime: bus.NewRuntimeControlBus(reg, busOpts(cfg.RuntimeControl)),
		logger:  logger,
	}
}

func loggerFromConfig(lc config.LoggingConfig) logging.Logger {
	level := logging.LogLevelInfo
	switch lc.Level {
	case "debug":
		level = logging.LogLevelDebug
	case "warn":
		level = logging.LogLevelWarn
	case "error":
		level = logging.LogLevelError
	}
	return logging.NewSlogLogger(level, lc.Format, lc.AddSource).WithComponent("agentbus")
}

// Registry exposes the service registry for provider registration and
// administrative operations.
func (m *BusManager) Registry() *registry.ServiceRegistry { return m.registry }

// Communication returns the communication bus.
func (m *BusManager) Communication() *bus.CommunicationBus { return m.comm }

// Tool returns the tool bus.
func (m *BusManager) Tool() *bus.ToolBus { return m.tool }

// LLM returns the LLM bus.
func (m *BusManager) LLM() *bus.LLMBus { return m.llm }

// Wise returns the wise authority bus.
func (m *BusManager) Wise() *bus.WiseBus { return m.wise }

// RuntimeControl returns the runtime control bus.
func (m *BusManager) RuntimeControl() *bus.RuntimeControlBus { return m.runtime }

// Start launches every bus's consumer loop. On failure the buses already
// started are stopped again so Start either fully succeeds or leaves
// nothing running.
func (m *BusManager) Start(ctx context.Context) error {
	started := make([]interface{ Stop() }, 0, 5)
	for _, b := range []interface {
		Start(context.Context) error
		Stop()
	}{m.comm, m.tool, m.llm, m.wise, m.runtime} {
		if err := b.Start(ctx); err != nil {
			for i := len(started) - 1; i >= 0; i-- {
				started[i].Stop()
			}
			return fmt.Errorf("start buses: %w", err)
		}
		started = append(started, b)
	}
	return nil
}

// Stop stops every bus in reverse start order, draining queued operations
// within each bus's drain timeout.
func (m *BusManager) Stop() {
	m.runtime.Stop()
	m.wise.Stop()
	m.llm.Stop()
	m.tool.Stop()
	m.comm.Stop()
}

// WaitReady blocks until every listed service type has at least one
// registered provider, or all types when none are given.
func (m *BusManager) WaitReady(ctx context.Context, types ...core.ServiceType) error {
	return m.registry.WaitReady(ctx, types...)
}

// Stats returns the queue and throughput counters of every bus, in service
// type order.
func (m *BusManager) Stats() []bus.Stats {
	return []bus.Stats{
		m.comm.Stats(),
		m.tool.Stats(),
		m.llm.Stats(),
		m.wise.Stats(),
		m.runtime.Stats(),
	}
}
