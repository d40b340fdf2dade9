package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/agentbus/core"
	"github.com/hupe1980/agentbus/logging"
	"github.com/hupe1980/agentbus/registry"
)

const (
	// DefaultQueueCapacity bounds the number of pending async operations.
	DefaultQueueCapacity = 1000

	// DefaultCallTimeout bounds every individual provider invocation.
	DefaultCallTimeout = 30 * time.Second

	// DefaultDrainTimeout bounds how long Stop waits for queued operations.
	DefaultDrainTimeout = 5 * time.Second
)

// Options configures a bus.
type Options struct {
	// QueueCapacity is the maximum number of queued async operations.
	// Submissions beyond capacity are rejected with core.ErrQueueFull.
	QueueCapacity int

	// CallTimeout bounds each provider invocation. A call exceeding it is
	// recorded as a circuit breaker failure.
	CallTimeout time.Duration

	// DrainTimeout bounds how long Stop keeps processing already queued
	// operations before forcing termination.
	DrainTimeout time.Duration

	// Strategy is the bus-level default selection strategy, used when no
	// candidate provider declares one of its own.
	Strategy core.SelectionStrategy

	// Logger receives dispatch, overflow and lifecycle events. Defaults
	// to NoOpLogger.
	Logger logging.Logger
}

func defaultOptions() Options {
	return Options{
		QueueCapacity: DefaultQueueCapacity,
		CallTimeout:   DefaultCallTimeout,
		DrainTimeout:  DefaultDrainTimeout,
		Strategy:      core.StrategyFallback,
		Logger:        logging.NoOpLogger{},
	}
}

// Stats is a read-only view of a bus's queue and throughput counters.
type Stats struct {
	ServiceType string `json:"service_type"`
	QueueSize   int    `json:"queue_size"`
	Capacity    int    `json:"capacity"`
	Processed   uint64 `json:"processed"`
	Failed      uint64 `json:"failed"`
	Running     bool   `json:"running"`
}

// task is one queued asynchronous operation.
type task struct {
	handler       string
	correlationID string
	run           func(ctx context.Context) error
}

// baseBus carries the queue, consumer loop and dispatch machinery shared by
// every specialized bus.
type baseBus struct {
	serviceType  core.ServiceType
	registry     *registry.ServiceRegistry
	logger       logging.Logger
	queue        chan task
	capacity     int
	callTimeout  time.Duration
	drainTimeout time.Duration
	strategy     core.SelectionStrategy
	latency      *latencyTracker
	rotation     atomic.Uint64

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	processed atomic.Uint64
	failed    atomic.Uint64
}

func newBaseBus(serviceType core.ServiceType, reg *registry.ServiceRegistry, opts Options) *baseBus {
	if opts.QueueCapacity <= 0 {
		opts.QueueCapacity = DefaultQueueCapacity
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = DefaultDrainTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &baseBus{
		serviceType:  serviceType,
		registry:     reg,
		logger:       opts.Logger,
		queue:        make(chan task, opts.QueueCapacity),
		capacity:     opts.QueueCapacity,
		callTimeout:  opts.CallTimeout,
		drainTimeout: opts.DrainTimeout,
		strategy:     opts.Strategy,
		latency:      newLatencyTracker(),
	}
}

// ServiceType returns the service type this bus routes for.
func (b *baseBus) ServiceType() core.ServiceType { return b.serviceType }

// Start launches the consumer loop. Starting an already running bus is an
// error.
func (b *baseBus) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		return fmt.Errorf("%s bus already started", b.serviceType)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.done = make(chan struct{})
	b.running = true

	go b.loop(loopCtx)

	b.logger.Info("bus started", "service", b.serviceType.String(), "capacity", b.capacity)
	return nil
}

// Stop rejects new operations, drains queued ones within the drain timeout
// and terminates the consumer loop. Stopping a stopped bus is a no-op.
func (b *baseBus) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.running = false
	cancel, done := b.cancel, b.done
	b.mu.Unlock()

	cancel()
	<-done

	b.logger.Info("bus stopped",
		"service", b.serviceType.String(),
		"processed", b.processed.Load(),
		"failed", b.failed.Load(),
		"abandoned", len(b.queue))
}

// Stats returns the bus's queue depth and counters. Read-only.
func (b *baseBus) Stats() Stats {
	b.mu.Lock()
	running := b.running
	b.mu.Unlock()

	return Stats{
		ServiceType: b.serviceType.String(),
		QueueSize:   len(b.queue),
		Capacity:    b.capacity,
		Processed:   b.processed.Load(),
		Failed:      b.failed.Load(),
		Running:     running,
	}
}

// loop is the single consumer: it processes queued tasks in submission order
// until cancellation, then drains what remains within the grace period.
func (b *baseBus) loop(ctx context.Context) {
	defer close(b.done)

	for {
		select {
		case t := <-b.queue:
			b.process(ctx, t)
		case <-ctx.Done():
			b.drain()
			return
		}
	}
}

// drain processes leftover tasks after cancellation. The deadline bounds the
// whole drain, not each task, so a slow provider cannot stall shutdown
// indefinitely.
func (b *baseBus) drain() {
	deadline := time.Now().Add(b.drainTimeout)
	ctx, cancel := context.WithDeadline(context.Background(), deadline)
	defer cancel()

	for time.Now().Before(deadline) {
		select {
		case t := <-b.queue:
			b.process(ctx, t)
		default:
			return
		}
	}

	if n := len(b.queue); n > 0 {
		b.logger.Warn("drain timeout elapsed, abandoning queued operations",
			"service", b.serviceType.String(), "abandoned", n)
	}
}

// process runs one task, isolating panics and accounting the outcome. A
// misbehaving operation can never stop the consumer loop.
func (b *baseBus) process(ctx context.Context, t task) {
	defer func() {
		if r := recover(); r != nil {
			b.failed.Add(1)
			b.logger.Error("panic in bus operation",
				"service", b.serviceType.String(),
				"handler", t.handler,
				"correlation_id", t.correlationID,
				"panic", fmt.Sprint(r))
		}
	}()

	if err := t.run(ctx); err != nil {
		b.failed.Add(1)
		b.logger.Warn("queued operation failed",
			"service", b.serviceType.String(),
			"handler", t.handler,
			"correlation_id", t.correlationID,
			"error", err)
		return
	}
	b.processed.Add(1)
}

// enqueue submits a task without blocking. A full queue rejects the task;
// callers needing guaranteed delivery must retry at a higher layer.
func (b *baseBus) enqueue(t task) error {
	b.mu.Lock()
	running := b.running
	b.mu.Unlock()
	if !running {
		return fmt.Errorf("%s bus: %w", b.serviceType, core.ErrBusNotRunning)
	}

	select {
	case b.queue <- t:
		return nil
	default:
		b.failed.Add(1)
		b.logger.Warn("queue overflow, operation dropped",
			"service", b.serviceType.String(),
			"handler", t.handler,
			"correlation_id", t.correlationID,
			"capacity", b.capacity)
		return fmt.Errorf("%s bus: %w", b.serviceType, core.ErrQueueFull)
	}
}

// dispatch routes one synchronous operation. Providers are attempted in
// strategy order; under the fallback strategy a failure moves on to the next
// candidate, under every other strategy the first attempt's error is
// surfaced.
func (b *baseBus) dispatch(
	ctx context.Context,
	refs []*registry.ProviderRef,
	handler string,
	call func(ctx context.Context, ref *registry.ProviderRef) error,
) error {
	if len(refs) == 0 {
		return &core.ProviderUnavailableError{Service: b.serviceType}
	}

	ordered, strategy := b.selectOrder(refs)
	start := time.Now()

	var lastErr error
	attempts := 0
	for _, ref := range ordered {
		if !ref.Provider().IsHealthy(ctx) {
			b.logger.Debug("skipping unhealthy provider",
				"service", b.serviceType.String(), "provider", ref.Name())
			continue
		}

		release, ok := ref.Acquire()
		if !ok {
			continue
		}

		attempts++
		err := b.invoke(ctx, ref, call)
		release()

		if err == nil {
			b.logger.Debug("dispatch succeeded",
				"service", b.serviceType.String(),
				"provider", ref.Name(),
				"handler", handler,
				"attempts", attempts,
				"duration", time.Since(start))
			return nil
		}

		lastErr = err
		b.logger.Warn("provider call failed",
			"service", b.serviceType.String(),
			"provider", ref.Name(),
			"handler", handler,
			"error", err)

		if strategy != core.StrategyFallback || ctx.Err() != nil {
			return err
		}
	}

	if lastErr != nil {
		return lastErr
	}
	return &core.ProviderUnavailableError{Service: b.serviceType}
}

// invoke runs one provider call under the per-call timeout and records the
// outcome on the provider's breaker exactly once. A call that never returns
// counts as a single failure when the timeout elapses; its goroutine is left
// to finish in the background without holding any bus resource.
func (b *baseBus) invoke(
	ctx context.Context,
	ref *registry.ProviderRef,
	call func(ctx context.Context, ref *registry.ProviderRef) error,
) error {
	callCtx, cancel := context.WithTimeout(ctx, b.callTimeout)
	defer cancel()

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("provider panic: %v", r)
			}
		}()
		done <- call(callCtx, ref)
	}()

	select {
	case err := <-done:
		if err != nil {
			// Providers that honor ctx report the deadline themselves;
			// classify that the same as the timeout branch below. A
			// cancellation initiated by the caller is not a provider
			// fault and leaves the breaker untouched.
			switch {
			case errors.Is(err, context.DeadlineExceeded):
				ref.RecordFailure()
				return &core.OperationTimeoutError{Provider: ref.Name(), Timeout: b.callTimeout}
			case errors.Is(err, context.Canceled):
				return &core.OperationFailedError{Provider: ref.Name(), Err: err}
			default:
				ref.RecordFailure()
				return &core.OperationFailedError{Provider: ref.Name(), Err: err}
			}
		}
		ref.RecordSuccess()
		b.latency.Record(ref.Name(), time.Since(start))
		return nil
	case <-callCtx.Done():
		if errors.Is(context.Cause(callCtx), context.Canceled) {
			return &core.OperationFailedError{Provider: ref.Name(), Err: context.Canceled}
		}
		ref.RecordFailure()
		return &core.OperationTimeoutError{Provider: ref.Name(), Timeout: b.callTimeout}
	}
}
