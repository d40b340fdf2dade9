package bus

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/agentbus/core"
	"github.com/hupe1980/agentbus/registry"
)

// RuntimeControlBus routes processor lifecycle commands. Control commands
// are serialized: pause, resume and shutdown never interleave, and once a
// shutdown starts every later command is refused.
type RuntimeControlBus struct {
	*baseBus

	// opMu serializes state-changing control operations.
	opMu         sync.Mutex
	shuttingDown atomic.Bool
}

// NewRuntimeControlBus creates the runtime control bus.
func NewRuntimeControlBus(reg *registry.ServiceRegistry, optFns ...func(o *Options)) *RuntimeControlBus {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &RuntimeControlBus{baseBus: newBaseBus(core.ServiceTypeRuntimeControl, reg, opts)}
}

// PauseProcessing suspends the processor through the first available
// controller.
func (b *RuntimeControlBus) PauseProcessing(ctx context.Context) error {
	b.opMu.Lock()
	defer b.opMu.Unlock()

	if b.shuttingDown.Load() {
		return core.ErrShuttingDown
	}

	refs := b.registry.GetProviders(core.ServiceTypeRuntimeControl, registry.Query{})
	return b.dispatch(ctx, refs, "", func(ctx context.Context, ref *registry.ProviderRef) error {
		provider, ok := ref.Provider().(core.RuntimeControlProvider)
		if !ok {
			return fmt.Errorf("provider %q does not implement runtime control", ref.Name())
		}
		return provider.PauseProcessing(ctx)
	})
}

// ResumeProcessing resumes a paused processor.
func (b *RuntimeControlBus) ResumeProcessing(ctx context.Context) error {
	b.opMu.Lock()
	defer b.opMu.Unlock()

	if b.shuttingDown.Load() {
		return core.ErrShuttingDown
	}

	refs := b.registry.GetProviders(core.ServiceTypeRuntimeControl, registry.Query{})
	return b.dispatch(ctx, refs, "", func(ctx context.Context, ref *registry.ProviderRef) error {
		provider, ok := ref.Provider().(core.RuntimeControlProvider)
		if !ok {
			return fmt.Errorf("provider %q does not implement runtime control", ref.Name())
		}
		return provider.ResumeProcessing(ctx)
	})
}

// QueueStatus reports the processor's queue. It degrades instead of failing:
// with no reachable controller it returns a zero status so callers keep a
// consistent read path during partial outages.
func (b *RuntimeControlBus) QueueStatus(ctx context.Context) *core.ProcessorQueueStatus {
	refs := b.registry.GetProviders(core.ServiceTypeRuntimeControl, registry.Query{})

	var status *core.ProcessorQueueStatus
	err := b.dispatch(ctx, refs, "", func(ctx context.Context, ref *registry.ProviderRef) error {
		provider, ok := ref.Provider().(core.RuntimeControlProvider)
		if !ok {
			return fmt.Errorf("provider %q does not implement runtime control", ref.Name())
		}
		s, err := provider.QueueStatus(ctx)
		if err != nil {
			return err
		}
		if s == nil {
			return fmt.Errorf("provider %q returned no status", ref.Name())
		}
		status = s
		return nil
	})
	if err != nil {
		b.logger.Warn("queue status unavailable, degrading", "error", err)
		return &core.ProcessorQueueStatus{ProcessorName: "unknown"}
	}
	return status
}

// Shutdown broadcasts a shutdown to every registered controller and marks
// the bus as shutting down. It is idempotent: repeated calls after the first
// return nil without contacting any provider. Success means at least one
// controller acknowledged.
func (b *RuntimeControlBus) Shutdown(ctx context.Context, reason string) error {
	b.opMu.Lock()
	defer b.opMu.Unlock()

	if !b.shuttingDown.CompareAndSwap(false, true) {
		return nil
	}

	b.logger.Warn("runtime shutdown requested", "reason", reason)

	refs := b.registry.GetProviders(core.ServiceTypeRuntimeControl, registry.Query{})
	if len(refs) == 0 {
		return &core.ProviderUnavailableError{Service: core.ServiceTypeRuntimeControl}
	}

	var acks atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	for _, ref := range refs {
		g.Go(func() error {
			release, ok := ref.Acquire()
			if !ok {
				return nil
			}
			defer release()

			err := b.invoke(gctx, ref, func(ctx context.Context, ref *registry.ProviderRef) error {
				provider, ok := ref.Provider().(core.RuntimeControlProvider)
				if !ok {
					return fmt.Errorf("provider %q does not implement runtime control", ref.Name())
				}
				return provider.Shutdown(ctx, reason)
			})
			if err != nil {
				b.logger.Error("controller shutdown failed", "provider", ref.Name(), "error", err)
				return nil
			}
			acks.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	if acks.Load() == 0 {
		return fmt.Errorf("shutdown %q reached no controller", reason)
	}
	return nil
}

// ShuttingDown reports whether a shutdown broadcast has started.
func (b *RuntimeControlBus) ShuttingDown() bool {
	return b.shuttingDown.Load()
}
