package bus

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/agentbus/core"
	"github.com/hupe1980/agentbus/registry"
)

// DefaultGuidanceTimeout bounds guidance fan-out aggregation.
const DefaultGuidanceTimeout = 5 * time.Second

// prohibitedCapabilities is the domain firewall: any guidance capability
// containing one of these terms is rejected before provider routing. The
// list is fixed at compile time and cannot be changed at runtime.
var prohibitedCapabilities = []string{
	"medical",
	"medicine",
	"health",
	"clinical",
	"diagnosis",
	"diagnostic",
	"treatment",
	"prescription",
	"prescribe",
	"therapy",
	"therapeutic",
	"patient",
	"symptom",
	"disease",
	"pharmaceutical",
	"dosage",
	"triage",
}

// WiseBus fans guidance requests out to wise authority providers and
// arbitrates their answers by confidence. Deferrals broadcast to every
// authority; one acknowledgment is enough.
type WiseBus struct {
	*baseBus
	guidanceTimeout time.Duration
}

// WiseOptions configures the wise bus beyond the shared bus options.
type WiseOptions struct {
	Options

	// GuidanceTimeout bounds how long a guidance fan-out waits for
	// responses before degrading.
	GuidanceTimeout time.Duration
}

// NewWiseBus creates the wise bus.
func NewWiseBus(reg *registry.ServiceRegistry, optFns ...func(o *WiseOptions)) *WiseBus {
	opts := WiseOptions{Options: defaultOptions(), GuidanceTimeout: DefaultGuidanceTimeout}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.GuidanceTimeout <= 0 {
		opts.GuidanceTimeout = DefaultGuidanceTimeout
	}
	return &WiseBus{
		baseBus:         newBaseBus(core.ServiceTypeWise, reg, opts.Options),
		guidanceTimeout: opts.GuidanceTimeout,
	}
}

// ValidateCapability checks a guidance capability against the domain
// firewall. A match is always logged and returns CapabilityProhibitedError.
// The check runs before any registry access, so it holds even with zero
// registered providers.
func (b *WiseBus) ValidateCapability(capability string) error {
	lowered := strings.ToLower(capability)
	for _, term := range prohibitedCapabilities {
		if strings.Contains(lowered, term) {
			b.logger.Error("prohibited capability rejected",
				"capability", capability,
				"matched_term", term)
			return &core.CapabilityProhibitedError{Capability: capability, Match: term}
		}
	}
	return nil
}

// GuidanceOptions configures a guidance request.
type GuidanceOptions struct {
	// Handler names the originating handler for log correlation.
	Handler string

	// Timeout overrides the bus's fan-out aggregation bound.
	Timeout time.Duration
}

// RequestGuidance fans the request out to every authority declaring the
// requested capability and returns the highest-confidence answer, ties going
// to the first responder. When no authority answers within the window a
// degraded response is returned instead of an error so deliberation can
// continue with a deferral.
func (b *WiseBus) RequestGuidance(ctx context.Context, req core.GuidanceRequest, optFns ...func(o *GuidanceOptions)) (*core.GuidanceResponse, error) {
	opts := GuidanceOptions{Timeout: b.guidanceTimeout}
	for _, fn := range optFns {
		fn(&opts)
	}

	if err := b.ValidateCapability(req.Capability); err != nil {
		return nil, err
	}

	var query registry.Query
	if req.Capability != "" {
		query.Capabilities = []string{req.Capability}
	}
	refs := b.registry.GetProviders(core.ServiceTypeWise, query)

	responses := b.fanOutGuidance(ctx, refs, req, opts.Timeout)
	if len(responses) == 0 {
		b.logger.Warn("no guidance received, degrading",
			"capability", req.Capability,
			"handler", opts.Handler,
			"providers", len(refs))
		return &core.GuidanceResponse{
			Guidance: "defer",
			Reasoning: fmt.Sprintf(
				"no wise authority answered within %s; defaulting to deferral", opts.Timeout),
			Degraded: true,
		}, nil
	}

	best := responses[0]
	for _, r := range responses[1:] {
		// Strictly greater keeps the first responder on ties.
		if r.Confidence > best.Confidence {
			best = r
		}
	}

	b.logger.Info("guidance arbitrated",
		"capability", req.Capability,
		"handler", opts.Handler,
		"responses", len(responses),
		"winner", best.ProviderName,
		"confidence", best.Confidence)
	return best, nil
}

// fanOutGuidance asks every authority concurrently and collects the answers
// that arrive within the window, in arrival order. Stragglers are cancelled
// and their goroutines unwind on their own once the provider honors ctx.
func (b *WiseBus) fanOutGuidance(ctx context.Context, refs []*registry.ProviderRef, req core.GuidanceRequest, timeout time.Duration) []*core.GuidanceResponse {
	fanCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var mu sync.Mutex
	var responses []*core.GuidanceResponse

	g, gctx := errgroup.WithContext(fanCtx)
	for _, ref := range refs {
		g.Go(func() error {
			release, ok := ref.Acquire()
			if !ok {
				return nil
			}
			defer release()

			err := b.invoke(gctx, ref, func(ctx context.Context, ref *registry.ProviderRef) error {
				provider, ok := ref.Provider().(core.WiseProvider)
				if !ok {
					return fmt.Errorf("provider %q does not implement wise authority", ref.Name())
				}
				resp, err := provider.ProvideGuidance(ctx, req)
				if err != nil {
					return err
				}
				if resp == nil {
					return fmt.Errorf("provider %q returned no guidance", ref.Name())
				}
				resp.ProviderName = ref.Name()
				mu.Lock()
				responses = append(responses, resp)
				mu.Unlock()
				return nil
			})
			if err != nil {
				b.logger.Warn("guidance provider failed",
					"provider", ref.Name(),
					"capability", req.Capability,
					"error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	return responses
}

// SendDeferral notifies every wise authority of a deferred decision,
// concurrently. Success means at least one authority acknowledged.
func (b *WiseBus) SendDeferral(ctx context.Context, def core.Deferral) (int, error) {
	refs := b.registry.GetProviders(core.ServiceTypeWise, registry.Query{})
	if len(refs) == 0 {
		return 0, &core.ProviderUnavailableError{Service: core.ServiceTypeWise}
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
				provider, ok := ref.Provider().(core.WiseProvider)
				if !ok {
					return fmt.Errorf("provider %q does not implement wise authority", ref.Name())
				}
				_, err := provider.SendDeferral(ctx, def)
				return err
			})
			if err != nil {
				b.logger.Warn("deferral delivery failed",
					"provider", ref.Name(),
					"thought_id", def.ThoughtID,
					"error", err)
				return nil
			}
			acks.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	n := int(acks.Load())
	if n == 0 {
		return 0, fmt.Errorf("deferral for thought %q reached no wise authority", def.ThoughtID)
	}

	b.logger.Info("deferral broadcast",
		"thought_id", def.ThoughtID,
		"acknowledged", n,
		"providers", len(refs))
	return n, nil
}

// SendDeferralAsync queues a deferral broadcast for the consumer loop.
func (b *WiseBus) SendDeferralAsync(def core.Deferral) error {
	return b.enqueue(task{
		handler:       "deferral",
		correlationID: uuid.NewString(),
		run: func(ctx context.Context) error {
			_, err := b.SendDeferral(ctx, def)
			return err
		},
	})
}
