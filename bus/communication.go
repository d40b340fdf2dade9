package bus

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/agentbus/core"
	"github.com/hupe1980/agentbus/registry"
)

// CommunicationBus routes outbound messages and channel reads to registered
// communication adapters (chat platforms, CLI, webhooks).
type CommunicationBus struct {
	*baseBus
}

// NewCommunicationBus creates the communication bus.
func NewCommunicationBus(reg *registry.ServiceRegistry, optFns ...func(o *Options)) *CommunicationBus {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &CommunicationBus{baseBus: newBaseBus(core.ServiceTypeCommunication, reg, opts)}
}

// SendOptions configures a send operation.
type SendOptions struct {
	// Handler names the originating handler for log correlation.
	Handler string
}

// SendMessage delivers content to a channel synchronously, falling back
// across adapters until one succeeds.
func (b *CommunicationBus) SendMessage(ctx context.Context, channelID, content string, optFns ...func(o *SendOptions)) error {
	var opts SendOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	refs := b.registry.GetProviders(core.ServiceTypeCommunication, registry.Query{})
	return b.dispatch(ctx, refs, opts.Handler, func(ctx context.Context, ref *registry.ProviderRef) error {
		provider, ok := ref.Provider().(core.CommunicationProvider)
		if !ok {
			return fmt.Errorf("provider %q does not implement communication", ref.Name())
		}
		return provider.SendMessage(ctx, channelID, content)
	})
}

// SendMessageAsync queues a send for the consumer loop. Delivery is best
// effort: a full queue rejects the submission with core.ErrQueueFull.
func (b *CommunicationBus) SendMessageAsync(channelID, content string, optFns ...func(o *SendOptions)) error {
	var opts SendOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	return b.enqueue(task{
		handler:       opts.Handler,
		correlationID: uuid.NewString(),
		run: func(ctx context.Context) error {
			return b.SendMessage(ctx, channelID, content, optFns...)
		},
	})
}

// FetchMessages returns up to limit recent messages from the channel via the
// first adapter that can serve it.
func (b *CommunicationBus) FetchMessages(ctx context.Context, channelID string, limit int) ([]core.FetchedMessage, error) {
	refs := b.registry.GetProviders(core.ServiceTypeCommunication, registry.Query{})

	var messages []core.FetchedMessage
	err := b.dispatch(ctx, refs, "", func(ctx context.Context, ref *registry.ProviderRef) error {
		provider, ok := ref.Provider().(core.CommunicationProvider)
		if !ok {
			return fmt.Errorf("provider %q does not implement communication", ref.Name())
		}
		fetched, err := provider.FetchMessages(ctx, channelID, limit)
		if err != nil {
			return err
		}
		messages = fetched
		return nil
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// Broadcast sends the same content through every available adapter
// concurrently and returns the number of adapters that accepted it. At least
// one acknowledgment counts as success.
func (b *CommunicationBus) Broadcast(ctx context.Context, channelID, content string) (int, error) {
	refs := b.registry.GetProviders(core.ServiceTypeCommunication, registry.Query{})
	if len(refs) == 0 {
		return 0, &core.ProviderUnavailableError{Service: core.ServiceTypeCommunication}
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
				provider, ok := ref.Provider().(core.CommunicationProvider)
				if !ok {
					return fmt.Errorf("provider %q does not implement communication", ref.Name())
				}
				return provider.SendMessage(ctx, channelID, content)
			})
			if err != nil {
				b.logger.Warn("broadcast delivery failed",
					"service", b.serviceType.String(),
					"provider", ref.Name(),
					"channel_id", channelID,
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
		return 0, fmt.Errorf("broadcast to channel %q reached no adapter", channelID)
	}
	return n, nil
}
