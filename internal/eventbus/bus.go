// Package eventbus adapts watermill's in-process gochannel pub/sub into the
// typed, one-producer-many-consumer channel that SPEC_FULL.md §12.1 asks
// for. It is the concrete implementation of the Design Notes' "Promise/
// callback event buses... typed channel" guidance: FailoverEngine,
// HealthMonitor, SyncEngine, and ReactionEngine each publish to their own
// topic; MessageBus, the admin HTTP surface, and the ops dashboard each
// subscribe independently, with no direct reference back to the producer.
package eventbus

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/solconnect/messaging-core/internal/domain/event"
)

// Bus is the internal cross-component notification channel.
type Bus struct {
	pubsub *gochannel.GoChannel
	logger *slog.Logger
}

// New builds a Bus backed by an in-process, bounded watermill gochannel.
// OutputChannelBuffer bounds how far a slow consumer can lag before
// publishes start blocking — the backpressure behavior Design Notes §9
// asks cross-component buses to have.
func New(logger *slog.Logger) *Bus {
	pubsub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 256,
		Persistent:          false,
	}, watermill.NewSlogLogger(logger))

	return &Bus{pubsub: pubsub, logger: logger}
}

// Publish marshals payload to JSON and publishes it on topic.
func (b *Bus) Publish(topic event.Topic, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	msg := message.NewMessage(watermill.NewUUID(), data)
	return b.pubsub.Publish(string(topic), msg)
}

// Subscribe returns a channel of decoded payloads for topic. Each call
// creates an independent consumer; the bus fans out one copy of every
// publish to every subscriber.
func Subscribe[T any](ctx context.Context, b *Bus, topic event.Topic) (<-chan T, error) {
	raw, err := b.pubsub.Subscribe(ctx, string(topic))
	if err != nil {
		return nil, err
	}

	out := make(chan T, 64)
	go func() {
		defer close(out)
		for msg := range raw {
			var payload T
			if err := json.Unmarshal(msg.Payload, &payload); err != nil {
				b.logger.Error("eventbus: decode failed", "topic", topic, "err", err)
				msg.Ack()
				continue
			}
			msg.Ack()
			select {
			case out <- payload:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Close releases the underlying pub/sub resources.
func (b *Bus) Close() error {
	return b.pubsub.Close()
}
