package realtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"

	"github.com/limoline/dispatch/internal/logging"
)

// Sink receives decoded messages from the bridge. *Hub satisfies it.
type Sink interface {
	Publish(msg Message)
}

// Bridge subscribes to the event bus and forwards every message to a Sink.
type Bridge struct {
	sub   message.Subscriber
	topic string
	sink  Sink
}

// NewBridge creates a bridge from sub's topic to sink.
func NewBridge(sub message.Subscriber, topic string, sink Sink) *Bridge {
	return &Bridge{sub: sub, topic: topic, sink: sink}
}

// Serve consumes the topic until ctx is cancelled. Undecodable messages are
// acked and dropped so they cannot wedge the subscription.
func (b *Bridge) Serve(ctx context.Context) error {
	msgs, err := b.sub.Subscribe(ctx, b.topic)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", b.topic, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case wm, ok := <-msgs:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return errors.New("event bus subscription closed")
			}
			b.forward(wm)
		}
	}
}

// String names the service in supervisor logs.
func (b *Bridge) String() string { return "event-bridge" }

func (b *Bridge) forward(wm *message.Message) {
	defer wm.Ack()

	var msg Message
	if err := json.Unmarshal(wm.Payload, &msg); err != nil {
		logging.Warn().
			Err(err).
			Str("message_uuid", wm.UUID).
			Msg("dropping undecodable bus message")
		return
	}
	b.sink.Publish(msg)
}
