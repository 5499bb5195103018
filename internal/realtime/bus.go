package realtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/limoline/dispatch/internal/logging"
	"github.com/limoline/dispatch/internal/metrics"
)

// RideEventsTopic carries every ride event published by the services layer.
const RideEventsTopic = "ride.events"

// NewBus creates the in-process pub/sub used between the services layer and
// the hub. Publish waits for the subscriber's ack so events for one ride are
// delivered in the order they were published.
func NewBus(buffer int64, logger watermill.LoggerAdapter) *gochannel.GoChannel {
	return gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer:            buffer,
		BlockPublishUntilSubscriberAck: true,
	}, logger)
}

// BreakerConfig configures the Publisher's circuit breaker.
type BreakerConfig struct {
	Name             string
	FailureThreshold uint32
	Timeout          time.Duration
}

// Publisher publishes Messages onto a watermill publisher behind a circuit
// breaker. When the bus keeps failing the breaker opens and publishes fail
// fast instead of stalling the request that triggered them.
type Publisher struct {
	pub     message.Publisher
	topic   string
	breaker *gobreaker.CircuitBreaker[any]
}

// NewPublisher wraps pub.
func NewPublisher(pub message.Publisher, topic string, cfg BreakerConfig) *Publisher {
	if cfg.Name == "" {
		cfg.Name = "event-bus"
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	}

	return &Publisher{
		pub:     pub,
		topic:   topic,
		breaker: gobreaker.NewCircuitBreaker[any](settings),
	}
}

// Publish encodes msg and publishes it. The error is for the caller to log;
// callers on the request path never return it to clients.
func (p *Publisher) Publish(_ context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", msg.Type, err)
	}

	wm := message.NewMessage(watermill.NewUUID(), payload)
	wm.Metadata.Set("type", msg.Type)
	wm.Metadata.Set("ride_id", msg.RideID)

	_, err = p.breaker.Execute(func() (any, error) {
		return nil, p.pub.Publish(p.topic, wm)
	})
	switch {
	case err == nil:
		metrics.RecordPublish(p.topic, "ok")
		return nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.RecordPublish(p.topic, "breaker_open")
		return fmt.Errorf("publish %s event: %w", msg.Type, err)
	default:
		metrics.RecordPublish(p.topic, "error")
		return fmt.Errorf("publish %s event: %w", msg.Type, err)
	}
}

// State reports the breaker state for health output.
func (p *Publisher) State() string {
	return p.breaker.State().String()
}
