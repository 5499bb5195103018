package audit

import (
	"context"
	"time"

	"github.com/limoline/dispatch/internal/logging"
	"github.com/limoline/dispatch/internal/metrics"
	"github.com/limoline/dispatch/pkg/utils"
)

// Logger queues events for asynchronous persistence.
type Logger struct {
	store   Store
	events  chan *Event
	enabled bool
	now     func() time.Time
}

// NewLogger creates a Logger writing to store. A disabled logger accepts and
// discards events, so callers never need a nil check.
func NewLogger(store Store, bufferSize int, enabled bool) *Logger {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	return &Logger{
		store:   store,
		events:  make(chan *Event, bufferSize),
		enabled: enabled && store != nil,
		now:     time.Now,
	}
}

// Log queues event. ID and Timestamp are filled in when empty; the request
// id is taken from ctx.
func (l *Logger) Log(ctx context.Context, event Event) {
	if l == nil || !l.enabled {
		return
	}
	if event.ID == "" {
		event.ID = utils.GenerateID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = l.now().UTC()
	}
	if event.Outcome == "" {
		event.Outcome = OutcomeSuccess
	}
	if event.RequestID == "" {
		event.RequestID = logging.RequestIDFromContext(ctx)
	}

	select {
	case l.events <- &event:
	default:
		metrics.AuditEventsDropped.Inc()
		logging.Warn().
			Str("event_id", event.ID).
			Str("event_type", string(event.Type)).
			Msg("audit buffer full, dropping event")
	}
}

// Query reads from the underlying store.
func (l *Logger) Query(ctx context.Context, filter QueryFilter) ([]Event, error) {
	if l == nil || l.store == nil {
		return nil, nil
	}
	return l.store.Query(ctx, filter)
}

// Serve writes queued events until ctx is cancelled, then drains whatever is
// still buffered. It satisfies suture.Service.
func (l *Logger) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			l.drain()
			return ctx.Err()
		case e := <-l.events:
			l.write(e)
		}
	}
}

// String names the service in supervisor logs.
func (l *Logger) String() string { return "audit-writer" }

func (l *Logger) drain() {
	for {
		select {
		case e := <-l.events:
			l.write(e)
		default:
			return
		}
	}
}

func (l *Logger) write(e *Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := l.store.Save(ctx, e); err != nil {
		logging.Error().Err(err).Str("event_id", e.ID).Msg("failed to save audit event")
		return
	}
	metrics.AuditEventsWritten.WithLabelValues(string(e.Type)).Inc()
}
