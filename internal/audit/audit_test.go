package audit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openBadger(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seed(t *testing.T, store Store) {
	t.Helper()
	base := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	events := []Event{
		{ID: "e1", Timestamp: base, Type: EventBookingCreated, BookingID: "b1", Actor: Actor{ID: "staff-1"}},
		{ID: "e2", Timestamp: base.Add(time.Second), Type: EventRideStatusChanged, BookingID: "b1", Actor: Actor{ID: "drv-1"}},
		{ID: "e3", Timestamp: base.Add(2 * time.Second), Type: EventRideStatusChanged, BookingID: "b2", Actor: Actor{ID: "drv-2"}},
		{ID: "e4", Timestamp: base.Add(3 * time.Second), Type: EventRideTransitionDenied, BookingID: "b1", Actor: Actor{ID: "drv-1"}, Outcome: OutcomeFailure},
	}
	for i := range events {
		require.NoError(t, store.Save(context.Background(), &events[i]))
	}
}

func ids(events []Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.ID
	}
	return out
}

func TestStores_QueryNewestFirstWithFilters(t *testing.T) {
	stores := map[string]Store{
		"memory": NewMemoryStore(100),
		"badger": NewBadgerStore(openBadger(t)),
	}

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			seed(t, store)
			ctx := context.Background()

			all, err := store.Query(ctx, QueryFilter{})
			require.NoError(t, err)
			assert.Equal(t, []string{"e4", "e3", "e2", "e1"}, ids(all))

			b1, err := store.Query(ctx, QueryFilter{BookingID: "b1"})
			require.NoError(t, err)
			assert.Equal(t, []string{"e4", "e2", "e1"}, ids(b1))

			changed, err := store.Query(ctx, QueryFilter{Type: EventRideStatusChanged, Limit: 1})
			require.NoError(t, err)
			assert.Equal(t, []string{"e3"}, ids(changed))

			byActor, err := store.Query(ctx, QueryFilter{ActorID: "drv-1"})
			require.NoError(t, err)
			assert.Equal(t, []string{"e4", "e2"}, ids(byActor))
		})
	}
}

func TestMemoryStore_Trims(t *testing.T) {
	store := NewMemoryStore(10)
	for i := 0; i < 25; i++ {
		require.NoError(t, store.Save(context.Background(), &Event{ID: fmt.Sprintf("e%d", i)}))
	}
	all, err := store.Query(context.Background(), QueryFilter{})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(all), 10)
	assert.Equal(t, "e24", all[0].ID)
}

func TestLogger_WritesAsynchronously(t *testing.T) {
	store := NewMemoryStore(100)
	logger := NewLogger(store, 10, true)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = logger.Serve(ctx)
		close(done)
	}()

	logger.Log(context.Background(), Event{Type: EventBookingCreated, BookingID: "b1"})

	assert.Eventually(t, func() bool {
		events, _ := logger.Query(context.Background(), QueryFilter{BookingID: "b1"})
		return len(events) == 1
	}, time.Second, 5*time.Millisecond)

	events, err := logger.Query(context.Background(), QueryFilter{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.NotEmpty(t, events[0].ID)
	assert.False(t, events[0].Timestamp.IsZero())
	assert.Equal(t, OutcomeSuccess, events[0].Outcome)

	cancel()
	<-done
}

func TestLogger_DrainsOnShutdown(t *testing.T) {
	store := NewMemoryStore(100)
	logger := NewLogger(store, 10, true)

	for i := 0; i < 5; i++ {
		logger.Log(context.Background(), Event{Type: EventRideStatusChanged})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, logger.Serve(ctx), context.Canceled)

	events, err := store.Query(context.Background(), QueryFilter{})
	require.NoError(t, err)
	assert.Len(t, events, 5)
}

func TestLogger_FullBufferDrops(t *testing.T) {
	store := NewMemoryStore(100)
	logger := NewLogger(store, 2, true)

	for i := 0; i < 5; i++ {
		logger.Log(context.Background(), Event{Type: EventRideStatusChanged})
	}
	assert.Len(t, logger.events, 2)
}

func TestLogger_DisabledAndNil(t *testing.T) {
	store := NewMemoryStore(100)
	disabled := NewLogger(store, 10, false)
	disabled.Log(context.Background(), Event{Type: EventBookingCreated})
	assert.Empty(t, disabled.events)

	var nilLogger *Logger
	nilLogger.Log(context.Background(), Event{Type: EventBookingCreated})
	events, err := nilLogger.Query(context.Background(), QueryFilter{})
	assert.NoError(t, err)
	assert.Nil(t, events)
}
