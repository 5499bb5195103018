package tracking

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/limoline/dispatch/internal/domain/entities"
)

// fakeClock is a manually advanced clock shared by the store under test.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestStore(clock *fakeClock) *Store {
	return NewStore(Options{
		MinUpdateInterval: 15 * time.Second,
		Expiration:        time.Hour,
		SweepInterval:     -1,
		EventBuffer:       16,
		Now:               clock.Now,
	})
}

func sample(rideID string, lat, lon float64) entities.LocationSample {
	return entities.LocationSample{RideID: rideID, Latitude: lat, Longitude: lon}
}

func TestTryUpdateLocation_RejectsWithinInterval(t *testing.T) {
	clock := newFakeClock()
	store := newTestStore(clock)

	require.True(t, store.TryUpdateLocation("driver-1", sample("ride-1", 40.0, -74.0)))

	clock.Advance(10 * time.Second)
	assert.False(t, store.TryUpdateLocation("driver-1", sample("ride-1", 41.0, -75.0)))

	got, ok := store.GetLatestLocation("ride-1")
	require.True(t, ok)
	assert.Equal(t, 40.0, got.Latitude, "rejected update must not overwrite")
	assert.Equal(t, "driver-1", got.DriverID)
}

func TestTryUpdateLocation_AcceptsAfterInterval(t *testing.T) {
	clock := newFakeClock()
	store := newTestStore(clock)

	require.True(t, store.TryUpdateLocation("driver-1", sample("ride-1", 40.0, -74.0)))

	clock.Advance(15 * time.Second)
	require.True(t, store.TryUpdateLocation("driver-1", sample("ride-1", 40.5, -74.5)))

	got, ok := store.GetLatestLocation("ride-1")
	require.True(t, ok)
	assert.Equal(t, 40.5, got.Latitude)
	assert.Equal(t, clock.Now(), got.CapturedAt)
	assert.NotEmpty(t, got.Geohash)
}

func TestTryUpdateLocation_RidesAreIndependent(t *testing.T) {
	clock := newFakeClock()
	store := newTestStore(clock)

	assert.True(t, store.TryUpdateLocation("driver-1", sample("ride-1", 40.0, -74.0)))
	assert.True(t, store.TryUpdateLocation("driver-2", sample("ride-2", 40.0, -74.0)))
}

func TestGetLatestLocation_ExpiredIsEvicted(t *testing.T) {
	clock := newFakeClock()
	store := newTestStore(clock)

	require.True(t, store.TryUpdateLocation("driver-1", sample("ride-1", 40.0, -74.0)))
	clock.Advance(time.Hour + time.Second)

	_, ok := store.GetLatestLocation("ride-1")
	assert.False(t, ok)

	_, present := store.entries.Load("ride-1")
	assert.False(t, present, "expired entry should be removed from the map")

	assert.True(t, store.TryUpdateLocation("driver-1", sample("ride-1", 41.0, -74.0)))
}

func TestRemoveLocation(t *testing.T) {
	clock := newFakeClock()
	store := newTestStore(clock)

	require.True(t, store.TryUpdateLocation("driver-1", sample("ride-1", 40.0, -74.0)))
	store.RemoveLocation("ride-1")
	store.RemoveLocation("never-seen")

	_, ok := store.GetLatestLocation("ride-1")
	assert.False(t, ok)
	assert.True(t, store.TryUpdateLocation("driver-1", sample("ride-1", 40.0, -74.0)),
		"removal clears the rate limit")
}

func TestBulkReads_ApplyExpiration(t *testing.T) {
	clock := newFakeClock()
	store := newTestStore(clock)

	require.True(t, store.TryUpdateLocation("driver-1", sample("old", 40.0, -74.0)))
	clock.Advance(50 * time.Minute)
	require.True(t, store.TryUpdateLocation("driver-2", sample("fresh-a", 40.0, -74.0)))
	require.True(t, store.TryUpdateLocation("driver-3", sample("fresh-b", 40.0, -74.0)))
	clock.Advance(20 * time.Minute)

	all := store.GetAllActiveLocations()
	assert.Len(t, all, 2)

	some := store.GetLocations([]string{"old", "fresh-a", "missing"})
	require.Len(t, some, 1)
	assert.Equal(t, "fresh-a", some[0].RideID)
}

func TestSweep_RemovesExpired(t *testing.T) {
	clock := newFakeClock()
	store := newTestStore(clock)

	for i := 0; i < 3; i++ {
		require.True(t, store.TryUpdateLocation("d", sample(fmt.Sprintf("ride-%d", i), 40, -74)))
	}
	clock.Advance(2 * time.Hour)
	require.True(t, store.TryUpdateLocation("d", sample("ride-new", 40, -74)))

	assert.Equal(t, 3, store.Sweep())
	assert.Equal(t, 1, store.Len())
}

func TestServe_DeliversNotificationsInOrder(t *testing.T) {
	clock := newFakeClock()
	store := newTestStore(clock)

	var mu sync.Mutex
	var got []float64
	store.SetListener(ListenerFunc(func(_ context.Context, s entities.LocationSample) {
		mu.Lock()
		got = append(got, s.Latitude)
		mu.Unlock()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- store.Serve(ctx) }()

	for i := 0; i < 3; i++ {
		require.True(t, store.TryUpdateLocation("d", sample("ride-1", float64(i), 0)))
		clock.Advance(15 * time.Second)
	}

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) >= 3
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []float64{0, 1, 2}, got[:3])
	mu.Unlock()

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestServe_ListenerPanicIsContained(t *testing.T) {
	clock := newFakeClock()
	store := newTestStore(clock)

	calls := make(chan string, 2)
	store.SetListener(ListenerFunc(func(_ context.Context, s entities.LocationSample) {
		calls <- s.RideID
		if s.RideID == "boom" {
			panic("listener exploded")
		}
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = store.Serve(ctx) }()

	assert.True(t, store.TryUpdateLocation("d", sample("boom", 0, 0)))
	assert.True(t, store.TryUpdateLocation("d", sample("after", 0, 0)))

	for _, want := range []string{"boom", "after"} {
		select {
		case id := <-calls:
			assert.Equal(t, want, id)
		case <-time.After(time.Second):
			t.Fatalf("listener not called for %s", want)
		}
	}
}

func TestNotify_FullBufferDoesNotBlock(t *testing.T) {
	clock := newFakeClock()
	store := NewStore(Options{SweepInterval: -1, EventBuffer: 1, Now: clock.Now})

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			store.TryUpdateLocation("d", sample(fmt.Sprintf("ride-%d", i), 0, 0))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("writer blocked on a full notification buffer")
	}
}

func TestTryUpdateLocation_ConcurrentSameRideAcceptsOne(t *testing.T) {
	clock := newFakeClock()
	store := newTestStore(clock)

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if store.TryUpdateLocation("d", sample("ride-1", float64(i), 0)) {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, accepted)
}

func TestServe_RemovedRideIsNotAnnounced(t *testing.T) {
	clock := newFakeClock()
	store := newTestStore(clock)

	calls := make(chan string, 2)
	store.SetListener(ListenerFunc(func(_ context.Context, s entities.LocationSample) {
		calls <- s.RideID
	}))

	require.True(t, store.TryUpdateLocation("d", sample("ended", 0, 0)))
	require.True(t, store.TryUpdateLocation("d", sample("live", 0, 0)))
	store.RemoveLocation("ended")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = store.Serve(ctx) }()

	select {
	case id := <-calls:
		assert.Equal(t, "live", id)
	case <-time.After(time.Second):
		t.Fatal("listener not called for the live ride")
	}
	select {
	case id := <-calls:
		t.Fatalf("unexpected notification for %s", id)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRemoveLocation_WaitsForInFlightNotification(t *testing.T) {
	clock := newFakeClock()
	store := newTestStore(clock)

	entered := make(chan struct{})
	release := make(chan struct{})
	store.SetListener(ListenerFunc(func(context.Context, entities.LocationSample) {
		close(entered)
		<-release
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = store.Serve(ctx) }()

	require.True(t, store.TryUpdateLocation("d", sample("ride-1", 1, 1)))
	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("listener not called")
	}

	removed := make(chan struct{})
	go func() {
		store.RemoveLocation("ride-1")
		close(removed)
	}()

	select {
	case <-removed:
		t.Fatal("RemoveLocation returned while a notification was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-removed:
	case <-time.After(time.Second):
		t.Fatal("RemoveLocation did not return after the listener finished")
	}
	_, ok := store.GetLatestLocation("ride-1")
	assert.False(t, ok)
}
