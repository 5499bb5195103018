package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/limoline/dispatch/internal/domain/entities"
	"github.com/limoline/dispatch/internal/repository"
)

func newTestBooking(id string) *entities.Booking {
	return entities.NewBooking(id, "staff-1",
		entities.Place{Address: "JFK Terminal 4"},
		entities.Place{Address: "The Plaza"},
		time.Date(2026, 10, 20, 14, 0, 0, 0, time.UTC),
		entities.Contact{Name: "Grace Hopper", Email: "grace@example.com"},
		entities.Contact{Name: "Assistant", Email: "office@example.com"},
	)
}

func TestBookingRepository_CreateAndGet(t *testing.T) {
	repo := NewBookingRepository()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newTestBooking("b1")))
	assert.ErrorIs(t, repo.Create(ctx, newTestBooking("b1")), repository.ErrAlreadyExists)

	got, err := repo.GetByID(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, entities.BookingStatusRequested, got.Status)
	assert.Nil(t, got.RideStatus)

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestBookingRepository_ReturnsCopies(t *testing.T) {
	repo := NewBookingRepository()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, newTestBooking("b1")))

	got, err := repo.GetByID(ctx, "b1")
	require.NoError(t, err)
	got.Status = entities.BookingStatusCancelled

	again, err := repo.GetByID(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, entities.BookingStatusRequested, again.Status)
}

func TestBookingRepository_UpdateRideStatusIsAtomic(t *testing.T) {
	repo := NewBookingRepository()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, newTestBooking("b1")))

	updated, err := repo.UpdateRideStatus(ctx, "b1", entities.RideStatusCompleted, entities.BookingStatusCompleted)
	require.NoError(t, err)
	require.NotNil(t, updated.RideStatus)
	assert.Equal(t, entities.RideStatusCompleted, *updated.RideStatus)
	assert.Equal(t, entities.BookingStatusCompleted, updated.Status)
	assert.NotNil(t, updated.CompletedAt)

	_, err = repo.UpdateRideStatus(ctx, "missing", entities.RideStatusOnRoute, entities.BookingStatusScheduled)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestBookingRepository_UpdateDriverAssignment(t *testing.T) {
	repo := NewBookingRepository()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, newTestBooking("b1")))

	assignment := entities.DriverAssignment{DriverID: "d1", StableID: "user-7", Name: "Ana"}
	updated, err := repo.UpdateDriverAssignment(ctx, "b1", assignment, entities.RideStatusScheduled, entities.BookingStatusScheduled)
	require.NoError(t, err)
	assert.True(t, updated.IsAssignedTo("user-7"))
	assert.Equal(t, entities.BookingStatusScheduled, updated.Status)
	assert.Equal(t, entities.RideStatusScheduled, *updated.RideStatus)
}

func TestBookingRepository_ListFilters(t *testing.T) {
	repo := NewBookingRepository()
	ctx := context.Background()

	for _, id := range []string{"b1", "b2", "b3"} {
		require.NoError(t, repo.Create(ctx, newTestBooking(id)))
	}
	_, err := repo.UpdateDriverAssignment(ctx, "b2",
		entities.DriverAssignment{DriverID: "d1", StableID: "user-7", Name: "Ana"},
		entities.RideStatusScheduled, entities.BookingStatusScheduled)
	require.NoError(t, err)

	all, err := repo.List(ctx, repository.BookingFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	scheduled, err := repo.List(ctx, repository.BookingFilter{Status: entities.BookingStatusScheduled})
	require.NoError(t, err)
	require.Len(t, scheduled, 1)
	assert.Equal(t, "b2", scheduled[0].ID)

	mine, err := repo.List(ctx, repository.BookingFilter{DriverStableID: "user-7"})
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	limited, err := repo.List(ctx, repository.BookingFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestDriverRepository(t *testing.T) {
	repo := NewDriverRepository()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, entities.NewDriver("d2", "user-2", "Zoe", "")))
	require.NoError(t, repo.Create(ctx, entities.NewDriver("d1", "user-1", "Ana", "555-0100")))
	assert.ErrorIs(t, repo.Create(ctx, entities.NewDriver("d1", "user-1", "Ana", "")), repository.ErrAlreadyExists)

	d, err := repo.GetByID(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", d.UserID)

	_, err = repo.GetByID(ctx, "nope")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Ana", list[0].Name)
}

func TestLockManager_SerializesSameKey(t *testing.T) {
	lm := NewLockManager()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := lm.Lock("ride-1")
			defer unlock()

			n := atomic.AddInt32(&inside, 1)
			for {
				current := atomic.LoadInt32(&maxInside)
				if n <= current || atomic.CompareAndSwapInt32(&maxInside, current, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	assert.Equal(t, 0, lm.Len(), "entries should be released once unused")
}

func TestLockManager_DifferentKeysDoNotBlock(t *testing.T) {
	lm := NewLockManager()

	unlockA := lm.Lock("ride-a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := lm.Lock("ride-b")
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different key blocked")
	}
	assert.True(t, lm.IsLocked("ride-a"))
	assert.False(t, lm.IsLocked("ride-b"))
}

func TestLockManager_LockContextCancelled(t *testing.T) {
	lm := NewLockManager()
	unlock := lm.Lock("ride-1")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := lm.LockContext(ctx, "ride-1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	assert.Eventually(t, func() bool { return lm.Len() == 0 }, time.Second, 5*time.Millisecond)

	release, err := lm.LockContext(context.Background(), "ride-1")
	require.NoError(t, err)
	release()
}
