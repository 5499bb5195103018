package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/limoline/dispatch/internal/domain/entities"
	"github.com/limoline/dispatch/internal/repository"
)

// BookingRepository stores bookings in memory. Every read hands out a clone
// and every update runs under the write lock, so callers never observe a
// half-applied mutation.
//
// Go Learning Note — Copy on the Way Out:
// Returning the stored pointer would let a caller mutate the record without
// holding the lock. Cloning on reads and on writes keeps the map the only
// owner of its values.
type BookingRepository struct {
	mu       sync.RWMutex
	bookings map[string]*entities.Booking
	now      func() time.Time
}

func NewBookingRepository() *BookingRepository {
	return &BookingRepository{
		bookings: make(map[string]*entities.Booking),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (r *BookingRepository) Create(ctx context.Context, booking *entities.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.bookings[booking.ID]; exists {
		return fmt.Errorf("booking %s: %w", booking.ID, repository.ErrAlreadyExists)
	}
	r.bookings[booking.ID] = booking.Clone()
	return nil
}

func (r *BookingRepository) GetByID(ctx context.Context, id string) (*entities.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	booking, exists := r.bookings[id]
	if !exists {
		return nil, fmt.Errorf("booking %s: %w", id, repository.ErrNotFound)
	}
	return booking.Clone(), nil
}

// List returns bookings matching filter ordered by pickup time.
// This is an O(n) scan; the badger repository has the same cost profile.
func (r *BookingRepository) List(ctx context.Context, filter repository.BookingFilter) ([]*entities.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var bookings []*entities.Booking
	for _, booking := range r.bookings {
		if repository.MatchesFilter(booking, filter) {
			bookings = append(bookings, booking.Clone())
		}
	}
	sort.Slice(bookings, func(i, j int) bool {
		if bookings[i].PickupAt.Equal(bookings[j].PickupAt) {
			return bookings[i].ID < bookings[j].ID
		}
		return bookings[i].PickupAt.Before(bookings[j].PickupAt)
	})
	if filter.Limit > 0 && len(bookings) > filter.Limit {
		bookings = bookings[:filter.Limit]
	}
	return bookings, nil
}

func (r *BookingRepository) UpdateStatus(ctx context.Context, id string, status entities.BookingStatus) (*entities.Booking, error) {
	return r.mutate(id, func(b *entities.Booking) {
		b.ApplyStatus(status, r.now())
	})
}

func (r *BookingRepository) UpdateRideStatus(ctx context.Context, id string, rideStatus entities.RideStatus, bookingStatus entities.BookingStatus) (*entities.Booking, error) {
	return r.mutate(id, func(b *entities.Booking) {
		b.ApplyRideStatus(rideStatus, bookingStatus, r.now())
	})
}

func (r *BookingRepository) UpdateDriverAssignment(ctx context.Context, id string, assignment entities.DriverAssignment, rideStatus entities.RideStatus, bookingStatus entities.BookingStatus) (*entities.Booking, error) {
	return r.mutate(id, func(b *entities.Booking) {
		b.Driver = &assignment
		b.ApplyRideStatus(rideStatus, bookingStatus, r.now())
	})
}

// mutate applies fn to a copy of the stored booking and swaps it in, so a
// panic inside fn cannot leave a partially modified record behind.
func (r *BookingRepository) mutate(id string, fn func(b *entities.Booking)) (*entities.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, exists := r.bookings[id]
	if !exists {
		return nil, fmt.Errorf("booking %s: %w", id, repository.ErrNotFound)
	}
	updated := current.Clone()
	fn(updated)
	r.bookings[id] = updated
	return updated.Clone(), nil
}
