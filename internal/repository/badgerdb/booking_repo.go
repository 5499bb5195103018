package badgerdb

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/limoline/dispatch/internal/domain/entities"
	"github.com/limoline/dispatch/internal/repository"
)

const (
	bookingKeyPrefix = "booking:"

	// maxConflictRetries bounds retries when badger reports a write conflict.
	// Callers serialize per booking, so conflicts only come from outside
	// writers.
	maxConflictRetries = 3
)

func bookingKey(id string) []byte {
	return []byte(bookingKeyPrefix + id)
}

// BookingRepository stores bookings in BadgerDB.
type BookingRepository struct {
	db  *badger.DB
	now func() time.Time
}

// NewBookingRepository wraps an open database. The caller owns db.
func NewBookingRepository(db *badger.DB) *BookingRepository {
	return &BookingRepository{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (r *BookingRepository) Create(ctx context.Context, booking *entities.Booking) error {
	data, err := json.Marshal(booking)
	if err != nil {
		return fmt.Errorf("marshal booking: %w", err)
	}

	return r.db.Update(func(txn *badger.Txn) error {
		key := bookingKey(booking.ID)
		_, err := txn.Get(key)
		switch {
		case err == nil:
			return fmt.Errorf("booking %s: %w", booking.ID, repository.ErrAlreadyExists)
		case !errors.Is(err, badger.ErrKeyNotFound):
			return fmt.Errorf("check booking %s: %w", booking.ID, err)
		}
		return txn.Set(key, data)
	})
}

func (r *BookingRepository) GetByID(ctx context.Context, id string) (*entities.Booking, error) {
	var booking *entities.Booking
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		booking, err = getBooking(txn, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return booking, nil
}

// List scans every booking and returns matches ordered by pickup time.
func (r *BookingRepository) List(ctx context.Context, filter repository.BookingFilter) ([]*entities.Booking, error) {
	var bookings []*entities.Booking
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(bookingKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var b entities.Booking
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &b)
			}); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			if repository.MatchesFilter(&b, filter) {
				bookings = append(bookings, &b)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
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

// mutate runs read, fn and write in one transaction, so the stored record is
// either the old or the new version and never a mix.
func (r *BookingRepository) mutate(id string, fn func(b *entities.Booking)) (*entities.Booking, error) {
	var updated *entities.Booking
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		err = r.db.Update(func(txn *badger.Txn) error {
			b, err := getBooking(txn, id)
			if err != nil {
				return err
			}
			fn(b)
			data, err := json.Marshal(b)
			if err != nil {
				return fmt.Errorf("marshal booking: %w", err)
			}
			if err := txn.Set(bookingKey(id), data); err != nil {
				return err
			}
			updated = b
			return nil
		})
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
	}
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func getBooking(txn *badger.Txn, id string) (*entities.Booking, error) {
	item, err := txn.Get(bookingKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("booking %s: %w", id, repository.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get booking %s: %w", id, err)
	}

	var b entities.Booking
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &b)
	}); err != nil {
		return nil, fmt.Errorf("decode booking %s: %w", id, err)
	}
	return &b, nil
}
