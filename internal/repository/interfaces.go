// Package repository declares the persistence contracts the services depend
// on. Implementations live in the memory and badgerdb subpackages.
package repository

import (
	"context"
	"errors"

	"github.com/limoline/dispatch/internal/domain/entities"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrAlreadyExists is returned by Create when the id is taken.
var ErrAlreadyExists = errors.New("record already exists")

// BookingFilter narrows List results. Zero values match everything.
type BookingFilter struct {
	Status         entities.BookingStatus
	DriverStableID string
	Limit          int
}

// BookingRepository persists bookings. Each update method is a single atomic
// record mutation; no partially written booking is ever observable.
type BookingRepository interface {
	Create(ctx context.Context, booking *entities.Booking) error
	GetByID(ctx context.Context, id string) (*entities.Booking, error)
	List(ctx context.Context, filter BookingFilter) ([]*entities.Booking, error)
	UpdateStatus(ctx context.Context, id string, status entities.BookingStatus) (*entities.Booking, error)
	UpdateRideStatus(ctx context.Context, id string, rideStatus entities.RideStatus, bookingStatus entities.BookingStatus) (*entities.Booking, error)
	UpdateDriverAssignment(ctx context.Context, id string, assignment entities.DriverAssignment, rideStatus entities.RideStatus, bookingStatus entities.BookingStatus) (*entities.Booking, error)
}

// DriverRepository persists the driver registry.
type DriverRepository interface {
	Create(ctx context.Context, driver *entities.Driver) error
	GetByID(ctx context.Context, id string) (*entities.Driver, error)
	List(ctx context.Context) ([]*entities.Driver, error)
}

// MatchesFilter reports whether b satisfies filter. It is shared by the
// implementations that scan every record.
func MatchesFilter(b *entities.Booking, filter BookingFilter) bool {
	if filter.Status != "" && b.Status != filter.Status {
		return false
	}
	if filter.DriverStableID != "" && b.DriverStableID() != filter.DriverStableID {
		return false
	}
	return true
}
