package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/limoline/dispatch/internal/audit"
	"github.com/limoline/dispatch/internal/domain/entities"
	"github.com/limoline/dispatch/internal/logging"
	"github.com/limoline/dispatch/internal/repository"
	"github.com/limoline/dispatch/internal/repository/memory"
	"github.com/limoline/dispatch/pkg/utils"
)

// CreateBookingInput is a new booking request from a passenger or staff.
type CreateBookingInput struct {
	Pickup    entities.Place
	Dropoff   entities.Place
	PickupAt  time.Time
	Passenger entities.Contact
	Booker    entities.Contact
	Notes     string
}

// CreateDriverInput registers a chauffeur.
type CreateDriverInput struct {
	ID     string // optional; generated when empty
	UserID string
	Name   string
	Phone  string
}

// BookingService covers the back-office booking and driver registry
// operations that do not touch the ride state machine.
type BookingService struct {
	bookings repository.BookingRepository
	drivers  repository.DriverRepository
	auditor  Auditor
	locks    *memory.LockManager
}

// NewBookingService creates a BookingService. Pass the orchestrator's lock
// manager so confirmations serialize with ride updates.
func NewBookingService(bookings repository.BookingRepository, drivers repository.DriverRepository, auditor Auditor, locks *memory.LockManager) *BookingService {
	if locks == nil {
		locks = memory.NewLockManager()
	}
	return &BookingService{bookings: bookings, drivers: drivers, auditor: auditor, locks: locks}
}

// CreateBooking stores a Requested booking owned by caller. A passenger who
// leaves the booker blank is recorded as the booker.
func (s *BookingService) CreateBooking(ctx context.Context, caller entities.Caller, in CreateBookingInput) (*entities.Booking, error) {
	booker := in.Booker
	if booker.Email == "" && caller.Role == entities.RolePassenger {
		booker = entities.Contact{Name: caller.Name, Email: caller.Email}
	}
	passenger := in.Passenger
	if passenger.Email == "" && caller.Role == entities.RolePassenger {
		passenger.Email = caller.Email
	}
	passenger.Email = strings.TrimSpace(passenger.Email)
	booker.Email = strings.TrimSpace(booker.Email)

	booking := entities.NewBooking(utils.GenerateID(), caller.ID, in.Pickup, in.Dropoff, in.PickupAt.UTC(), passenger, booker)
	booking.Notes = in.Notes

	if err := s.bookings.Create(ctx, booking); err != nil {
		return nil, fmt.Errorf("create booking: %w", err)
	}

	s.audit(ctx, audit.Event{
		Type:      audit.EventBookingCreated,
		Actor:     actorOf(caller),
		BookingID: booking.ID,
		Details:   map[string]string{"reference": utils.ShortReference(booking.ID)},
	})
	logging.Ctx(ctx).Info().
		Str("booking_id", booking.ID).
		Str("created_by", caller.ID).
		Time("pickup_at", booking.PickupAt).
		Msg("booking created")

	return booking, nil
}

// ConfirmBooking accepts a Requested booking.
func (s *BookingService) ConfirmBooking(ctx context.Context, caller entities.Caller, id string) (*entities.Booking, error) {
	unlock, err := s.locks.LockContext(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	booking, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, mapNotFound(err, ErrBookingNotFound)
	}
	if booking.Status.IsClosed() {
		return nil, ErrBookingClosed
	}
	if booking.Status != entities.BookingStatusRequested {
		return nil, ErrBookingNotPending
	}

	updated, err := s.bookings.UpdateStatus(ctx, id, entities.BookingStatusConfirmed)
	if err != nil {
		return nil, fmt.Errorf("confirm booking %s: %w", id, err)
	}
	s.audit(ctx, audit.Event{Type: audit.EventBookingConfirmed, Actor: actorOf(caller), BookingID: id})
	return updated, nil
}

// GetBooking returns booking id if caller may see it. Anyone else gets
// ErrBookingNotFound.
func (s *BookingService) GetBooking(ctx context.Context, caller entities.Caller, id string) (*entities.Booking, error) {
	booking, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, mapNotFound(err, ErrBookingNotFound)
	}
	if !caller.CanView(booking) {
		return nil, ErrBookingNotFound
	}
	return booking, nil
}

// ListBookings returns bookings for staff views.
func (s *BookingService) ListBookings(ctx context.Context, filter repository.BookingFilter) ([]*entities.Booking, error) {
	bookings, err := s.bookings.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	return bookings, nil
}

// ListDriverRides returns the bookings assigned to the calling driver, open
// rides first, each group by pickup time.
func (s *BookingService) ListDriverRides(ctx context.Context, caller entities.Caller) ([]*entities.Booking, error) {
	rides, err := s.bookings.List(ctx, repository.BookingFilter{DriverStableID: caller.ID})
	if err != nil {
		return nil, fmt.Errorf("list rides for driver %s: %w", caller.ID, err)
	}
	sort.SliceStable(rides, func(i, j int) bool {
		return !rides[i].EffectiveRideStatus().IsTerminal() && rides[j].EffectiveRideStatus().IsTerminal()
	})
	return rides, nil
}

// CreateDriver registers a driver.
func (s *BookingService) CreateDriver(ctx context.Context, caller entities.Caller, in CreateDriverInput) (*entities.Driver, error) {
	id := in.ID
	if id == "" {
		id = utils.GenerateID()
	}
	driver := entities.NewDriver(id, in.UserID, in.Name, in.Phone)
	if err := s.drivers.Create(ctx, driver); err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return nil, ErrDriverExists
		}
		return nil, fmt.Errorf("create driver: %w", err)
	}
	s.audit(ctx, audit.Event{
		Type:    audit.EventDriverCreated,
		Actor:   actorOf(caller),
		Details: map[string]string{"driverId": driver.ID, "driverStableId": driver.UserID},
	})
	return driver, nil
}

// ListDrivers returns the registry ordered by name.
func (s *BookingService) ListDrivers(ctx context.Context) ([]*entities.Driver, error) {
	drivers, err := s.drivers.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list drivers: %w", err)
	}
	return drivers, nil
}

func (s *BookingService) audit(ctx context.Context, e audit.Event) {
	if s.auditor != nil {
		s.auditor.Log(ctx, e)
	}
}

// mapNotFound turns a repository miss into the service's own sentinel and
// wraps anything else.
func mapNotFound(err, notFound error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return notFound
	}
	return fmt.Errorf("load booking: %w", err)
}
