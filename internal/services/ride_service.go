package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/limoline/dispatch/internal/audit"
	"github.com/limoline/dispatch/internal/domain/entities"
	"github.com/limoline/dispatch/internal/logging"
	"github.com/limoline/dispatch/internal/metrics"
	"github.com/limoline/dispatch/internal/repository"
	"github.com/limoline/dispatch/internal/repository/memory"
)

// LocationTracker is the part of the location store the orchestrator writes
// to. *tracking.Store satisfies it.
type LocationTracker interface {
	TryUpdateLocation(driverStableID string, sample entities.LocationSample) bool
	RemoveLocation(rideID string)
}

// RideEventSink receives ride events for realtime delivery.
// *EventBroadcaster satisfies it.
type RideEventSink interface {
	BroadcastRideStatusChanged(ctx context.Context, rideID, driverStableID string, status entities.RideStatus, bookingStatus entities.BookingStatus, driverName, passengerName string)
	NotifyTrackingStopped(ctx context.Context, rideID, reason string)
	RevokeRideAccess(ctx context.Context, rideID, userID string)
}

// Auditor records audit events without blocking. *audit.Logger satisfies it.
type Auditor interface {
	Log(ctx context.Context, event audit.Event)
}

// NoShowReason is the tracking-stopped reason for a passenger no-show.
const NoShowReason = "Passenger no-show"

// RideStatusResult is returned by a successful status change.
type RideStatusResult struct {
	RideID        string                 `json:"rideId"`
	NewStatus     entities.RideStatus    `json:"newStatus"`
	BookingStatus entities.BookingStatus `json:"bookingStatus"`
	Timestamp     time.Time              `json:"timestamp"`
}

// LocationInput is a driver's position report.
type LocationInput struct {
	Latitude  float64
	Longitude float64
	Heading   *float64
	Speed     *float64
	Accuracy  *float64
}

// RideLifecycleService is the only component that changes a booking's ride
// or booking status. Every mutation for one ride runs under that ride's lock,
// so the read-validate-write sequence never sees a stale status; different
// rides never wait on each other.
type RideLifecycleService struct {
	bookings  repository.BookingRepository
	drivers   repository.DriverRepository
	locations LocationTracker
	events    RideEventSink
	notifier  Notifier
	auditor   Auditor
	locks     *memory.LockManager
	now       func() time.Time
}

// NewRideLifecycleService wires the orchestrator. locks may be shared with
// BookingService so booking-level actions serialize with ride updates.
func NewRideLifecycleService(
	bookings repository.BookingRepository,
	drivers repository.DriverRepository,
	locations LocationTracker,
	events RideEventSink,
	notifier Notifier,
	auditor Auditor,
	locks *memory.LockManager,
) *RideLifecycleService {
	if locks == nil {
		locks = memory.NewLockManager()
	}
	if notifier == nil {
		notifier = NewLogNotifier()
	}
	return &RideLifecycleService{
		bookings:  bookings,
		drivers:   drivers,
		locations: locations,
		events:    events,
		notifier:  notifier,
		auditor:   auditor,
		locks:     locks,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// UpdateRideStatus moves rideID to requested on behalf of its assigned
// driver. Errors: ErrRideNotFound, ErrForbidden, or an
// *entities.InvalidTransitionError naming both statuses.
func (s *RideLifecycleService) UpdateRideStatus(ctx context.Context, rideID, callerDriverID string, requested entities.RideStatus) (*RideStatusResult, error) {
	unlock, err := s.locks.LockContext(ctx, rideID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	booking, err := s.loadBooking(ctx, rideID, ErrRideNotFound)
	if err != nil {
		return nil, err
	}

	actor := audit.Actor{ID: callerDriverID, Role: string(entities.RoleDriver)}
	if !booking.IsAssignedTo(callerDriverID) {
		s.audit(ctx, audit.Event{
			Type:      audit.EventRideAccessDenied,
			Outcome:   audit.OutcomeFailure,
			Actor:     actor,
			BookingID: rideID,
			Details:   map[string]string{"requested": string(requested)},
		})
		return nil, ErrForbidden
	}

	current := booking.EffectiveRideStatus()
	if err := entities.ValidateRideTransition(current, requested); err != nil {
		metrics.RecordRideTransition(string(requested), false)
		s.audit(ctx, audit.Event{
			Type:      audit.EventRideTransitionDenied,
			Outcome:   audit.OutcomeFailure,
			Actor:     actor,
			BookingID: rideID,
			Details:   map[string]string{"from": string(current), "to": string(requested)},
		})
		return nil, err
	}

	bookingStatus := entities.DeriveBookingStatus(booking.Status, requested)
	updated, err := s.bookings.UpdateRideStatus(ctx, rideID, requested, bookingStatus)
	if err != nil {
		return nil, fmt.Errorf("persist ride status for %s: %w", rideID, err)
	}
	metrics.RecordRideTransition(string(requested), true)

	s.afterRideStatusChange(ctx, updated, requested, entities.TrackingStoppedReason(requested))
	s.audit(ctx, audit.Event{
		Type:      audit.EventRideStatusChanged,
		Actor:     actor,
		BookingID: rideID,
		Details: map[string]string{
			"from":          string(current),
			"to":            string(requested),
			"bookingStatus": string(updated.Status),
		},
	})

	logging.Ctx(ctx).Info().
		Str("ride_id", rideID).
		Str("from", string(current)).
		Str("to", string(requested)).
		Str("booking_status", string(updated.Status)).
		Msg("ride status changed")

	return &RideStatusResult{
		RideID:        rideID,
		NewStatus:     requested,
		BookingStatus: updated.Status,
		Timestamp:     updated.UpdatedAt,
	}, nil
}

// SubmitLocationUpdate records a position for rideID from its assigned
// driver. The location store broadcasts accepted samples itself. Errors:
// ErrRideNotFound (also for a driver who is not assigned), ErrInactiveRide,
// ErrRateLimited.
func (s *RideLifecycleService) SubmitLocationUpdate(ctx context.Context, rideID, callerDriverID string, in LocationInput) (*entities.LocationSample, error) {
	unlock, err := s.locks.LockContext(ctx, rideID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	booking, err := s.loadBooking(ctx, rideID, ErrRideNotFound)
	if err != nil {
		metrics.RecordLocationUpdate("not_found")
		return nil, err
	}
	if !booking.IsAssignedTo(callerDriverID) {
		metrics.RecordLocationUpdate("not_found")
		s.audit(ctx, audit.Event{
			Type:      audit.EventRideAccessDenied,
			Outcome:   audit.OutcomeFailure,
			Actor:     audit.Actor{ID: callerDriverID, Role: string(entities.RoleDriver)},
			BookingID: rideID,
			Details:   map[string]string{"action": "location_update"},
		})
		return nil, ErrRideNotFound
	}

	if booking.RideStatus == nil || !booking.RideStatus.IsActive() {
		metrics.RecordLocationUpdate("inactive_ride")
		return nil, ErrInactiveRide
	}

	sample := entities.LocationSample{
		RideID:     rideID,
		DriverName: booking.DriverName(),
		Latitude:   in.Latitude,
		Longitude:  in.Longitude,
		Heading:    in.Heading,
		Speed:      in.Speed,
		Accuracy:   in.Accuracy,
		CapturedAt: s.now(),
	}
	if !s.locations.TryUpdateLocation(callerDriverID, sample) {
		metrics.RecordLocationUpdate("rate_limited")
		return nil, ErrRateLimited
	}
	metrics.RecordLocationUpdate("accepted")

	sample.DriverID = callerDriverID
	return &sample, nil
}

// AssignDriver puts driverID on bookingID and schedules the ride. A driver
// may be swapped until the ride leaves Scheduled.
func (s *RideLifecycleService) AssignDriver(ctx context.Context, caller entities.Caller, bookingID, driverID string) (*entities.Booking, error) {
	unlock, err := s.locks.LockContext(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	booking, err := s.loadBooking(ctx, bookingID, ErrBookingNotFound)
	if err != nil {
		return nil, err
	}

	driver, err := s.drivers.GetByID(ctx, driverID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrDriverNotFound
		}
		return nil, fmt.Errorf("load driver %s: %w", driverID, err)
	}
	if !driver.IsActive() {
		return nil, ErrDriverInactive
	}

	switch {
	case booking.Status.IsClosed():
		return nil, ErrBookingClosed
	case booking.Status == entities.BookingStatusInProgress,
		booking.EffectiveRideStatus() != entities.RideStatusScheduled:
		return nil, ErrDriverReassignment
	}

	previous := booking.DriverStableID()
	updated, err := s.bookings.UpdateDriverAssignment(ctx, bookingID, driver.Assignment(),
		entities.RideStatusScheduled, entities.BookingStatusScheduled)
	if err != nil {
		return nil, fmt.Errorf("persist driver assignment for %s: %w", bookingID, err)
	}
	replaced := previous != "" && previous != driver.UserID
	if replaced {
		s.events.RevokeRideAccess(ctx, bookingID, previous)
	}

	s.events.BroadcastRideStatusChanged(ctx, bookingID, driver.UserID, entities.RideStatusScheduled,
		updated.Status, driver.Name, updated.Passenger.Name)
	s.notifier.NotifyDriverAssigned(ctx, updated)

	details := map[string]string{"driverId": driver.ID, "driverStableId": driver.UserID}
	if replaced {
		details["previousDriverStableId"] = previous
	}
	s.audit(ctx, audit.Event{
		Type:      audit.EventBookingDriverAssigned,
		Actor:     actorOf(caller),
		BookingID: bookingID,
		Details:   details,
	})
	return updated, nil
}

// CancelBooking closes an open booking. A ride already under way is moved to
// Cancelled through the state machine, and its tracking stops.
func (s *RideLifecycleService) CancelBooking(ctx context.Context, caller entities.Caller, bookingID, reason string) (*entities.Booking, error) {
	unlock, err := s.locks.LockContext(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	booking, err := s.loadBooking(ctx, bookingID, ErrBookingNotFound)
	if err != nil {
		return nil, err
	}
	if booking.Status.IsClosed() {
		return nil, ErrBookingClosed
	}

	var updated *entities.Booking
	if booking.RideStatus != nil {
		if err := entities.ValidateRideTransition(*booking.RideStatus, entities.RideStatusCancelled); err != nil {
			return nil, err
		}
		updated, err = s.bookings.UpdateRideStatus(ctx, bookingID, entities.RideStatusCancelled, entities.BookingStatusCancelled)
	} else {
		updated, err = s.bookings.UpdateStatus(ctx, bookingID, entities.BookingStatusCancelled)
	}
	if err != nil {
		return nil, fmt.Errorf("persist cancellation for %s: %w", bookingID, err)
	}
	metrics.RecordRideTransition(string(entities.RideStatusCancelled), true)

	s.afterRideStatusChange(ctx, updated, entities.RideStatusCancelled, entities.TrackingStoppedReason(entities.RideStatusCancelled))

	details := map[string]string{}
	if reason != "" {
		details["reason"] = reason
	}
	s.audit(ctx, audit.Event{
		Type:      audit.EventBookingCancelled,
		Actor:     actorOf(caller),
		BookingID: bookingID,
		Details:   details,
	})
	return updated, nil
}

// MarkNoShow records that the passenger never appeared. Only valid once the
// driver has Arrived; the ride is Cancelled and the booking becomes NoShow.
func (s *RideLifecycleService) MarkNoShow(ctx context.Context, caller entities.Caller, bookingID string) (*entities.Booking, error) {
	unlock, err := s.locks.LockContext(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	booking, err := s.loadBooking(ctx, bookingID, ErrBookingNotFound)
	if err != nil {
		return nil, err
	}
	if booking.Status.IsClosed() {
		return nil, ErrBookingClosed
	}
	if booking.EffectiveRideStatus() != entities.RideStatusArrived {
		return nil, ErrNoShowNotAllowed
	}
	if err := entities.ValidateRideTransition(entities.RideStatusArrived, entities.RideStatusCancelled); err != nil {
		return nil, err
	}

	updated, err := s.bookings.UpdateRideStatus(ctx, bookingID, entities.RideStatusCancelled, entities.BookingStatusNoShow)
	if err != nil {
		return nil, fmt.Errorf("persist no-show for %s: %w", bookingID, err)
	}
	metrics.RecordRideTransition(string(entities.RideStatusCancelled), true)

	s.afterRideStatusChange(ctx, updated, entities.RideStatusCancelled, NoShowReason)
	s.audit(ctx, audit.Event{
		Type:      audit.EventBookingNoShow,
		Actor:     actorOf(caller),
		BookingID: bookingID,
	})
	return updated, nil
}

// afterRideStatusChange runs the side effects of a persisted ride status:
// broadcast, tracking teardown for terminal statuses, passenger notice.
func (s *RideLifecycleService) afterRideStatusChange(ctx context.Context, b *entities.Booking, status entities.RideStatus, stopReason string) {
	s.events.BroadcastRideStatusChanged(ctx, b.ID, b.DriverStableID(), status, b.Status, b.DriverName(), b.Passenger.Name)

	if status.IsTerminal() {
		s.locations.RemoveLocation(b.ID)
		s.events.NotifyTrackingStopped(ctx, b.ID, stopReason)
	}

	s.notifier.NotifyRideStatus(ctx, b, status)
}

func (s *RideLifecycleService) loadBooking(ctx context.Context, id string, notFound error) (*entities.Booking, error) {
	booking, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFound
		}
		return nil, fmt.Errorf("load booking %s: %w", id, err)
	}
	return booking, nil
}

func (s *RideLifecycleService) audit(ctx context.Context, e audit.Event) {
	if s.auditor != nil {
		s.auditor.Log(ctx, e)
	}
}

func actorOf(c entities.Caller) audit.Actor {
	return audit.Actor{ID: c.ID, Role: string(c.Role)}
}
