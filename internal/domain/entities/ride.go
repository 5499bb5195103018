package entities

import (
	"errors"
	"fmt"
)

// RideStatus is the fine-grained, driver-facing stage of a trip.
//
// Go Learning Note — State Machines in Go:
// The ride lifecycle is a finite state machine expressed as a map of valid
// transitions. Keeping the table at package level (instead of inside a
// handler) makes it a pure, static value that every caller shares and that
// can be unit tested without any HTTP or storage wiring:
//
//	Scheduled → OnRoute → Arrived → PassengerOnboard → Completed
//	     (every non-terminal state can also transition to Cancelled)
type RideStatus string

const (
	RideStatusScheduled        RideStatus = "Scheduled"
	RideStatusOnRoute          RideStatus = "OnRoute"
	RideStatusArrived          RideStatus = "Arrived"
	RideStatusPassengerOnboard RideStatus = "PassengerOnboard"
	RideStatusCompleted        RideStatus = "Completed"
	RideStatusCancelled        RideStatus = "Cancelled"
)

// AllRideStatuses lists every ride status in lifecycle order.
var AllRideStatuses = []RideStatus{
	RideStatusScheduled,
	RideStatusOnRoute,
	RideStatusArrived,
	RideStatusPassengerOnboard,
	RideStatusCompleted,
	RideStatusCancelled,
}

// validTransitions defines which ride status changes are allowed from each
// state. Terminal states map to empty slices.
var validTransitions = map[RideStatus][]RideStatus{
	RideStatusScheduled:        {RideStatusOnRoute, RideStatusCancelled},
	RideStatusOnRoute:          {RideStatusArrived, RideStatusCancelled},
	RideStatusArrived:          {RideStatusPassengerOnboard, RideStatusCancelled},
	RideStatusPassengerOnboard: {RideStatusCompleted, RideStatusCancelled},
	RideStatusCompleted:        {},
	RideStatusCancelled:        {},
}

// ErrInvalidTransition is matched by every *InvalidTransitionError through
// errors.Is.
var ErrInvalidTransition = errors.New("invalid ride status transition")

// InvalidTransitionError carries both sides of a rejected transition so the
// caller can tell the client exactly what was attempted.
type InvalidTransitionError struct {
	From RideStatus
	To   RideStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid ride status transition from %s to %s", e.From, e.To)
}

// Is lets errors.Is(err, ErrInvalidTransition) succeed.
func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// ParseRideStatus converts a client-supplied string into a RideStatus.
// Matching is exact; unknown values return ok=false.
func ParseRideStatus(s string) (RideStatus, bool) {
	for _, status := range AllRideStatuses {
		if string(status) == s {
			return status, true
		}
	}
	return "", false
}

// IsValid reports whether s is one of the known ride statuses.
func (s RideStatus) IsValid() bool {
	_, ok := validTransitions[s]
	return ok
}

// IsTerminal reports whether s has no outgoing transitions.
func (s RideStatus) IsTerminal() bool {
	return s == RideStatusCompleted || s == RideStatusCancelled
}

// IsActive reports whether location updates are accepted in s.
func (s RideStatus) IsActive() bool {
	switch s {
	case RideStatusOnRoute, RideStatusArrived, RideStatusPassengerOnboard:
		return true
	}
	return false
}

// CanTransitionTo checks if moving from s to next is a valid state change.
//
// Go Learning Note — Comma-ok Idiom:
// `allowed, exists := validTransitions[s]` distinguishes a missing key from
// a key mapped to an empty slice. Unknown statuses therefore never validate.
func (s RideStatus) CanTransitionTo(next RideStatus) bool {
	allowed, exists := validTransitions[s]
	if !exists {
		return false
	}
	for _, candidate := range allowed {
		if candidate == next {
			return true
		}
	}
	return false
}

// AllowedTransitions returns a copy of the statuses reachable from s.
func (s RideStatus) AllowedTransitions() []RideStatus {
	allowed := validTransitions[s]
	out := make([]RideStatus, len(allowed))
	copy(out, allowed)
	return out
}

// ValidateRideTransition is the state machine's single entry point. It does
// not mutate anything; on failure the error is an *InvalidTransitionError.
func ValidateRideTransition(current, requested RideStatus) error {
	if !current.CanTransitionTo(requested) {
		return &InvalidTransitionError{From: current, To: requested}
	}
	return nil
}

// DeriveBookingStatus computes the booking status that accompanies a
// successful transition to next. Ride statuses without a mapping leave the
// booking status unchanged.
func DeriveBookingStatus(current BookingStatus, next RideStatus) BookingStatus {
	switch next {
	case RideStatusPassengerOnboard:
		return BookingStatusInProgress
	case RideStatusCompleted:
		return BookingStatusCompleted
	case RideStatusCancelled:
		return BookingStatusCancelled
	default:
		return current
	}
}

// TrackingStoppedReason returns the human-readable reason sent to realtime
// clients when a ride reaches terminal status s.
func TrackingStoppedReason(s RideStatus) string {
	switch s {
	case RideStatusCompleted:
		return "Ride completed"
	case RideStatusCancelled:
		return "Ride cancelled"
	default:
		return ""
	}
}
