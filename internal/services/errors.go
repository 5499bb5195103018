package services

import "errors"

// Sentinel errors returned by the services. Handlers map them to HTTP status
// codes with errors.Is; entities.ErrInvalidTransition is the one domain
// error that passes through unchanged.
var (
	// ErrRideNotFound covers both a missing booking and a caller who may not
	// see it, so existence is never leaked.
	ErrRideNotFound = errors.New("ride not found")

	// ErrForbidden means the caller can see the ride but is not its
	// assigned driver.
	ErrForbidden = errors.New("not the assigned driver for this ride")

	// ErrInactiveRide rejects location updates outside OnRoute, Arrived and
	// PassengerOnboard.
	ErrInactiveRide = errors.New("ride is not active")

	// ErrRateLimited rejects a location update that arrived too soon after
	// the previous accepted one.
	ErrRateLimited = errors.New("location update rate limited")

	ErrBookingNotFound    = errors.New("booking not found")
	ErrDriverNotFound     = errors.New("driver not found")
	ErrDriverInactive     = errors.New("driver is inactive")
	ErrDriverExists       = errors.New("driver already exists")
	ErrBookingClosed      = errors.New("booking is already closed")
	ErrBookingNotPending  = errors.New("booking is not awaiting confirmation")
	ErrDriverReassignment = errors.New("driver cannot be changed once the ride has started")
	ErrNoShowNotAllowed   = errors.New("no-show can only be recorded after the driver has arrived")
)
