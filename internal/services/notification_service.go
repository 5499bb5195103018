package services

import (
	"context"

	"github.com/limoline/dispatch/internal/domain/entities"
	"github.com/limoline/dispatch/internal/logging"
)

// Notifier tells passengers about their ride. Implementations must return
// quickly; the orchestrator calls them on the request path.
type Notifier interface {
	NotifyDriverAssigned(ctx context.Context, booking *entities.Booking)
	NotifyRideStatus(ctx context.Context, booking *entities.Booking, status entities.RideStatus)
}

// LogNotifier records the notification it would send. Outbound email is
// handled by a separate system that tails these log lines.
type LogNotifier struct{}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

// NotifyDriverAssigned announces the chauffeur to the passenger.
func (n *LogNotifier) NotifyDriverAssigned(ctx context.Context, booking *entities.Booking) {
	logging.Ctx(ctx).Info().
		Str("notification", "driver_assigned").
		Str("booking_id", booking.ID).
		Str("to", booking.Passenger.Email).
		Str("driver", booking.DriverName()).
		Time("pickup_at", booking.PickupAt).
		Msg("passenger notification")
}

// NotifyRideStatus sends the passenger-facing subset of ride updates.
// PassengerOnboard is skipped since the passenger is in the car.
func (n *LogNotifier) NotifyRideStatus(ctx context.Context, booking *entities.Booking, status entities.RideStatus) {
	var kind string
	switch status {
	case entities.RideStatusOnRoute:
		kind = "driver_on_route"
	case entities.RideStatusArrived:
		kind = "driver_arrived"
	case entities.RideStatusCompleted:
		kind = "ride_completed"
	case entities.RideStatusCancelled:
		kind = "ride_cancelled"
	default:
		return
	}

	logging.Ctx(ctx).Info().
		Str("notification", kind).
		Str("booking_id", booking.ID).
		Str("to", booking.Passenger.Email).
		Str("driver", booking.DriverName()).
		Msg("passenger notification")
}
