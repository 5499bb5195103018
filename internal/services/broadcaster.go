package services

import (
	"context"
	"time"

	"github.com/limoline/dispatch/internal/domain/entities"
	"github.com/limoline/dispatch/internal/logging"
	"github.com/limoline/dispatch/internal/realtime"
)

// EventPublisher is the transport primitive the broadcaster needs: publish a
// message scoped to a ride. realtime.Publisher satisfies it.
type EventPublisher interface {
	Publish(ctx context.Context, msg realtime.Message) error
}

// SubscriptionRevoker cuts a user off a ride's realtime channel.
// *realtime.Hub satisfies it.
type SubscriptionRevoker interface {
	RevokeRide(ctx context.Context, rideID, userID string) (int, error)
}

// EventBroadcaster turns ride events into realtime messages. Every method
// logs failures and returns nothing; a missed dashboard push never fails the
// state change that caused it.
type EventBroadcaster struct {
	publisher EventPublisher
	revoker   SubscriptionRevoker
	now       func() time.Time
}

// NewEventBroadcaster creates a broadcaster over publisher.
func NewEventBroadcaster(publisher EventPublisher) *EventBroadcaster {
	return &EventBroadcaster{
		publisher: publisher,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetRevoker installs the hub that live subscriptions are withdrawn from.
// Without one, RevokeRideAccess only logs.
func (b *EventBroadcaster) SetRevoker(r SubscriptionRevoker) { b.revoker = r }

// RevokeRideAccess disconnects userID's live subscriptions to rideID. It runs
// synchronously, so events broadcast afterwards never reach them.
func (b *EventBroadcaster) RevokeRideAccess(ctx context.Context, rideID, userID string) {
	if b.revoker == nil {
		logging.Ctx(ctx).Debug().Str("ride_id", rideID).Msg("no subscription revoker installed")
		return
	}
	n, err := b.revoker.RevokeRide(ctx, rideID, userID)
	if err != nil {
		logging.Ctx(ctx).Warn().
			Err(err).
			Str("ride_id", rideID).
			Str("user_id", userID).
			Msg("failed to revoke ride subscriptions")
		return
	}
	if n > 0 {
		logging.Ctx(ctx).Info().
			Str("ride_id", rideID).
			Str("user_id", userID).
			Int("clients", n).
			Msg("ride subscriptions revoked")
	}
}

// BroadcastLocationUpdate pushes a driver's latest position for rideID.
func (b *EventBroadcaster) BroadcastLocationUpdate(ctx context.Context, rideID, driverStableID string, sample entities.LocationSample, driverName string) {
	b.publish(ctx, realtime.TypeLocationUpdate, rideID, realtime.LocationUpdate{
		RideID:     rideID,
		DriverID:   driverStableID,
		DriverName: driverName,
		Latitude:   sample.Latitude,
		Longitude:  sample.Longitude,
		Heading:    sample.Heading,
		Speed:      sample.Speed,
		Accuracy:   sample.Accuracy,
		CapturedAt: sample.CapturedAt,
	})
}

// BroadcastRideStatusChanged pushes a ride status change.
func (b *EventBroadcaster) BroadcastRideStatusChanged(ctx context.Context, rideID, driverStableID string, status entities.RideStatus, bookingStatus entities.BookingStatus, driverName, passengerName string) {
	b.publish(ctx, realtime.TypeRideStatusChanged, rideID, realtime.RideStatusChanged{
		RideID:        rideID,
		DriverID:      driverStableID,
		DriverName:    driverName,
		PassengerName: passengerName,
		RideStatus:    string(status),
		BookingStatus: string(bookingStatus),
		ChangedAt:     b.now(),
	})
}

// NotifyTrackingStopped tells subscribers no more positions will arrive.
func (b *EventBroadcaster) NotifyTrackingStopped(ctx context.Context, rideID, reason string) {
	b.publish(ctx, realtime.TypeTrackingStopped, rideID, realtime.TrackingStopped{
		RideID:    rideID,
		Reason:    reason,
		StoppedAt: b.now(),
	})
}

// OnLocationUpdated forwards samples accepted by the location store. It makes
// the broadcaster a tracking.Listener.
func (b *EventBroadcaster) OnLocationUpdated(ctx context.Context, sample entities.LocationSample) {
	b.BroadcastLocationUpdate(ctx, sample.RideID, sample.DriverID, sample, sample.DriverName)
}

func (b *EventBroadcaster) publish(ctx context.Context, msgType, rideID string, payload any) {
	msg, err := realtime.NewMessage(msgType, rideID, payload)
	if err == nil {
		err = b.publisher.Publish(ctx, msg)
	}
	if err != nil {
		logging.Ctx(ctx).Warn().
			Err(err).
			Str("message_type", msgType).
			Str("ride_id", rideID).
			Msg("failed to broadcast ride event")
	}
}
