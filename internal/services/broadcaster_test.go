package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/limoline/dispatch/internal/domain/entities"
	"github.com/limoline/dispatch/internal/realtime"
)

type capturePublisher struct {
	mu   sync.Mutex
	msgs []realtime.Message
	err  error
}

func (p *capturePublisher) Publish(_ context.Context, msg realtime.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, msg)
	return nil
}

func TestEventBroadcaster_MessageShapes(t *testing.T) {
	pub := &capturePublisher{}
	b := NewEventBroadcaster(pub)
	ctx := context.Background()

	heading := 90.0
	sample := entities.NewLocationSample("r1", "drv-1", 40.7, -74.0)
	sample.Heading = &heading
	sample.DriverName = "Ada"

	b.OnLocationUpdated(ctx, sample)
	b.BroadcastRideStatusChanged(ctx, "r1", "drv-1", entities.RideStatusArrived, entities.BookingStatusScheduled, "Ada", "Grace")
	b.NotifyTrackingStopped(ctx, "r1", "Ride completed")

	require.Len(t, pub.msgs, 3)

	assert.Equal(t, realtime.TypeLocationUpdate, pub.msgs[0].Type)
	var loc realtime.LocationUpdate
	require.NoError(t, json.Unmarshal(pub.msgs[0].Data, &loc))
	assert.Equal(t, "drv-1", loc.DriverID)
	assert.Equal(t, "Ada", loc.DriverName)
	require.NotNil(t, loc.Heading)
	assert.Equal(t, 90.0, *loc.Heading)
	assert.Nil(t, loc.Speed)

	assert.Equal(t, realtime.TypeRideStatusChanged, pub.msgs[1].Type)
	var changed realtime.RideStatusChanged
	require.NoError(t, json.Unmarshal(pub.msgs[1].Data, &changed))
	assert.Equal(t, "Arrived", changed.RideStatus)
	assert.Equal(t, "Scheduled", changed.BookingStatus)
	assert.Equal(t, "Grace", changed.PassengerName)

	assert.Equal(t, realtime.TypeTrackingStopped, pub.msgs[2].Type)
	assert.Equal(t, "r1", pub.msgs[2].RideID)
	var stopped realtime.TrackingStopped
	require.NoError(t, json.Unmarshal(pub.msgs[2].Data, &stopped))
	assert.Equal(t, "Ride completed", stopped.Reason)
}

func TestEventBroadcaster_SwallowsPublishErrors(t *testing.T) {
	pub := &capturePublisher{err: errors.New("bus unavailable")}
	b := NewEventBroadcaster(pub)

	assert.NotPanics(t, func() {
		b.BroadcastRideStatusChanged(context.Background(), "r1", "drv-1", entities.RideStatusOnRoute, entities.BookingStatusScheduled, "", "")
		b.NotifyTrackingStopped(context.Background(), "r1", "Ride cancelled")
	})
	assert.Empty(t, pub.msgs)
}

// A failing broadcaster must not fail the state change that triggered it.
func TestRideLifecycle_BroadcastFailureDoesNotFailUpdate(t *testing.T) {
	f := newFixture(t)
	f.svc.events = NewEventBroadcaster(&capturePublisher{err: errors.New("bus unavailable")})
	f.seedRide(t, "r1", statusPtr(entities.RideStatusScheduled))

	res, err := f.svc.UpdateRideStatus(context.Background(), "r1", testDriverStable, entities.RideStatusOnRoute)
	require.NoError(t, err)
	assert.Equal(t, entities.RideStatusOnRoute, res.NewStatus)
	assert.Equal(t, entities.RideStatusOnRoute, *f.booking(t, "r1").RideStatus)
}

type recordingRevoker struct {
	calls [][2]string
	err   error
}

func (r *recordingRevoker) RevokeRide(_ context.Context, rideID, userID string) (int, error) {
	r.calls = append(r.calls, [2]string{rideID, userID})
	return 1, r.err
}

func TestEventBroadcaster_RevokeRideAccess(t *testing.T) {
	b := NewEventBroadcaster(&capturePublisher{})

	// Without a revoker it is a no-op.
	b.RevokeRideAccess(context.Background(), "r1", "drv-1")

	rev := &recordingRevoker{}
	b.SetRevoker(rev)
	b.RevokeRideAccess(context.Background(), "r1", "drv-1")
	assert.Equal(t, [][2]string{{"r1", "drv-1"}}, rev.calls)

	rev.err = errors.New("hub stopped")
	assert.NotPanics(t, func() { b.RevokeRideAccess(context.Background(), "r1", "drv-2") })
}
