package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/limoline/dispatch/internal/domain/entities"
	"github.com/limoline/dispatch/internal/tracking"
)

func TestLocationService_GetRideLocation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := NewLocationService(f.bookings, f.store)
	f.seedRide(t, "r1", statusPtr(entities.RideStatusScheduled))

	driver := entities.Caller{ID: testDriverStable, Role: entities.RoleDriver}
	passenger := entities.Caller{ID: "p", Role: entities.RolePassenger, Email: "grace@example.com"}
	stranger := entities.Caller{ID: "q", Role: entities.RolePassenger, Email: "eve@example.com"}

	view, err := svc.GetRideLocation(ctx, passenger, "r1")
	require.NoError(t, err)
	assert.False(t, view.Tracking)
	assert.Nil(t, view.Location)
	assert.Equal(t, "Tracking starts when the driver is on the way", view.Message)

	_, err = f.svc.UpdateRideStatus(ctx, "r1", testDriverStable, entities.RideStatusOnRoute)
	require.NoError(t, err)
	_, err = f.svc.SubmitLocationUpdate(ctx, "r1", testDriverStable, LocationInput{Latitude: 40.7128, Longitude: -74.0060})
	require.NoError(t, err)

	for _, caller := range []entities.Caller{driver, passenger, {ID: "s", Role: entities.RoleStaff}} {
		view, err = svc.GetRideLocation(ctx, caller, "r1")
		require.NoError(t, err)
		require.True(t, view.Tracking)
		assert.Equal(t, 40.7128, view.Location.Latitude)
		assert.Equal(t, "dr5reg", view.Location.Geohash)
		assert.Equal(t, entities.RideStatusOnRoute, *view.RideStatus)
	}

	_, err = svc.GetRideLocation(ctx, stranger, "r1")
	assert.ErrorIs(t, err, ErrRideNotFound)
	_, err = svc.GetRideLocation(ctx, driver, "missing")
	assert.ErrorIs(t, err, ErrRideNotFound)

	_, err = f.svc.UpdateRideStatus(ctx, "r1", testDriverStable, entities.RideStatusCancelled)
	require.NoError(t, err)
	view, err = svc.GetRideLocation(ctx, passenger, "r1")
	require.NoError(t, err)
	assert.False(t, view.Tracking)
	assert.Equal(t, "Tracking has ended for this ride", view.Message)
}

func TestLocationService_ListActiveLocations(t *testing.T) {
	store := tracking.NewStore(tracking.Options{SweepInterval: -1})
	svc := NewLocationService(nil, store)

	require.True(t, store.TryUpdateLocation("d1", entities.NewLocationSample("nyc-b", "", 40.7128, -74.0060)))
	require.True(t, store.TryUpdateLocation("d2", entities.NewLocationSample("nyc-a", "", 40.7306, -73.9866)))
	require.True(t, store.TryUpdateLocation("d3", entities.NewLocationSample("lon", "", 51.5074, -0.1278)))

	all := svc.ListActiveLocations(context.Background(), nil, "")
	require.Len(t, all, 3)
	assert.Equal(t, "lon", all[0].RideID)
	assert.Equal(t, "nyc-a", all[1].RideID)

	nyc := svc.ListActiveLocations(context.Background(), nil, "dr5")
	require.Len(t, nyc, 2)
	assert.Equal(t, "nyc-a", nyc[0].RideID)
	assert.Equal(t, "nyc-b", nyc[1].RideID)

	picked := svc.ListActiveLocations(context.Background(), []string{"lon", "unknown"}, "")
	require.Len(t, picked, 1)
	assert.Equal(t, "d3", picked[0].DriverID)

	none := svc.ListActiveLocations(context.Background(), nil, "zzz")
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestLocationService_PickupApproach(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := NewLocationService(f.bookings, f.store)

	lat, lon := 40.6413, -73.7781
	b := entities.NewBooking("r1", "staff-1",
		entities.Place{Address: "JFK Terminal 4", Latitude: &lat, Longitude: &lon},
		entities.Place{Address: "The Plaza"},
		f.clock.Now().Add(time.Hour),
		entities.Contact{Name: "Grace Hopper", Email: "grace@example.com"},
		entities.Contact{},
	)
	b.Driver = &entities.DriverAssignment{DriverID: "d1", StableID: testDriverStable, Name: "Ada"}
	b.RideStatus = statusPtr(entities.RideStatusScheduled)
	require.NoError(t, f.bookings.Create(ctx, b))

	_, err := f.svc.UpdateRideStatus(ctx, "r1", testDriverStable, entities.RideStatusOnRoute)
	require.NoError(t, err)
	// Times Square, roughly 21.8 km from the terminal.
	_, err = f.svc.SubmitLocationUpdate(ctx, "r1", testDriverStable, LocationInput{Latitude: 40.7580, Longitude: -73.9855})
	require.NoError(t, err)

	staff := entities.Caller{ID: "s", Role: entities.RoleStaff}
	view, err := svc.GetRideLocation(ctx, staff, "r1")
	require.NoError(t, err)
	require.NotNil(t, view.PickupDistanceKm)
	require.NotNil(t, view.PickupETAMinutes)
	assert.InDelta(t, 21.8, *view.PickupDistanceKm, 0.3)
	assert.Equal(t, 44, *view.PickupETAMinutes)

	// Once the driver has arrived there is nothing left to estimate.
	_, err = f.svc.UpdateRideStatus(ctx, "r1", testDriverStable, entities.RideStatusArrived)
	require.NoError(t, err)
	view, err = svc.GetRideLocation(ctx, staff, "r1")
	require.NoError(t, err)
	assert.True(t, view.Tracking)
	assert.Nil(t, view.PickupDistanceKm)
	assert.Nil(t, view.PickupETAMinutes)
}
