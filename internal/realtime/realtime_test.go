package realtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	hub := NewHub(16)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = hub.Serve(ctx) }()
	t.Cleanup(cancel)
	return hub, cancel
}

func register(t *testing.T, hub *Hub, scope Scope, buffer int) *Client {
	t.Helper()
	c := NewClient(hub, nil, "user", scope, buffer)
	require.NoError(t, hub.Register(context.Background(), c))
	return c
}

func receive(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case raw, ok := <-c.send:
		require.True(t, ok, "send channel closed")
		var msg Message
		require.NoError(t, json.Unmarshal(raw, &msg))
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message received")
		return Message{}
	}
}

func assertNothing(t *testing.T, c *Client) {
	t.Helper()
	select {
	case raw := <-c.send:
		t.Fatalf("unexpected message: %s", raw)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestScope_Matches(t *testing.T) {
	assert.True(t, Scope{Dashboard: true}.Matches("ride-1"))
	assert.True(t, Scope{RideID: "ride-1"}.Matches("ride-1"))
	assert.False(t, Scope{RideID: "ride-1"}.Matches("ride-2"))
	assert.False(t, Scope{}.Matches(""))
}

func TestHub_FansOutByRideAndDashboard(t *testing.T) {
	hub, _ := startHub(t)

	rideOne := register(t, hub, Scope{RideID: "ride-1"}, 8)
	rideTwo := register(t, hub, Scope{RideID: "ride-2"}, 8)
	dashboard := register(t, hub, Scope{Dashboard: true}, 8)

	msg, err := NewMessage(TypeLocationUpdate, "ride-1", LocationUpdate{RideID: "ride-1", Latitude: 40.7})
	require.NoError(t, err)
	hub.Publish(msg)

	got := receive(t, rideOne)
	assert.Equal(t, TypeLocationUpdate, got.Type)
	assert.Equal(t, "ride-1", got.RideID)

	var payload LocationUpdate
	require.NoError(t, json.Unmarshal(got.Data, &payload))
	assert.Equal(t, 40.7, payload.Latitude)

	assert.Equal(t, "ride-1", receive(t, dashboard).RideID)
	assertNothing(t, rideTwo)

	assert.Eventually(t, func() bool { return hub.ClientCount() == 3 }, time.Second, 5*time.Millisecond)
}

func TestHub_SlowClientIsDisconnected(t *testing.T) {
	hub, _ := startHub(t)
	slow := register(t, hub, Scope{RideID: "ride-1"}, 1)

	for i := 0; i < 3; i++ {
		msg, err := NewMessage(TypeRideStatusChanged, "ride-1", nil)
		require.NoError(t, err)
		hub.Publish(msg)
	}

	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 5*time.Millisecond)

	// The buffered message is still readable, then the channel reports closed.
	<-slow.send
	_, ok := <-slow.send
	assert.False(t, ok)
}

func TestHub_UnregisterAfterStop(t *testing.T) {
	hub, cancel := startHub(t)
	c := register(t, hub, Scope{Dashboard: true}, 4)

	cancel()
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 5*time.Millisecond)

	done := make(chan struct{})
	go func() {
		hub.Unregister(c)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Unregister blocked after hub stopped")
	}
	assert.ErrorIs(t, hub.Register(context.Background(), NewClient(hub, nil, "u", Scope{}, 1)), ErrHubStopped)
}

func TestPublisherAndBridge_DeliverToHub(t *testing.T) {
	hub, _ := startHub(t)
	dashboard := register(t, hub, Scope{Dashboard: true}, 8)

	bus := NewBus(16, NewZerologAdapter(zerolog.Nop()))
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bridge := NewBridge(bus, RideEventsTopic, hub)
	go func() { _ = bridge.Serve(ctx) }()

	publisher := NewPublisher(bus, RideEventsTopic, BreakerConfig{Name: "test-bus"})

	// The subscription is created asynchronously; publish until it lands.
	assert.Eventually(t, func() bool {
		msg, err := NewMessage(TypeTrackingStopped, "ride-9", TrackingStopped{RideID: "ride-9", Reason: "Ride completed"})
		if err != nil || publisher.Publish(ctx, msg) != nil {
			return false
		}
		select {
		case raw := <-dashboard.send:
			var got Message
			if json.Unmarshal(raw, &got) != nil {
				return false
			}
			return got.Type == TypeTrackingStopped && got.RideID == "ride-9"
		case <-time.After(20 * time.Millisecond):
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}

type failingPublisher struct{ calls int }

func (f *failingPublisher) Publish(string, ...*message.Message) error {
	f.calls++
	return errors.New("bus down")
}

func (f *failingPublisher) Close() error { return nil }

func TestPublisher_BreakerOpensAfterFailures(t *testing.T) {
	backend := &failingPublisher{}
	publisher := NewPublisher(backend, RideEventsTopic, BreakerConfig{
		Name:             "failing-bus",
		FailureThreshold: 2,
		Timeout:          time.Minute,
	})
	msg, err := NewMessage(TypePing, "", nil)
	require.NoError(t, err)

	assert.Error(t, publisher.Publish(context.Background(), msg))
	assert.Error(t, publisher.Publish(context.Background(), msg))

	err = publisher.Publish(context.Background(), msg)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 2, backend.calls, "open breaker must not reach the backend")
	assert.Equal(t, "open", publisher.State())
}

func TestBridge_DropsUndecodable(t *testing.T) {
	sink := &recordingSink{}
	b := NewBridge(nil, RideEventsTopic, sink)

	b.forward(message.NewMessage("1", []byte("not json")))
	valid, err := json.Marshal(Message{Type: TypePing})
	require.NoError(t, err)
	b.forward(message.NewMessage("2", valid))

	require.Len(t, sink.got, 1)
	assert.Equal(t, TypePing, sink.got[0].Type)
}

type recordingSink struct{ got []Message }

func (r *recordingSink) Publish(msg Message) { r.got = append(r.got, msg) }

func TestHub_RevokeRideDropsOnlyThatUser(t *testing.T) {
	hub, _ := startHub(t)

	oldDriver := NewClient(hub, nil, "drv-old", Scope{RideID: "ride-1"}, 8)
	require.NoError(t, hub.Register(context.Background(), oldDriver))
	otherRide := NewClient(hub, nil, "drv-old", Scope{RideID: "ride-2"}, 8)
	require.NoError(t, hub.Register(context.Background(), otherRide))
	passenger := NewClient(hub, nil, "pax-1", Scope{RideID: "ride-1"}, 8)
	require.NoError(t, hub.Register(context.Background(), passenger))

	n, err := hub.RevokeRide(context.Background(), "ride-1", "drv-old")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	notice := receive(t, oldDriver)
	assert.Equal(t, TypeSubscriptionRevoked, notice.Type)
	assert.Equal(t, "ride-1", notice.RideID)
	_, ok := <-oldDriver.send
	assert.False(t, ok, "revoked client is closed")

	msg, err := NewMessage(TypeLocationUpdate, "ride-1", LocationUpdate{RideID: "ride-1"})
	require.NoError(t, err)
	hub.Publish(msg)
	assert.Equal(t, TypeLocationUpdate, receive(t, passenger).Type)
	assertNothing(t, otherRide)
	assert.Equal(t, 2, hub.ClientCount())

	n, err = hub.RevokeRide(context.Background(), "ride-1", "nobody")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestHub_RevokeRideAfterStop(t *testing.T) {
	hub, cancel := startHub(t)
	cancel()
	assert.Eventually(t, func() bool {
		_, err := hub.RevokeRide(context.Background(), "ride-1", "drv")
		return errors.Is(err, ErrHubStopped)
	}, time.Second, 5*time.Millisecond)
}
