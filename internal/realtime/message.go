// Package realtime delivers ride events to connected websocket clients.
//
// Events travel in two hops. The services layer publishes onto an in-process
// watermill bus through a circuit-breaking Publisher; a Bridge subscribes to
// the bus and hands each event to the Hub, which fans it out to the clients
// watching that ride and to every dashboard client. Membership and
// authorization checks live at the HTTP layer, before a client is registered;
// Hub.RevokeRide withdraws a ride subscription when the ride changes hands.
package realtime

import (
	"time"

	"github.com/goccy/go-json"
)

// Message types.
const (
	TypeLocationUpdate      = "location_update"
	TypeRideStatusChanged   = "ride_status_changed"
	TypeTrackingStopped     = "tracking_stopped"
	TypeSubscriptionRevoked = "subscription_revoked"
	TypePing                = "ping"
	TypePong                = "pong"
)

// Message is the envelope sent on the bus and over websockets. Data carries
// one of the payload types below, already encoded.
type Message struct {
	Type      string          `json:"type"`
	RideID    string          `json:"rideId,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage encodes data into a Message envelope.
func NewMessage(msgType, rideID string, data any) (Message, error) {
	msg := Message{Type: msgType, RideID: rideID, Timestamp: time.Now().UTC()}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return Message{}, err
		}
		msg.Data = raw
	}
	return msg, nil
}

// LocationUpdate is the payload of a location_update message.
type LocationUpdate struct {
	RideID     string    `json:"rideId"`
	DriverID   string    `json:"driverId"`
	DriverName string    `json:"driverName,omitempty"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Heading    *float64  `json:"heading,omitempty"`
	Speed      *float64  `json:"speed,omitempty"`
	Accuracy   *float64  `json:"accuracy,omitempty"`
	CapturedAt time.Time `json:"capturedAt"`
}

// RideStatusChanged is the payload of a ride_status_changed message.
type RideStatusChanged struct {
	RideID        string    `json:"rideId"`
	DriverID      string    `json:"driverId,omitempty"`
	DriverName    string    `json:"driverName,omitempty"`
	PassengerName string    `json:"passengerName,omitempty"`
	RideStatus    string    `json:"rideStatus"`
	BookingStatus string    `json:"bookingStatus,omitempty"`
	ChangedAt     time.Time `json:"changedAt"`
}

// TrackingStopped is the payload of a tracking_stopped message.
type TrackingStopped struct {
	RideID    string    `json:"rideId"`
	Reason    string    `json:"reason"`
	StoppedAt time.Time `json:"stoppedAt"`
}

// SubscriptionRevoked is the last message a client receives before the hub
// closes a ride subscription it is no longer entitled to.
type SubscriptionRevoked struct {
	RideID string `json:"rideId"`
	Reason string `json:"reason"`
}
