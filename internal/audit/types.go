// Package audit records who did what to which booking.
//
// Services call Logger.Log, which never blocks: events are queued and written
// to a Store by the logger's Serve loop. When the queue is full the event is
// dropped with a warning; an audit hiccup never fails a booking operation.
package audit

import (
	"context"
	"time"
)

// EventType categorizes an audit event.
type EventType string

const (
	EventBookingCreated        EventType = "booking.created"
	EventBookingConfirmed      EventType = "booking.confirmed"
	EventBookingDriverAssigned EventType = "booking.driver_assigned"
	EventBookingCancelled      EventType = "booking.cancelled"
	EventBookingNoShow         EventType = "booking.no_show"
	EventDriverCreated         EventType = "driver.created"
	EventRideStatusChanged     EventType = "ride.status_changed"
	EventRideTransitionDenied  EventType = "ride.transition_rejected"
	EventRideAccessDenied      EventType = "ride.access_denied"
)

// Outcome indicates whether the audited action went through.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Actor is the authenticated caller behind an event.
type Actor struct {
	ID   string `json:"id"`
	Role string `json:"role,omitempty"`
}

// Event is one audit record.
type Event struct {
	ID        string            `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	Type      EventType         `json:"type"`
	Outcome   Outcome           `json:"outcome"`
	Actor     Actor             `json:"actor"`
	BookingID string            `json:"bookingId,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
	RequestID string            `json:"requestId,omitempty"`
}

// QueryFilter narrows Store.Query. Zero values match everything; results
// are newest first.
type QueryFilter struct {
	BookingID string
	Type      EventType
	ActorID   string
	Limit     int
}

// Matches reports whether e satisfies f.
func (f QueryFilter) Matches(e *Event) bool {
	if f.BookingID != "" && e.BookingID != f.BookingID {
		return false
	}
	if f.Type != "" && e.Type != f.Type {
		return false
	}
	if f.ActorID != "" && e.Actor.ID != f.ActorID {
		return false
	}
	return true
}

// Store persists audit events.
type Store interface {
	Save(ctx context.Context, event *Event) error
	Query(ctx context.Context, filter QueryFilter) ([]Event, error)
}

// DefaultQueryLimit caps Query when the filter sets no limit.
const DefaultQueryLimit = 100
