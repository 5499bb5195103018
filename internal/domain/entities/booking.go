package entities

import (
	"strings"
	"time"
)

// BookingStatus is the coarse-grained, public-facing stage of a booking.
type BookingStatus string

const (
	BookingStatusRequested  BookingStatus = "Requested"
	BookingStatusConfirmed  BookingStatus = "Confirmed"
	BookingStatusScheduled  BookingStatus = "Scheduled"
	BookingStatusInProgress BookingStatus = "InProgress"
	BookingStatusCompleted  BookingStatus = "Completed"
	BookingStatusCancelled  BookingStatus = "Cancelled"
	BookingStatusNoShow     BookingStatus = "NoShow"
)

// IsClosed reports whether no further booking-level action is possible.
func (s BookingStatus) IsClosed() bool {
	switch s {
	case BookingStatusCompleted, BookingStatusCancelled, BookingStatusNoShow:
		return true
	}
	return false
}

// ParseBookingStatus converts a query string value into a BookingStatus.
func ParseBookingStatus(s string) (BookingStatus, bool) {
	switch BookingStatus(s) {
	case BookingStatusRequested, BookingStatusConfirmed, BookingStatusScheduled,
		BookingStatusInProgress, BookingStatusCompleted, BookingStatusCancelled,
		BookingStatusNoShow:
		return BookingStatus(s), true
	}
	return "", false
}

// Place describes a pickup or dropoff point. Coordinates are optional;
// dispatchers often only have an address.
type Place struct {
	Address   string   `json:"address"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// Contact identifies the passenger or the person who made the booking.
type Contact struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// DriverAssignment is the driver currently responsible for a booking.
// StableID is the identifier carried by the driver's authenticated session.
type DriverAssignment struct {
	DriverID string `json:"driverId"`
	StableID string `json:"stableId"`
	Name     string `json:"name"`
}

// Booking is the central back-office record. RideStatus stays nil until a
// driver is assigned.
//
// Go Learning Note — Pointer Fields for Optional Values:
// A *RideStatus distinguishes "not yet assigned" (nil) from any real status.
// With a plain RideStatus the zero value "" would have to double as a
// sentinel, which is easy to forget when comparing.
type Booking struct {
	ID          string            `json:"id"`
	Status      BookingStatus     `json:"status"`
	RideStatus  *RideStatus       `json:"rideStatus,omitempty"`
	Driver      *DriverAssignment `json:"driver,omitempty"`
	Pickup      Place             `json:"pickup"`
	Dropoff     Place             `json:"dropoff"`
	PickupAt    time.Time         `json:"pickupAt"`
	Passenger   Contact           `json:"passenger"`
	Booker      Contact           `json:"booker"`
	Notes       string            `json:"notes,omitempty"`
	CreatedBy   string            `json:"createdBy"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
	CompletedAt *time.Time        `json:"completedAt,omitempty"`
	CancelledAt *time.Time        `json:"cancelledAt,omitempty"`
}

// NewBooking creates a booking in the Requested state with no driver.
func NewBooking(id, createdBy string, pickup, dropoff Place, pickupAt time.Time, passenger, booker Contact) *Booking {
	now := time.Now().UTC()
	return &Booking{
		ID:        id,
		Status:    BookingStatusRequested,
		Pickup:    pickup,
		Dropoff:   dropoff,
		PickupAt:  pickupAt,
		Passenger: passenger,
		Booker:    booker,
		CreatedBy: createdBy,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// EffectiveRideStatus returns the ride status used for validation; an
// unassigned ride counts as Scheduled.
func (b *Booking) EffectiveRideStatus() RideStatus {
	if b.RideStatus == nil {
		return RideStatusScheduled
	}
	return *b.RideStatus
}

// IsAssignedTo reports whether stableID is the booking's assigned driver.
func (b *Booking) IsAssignedTo(stableID string) bool {
	return stableID != "" && b.Driver != nil && b.Driver.StableID == stableID
}

// HasContact reports whether email matches the passenger or the booker.
// Emails compare case-insensitively.
func (b *Booking) HasContact(email string) bool {
	if email == "" {
		return false
	}
	return strings.EqualFold(b.Passenger.Email, email) || strings.EqualFold(b.Booker.Email, email)
}

// DriverName returns the assigned driver's display name, or "".
func (b *Booking) DriverName() string {
	if b.Driver == nil {
		return ""
	}
	return b.Driver.Name
}

// DriverStableID returns the assigned driver's stable id, or "".
func (b *Booking) DriverStableID() string {
	if b.Driver == nil {
		return ""
	}
	return b.Driver.StableID
}

// ApplyRideStatus records a ride status together with its paired booking
// status. Callers are expected to have validated the transition.
func (b *Booking) ApplyRideStatus(ride RideStatus, booking BookingStatus, at time.Time) {
	b.RideStatus = &ride
	b.ApplyStatus(booking, at)
}

// ApplyStatus records a booking-level status change and its closing
// timestamp, if any.
func (b *Booking) ApplyStatus(status BookingStatus, at time.Time) {
	b.Status = status
	b.UpdatedAt = at
	switch status {
	case BookingStatusCompleted:
		b.CompletedAt = &at
	case BookingStatusCancelled, BookingStatusNoShow:
		b.CancelledAt = &at
	}
}

// Clone returns a deep copy so callers can hand bookings out of a store
// without sharing mutable state.
func (b *Booking) Clone() *Booking {
	if b == nil {
		return nil
	}
	out := *b
	if b.RideStatus != nil {
		rs := *b.RideStatus
		out.RideStatus = &rs
	}
	if b.Driver != nil {
		d := *b.Driver
		out.Driver = &d
	}
	if b.CompletedAt != nil {
		t := *b.CompletedAt
		out.CompletedAt = &t
	}
	if b.CancelledAt != nil {
		t := *b.CancelledAt
		out.CancelledAt = &t
	}
	out.Pickup = clonePlace(b.Pickup)
	out.Dropoff = clonePlace(b.Dropoff)
	return &out
}

func clonePlace(p Place) Place {
	out := p
	if p.Latitude != nil {
		v := *p.Latitude
		out.Latitude = &v
	}
	if p.Longitude != nil {
		v := *p.Longitude
		out.Longitude = &v
	}
	return out
}
