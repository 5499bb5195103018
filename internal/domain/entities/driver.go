// Package entities defines the core domain models for the dispatch back
// office: bookings, drivers, ride statuses and location samples. They have
// no dependencies on storage, HTTP or the realtime transport.
package entities

import "time"

// DriverStatus is a typed string enum representing whether a driver can be
// given new work.
type DriverStatus string

const (
	DriverStatusActive   DriverStatus = "active"
	DriverStatusInactive DriverStatus = "inactive"
)

// Driver is a chauffeur registered with the back office.
//
// UserID is the stable identifier issued by the identity provider; it is
// what an authenticated driver session carries and what bookings store as
// the assignment's StableID.
type Driver struct {
	ID        string       `json:"id"`
	UserID    string       `json:"userId"`
	Name      string       `json:"name"`
	Phone     string       `json:"phone,omitempty"`
	Status    DriverStatus `json:"status"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

// NewDriver creates an active Driver.
func NewDriver(id, userID, name, phone string) *Driver {
	now := time.Now().UTC()
	return &Driver{
		ID:        id,
		UserID:    userID,
		Name:      name,
		Phone:     phone,
		Status:    DriverStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsActive checks whether the driver can be assigned to bookings.
func (d *Driver) IsActive() bool {
	return d.Status == DriverStatusActive
}

// Assignment builds the booking-side view of this driver.
func (d *Driver) Assignment() DriverAssignment {
	return DriverAssignment{
		DriverID: d.ID,
		StableID: d.UserID,
		Name:     d.Name,
	}
}
