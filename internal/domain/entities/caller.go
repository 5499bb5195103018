package entities

import "strings"

// Role is the coarse permission group of an authenticated user.
type Role string

const (
	RoleStaff     Role = "staff"
	RoleDriver    Role = "driver"
	RolePassenger Role = "passenger"
)

// ParseRole converts a token claim into a Role.
func ParseRole(s string) (Role, bool) {
	switch Role(strings.ToLower(s)) {
	case RoleStaff:
		return RoleStaff, true
	case RoleDriver:
		return RoleDriver, true
	case RolePassenger:
		return RolePassenger, true
	}
	return "", false
}

// Caller is the identity behind a request. For drivers ID is the stable
// identifier compared against a booking's DriverAssignment.StableID.
type Caller struct {
	ID    string `json:"id"`
	Role  Role   `json:"role"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// IsStaff reports whether the caller has unrestricted back-office access.
func (c Caller) IsStaff() bool { return c.Role == RoleStaff }

// CanView reports whether the caller may see booking b: staff always, the
// assigned driver, the creator, or a passenger/booker matched by email.
func (c Caller) CanView(b *Booking) bool {
	switch {
	case c.IsStaff():
		return true
	case c.Role == RoleDriver:
		return b.IsAssignedTo(c.ID)
	default:
		return (c.ID != "" && b.CreatedBy == c.ID) || b.HasContact(c.Email)
	}
}
