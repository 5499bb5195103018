// Package utils provides small helpers shared by the service and API layers:
// identifier generation and geohash encoding for location samples.
//
// Go Learning Note — "pkg/" Directory Convention:
// Code under pkg/ is intended to be importable by external projects (unlike
// internal/ which is compiler-enforced private). Nothing here depends on the
// rest of the module.
package utils

import (
	"strings"

	"github.com/google/uuid"
)

// GenerateID creates a new UUID v4 string for use as an entity identifier.
// Bookings, drivers and audit events all use it.
func GenerateID() string {
	return uuid.New().String()
}

// ShortReference returns the first eight hex digits of a UUID, uppercased.
// It is what dispatchers read out over the phone ("booking 3F2A91C0").
func ShortReference(id string) string {
	compact := strings.ReplaceAll(id, "-", "")
	if len(compact) > 8 {
		compact = compact[:8]
	}
	return strings.ToUpper(compact)
}
