package entities

import "time"

// LocationSample is the most recent GPS fix reported by a driver for a ride.
// Samples are ephemeral: they live only in the location store and are never
// written to durable storage.
//
// Go Learning Note — Optional Numeric Fields:
// Heading, speed and accuracy are pointers so that "not reported" (nil) can
// be told apart from a genuine 0 (due north, stationary). With `omitempty`
// the nil pointers disappear from the JSON output entirely.
type LocationSample struct {
	RideID     string    `json:"rideId"`
	DriverID   string    `json:"driverId"`
	DriverName string    `json:"driverName,omitempty"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Heading    *float64  `json:"heading,omitempty"`
	Speed      *float64  `json:"speed,omitempty"`
	Accuracy   *float64  `json:"accuracy,omitempty"`
	Geohash    string    `json:"geohash,omitempty"`
	CapturedAt time.Time `json:"capturedAt"`
}

// NewLocationSample creates a sample captured now.
func NewLocationSample(rideID, driverID string, lat, lon float64) LocationSample {
	return LocationSample{
		RideID:     rideID,
		DriverID:   driverID,
		Latitude:   lat,
		Longitude:  lon,
		CapturedAt: time.Now().UTC(),
	}
}
