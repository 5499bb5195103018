package utils

import "math"

// EarthRadiusKm is the mean Earth radius used by HaversineDistance.
const EarthRadiusKm = 6371.0

// urbanSpeedKmH is the average chauffeur speed assumed for pickup estimates.
const urbanSpeedKmH = 30.0

// HaversineDistance returns the great-circle distance between two points in
// kilometers.
func HaversineDistance(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	deltaLat := (lat2 - lat1) * math.Pi / 180
	deltaLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusKm * c
}

// EstimateDriveMinutes is a straight-line travel estimate at city speed,
// rounded up to whole minutes. Anything closer than a minute reports 1.
func EstimateDriveMinutes(distanceKm float64) int {
	if distanceKm <= 0 {
		return 0
	}
	minutes := int(math.Ceil(distanceKm / urbanSpeedKmH * 60))
	if minutes < 1 {
		minutes = 1
	}
	return minutes
}
