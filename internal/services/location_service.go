package services

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/limoline/dispatch/internal/domain/entities"
	"github.com/limoline/dispatch/internal/repository"
	"github.com/limoline/dispatch/pkg/utils"
)

// LocationReader is the read side of the location store. *tracking.Store
// satisfies it.
type LocationReader interface {
	GetLatestLocation(rideID string) (entities.LocationSample, bool)
	GetLocations(rideIDs []string) []entities.LocationSample
	GetAllActiveLocations() []entities.LocationSample
}

// LocationView is the answer to "where is this ride". Tracking is false when
// no live sample exists, which is a normal state rather than an error.
type LocationView struct {
	RideID     string                   `json:"rideId"`
	Tracking   bool                     `json:"tracking"`
	RideStatus *entities.RideStatus     `json:"rideStatus,omitempty"`
	Location   *entities.LocationSample `json:"location,omitempty"`
	Message    string                   `json:"message,omitempty"`

	// Set while the driver is OnRoute and the pickup has coordinates.
	PickupDistanceKm *float64 `json:"pickupDistanceKm,omitempty"`
	PickupETAMinutes *int     `json:"pickupEtaMinutes,omitempty"`
}

// LocationService answers location reads for drivers, passengers and staff.
type LocationService struct {
	bookings  repository.BookingRepository
	locations LocationReader
}

// NewLocationService creates a LocationService.
func NewLocationService(bookings repository.BookingRepository, locations LocationReader) *LocationService {
	return &LocationService{bookings: bookings, locations: locations}
}

// GetRideLocation returns the latest position for rideID if caller may view
// the booking; otherwise ErrRideNotFound.
func (s *LocationService) GetRideLocation(ctx context.Context, caller entities.Caller, rideID string) (*LocationView, error) {
	booking, err := s.bookings.GetByID(ctx, rideID)
	if err != nil {
		return nil, mapNotFound(err, ErrRideNotFound)
	}
	if !caller.CanView(booking) {
		return nil, ErrRideNotFound
	}

	view := &LocationView{RideID: rideID, RideStatus: booking.RideStatus}
	sample, ok := s.locations.GetLatestLocation(rideID)
	if !ok {
		view.Message = trackingMessage(booking)
		return view, nil
	}
	view.Tracking = true
	view.Location = &sample
	if booking.EffectiveRideStatus() == entities.RideStatusOnRoute {
		view.PickupDistanceKm, view.PickupETAMinutes = approach(sample, booking.Pickup)
	}
	return view, nil
}

// approach estimates distance and drive time from sample to pickup.
func approach(sample entities.LocationSample, pickup entities.Place) (*float64, *int) {
	if pickup.Latitude == nil || pickup.Longitude == nil {
		return nil, nil
	}
	km := utils.HaversineDistance(sample.Latitude, sample.Longitude, *pickup.Latitude, *pickup.Longitude)
	km = math.Round(km*10) / 10
	eta := utils.EstimateDriveMinutes(km)
	return &km, &eta
}

// ListActiveLocations returns live samples for the dashboard. With rideIDs
// only those rides are returned; with geohashPrefix only samples inside that
// cell. Results are ordered by ride id.
func (s *LocationService) ListActiveLocations(_ context.Context, rideIDs []string, geohashPrefix string) []entities.LocationSample {
	var samples []entities.LocationSample
	if len(rideIDs) > 0 {
		samples = s.locations.GetLocations(rideIDs)
	} else {
		samples = s.locations.GetAllActiveLocations()
	}

	if geohashPrefix != "" {
		filtered := samples[:0]
		for _, sample := range samples {
			if strings.HasPrefix(sample.Geohash, geohashPrefix) {
				filtered = append(filtered, sample)
			}
		}
		samples = filtered
	}

	sort.Slice(samples, func(i, j int) bool { return samples[i].RideID < samples[j].RideID })
	if samples == nil {
		samples = []entities.LocationSample{}
	}
	return samples
}

func trackingMessage(b *entities.Booking) string {
	switch {
	case b.RideStatus == nil:
		return "No driver has been assigned yet"
	case b.RideStatus.IsTerminal():
		return "Tracking has ended for this ride"
	case b.RideStatus.IsActive():
		return "Waiting for the driver's next location update"
	default:
		return "Tracking starts when the driver is on the way"
	}
}
