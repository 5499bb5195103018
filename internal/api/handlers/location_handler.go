package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/limoline/dispatch/internal/api/middleware"
	"github.com/limoline/dispatch/internal/services"
)

// LocationHandler serves location writes from drivers and location reads for
// every role.
type LocationHandler struct {
	lifecycle   *services.RideLifecycleService
	locations   *services.LocationService
	minInterval time.Duration
}

// NewLocationHandler creates a LocationHandler. minInterval is the location
// store's per-ride rate limit, reported back as Retry-After.
func NewLocationHandler(lifecycle *services.RideLifecycleService, locations *services.LocationService, minInterval time.Duration) *LocationHandler {
	return &LocationHandler{lifecycle: lifecycle, locations: locations, minInterval: minInterval}
}

// SubmitLocationRequest is a driver's GPS report. Coordinates are pointers so
// that 0 is accepted while a missing value is not.
type SubmitLocationRequest struct {
	RideID    string   `json:"rideId" binding:"required"`
	Latitude  *float64 `json:"latitude" binding:"required,latitude"`
	Longitude *float64 `json:"longitude" binding:"required,longitude"`
	Heading   *float64 `json:"heading"`
	Speed     *float64 `json:"speed"`
	Accuracy  *float64 `json:"accuracy"`
}

// SubmitLocation handles POST /driver/location/update.
//
// 200 with the stored sample; 400 when the ride is not OnRoute, Arrived or
// PassengerOnboard; 404 when the ride does not exist or is not assigned to the
// caller; 429 when the ride was updated too recently.
func (h *LocationHandler) SubmitLocation(c *gin.Context) {
	var req SubmitLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	caller := middleware.GetCaller(c)
	sample, err := h.lifecycle.SubmitLocationUpdate(c.Request.Context(), req.RideID, caller.ID, services.LocationInput{
		Latitude:  *req.Latitude,
		Longitude: *req.Longitude,
		Heading:   req.Heading,
		Speed:     req.Speed,
		Accuracy:  req.Accuracy,
	})
	if err != nil {
		c.Set(locationIntervalKey, h.minInterval)
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "location": sample})
}

// GetRideLocation handles the three role-scoped reads:
//
//	GET /driver/location/:rideId
//	GET /passenger/rides/:id/location
//	GET /admin/rides/:id/location
//
// Visibility is decided by the service, so one handler serves all of them.
func (h *LocationHandler) GetRideLocation(param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		view, err := h.locations.GetRideLocation(c.Request.Context(), middleware.GetCaller(c), c.Param(param))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, view)
	}
}

// ListActiveLocations handles GET /admin/locations for the dispatch map.
// Optional query: rideIds (comma separated) and geohash (cell prefix).
func (h *LocationHandler) ListActiveLocations(c *gin.Context) {
	var rideIDs []string
	for _, id := range strings.Split(c.Query("rideIds"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			rideIDs = append(rideIDs, id)
		}
	}
	geohash := strings.ToLower(strings.TrimSpace(c.Query("geohash")))

	samples := h.locations.ListActiveLocations(c.Request.Context(), rideIDs, geohash)
	c.JSON(http.StatusOK, gin.H{"locations": samples, "count": len(samples)})
}
