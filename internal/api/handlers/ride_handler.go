package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/limoline/dispatch/internal/api/middleware"
	"github.com/limoline/dispatch/internal/domain/entities"
	"github.com/limoline/dispatch/internal/services"
)

// RideHandler groups the driver-facing ride endpoints. Drivers use these to
// see their assignments and to move a ride through its lifecycle.
type RideHandler struct {
	lifecycle *services.RideLifecycleService
	bookings  *services.BookingService
}

func NewRideHandler(lifecycle *services.RideLifecycleService, bookings *services.BookingService) *RideHandler {
	return &RideHandler{lifecycle: lifecycle, bookings: bookings}
}

// UpdateRideStatusRequest is the JSON body for a status change. The status
// must be spelled exactly as the lifecycle names it (e.g. "OnRoute").
type UpdateRideStatusRequest struct {
	NewStatus string `json:"newStatus" binding:"required,ride_status"`
}

// UpdateRideStatus handles POST /driver/rides/:id/status.
//
// 200 {rideId, newStatus, bookingStatus, timestamp}; 400 for an invalid
// transition (naming both statuses); 403 when the caller is not the assigned
// driver; 404 for an unknown ride.
func (h *RideHandler) UpdateRideStatus(c *gin.Context) {
	var req UpdateRideStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	status, _ := entities.ParseRideStatus(req.NewStatus)

	caller := middleware.GetCaller(c)
	result, err := h.lifecycle.UpdateRideStatus(c.Request.Context(), c.Param("id"), caller.ID, status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ListMyRides handles GET /driver/rides. Open rides come first.
func (h *RideHandler) ListMyRides(c *gin.Context) {
	rides, err := h.bookings.ListDriverRides(c.Request.Context(), middleware.GetCaller(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rides": nonNil(rides), "count": len(rides)})
}

// GetMyRide handles GET /driver/rides/:id for the assigned driver.
func (h *RideHandler) GetMyRide(c *gin.Context) {
	booking, err := h.bookings.GetBooking(c.Request.Context(), middleware.GetCaller(c), c.Param("id"))
	if errors.Is(err, services.ErrBookingNotFound) {
		err = services.ErrRideNotFound
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, booking)
}

// nonNil makes empty lists encode as [] rather than null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
