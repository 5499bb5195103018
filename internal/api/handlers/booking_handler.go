package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/limoline/dispatch/internal/api/middleware"
	"github.com/limoline/dispatch/internal/domain/entities"
	"github.com/limoline/dispatch/internal/repository"
	"github.com/limoline/dispatch/internal/services"
)

const maxListLimit = 500

// BookingHandler serves booking creation and the back-office booking
// actions. Status changes that touch the ride go through the lifecycle
// service; the rest through the booking service.
type BookingHandler struct {
	bookings  *services.BookingService
	lifecycle *services.RideLifecycleService
}

func NewBookingHandler(bookings *services.BookingService, lifecycle *services.RideLifecycleService) *BookingHandler {
	return &BookingHandler{bookings: bookings, lifecycle: lifecycle}
}

// PlaceRequest is a pickup or dropoff point.
type PlaceRequest struct {
	Address   string   `json:"address" binding:"required"`
	Latitude  *float64 `json:"latitude" binding:"omitempty,latitude"`
	Longitude *float64 `json:"longitude" binding:"omitempty,longitude"`
}

func (p PlaceRequest) toPlace() entities.Place {
	return entities.Place{Address: p.Address, Latitude: p.Latitude, Longitude: p.Longitude}
}

// ContactRequest names a passenger or booker.
type ContactRequest struct {
	Name  string `json:"name"`
	Email string `json:"email" binding:"omitempty,email"`
	Phone string `json:"phone"`
}

func (r ContactRequest) toContact() entities.Contact {
	return entities.Contact{Name: r.Name, Email: r.Email, Phone: r.Phone}
}

// CreateBookingRequest is the JSON body for a new booking.
type CreateBookingRequest struct {
	Pickup    PlaceRequest   `json:"pickup"`
	Dropoff   PlaceRequest   `json:"dropoff"`
	PickupAt  time.Time      `json:"pickupAt" binding:"required"`
	Passenger ContactRequest `json:"passenger"`
	Booker    ContactRequest `json:"booker"`
	Notes     string         `json:"notes" binding:"max=2000"`
}

// CreateBooking handles POST /passenger/bookings and POST /admin/bookings.
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	var req CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	booking, err := h.bookings.CreateBooking(c.Request.Context(), middleware.GetCaller(c), services.CreateBookingInput{
		Pickup:    req.Pickup.toPlace(),
		Dropoff:   req.Dropoff.toPlace(),
		PickupAt:  req.PickupAt,
		Passenger: req.Passenger.toContact(),
		Booker:    req.Booker.toContact(),
		Notes:     req.Notes,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, booking)
}

// GetBooking handles GET /passenger/bookings/:id and GET /admin/bookings/:id.
func (h *BookingHandler) GetBooking(c *gin.Context) {
	booking, err := h.bookings.GetBooking(c.Request.Context(), middleware.GetCaller(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, booking)
}

// ListBookings handles GET /admin/bookings?status=&driverId=&limit=.
func (h *BookingHandler) ListBookings(c *gin.Context) {
	filter := repository.BookingFilter{DriverStableID: c.Query("driverId")}

	if raw := c.Query("status"); raw != "" {
		status, ok := entities.ParseBookingStatus(raw)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown booking status " + strconv.Quote(raw)})
			return
		}
		filter.Status = status
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > maxListLimit {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and " + strconv.Itoa(maxListLimit)})
			return
		}
		filter.Limit = limit
	}

	bookings, err := h.bookings.ListBookings(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookings": nonNil(bookings), "count": len(bookings)})
}

// ConfirmBooking handles POST /admin/bookings/:id/confirm.
func (h *BookingHandler) ConfirmBooking(c *gin.Context) {
	booking, err := h.bookings.ConfirmBooking(c.Request.Context(), middleware.GetCaller(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, booking)
}

// AssignDriverRequest names the driver record to put on a booking.
type AssignDriverRequest struct {
	DriverID string `json:"driverId" binding:"required"`
}

// AssignDriver handles POST /admin/bookings/:id/assign. The ride status
// and the booking both become Scheduled.
func (h *BookingHandler) AssignDriver(c *gin.Context) {
	var req AssignDriverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	booking, err := h.lifecycle.AssignDriver(c.Request.Context(), middleware.GetCaller(c), c.Param("id"), req.DriverID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, booking)
}

// CancelBookingRequest carries an optional reason shown to subscribers.
type CancelBookingRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

// CancelBooking handles POST /admin/bookings/:id/cancel. The body is
// optional.
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	var req CancelBookingRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}
	booking, err := h.lifecycle.CancelBooking(c.Request.Context(), middleware.GetCaller(c), c.Param("id"), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, booking)
}

// MarkNoShow handles POST /admin/bookings/:id/no-show.
func (h *BookingHandler) MarkNoShow(c *gin.Context) {
	booking, err := h.lifecycle.MarkNoShow(c.Request.Context(), middleware.GetCaller(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, booking)
}
