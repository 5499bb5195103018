package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/limoline/dispatch/internal/api/middleware"
	"github.com/limoline/dispatch/internal/services"
)

// DriverHandler serves the staff-only driver registry.
type DriverHandler struct {
	bookings *services.BookingService
}

// NewDriverHandler creates a DriverHandler.
func NewDriverHandler(bookings *services.BookingService) *DriverHandler {
	return &DriverHandler{bookings: bookings}
}

// CreateDriverRequest registers a chauffeur. UserID is the subject of the
// driver's login token and is what ride ownership checks compare against.
type CreateDriverRequest struct {
	ID     string `json:"id" binding:"omitempty,max=64"`
	UserID string `json:"userId" binding:"required,max=128"`
	Name   string `json:"name" binding:"required,max=200"`
	Phone  string `json:"phone" binding:"omitempty,e164"`
}

// CreateDriver handles POST /admin/drivers. 409 when the id is taken.
func (h *DriverHandler) CreateDriver(c *gin.Context) {
	var req CreateDriverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	driver, err := h.bookings.CreateDriver(c.Request.Context(), middleware.GetCaller(c), services.CreateDriverInput{
		ID:     req.ID,
		UserID: req.UserID,
		Name:   req.Name,
		Phone:  req.Phone,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, driver)
}

// ListDrivers handles GET /admin/drivers.
func (h *DriverHandler) ListDrivers(c *gin.Context) {
	drivers, err := h.bookings.ListDrivers(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"drivers": nonNil(drivers), "count": len(drivers)})
}
