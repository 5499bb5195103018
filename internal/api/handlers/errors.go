package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/limoline/dispatch/internal/domain/entities"
	"github.com/limoline/dispatch/internal/logging"
	"github.com/limoline/dispatch/internal/services"
)

// respondError maps a service error to its HTTP status and writes
// {"error": ...}. Unknown errors are logged and reported as 500 without
// their text.
//
// Go Learning Note — errors.Is / errors.As:
// Services wrap errors with fmt.Errorf("...: %w", err). A plain `==` would
// miss a wrapped sentinel; errors.Is walks the chain. errors.As does the
// same for typed errors and fills in the target so its fields can be read.
func respondError(c *gin.Context, err error) {
	var transition *entities.InvalidTransitionError
	switch {
	case errors.As(err, &transition):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":         transition.Error(),
			"currentStatus": transition.From,
			"requested":     transition.To,
			"allowed":       transition.From.AllowedTransitions(),
		})

	case errors.Is(err, services.ErrRideNotFound),
		errors.Is(err, services.ErrBookingNotFound),
		errors.Is(err, services.ErrDriverNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})

	case errors.Is(err, services.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})

	case errors.Is(err, services.ErrInactiveRide),
		errors.Is(err, services.ErrDriverInactive),
		errors.Is(err, services.ErrNoShowNotAllowed):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

	case errors.Is(err, services.ErrRateLimited):
		c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(locationInterval(c))))
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})

	case errors.Is(err, services.ErrDriverExists),
		errors.Is(err, services.ErrBookingClosed),
		errors.Is(err, services.ErrBookingNotPending),
		errors.Is(err, services.ErrDriverReassignment):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})

	default:
		_ = c.Error(err)
		logging.Ctx(c.Request.Context()).Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

// badRequest reports a binding or validation failure.
func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": describeValidation(err)})
}

const locationIntervalKey = "location_min_interval"

func locationInterval(c *gin.Context) time.Duration {
	if v, ok := c.Get(locationIntervalKey); ok {
		if d, ok := v.(time.Duration); ok {
			return d
		}
	}
	return 0
}

func retryAfterSeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}
