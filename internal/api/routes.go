package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/limoline/dispatch/internal/api/handlers"
	"github.com/limoline/dispatch/internal/api/middleware"
)

// Handlers bundles every HTTP handler the router mounts.
type Handlers struct {
	Ride      *handlers.RideHandler
	Booking   *handlers.BookingHandler
	Driver    *handlers.DriverHandler
	Location  *handlers.LocationHandler
	WebSocket *handlers.WebSocketHandler
	Audit     *handlers.AuditHandler
	Health    *handlers.HealthHandler
}

type Router struct {
	h       Handlers
	tokens  middleware.TokenAuthenticator
	authz   middleware.RouteAuthorizer
	limiter *middleware.RateLimiter
}

// NewRouter creates a Router. limiter may be nil to disable the per-caller
// API rate limit.
func NewRouter(h Handlers, tokens middleware.TokenAuthenticator, authz middleware.RouteAuthorizer, limiter *middleware.RateLimiter) *Router {
	return &Router{h: h, tokens: tokens, authz: authz, limiter: limiter}
}

// Setup mounts every route on engine.
//
// Role checks are not attached per group: Authorize consults the casbin
// policy with the request path, so /driver/* is reachable by drivers only,
// /admin/* by staff only and so on.
func (r *Router) Setup(engine *gin.Engine) {
	engine.Use(middleware.RequestID(), middleware.AccessLog(), middleware.Recovery(), middleware.Metrics())

	engine.GET("/health", r.h.Health.Health)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})

	protected := engine.Group("/")
	protected.Use(middleware.Authenticate(r.tokens), middleware.Authorize(r.authz))
	if r.limiter != nil {
		protected.Use(r.limiter.Middleware())
	}
	{
		// Driver endpoints
		driver := protected.Group("/driver")
		{
			driver.GET("/rides", r.h.Ride.ListMyRides)
			driver.GET("/rides/:id", r.h.Ride.GetMyRide)
			driver.POST("/rides/:id/status", r.h.Ride.UpdateRideStatus)
			driver.POST("/location/update", r.h.Location.SubmitLocation)
			driver.GET("/location/:rideId", r.h.Location.GetRideLocation("rideId"))
		}

		// Passenger endpoints
		passenger := protected.Group("/passenger")
		{
			passenger.POST("/bookings", r.h.Booking.CreateBooking)
			passenger.GET("/bookings/:id", r.h.Booking.GetBooking)
			passenger.GET("/rides/:id/location", r.h.Location.GetRideLocation("id"))
		}

		// Back-office endpoints
		admin := protected.Group("/admin")
		{
			admin.GET("/bookings", r.h.Booking.ListBookings)
			admin.POST("/bookings", r.h.Booking.CreateBooking)
			admin.GET("/bookings/:id", r.h.Booking.GetBooking)
			admin.POST("/bookings/:id/confirm", r.h.Booking.ConfirmBooking)
			admin.POST("/bookings/:id/assign", r.h.Booking.AssignDriver)
			admin.POST("/bookings/:id/cancel", r.h.Booking.CancelBooking)
			admin.POST("/bookings/:id/no-show", r.h.Booking.MarkNoShow)

			admin.GET("/drivers", r.h.Driver.ListDrivers)
			admin.POST("/drivers", r.h.Driver.CreateDriver)

			admin.GET("/rides/:id/location", r.h.Location.GetRideLocation("id"))
			admin.GET("/locations", r.h.Location.ListActiveLocations)
			admin.GET("/audit", r.h.Audit.ListEvents)
		}

		// Realtime subscriptions
		ws := protected.Group("/ws")
		{
			ws.GET("/rides/:id", r.h.WebSocket.RideStream)
			ws.GET("/dashboard", r.h.WebSocket.DashboardStream)
		}
	}
}
