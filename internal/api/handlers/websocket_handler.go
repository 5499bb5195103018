package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/limoline/dispatch/internal/api/middleware"
	"github.com/limoline/dispatch/internal/logging"
	"github.com/limoline/dispatch/internal/realtime"
	"github.com/limoline/dispatch/internal/services"
)

// WebSocketHandler upgrades connections and registers them with the hub.
type WebSocketHandler struct {
	hub            *realtime.Hub
	bookings       *services.BookingService
	allowedOrigins []string
	clientBuffer   int
	upgrader       websocket.Upgrader
}

// NewWebSocketHandler creates a WebSocketHandler. allowedOrigins may contain
// "*" to accept any browser origin.
func NewWebSocketHandler(hub *realtime.Hub, bookings *services.BookingService, allowedOrigins []string, clientBuffer int) *WebSocketHandler {
	h := &WebSocketHandler{
		hub:            hub,
		bookings:       bookings,
		allowedOrigins: allowedOrigins,
		clientBuffer:   clientBuffer,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin:      h.checkOrigin,
	}
	return h
}

// checkOrigin accepts listed browser origins. Native driver and passenger
// apps send no Origin header and are accepted; they authenticate with a
// token like any other client.
func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	logging.Warn().Str("origin", origin).Msg("websocket connection rejected from unlisted origin")
	return false
}

// RideStream handles GET /ws/rides/:id. The caller must be able to see the
// booking; anyone else gets 404 before the upgrade.
func (h *WebSocketHandler) RideStream(c *gin.Context) {
	caller := middleware.GetCaller(c)
	rideID := c.Param("id")

	if _, err := h.bookings.GetBooking(c.Request.Context(), caller, rideID); err != nil {
		if errors.Is(err, services.ErrBookingNotFound) {
			err = services.ErrRideNotFound
		}
		respondError(c, err)
		return
	}
	// Checked again once registered: a reassignment that lands between the
	// first check and Register would otherwise miss this client.
	stillVisible := func() bool {
		_, err := h.bookings.GetBooking(c.Request.Context(), caller, rideID)
		return err == nil
	}
	h.serve(c, realtime.Scope{RideID: rideID}, stillVisible)
}

// DashboardStream handles GET /ws/dashboard: every ride event, staff only.
func (h *WebSocketHandler) DashboardStream(c *gin.Context) {
	h.serve(c, realtime.Scope{Dashboard: true}, nil)
}

func (h *WebSocketHandler) serve(c *gin.Context, scope realtime.Scope, recheck func() bool) {
	caller := middleware.GetCaller(c)

	// Upgrade writes its own error response.
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Ctx(c.Request.Context()).Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := realtime.NewClient(h.hub, conn, caller.ID, scope, h.clientBuffer)
	if err := h.hub.Register(c.Request.Context(), client); err != nil {
		logging.Ctx(c.Request.Context()).Warn().Err(err).Msg("websocket hub refused client")
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "server shutting down"),
			time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}
	if recheck != nil && !recheck() {
		h.hub.Unregister(client)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "ride no longer available"),
			time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}
	client.Start()

	logging.Ctx(c.Request.Context()).Info().
		Str("client_id", client.ID()).
		Str("caller_id", caller.ID).
		Str("ride_id", scope.RideID).
		Bool("dashboard", scope.Dashboard).
		Msg("websocket client connected")
}
