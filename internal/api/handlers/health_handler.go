package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthSources are the runtime components the health endpoint reports on.
// Any of them may be nil.
type HealthSources struct {
	Storage   string
	Clients   interface{ ClientCount() int }
	Locations interface{ Len() int }
	Breaker   interface{ State() string }
}

type HealthHandler struct {
	src     HealthSources
	started time.Time
}

func NewHealthHandler(src HealthSources) *HealthHandler {
	return &HealthHandler{src: src, started: time.Now()}
}

// Health handles GET /health. The service reports "degraded" while the
// event bus breaker is open: requests still succeed but realtime pushes are
// being dropped.
func (h *HealthHandler) Health(c *gin.Context) {
	body := gin.H{
		"status":  "ok",
		"storage": h.src.Storage,
		"uptime":  time.Since(h.started).Round(time.Second).String(),
	}
	if h.src.Clients != nil {
		body["websocketClients"] = h.src.Clients.ClientCount()
	}
	if h.src.Locations != nil {
		body["trackedRides"] = h.src.Locations.Len()
	}
	if h.src.Breaker != nil {
		state := h.src.Breaker.State()
		body["eventBus"] = state
		if state == "open" {
			body["status"] = "degraded"
		}
	}
	c.JSON(http.StatusOK, body)
}
