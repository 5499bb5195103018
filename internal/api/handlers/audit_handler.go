package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/limoline/dispatch/internal/audit"
)

// AuditQuerier reads the audit trail. *audit.Logger satisfies it.
type AuditQuerier interface {
	Query(ctx context.Context, filter audit.QueryFilter) ([]audit.Event, error)
}

type AuditHandler struct {
	audit AuditQuerier
}

func NewAuditHandler(q AuditQuerier) *AuditHandler {
	return &AuditHandler{audit: q}
}

// ListEvents handles GET /admin/audit?rideId=&type=&actorId=&limit=.
// Newest first.
func (h *AuditHandler) ListEvents(c *gin.Context) {
	filter := audit.QueryFilter{
		BookingID: c.Query("rideId"),
		Type:      audit.EventType(c.Query("type")),
		ActorID:   c.Query("actorId"),
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > maxListLimit {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and " + strconv.Itoa(maxListLimit)})
			return
		}
		filter.Limit = limit
	}

	events, err := h.audit.Query(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": nonNil(events), "count": len(events)})
}
