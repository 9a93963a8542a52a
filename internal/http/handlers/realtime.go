package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/trialworks/ars-backend/internal/http/response"
	"github.com/trialworks/ars-backend/internal/observability"
	"github.com/trialworks/ars-backend/internal/pkg/ctxutil"
	"github.com/trialworks/ars-backend/internal/pkg/logger"
	"github.com/trialworks/ars-backend/internal/realtime"
)

type RealtimeHandler struct {
	log *logger.Logger
	hub *realtime.SSEHub
}

func NewRealtimeHandler(log *logger.Logger, hub *realtime.SSEHub) *RealtimeHandler {
	return &RealtimeHandler{
		log: log.With("handler", "RealtimeHandler"),
		hub: hub,
	}
}

// GET /api/events/stream?document_id=
//
// Subscriptions are fixed at connect time: every document_id query value
// becomes a channel for the lifetime of the stream. Repeat the parameter to
// watch several reporting events over one connection.
func (h *RealtimeHandler) Stream(c *gin.Context) {
	raw := c.QueryArray("document_id")
	if len(raw) == 0 {
		response.RespondError(c, http.StatusBadRequest, "missing_document_id", nil)
		return
	}
	ids := make([]uuid.UUID, 0, len(raw))
	for _, r := range raw {
		id, err := uuid.Parse(r)
		if err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_document_id", err)
			return
		}
		ids = append(ids, id)
	}

	actor := ctxutil.Actor(c.Request.Context())
	client := h.hub.NewSSEClient(actor)
	for _, id := range ids {
		h.hub.AddChannel(client, realtime.DocumentChannel(id))
	}
	h.log.Info("SSE stream open", "clientID", client.ID, "actor", actor, "documents", len(ids))

	if metrics := observability.Current(); metrics != nil {
		metrics.SSEClientInc()
		defer metrics.SSEClientDec()
	}

	h.hub.ServeHTTP(c.Writer, c.Request, client)

	h.hub.CloseClient(client)
	h.log.Info("SSE stream closed", "clientID", client.ID)
}
