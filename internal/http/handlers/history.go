package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/trialworks/ars-backend/internal/http/response"
	"github.com/trialworks/ars-backend/internal/services"
)

type HistoryHandler struct {
	history  services.HistoryTracker
	branches services.BranchManager
}

func NewHistoryHandler(history services.HistoryTracker, branches services.BranchManager) *HistoryHandler {
	return &HistoryHandler{history: history, branches: branches}
}

// GET /api/reporting-events/:id/change-history
//
// Filters: ?branch= ?action=a,b ?actor= ?from= ?to= (RFC 3339) ?limit= ?offset=
func (h *HistoryHandler) ChangeHistory(c *gin.Context) {
	documentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_document_id", err)
		return
	}

	q := services.HistoryQuery{
		DocumentID: documentID,
		Actor:      c.Query("actor"),
		Limit:      queryInt(c, "limit", 100),
		Offset:     queryInt(c, "offset", 0),
	}
	if raw := c.Query("action"); raw != "" {
		for _, a := range strings.Split(raw, ",") {
			if a = strings.TrimSpace(a); a != "" {
				q.Actions = append(q.Actions, a)
			}
		}
	}
	if name := c.Query("branch"); name != "" {
		branch, err := h.branches.GetBranch(c.Request.Context(), documentID, name)
		if err != nil {
			response.RespondDomainError(c, err)
			return
		}
		q.BranchID = &branch.ID
	}
	if from, ok := queryTime(c, "from"); ok {
		q.From = &from
	} else if c.Query("from") != "" {
		response.RespondError(c, http.StatusBadRequest, "invalid_from_time", nil)
		return
	}
	if to, ok := queryTime(c, "to"); ok {
		q.To = &to
	} else if c.Query("to") != "" {
		response.RespondError(c, http.StatusBadRequest, "invalid_to_time", nil)
		return
	}

	rows, err := h.history.GetChangeHistory(c.Request.Context(), q)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"changes": rows})
}

// GET /api/users/:actor/activity?since=&limit=
func (h *HistoryHandler) UserActivity(c *gin.Context) {
	actor := strings.TrimSpace(c.Param("actor"))
	if actor == "" {
		response.RespondError(c, http.StatusBadRequest, "invalid_actor", nil)
		return
	}
	var since time.Time
	if s, ok := queryTime(c, "since"); ok {
		since = s
	} else if c.Query("since") != "" {
		response.RespondError(c, http.StatusBadRequest, "invalid_since_time", nil)
		return
	}
	summary, err := h.history.GetUserActivity(c.Request.Context(), actor, since, queryInt(c, "limit", 50))
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, summary)
}

func queryTime(c *gin.Context, key string) (time.Time, bool) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
