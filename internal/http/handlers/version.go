package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/trialworks/ars-backend/internal/http/response"
	"github.com/trialworks/ars-backend/internal/pkg/ctxutil"
	"github.com/trialworks/ars-backend/internal/services"
)

type VersionHandler struct {
	versions services.VersionManager
	history  services.HistoryTracker
}

func NewVersionHandler(versions services.VersionManager, history services.HistoryTracker) *VersionHandler {
	return &VersionHandler{versions: versions, history: history}
}

type createVersionRequest struct {
	Branch      string `json:"branch"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Tag         string `json:"tag"`
}

// POST /api/reporting-events/:id/versions
func (h *VersionHandler) Create(c *gin.Context) {
	documentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_document_id", err)
		return
	}
	var req createVersionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	v, err := h.versions.CreateVersion(c.Request.Context(), services.CreateVersionInput{
		DocumentID:  documentID,
		Branch:      req.Branch,
		Name:        req.Name,
		Description: req.Description,
		Tag:         req.Tag,
		Actor:       ctxutil.Actor(c.Request.Context()),
	})
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"version": v})
}

// GET /api/reporting-events/:id/versions
func (h *VersionHandler) List(c *gin.Context) {
	documentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_document_id", err)
		return
	}
	if tag := c.Query("tag"); tag != "" {
		rows, err := h.versions.ListVersionsByTag(c.Request.Context(), documentID, tag)
		if err != nil {
			response.RespondDomainError(c, err)
			return
		}
		response.RespondOK(c, gin.H{"versions": rows})
		return
	}
	rows, err := h.versions.ListVersions(
		c.Request.Context(),
		documentID,
		c.Query("branch"),
		queryInt(c, "limit", 50),
		queryInt(c, "offset", 0),
	)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"versions": rows})
}

// GET /api/versions/:id
func (h *VersionHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_version_id", err)
		return
	}
	v, err := h.versions.GetVersion(c.Request.Context(), id)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"version": v})
}

// GET /api/versions/compare?from=&to=
func (h *VersionHandler) Compare(c *gin.Context) {
	fromID, err := uuid.Parse(c.Query("from"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_from_version", err)
		return
	}
	toID, err := uuid.Parse(c.Query("to"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_to_version", err)
		return
	}
	cmp, err := h.versions.CompareVersions(c.Request.Context(), fromID, toID)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, cmp)
}

type restoreRequest struct {
	Backup *bool `json:"backup"`
}

// POST /api/versions/:id/restore
//
// The pre-restore state is snapshotted unless the caller opts out with
// {"backup": false}.
func (h *VersionHandler) Restore(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_version_id", err)
		return
	}
	var req restoreRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
			return
		}
	}
	backup := true
	if req.Backup != nil {
		backup = *req.Backup
	}
	v, err := h.versions.RestoreVersion(c.Request.Context(), id, backup, ctxutil.Actor(c.Request.Context()))
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"version": v, "backup": backup})
}

// GET /api/versions/:id/lineage?depth=
func (h *VersionHandler) Lineage(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_version_id", err)
		return
	}
	lineage, err := h.history.GetVersionLineage(c.Request.Context(), id, queryInt(c, "depth", 0))
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, lineage)
}

// GET /api/versions/:id/history
func (h *VersionHandler) History(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_version_id", err)
		return
	}
	entries, err := h.history.GetVersionHistory(c.Request.Context(), id)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"entries": entries, "count": len(entries)})
}

type tagRequest struct {
	Tag string `json:"tag"`
}

// POST /api/versions/:id/tag
func (h *VersionHandler) Tag(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_version_id", err)
		return
	}
	var req tagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	v, err := h.versions.TagVersion(c.Request.Context(), id, req.Tag)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"version": v})
}

// GET /api/reporting-events/:id/field-history?path=&branch=
func (h *VersionHandler) FieldHistory(c *gin.Context) {
	documentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_document_id", err)
		return
	}
	snapshots, err := h.versions.FieldHistory(c.Request.Context(), documentID, c.Query("branch"), c.Query("path"))
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"path": c.Query("path"), "history": snapshots})
}
