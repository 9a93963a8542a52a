package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/trialworks/ars-backend/internal/domain/versioning"
	"github.com/trialworks/ars-backend/internal/http/response"
	"github.com/trialworks/ars-backend/internal/pkg/ctxutil"
	"github.com/trialworks/ars-backend/internal/services"
)

type MergeRequestHandler struct {
	merges   services.MergeEngine
	versions services.VersionManager
}

func NewMergeRequestHandler(merges services.MergeEngine, versions services.VersionManager) *MergeRequestHandler {
	return &MergeRequestHandler{merges: merges, versions: versions}
}

type createMergeRequestRequest struct {
	DocumentID   string   `json:"document_id"`
	SourceBranch string   `json:"source_branch"`
	TargetBranch string   `json:"target_branch"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Reviewers    []string `json:"reviewers"`
	TieBreak     string   `json:"tie_break"`
	Draft        bool     `json:"draft"`
}

// POST /api/merge-requests
func (h *MergeRequestHandler) Create(c *gin.Context) {
	var req createMergeRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	documentID, err := uuid.Parse(req.DocumentID)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_document_id", err)
		return
	}
	mr, err := h.merges.CreateMergeRequest(c.Request.Context(), services.CreateMergeRequestInput{
		DocumentID:   documentID,
		SourceBranch: req.SourceBranch,
		TargetBranch: req.TargetBranch,
		Title:        req.Title,
		Description:  req.Description,
		Reviewers:    req.Reviewers,
		TieBreak:     req.TieBreak,
		Draft:        req.Draft,
		Actor:        ctxutil.Actor(c.Request.Context()),
	})
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"merge_request": mr})
}

// GET /api/merge-requests?document_id=&status=
func (h *MergeRequestHandler) List(c *gin.Context) {
	documentID, err := uuid.Parse(c.Query("document_id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_document_id", err)
		return
	}
	var statuses []string
	if raw := c.Query("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				statuses = append(statuses, s)
			}
		}
	}
	rows, err := h.merges.ListMergeRequests(
		c.Request.Context(),
		documentID,
		statuses,
		queryInt(c, "limit", 50),
		queryInt(c, "offset", 0),
	)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"merge_requests": rows})
}

// GET /api/merge-requests/:id
func (h *MergeRequestHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_merge_request_id", err)
		return
	}
	mr, err := h.merges.GetMergeRequest(c.Request.Context(), id)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"merge_request": mr})
}

// POST /api/merge-requests/:id/ready
func (h *MergeRequestHandler) Ready(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_merge_request_id", err)
		return
	}
	mr, err := h.merges.MarkReady(c.Request.Context(), id, ctxutil.Actor(c.Request.Context()))
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"merge_request": mr})
}

// GET /api/merge-requests/:id/conflicts
func (h *MergeRequestHandler) Conflicts(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_merge_request_id", err)
		return
	}
	confs, err := h.merges.ListConflicts(c.Request.Context(), id)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"conflicts": confs, "count": len(confs)})
}

// GET /api/merge-requests/:id/conflicts/suggestions
func (h *MergeRequestHandler) Suggestions(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_merge_request_id", err)
		return
	}
	suggestions, err := h.merges.SuggestResolutions(c.Request.Context(), id)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"suggestions": suggestions})
}

// POST /api/merge-requests/:id/auto-merge
func (h *MergeRequestHandler) AutoMerge(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_merge_request_id", err)
		return
	}
	res, err := h.merges.AutoMerge(c.Request.Context(), id, ctxutil.Actor(c.Request.Context()))
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, res)
}

type manualMergeRequest struct {
	Resolutions []services.ResolutionInput `json:"resolutions"`
}

// POST /api/merge-requests/:id/merge
func (h *MergeRequestHandler) Merge(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_merge_request_id", err)
		return
	}
	var req manualMergeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	res, err := h.merges.ManualMerge(c.Request.Context(), id, req.Resolutions, ctxutil.Actor(c.Request.Context()))
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, res)
}

type closeMergeRequestRequest struct {
	Reason string `json:"reason"`
}

// POST /api/merge-requests/:id/close
func (h *MergeRequestHandler) Close(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_merge_request_id", err)
		return
	}
	var req closeMergeRequestRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
			return
		}
	}
	mr, err := h.merges.CloseMergeRequest(c.Request.Context(), id, req.Reason, ctxutil.Actor(c.Request.Context()))
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"merge_request": mr})
}

type cherryPickRequest struct {
	VersionID    string   `json:"version_id"`
	TargetBranch string   `json:"target_branch"`
	Paths        []string `json:"paths"`
}

// POST /api/reporting-events/:id/cherry-pick
func (h *MergeRequestHandler) CherryPick(c *gin.Context) {
	documentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_document_id", err)
		return
	}
	var req cherryPickRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	versionID, err := h.versionInDocument(c, documentID, req.VersionID)
	if err != nil {
		return
	}
	v, err := h.merges.CherryPick(c.Request.Context(), versionID, req.TargetBranch, req.Paths, ctxutil.Actor(c.Request.Context()))
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"version": v})
}

type revertRequest struct {
	VersionID    string `json:"version_id"`
	TargetBranch string `json:"target_branch"`
}

// POST /api/reporting-events/:id/revert
func (h *MergeRequestHandler) Revert(c *gin.Context) {
	documentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_document_id", err)
		return
	}
	var req revertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	versionID, err := h.versionInDocument(c, documentID, req.VersionID)
	if err != nil {
		return
	}
	v, err := h.merges.Revert(c.Request.Context(), versionID, req.TargetBranch, ctxutil.Actor(c.Request.Context()))
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"version": v})
}

// versionInDocument parses raw and checks the version actually belongs to
// the reporting event named in the route. A mismatch has already responded
// when the returned error is non-nil.
func (h *MergeRequestHandler) versionInDocument(c *gin.Context, documentID uuid.UUID, raw string) (uuid.UUID, error) {
	versionID, err := uuid.Parse(raw)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_version_id", err)
		return uuid.Nil, err
	}
	v, err := h.versions.GetVersion(c.Request.Context(), versionID)
	if err != nil {
		response.RespondDomainError(c, err)
		return uuid.Nil, err
	}
	if v.DocumentID != documentID {
		err := versioning.NewError(versioning.CodeValidation, "http.version_in_document",
			"version belongs to a different reporting event", nil)
		response.RespondDomainError(c, err)
		return uuid.Nil, err
	}
	return versionID, nil
}
