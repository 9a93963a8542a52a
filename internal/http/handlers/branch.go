package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	types "github.com/trialworks/ars-backend/internal/domain"
	"github.com/trialworks/ars-backend/internal/http/response"
	"github.com/trialworks/ars-backend/internal/pkg/ctxutil"
	"github.com/trialworks/ars-backend/internal/services"
)

type BranchHandler struct {
	branches services.BranchManager
}

func NewBranchHandler(branches services.BranchManager) *BranchHandler {
	return &BranchHandler{branches: branches}
}

type createBranchRequest struct {
	Name            string                   `json:"name"`
	SourceBranch    string                   `json:"source_branch"`
	SourceVersionID string                   `json:"source_version_id"`
	Protected       bool                     `json:"protected"`
	ProtectionRules *types.ProtectionRuleSet `json:"protection_rules"`
}

// POST /api/reporting-events/:id/branches
func (h *BranchHandler) Create(c *gin.Context) {
	documentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_document_id", err)
		return
	}
	var req createBranchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	in := services.CreateBranchInput{
		DocumentID:      documentID,
		Name:            req.Name,
		SourceBranch:    req.SourceBranch,
		Protected:       req.Protected,
		ProtectionRules: req.ProtectionRules,
		Actor:           ctxutil.Actor(c.Request.Context()),
	}
	if req.SourceVersionID != "" {
		versionID, err := uuid.Parse(req.SourceVersionID)
		if err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_source_version_id", err)
			return
		}
		in.SourceVersionID = versionID
	}
	branch, err := h.branches.CreateBranch(c.Request.Context(), in)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"branch": branch})
}

// GET /api/reporting-events/:id/branches
func (h *BranchHandler) List(c *gin.Context) {
	documentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_document_id", err)
		return
	}
	branches, err := h.branches.ListBranches(c.Request.Context(), documentID)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"branches": branches})
}

// GET /api/reporting-events/:id/branches/:name
func (h *BranchHandler) Info(c *gin.Context) {
	documentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_document_id", err)
		return
	}
	info, err := h.branches.GetBranchInfo(c.Request.Context(), documentID, c.Param("name"))
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, info)
}

// DELETE /api/reporting-events/:id/branches/:name
func (h *BranchHandler) Delete(c *gin.Context) {
	documentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_document_id", err)
		return
	}
	force, _ := strconv.ParseBool(c.DefaultQuery("force", "false"))
	name := c.Param("name")
	if err := h.branches.DeleteBranch(c.Request.Context(), documentID, name, force, ctxutil.Actor(c.Request.Context())); err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"deleted": true, "branch": name})
}

// POST /api/reporting-events/:id/branches/:name/protect
func (h *BranchHandler) Protect(c *gin.Context) {
	documentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_document_id", err)
		return
	}
	var rules types.ProtectionRuleSet
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&rules); err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
			return
		}
	}
	branch, err := h.branches.ProtectBranch(c.Request.Context(), documentID, c.Param("name"), rules, ctxutil.Actor(c.Request.Context()))
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"branch": branch})
}

// POST /api/reporting-events/:id/branches/:name/unprotect
func (h *BranchHandler) Unprotect(c *gin.Context) {
	documentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_document_id", err)
		return
	}
	branch, err := h.branches.UnprotectBranch(c.Request.Context(), documentID, c.Param("name"), ctxutil.Actor(c.Request.Context()))
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"branch": branch})
}

// GET /api/reporting-events/:id/branches/compare?source=&target=
func (h *BranchHandler) Compare(c *gin.Context) {
	documentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_document_id", err)
		return
	}
	cmp, err := h.branches.CompareBranches(c.Request.Context(), documentID, c.Query("source"), c.Query("target"))
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, cmp)
}
