package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/trialworks/ars-backend/internal/http/response"
	"github.com/trialworks/ars-backend/internal/pkg/ctxutil"
	"github.com/trialworks/ars-backend/internal/services"
	"github.com/trialworks/ars-backend/internal/vcs/tree"
)

type DocumentHandler struct {
	documents services.DocumentService
}

func NewDocumentHandler(documents services.DocumentService) *DocumentHandler {
	return &DocumentHandler{documents: documents}
}

type createDocumentRequest struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	StudyID     string     `json:"study_id"`
	Status      string     `json:"status"`
	Payload     tree.Value `json:"payload"`
}

// POST /api/reporting-events
func (h *DocumentHandler) Create(c *gin.Context) {
	var req createDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	doc, err := h.documents.Create(c.Request.Context(), services.CreateDocumentInput{
		Name:        req.Name,
		Description: req.Description,
		StudyID:     req.StudyID,
		Status:      req.Status,
		Payload:     req.Payload,
		Actor:       ctxutil.Actor(c.Request.Context()),
	})
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"reporting_event": doc})
}

// GET /api/reporting-events
func (h *DocumentHandler) List(c *gin.Context) {
	limit := queryInt(c, "limit", 50)
	offset := queryInt(c, "offset", 0)
	docs, err := h.documents.List(c.Request.Context(), c.Query("study_id"), c.Query("status"), limit, offset)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"reporting_events": docs})
}

// GET /api/reporting-events/:id
func (h *DocumentHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_document_id", err)
		return
	}
	doc, err := h.documents.Get(c.Request.Context(), id)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"reporting_event": doc})
}

type updateDocumentRequest struct {
	Name        *string     `json:"name"`
	Description *string     `json:"description"`
	Status      *string     `json:"status"`
	Payload     *tree.Value `json:"payload"`
}

// PUT /api/reporting-events/:id
func (h *DocumentHandler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_document_id", err)
		return
	}
	var req updateDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	doc, err := h.documents.Update(c.Request.Context(), id, services.UpdateDocumentInput{
		Name:        req.Name,
		Description: req.Description,
		Status:      req.Status,
		Payload:     req.Payload,
	})
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"reporting_event": doc})
}

// DELETE /api/reporting-events/:id
func (h *DocumentHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_document_id", err)
		return
	}
	if err := h.documents.Delete(c.Request.Context(), id, ctxutil.Actor(c.Request.Context())); err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"deleted": true, "id": id})
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
