package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/trialworks/ars-backend/internal/exchange"
	"github.com/trialworks/ars-backend/internal/http/response"
	"github.com/trialworks/ars-backend/internal/pkg/ctxutil"
)

const maxImportBytes = 8 << 20

type ExchangeHandler struct {
	exchange exchange.Service
}

func NewExchangeHandler(svc exchange.Service) *ExchangeHandler {
	return &ExchangeHandler{exchange: svc}
}

// POST /api/import
//
// The bundle format comes from ?format= when given, otherwise from the
// Content-Type; JSON is the default.
func (h *ExchangeHandler) Import(c *gin.Context) {
	format, err := importFormat(c)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxImportBytes)
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	if len(raw) == 0 {
		response.RespondError(c, http.StatusBadRequest, "empty_body", nil)
		return
	}
	res, err := h.exchange.ImportData(c.Request.Context(), raw, format, ctxutil.Actor(c.Request.Context()))
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, res)
}

type batchImportRequest struct {
	Bundles []*exchange.Bundle `json:"bundles"`
}

// POST /api/import/batch
func (h *ExchangeHandler) ImportBatch(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxImportBytes)
	var req batchImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	if len(req.Bundles) == 0 {
		response.RespondError(c, http.StatusBadRequest, "empty_batch", nil)
		return
	}
	items, err := h.exchange.BatchImport(c.Request.Context(), req.Bundles, ctxutil.Actor(c.Request.Context()))
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	failed := 0
	for _, item := range items {
		if item.Error != "" {
			failed++
		}
	}
	response.RespondOK(c, gin.H{"items": items, "total": len(items), "failed": failed})
}

// GET /api/reporting-events/:id/export?format=&version_id=
func (h *ExchangeHandler) Export(c *gin.Context) {
	documentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_document_id", err)
		return
	}
	format, err := exchange.ParseFormat(c.Query("format"))
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	in := exchange.ExportInput{
		DocumentID: documentID,
		Format:     format,
		Actor:      ctxutil.Actor(c.Request.Context()),
	}
	if raw := c.Query("version_id"); raw != "" {
		versionID, err := uuid.Parse(raw)
		if err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_version_id", err)
			return
		}
		in.VersionID = &versionID
	}
	res, err := h.exchange.Export(c.Request.Context(), in)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	ext := "json"
	if res.Format == exchange.FormatYAML {
		ext = "yaml"
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "reporting-event-"+documentID.String()+"."+ext))
	c.Data(http.StatusOK, res.Format.ContentType(), res.Data)
}

func importFormat(c *gin.Context) (exchange.Format, error) {
	if raw := c.Query("format"); raw != "" {
		return exchange.ParseFormat(raw)
	}
	ct := strings.ToLower(c.ContentType())
	if strings.Contains(ct, "yaml") || strings.Contains(ct, "yml") {
		return exchange.FormatYAML, nil
	}
	return exchange.FormatJSON, nil
}
