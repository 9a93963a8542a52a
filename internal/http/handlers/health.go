package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type HealthHandler struct {
	db *gorm.DB
}

func NewHealthHandler(db *gorm.DB) *HealthHandler { return &HealthHandler{db: db} }

// GET /healthcheck
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	if h.db != nil {
		sqlDB, err := h.db.DB()
		if err == nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if pingErr := sqlDB.PingContext(ctx); pingErr != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "postgres": pingErr.Error()})
				return
			}
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
