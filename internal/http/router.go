package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/trialworks/ars-backend/internal/http/handlers"
	httpMW "github.com/trialworks/ars-backend/internal/http/middleware"
	"github.com/trialworks/ars-backend/internal/observability"
	"github.com/trialworks/ars-backend/internal/pkg/logger"
)

type RouterConfig struct {
	Log     *logger.Logger
	Metrics *observability.Metrics

	HealthHandler   *httpH.HealthHandler
	DocumentHandler *httpH.DocumentHandler
	VersionHandler  *httpH.VersionHandler
	BranchHandler   *httpH.BranchHandler
	MergeHandler    *httpH.MergeRequestHandler
	HistoryHandler  *httpH.HistoryHandler
	ExchangeHandler *httpH.ExchangeHandler
	RealtimeHandler *httpH.RealtimeHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	// otelgin opens the request span; AttachTraceContext reads its trace id
	// so logs and response headers line up with the exported traces.
	r.Use(otelgin.Middleware("ars-backend"))
	r.Use(httpMW.AttachTraceContext())
	if cfg.Log != nil {
		r.Use(httpMW.RequestLogger(cfg.Log))
	}
	if cfg.Metrics != nil {
		r.Use(httpMW.Metrics(cfg.Metrics))
	}
	r.Use(httpMW.CORS())
	r.Use(httpMW.Actor())

	// Health + metrics
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))

	api := r.Group("/api")
	{
		// Reporting events
		if cfg.DocumentHandler != nil {
			api.POST("/reporting-events", cfg.DocumentHandler.Create)
			api.GET("/reporting-events", cfg.DocumentHandler.List)
			api.GET("/reporting-events/:id", cfg.DocumentHandler.Get)
			api.PUT("/reporting-events/:id", cfg.DocumentHandler.Update)
			api.DELETE("/reporting-events/:id", cfg.DocumentHandler.Delete)
		}

		// Versions
		if cfg.VersionHandler != nil {
			api.POST("/reporting-events/:id/versions", cfg.VersionHandler.Create)
			api.GET("/reporting-events/:id/versions", cfg.VersionHandler.List)
			api.GET("/reporting-events/:id/field-history", cfg.VersionHandler.FieldHistory)
			api.GET("/versions/compare", cfg.VersionHandler.Compare)
			api.GET("/versions/:id", cfg.VersionHandler.Get)
			api.POST("/versions/:id/restore", cfg.VersionHandler.Restore)
			api.GET("/versions/:id/lineage", cfg.VersionHandler.Lineage)
			api.GET("/versions/:id/history", cfg.VersionHandler.History)
			api.POST("/versions/:id/tag", cfg.VersionHandler.Tag)
		}

		// Branches
		if cfg.BranchHandler != nil {
			api.POST("/reporting-events/:id/branches", cfg.BranchHandler.Create)
			api.GET("/reporting-events/:id/branches", cfg.BranchHandler.List)
			api.GET("/reporting-events/:id/branches/compare", cfg.BranchHandler.Compare)
			api.GET("/reporting-events/:id/branches/:name", cfg.BranchHandler.Info)
			api.DELETE("/reporting-events/:id/branches/:name", cfg.BranchHandler.Delete)
			api.POST("/reporting-events/:id/branches/:name/protect", cfg.BranchHandler.Protect)
			api.POST("/reporting-events/:id/branches/:name/unprotect", cfg.BranchHandler.Unprotect)
		}

		// Merge requests, cherry-pick, revert
		if cfg.MergeHandler != nil {
			api.POST("/merge-requests", cfg.MergeHandler.Create)
			api.GET("/merge-requests", cfg.MergeHandler.List)
			api.GET("/merge-requests/:id", cfg.MergeHandler.Get)
			api.POST("/merge-requests/:id/ready", cfg.MergeHandler.Ready)
			api.GET("/merge-requests/:id/conflicts", cfg.MergeHandler.Conflicts)
			api.GET("/merge-requests/:id/conflicts/suggestions", cfg.MergeHandler.Suggestions)
			api.POST("/merge-requests/:id/auto-merge", cfg.MergeHandler.AutoMerge)
			api.POST("/merge-requests/:id/merge", cfg.MergeHandler.Merge)
			api.POST("/merge-requests/:id/close", cfg.MergeHandler.Close)
			api.POST("/reporting-events/:id/cherry-pick", cfg.MergeHandler.CherryPick)
			api.POST("/reporting-events/:id/revert", cfg.MergeHandler.Revert)
		}

		// Audit history
		if cfg.HistoryHandler != nil {
			api.GET("/reporting-events/:id/change-history", cfg.HistoryHandler.ChangeHistory)
			api.GET("/users/:actor/activity", cfg.HistoryHandler.UserActivity)
		}

		// Import / export
		if cfg.ExchangeHandler != nil {
			api.POST("/import", cfg.ExchangeHandler.Import)
			api.POST("/import/batch", cfg.ExchangeHandler.ImportBatch)
			api.GET("/reporting-events/:id/export", cfg.ExchangeHandler.Export)
		}

		// Realtime (SSE)
		if cfg.RealtimeHandler != nil {
			api.GET("/events/stream", cfg.RealtimeHandler.Stream)
		}
	}

	return r
}
