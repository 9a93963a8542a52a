package app

import (
	"github.com/gin-gonic/gin"

	apihttp "github.com/trialworks/ars-backend/internal/http"
	"github.com/trialworks/ars-backend/internal/observability"
	"github.com/trialworks/ars-backend/internal/pkg/logger"
)

func wireRouter(log *logger.Logger, handlers Handlers) *gin.Engine {
	return apihttp.NewRouter(apihttp.RouterConfig{
		Log:     log,
		Metrics: observability.Current(),

		HealthHandler:   handlers.Health,
		DocumentHandler: handlers.Document,
		VersionHandler:  handlers.Version,
		BranchHandler:   handlers.Branch,
		MergeHandler:    handlers.Merge,
		HistoryHandler:  handlers.History,
		ExchangeHandler: handlers.Exchange,
		RealtimeHandler: handlers.Realtime,
	})
}
