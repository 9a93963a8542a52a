package app

import (
	"gorm.io/gorm"

	httpH "github.com/trialworks/ars-backend/internal/http/handlers"
	"github.com/trialworks/ars-backend/internal/pkg/logger"
	"github.com/trialworks/ars-backend/internal/realtime"
)

type Handlers struct {
	Health   *httpH.HealthHandler
	Document *httpH.DocumentHandler
	Version  *httpH.VersionHandler
	Branch   *httpH.BranchHandler
	Merge    *httpH.MergeRequestHandler
	History  *httpH.HistoryHandler
	Exchange *httpH.ExchangeHandler
	Realtime *httpH.RealtimeHandler
}

func wireHandlers(log *logger.Logger, db *gorm.DB, s Services, hub *realtime.SSEHub) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:   httpH.NewHealthHandler(db),
		Document: httpH.NewDocumentHandler(s.Documents),
		Version:  httpH.NewVersionHandler(s.Versions, s.History),
		Branch:   httpH.NewBranchHandler(s.Branches),
		Merge:    httpH.NewMergeRequestHandler(s.Merges, s.Versions),
		History:  httpH.NewHistoryHandler(s.History, s.Branches),
		Exchange: httpH.NewExchangeHandler(s.Exchange),
		Realtime: httpH.NewRealtimeHandler(log, hub),
	}
}
