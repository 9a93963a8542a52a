package app

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/trialworks/ars-backend/internal/exchange"
	"github.com/trialworks/ars-backend/internal/pkg/logger"
	"github.com/trialworks/ars-backend/internal/realtime"
	"github.com/trialworks/ars-backend/internal/realtime/bus"
	"github.com/trialworks/ars-backend/internal/services"
)

type Services struct {
	// Realtime plumbing
	Emitter services.SSEEmitter
	Bus     bus.Bus

	// Version control
	Documents services.DocumentService
	History   services.HistoryTracker
	Branches  services.BranchManager
	Versions  services.VersionManager
	Merges    services.MergeEngine

	// Import / export
	Exchange exchange.Service
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, r Repos, hub *realtime.SSEHub) (Services, error) {
	log.Info("Wiring services...")

	var emitter services.SSEEmitter = &services.HubEmitter{Hub: hub}
	var eventBus bus.Bus
	if cfg.RedisAddr != "" {
		b, err := bus.NewRedisBus(log)
		if err != nil {
			return Services{}, fmt.Errorf("init redis event bus: %w", err)
		}
		eventBus = b
		emitter = &services.RedisEmitter{Bus: b}
	}

	versionNotify := services.NewVersionNotifier(emitter)
	branchNotify := services.NewBranchNotifier(emitter)
	mergeNotify := services.NewMergeNotifier(emitter)

	documents := services.NewDocumentService(db, log, r.ReportingEvents)
	history := services.NewHistoryTracker(db, log, r.ChangeLogs, r.Versions)
	branches := services.NewBranchManager(db, log, r.ReportingEvents, r.Branches, r.Versions, r.MergeRequests, history, branchNotify)
	versions := services.NewVersionManager(db, log, documents, r.Branches, r.Versions, branches, history, versionNotify, branchNotify)
	merges := services.NewMergeEngine(db, log, r.Branches, r.Versions, r.MergeRequests, r.ConflictResolutions, versions, history, mergeNotify, versionNotify)
	exch := exchange.NewService(db, log, r.ReportingEvents, r.Branches, r.Versions, documents, branches, versions, history, versionNotify)

	return Services{
		Emitter:   emitter,
		Bus:       eventBus,
		Documents: documents,
		History:   history,
		Branches:  branches,
		Versions:  versions,
		Merges:    merges,
		Exchange:  exch,
	}, nil
}
