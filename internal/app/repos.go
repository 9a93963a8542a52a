package app

import (
	"gorm.io/gorm"

	"github.com/trialworks/ars-backend/internal/data/repos"
	"github.com/trialworks/ars-backend/internal/pkg/logger"
)

type Repos struct {
	ReportingEvents     repos.ReportingEventRepo
	Versions            repos.VersionRepo
	Branches            repos.BranchRepo
	MergeRequests       repos.MergeRequestRepo
	ConflictResolutions repos.ConflictResolutionRepo
	ChangeLogs          repos.ChangeLogRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		ReportingEvents:     repos.NewReportingEventRepo(db, log),
		Versions:            repos.NewVersionRepo(db, log),
		Branches:            repos.NewBranchRepo(db, log),
		MergeRequests:       repos.NewMergeRequestRepo(db, log),
		ConflictResolutions: repos.NewConflictResolutionRepo(db, log),
		ChangeLogs:          repos.NewChangeLogRepo(db, log),
	}
}
