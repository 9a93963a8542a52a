package repos

import (
	"github.com/trialworks/ars-backend/internal/data/repos/reporting"
	"github.com/trialworks/ars-backend/internal/data/repos/versioning"
	"github.com/trialworks/ars-backend/internal/pkg/logger"
	"gorm.io/gorm"
)

type ReportingEventRepo = reporting.ReportingEventRepo

type VersionRepo = versioning.VersionRepo
type BranchRepo = versioning.BranchRepo
type MergeRequestRepo = versioning.MergeRequestRepo
type ConflictResolutionRepo = versioning.ConflictResolutionRepo
type ChangeLogRepo = versioning.ChangeLogRepo

func NewReportingEventRepo(db *gorm.DB, baseLog *logger.Logger) ReportingEventRepo {
	return reporting.NewReportingEventRepo(db, baseLog)
}

func NewVersionRepo(db *gorm.DB, baseLog *logger.Logger) VersionRepo {
	return versioning.NewVersionRepo(db, baseLog)
}

func NewBranchRepo(db *gorm.DB, baseLog *logger.Logger) BranchRepo {
	return versioning.NewBranchRepo(db, baseLog)
}

func NewMergeRequestRepo(db *gorm.DB, baseLog *logger.Logger) MergeRequestRepo {
	return versioning.NewMergeRequestRepo(db, baseLog)
}

func NewConflictResolutionRepo(db *gorm.DB, baseLog *logger.Logger) ConflictResolutionRepo {
	return versioning.NewConflictResolutionRepo(db, baseLog)
}

func NewChangeLogRepo(db *gorm.DB, baseLog *logger.Logger) ChangeLogRepo {
	return versioning.NewChangeLogRepo(db, baseLog)
}
