package versioning

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/trialworks/ars-backend/internal/domain"
	"github.com/trialworks/ars-backend/internal/pkg/dbctx"
	"github.com/trialworks/ars-backend/internal/pkg/logger"
)

type ConflictResolutionRepo interface {
	// Upsert records a decision for one conflicting path. Re-resolving the
	// same path overwrites the prior decision.
	Upsert(dbc dbctx.Context, row *types.ConflictResolution) (*types.ConflictResolution, error)

	GetByMergeRequestAndPath(dbc dbctx.Context, mergeRequestID uuid.UUID, path string) (*types.ConflictResolution, error)

	ListByMergeRequestID(dbc dbctx.Context, mergeRequestID uuid.UUID) ([]*types.ConflictResolution, error)

	CountByMergeRequestID(dbc dbctx.Context, mergeRequestID uuid.UUID) (int64, error)
}

type conflictResolutionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewConflictResolutionRepo(db *gorm.DB, baseLog *logger.Logger) ConflictResolutionRepo {
	return &conflictResolutionRepo{db: db, log: baseLog.With("repo", "ConflictResolutionRepo")}
}

func (r *conflictResolutionRepo) Upsert(dbc dbctx.Context, row *types.ConflictResolution) (*types.ConflictResolution, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if row == nil {
		return nil, nil
	}
	err := t.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "merge_request_id"}, {Name: "path"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"conflict_type",
				"strategy",
				"resolved_value",
				"rationale",
				"resolved_by",
				"review_status",
				"resolved_at",
			}),
		}).
		Create(row).Error
	if err != nil {
		return nil, err
	}
	return row, nil
}

func (r *conflictResolutionRepo) GetByMergeRequestAndPath(dbc dbctx.Context, mergeRequestID uuid.UUID, path string) (*types.ConflictResolution, error) {
	if mergeRequestID == uuid.Nil || path == "" {
		return nil, nil
	}
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var row types.ConflictResolution
	err := t.WithContext(dbc.Ctx).
		Where("merge_request_id = ? AND path = ?", mergeRequestID, path).
		Limit(1).
		Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *conflictResolutionRepo) ListByMergeRequestID(dbc dbctx.Context, mergeRequestID uuid.UUID) ([]*types.ConflictResolution, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.ConflictResolution
	if mergeRequestID == uuid.Nil {
		return out, nil
	}
	err := t.WithContext(dbc.Ctx).
		Where("merge_request_id = ?", mergeRequestID).
		Order("path ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *conflictResolutionRepo) CountByMergeRequestID(dbc dbctx.Context, mergeRequestID uuid.UUID) (int64, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if mergeRequestID == uuid.Nil {
		return 0, nil
	}
	var n int64
	err := t.WithContext(dbc.Ctx).
		Model(&types.ConflictResolution{}).
		Where("merge_request_id = ?", mergeRequestID).
		Count(&n).Error
	if err != nil {
		return 0, err
	}
	return n, nil
}
