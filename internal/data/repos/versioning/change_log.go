package versioning

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/trialworks/ars-backend/internal/domain"
	"github.com/trialworks/ars-backend/internal/pkg/dbctx"
	"github.com/trialworks/ars-backend/internal/pkg/logger"
)

// ChangeLogRepo is insert-only. The audit trail never gets an update or
// delete path.
type ChangeLogRepo interface {
	Create(dbc dbctx.Context, rows []*types.ChangeLog) ([]*types.ChangeLog, error)

	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.ChangeLog, error)

	ListByDocumentID(dbc dbctx.Context, documentID uuid.UUID, actions []string, limit, offset int) ([]*types.ChangeLog, error)
	ListByBranchID(dbc dbctx.Context, branchID uuid.UUID, limit, offset int) ([]*types.ChangeLog, error)
	ListByVersionID(dbc dbctx.Context, versionID uuid.UUID) ([]*types.ChangeLog, error)
	ListByActor(dbc dbctx.Context, actor string, since time.Time, limit int) ([]*types.ChangeLog, error)

	Search(dbc dbctx.Context, documentID uuid.UUID, branchID *uuid.UUID, actions []string, actor string, from, to *time.Time, limit, offset int) ([]*types.ChangeLog, error)

	CountByDocumentID(dbc dbctx.Context, documentID uuid.UUID) (int64, error)
}

type changeLogRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChangeLogRepo(db *gorm.DB, baseLog *logger.Logger) ChangeLogRepo {
	return &changeLogRepo{db: db, log: baseLog.With("repo", "ChangeLogRepo")}
}

func (r *changeLogRepo) Create(dbc dbctx.Context, rows []*types.ChangeLog) ([]*types.ChangeLog, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if len(rows) == 0 {
		return []*types.ChangeLog{}, nil
	}
	if err := t.WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *changeLogRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.ChangeLog, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var row types.ChangeLog
	if err := t.WithContext(dbc.Ctx).Where("id = ?", id).Limit(1).Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *changeLogRepo) ListByDocumentID(dbc dbctx.Context, documentID uuid.UUID, actions []string, limit, offset int) ([]*types.ChangeLog, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.ChangeLog
	if documentID == uuid.Nil {
		return out, nil
	}
	q := t.WithContext(dbc.Ctx).Where("document_id = ?", documentID).Order("created_at DESC")
	if len(actions) > 0 {
		q = q.Where("action IN ?", actions)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *changeLogRepo) ListByBranchID(dbc dbctx.Context, branchID uuid.UUID, limit, offset int) ([]*types.ChangeLog, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.ChangeLog
	if branchID == uuid.Nil {
		return out, nil
	}
	q := t.WithContext(dbc.Ctx).Where("branch_id = ?", branchID).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *changeLogRepo) ListByVersionID(dbc dbctx.Context, versionID uuid.UUID) ([]*types.ChangeLog, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.ChangeLog
	if versionID == uuid.Nil {
		return out, nil
	}
	err := t.WithContext(dbc.Ctx).
		Where("version_id = ?", versionID).
		Order("created_at DESC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *changeLogRepo) ListByActor(dbc dbctx.Context, actor string, since time.Time, limit int) ([]*types.ChangeLog, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.ChangeLog
	if actor == "" {
		return out, nil
	}
	q := t.WithContext(dbc.Ctx).Where("actor = ?", actor).Order("created_at DESC")
	if !since.IsZero() {
		q = q.Where("created_at >= ?", since)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *changeLogRepo) Search(dbc dbctx.Context, documentID uuid.UUID, branchID *uuid.UUID, actions []string, actor string, from, to *time.Time, limit, offset int) ([]*types.ChangeLog, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.ChangeLog
	if documentID == uuid.Nil {
		return out, nil
	}
	q := t.WithContext(dbc.Ctx).Where("document_id = ?", documentID).Order("created_at DESC")
	if branchID != nil && *branchID != uuid.Nil {
		q = q.Where("branch_id = ?", *branchID)
	}
	if len(actions) > 0 {
		q = q.Where("action IN ?", actions)
	}
	if actor != "" {
		q = q.Where("actor = ?", actor)
	}
	if from != nil && !from.IsZero() {
		q = q.Where("created_at >= ?", *from)
	}
	if to != nil && !to.IsZero() {
		q = q.Where("created_at <= ?", *to)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *changeLogRepo) CountByDocumentID(dbc dbctx.Context, documentID uuid.UUID) (int64, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if documentID == uuid.Nil {
		return 0, nil
	}
	var n int64
	err := t.WithContext(dbc.Ctx).
		Model(&types.ChangeLog{}).
		Where("document_id = ?", documentID).
		Count(&n).Error
	if err != nil {
		return 0, err
	}
	return n, nil
}
