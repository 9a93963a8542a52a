package versioning

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/trialworks/ars-backend/internal/domain"
	"github.com/trialworks/ars-backend/internal/pkg/dbctx"
	"github.com/trialworks/ars-backend/internal/pkg/logger"
)

type MergeRequestRepo interface {
	Create(dbc dbctx.Context, rows []*types.MergeRequest) ([]*types.MergeRequest, error)

	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.MergeRequest, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.MergeRequest, error)

	LockByID(dbc dbctx.Context, id uuid.UUID) (*types.MergeRequest, error)

	ListByDocumentID(dbc dbctx.Context, documentID uuid.UUID, statuses []string, limit, offset int) ([]*types.MergeRequest, error)
	ListActiveByBranchID(dbc dbctx.Context, branchID uuid.UUID) ([]*types.MergeRequest, error)

	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
}

type mergeRequestRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMergeRequestRepo(db *gorm.DB, baseLog *logger.Logger) MergeRequestRepo {
	return &mergeRequestRepo{db: db, log: baseLog.With("repo", "MergeRequestRepo")}
}

func (r *mergeRequestRepo) Create(dbc dbctx.Context, rows []*types.MergeRequest) ([]*types.MergeRequest, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if len(rows) == 0 {
		return []*types.MergeRequest{}, nil
	}
	if err := t.WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *mergeRequestRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.MergeRequest, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.MergeRequest
	if len(ids) == 0 {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *mergeRequestRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.MergeRequest, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	rows, err := r.GetByIDs(dbc, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (r *mergeRequestRepo) LockByID(dbc dbctx.Context, id uuid.UUID) (*types.MergeRequest, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var row types.MergeRequest
	err := t.WithContext(dbc.Ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
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

func (r *mergeRequestRepo) ListByDocumentID(dbc dbctx.Context, documentID uuid.UUID, statuses []string, limit, offset int) ([]*types.MergeRequest, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.MergeRequest
	if documentID == uuid.Nil {
		return out, nil
	}
	q := t.WithContext(dbc.Ctx).Where("document_id = ?", documentID).Order("created_at DESC")
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
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

func (r *mergeRequestRepo) ListActiveByBranchID(dbc dbctx.Context, branchID uuid.UUID) ([]*types.MergeRequest, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.MergeRequest
	if branchID == uuid.Nil {
		return out, nil
	}
	err := t.WithContext(dbc.Ctx).
		Where("(source_branch_id = ? OR target_branch_id = ?) AND status IN ?",
			branchID, branchID, []string{types.MergeStatusDraft, types.MergeStatusOpen}).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *mergeRequestRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return t.WithContext(dbc.Ctx).
		Model(&types.MergeRequest{}).
		Where("id = ?", id).
		Updates(updates).Error
}
