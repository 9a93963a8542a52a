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

type BranchRepo interface {
	Create(dbc dbctx.Context, rows []*types.Branch) ([]*types.Branch, error)

	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Branch, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Branch, error)
	GetByDocumentAndName(dbc dbctx.Context, documentID uuid.UUID, name string) (*types.Branch, error)

	ListByDocumentID(dbc dbctx.Context, documentID uuid.UUID) ([]*types.Branch, error)

	LockByID(dbc dbctx.Context, id uuid.UUID) (*types.Branch, error)

	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error

	Delete(dbc dbctx.Context, ids []uuid.UUID) error
}

type branchRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewBranchRepo(db *gorm.DB, baseLog *logger.Logger) BranchRepo {
	return &branchRepo{db: db, log: baseLog.With("repo", "BranchRepo")}
}

func (r *branchRepo) Create(dbc dbctx.Context, rows []*types.Branch) ([]*types.Branch, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if len(rows) == 0 {
		return []*types.Branch{}, nil
	}
	if err := t.WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *branchRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Branch, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.Branch
	if len(ids) == 0 {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *branchRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Branch, error) {
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

func (r *branchRepo) GetByDocumentAndName(dbc dbctx.Context, documentID uuid.UUID, name string) (*types.Branch, error) {
	if documentID == uuid.Nil || name == "" {
		return nil, nil
	}
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var row types.Branch
	err := t.WithContext(dbc.Ctx).
		Where("document_id = ? AND name = ?", documentID, name).
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

func (r *branchRepo) ListByDocumentID(dbc dbctx.Context, documentID uuid.UUID) ([]*types.Branch, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.Branch
	if documentID == uuid.Nil {
		return out, nil
	}
	err := t.WithContext(dbc.Ctx).
		Where("document_id = ?", documentID).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *branchRepo) LockByID(dbc dbctx.Context, id uuid.UUID) (*types.Branch, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var row types.Branch
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

func (r *branchRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
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
		Model(&types.Branch{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *branchRepo) Delete(dbc dbctx.Context, ids []uuid.UUID) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if len(ids) == 0 {
		return nil
	}
	return t.WithContext(dbc.Ctx).Where("id IN ?", ids).Delete(&types.Branch{}).Error
}
