package versioning

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/trialworks/ars-backend/internal/domain"
	"github.com/trialworks/ars-backend/internal/pkg/dbctx"
	"github.com/trialworks/ars-backend/internal/pkg/logger"
)

type VersionRepo interface {
	Create(dbc dbctx.Context, rows []*types.Version) ([]*types.Version, error)

	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Version, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Version, error)

	GetCurrentByBranchID(dbc dbctx.Context, branchID uuid.UUID) (*types.Version, error)
	GetFirstByBranchID(dbc dbctx.Context, branchID uuid.UUID) (*types.Version, error)
	GetPredecessor(dbc dbctx.Context, branchID uuid.UUID, before time.Time) (*types.Version, error)

	ListByBranchID(dbc dbctx.Context, branchID uuid.UUID, limit, offset int) ([]*types.Version, error)
	ListByDocumentID(dbc dbctx.Context, documentID uuid.UUID, limit, offset int) ([]*types.Version, error)
	ListByTag(dbc dbctx.Context, documentID uuid.UUID, tag string) ([]*types.Version, error)

	CountByBranchID(dbc dbctx.Context, branchID uuid.UUID) (int64, error)

	// SetCurrent flips the is_current flag to the given version within its
	// branch. Callers hold the branch row lock.
	SetCurrent(dbc dbctx.Context, branchID, versionID uuid.UUID) error

	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error

	DeleteByBranchID(dbc dbctx.Context, branchID uuid.UUID) error
}

type versionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewVersionRepo(db *gorm.DB, baseLog *logger.Logger) VersionRepo {
	return &versionRepo{db: db, log: baseLog.With("repo", "VersionRepo")}
}

func (r *versionRepo) Create(dbc dbctx.Context, rows []*types.Version) ([]*types.Version, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if len(rows) == 0 {
		return []*types.Version{}, nil
	}
	if err := t.WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *versionRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Version, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.Version
	if len(ids) == 0 {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *versionRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Version, error) {
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

func (r *versionRepo) GetCurrentByBranchID(dbc dbctx.Context, branchID uuid.UUID) (*types.Version, error) {
	if branchID == uuid.Nil {
		return nil, nil
	}
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var row types.Version
	err := t.WithContext(dbc.Ctx).
		Where("branch_id = ? AND is_current", branchID).
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

func (r *versionRepo) GetFirstByBranchID(dbc dbctx.Context, branchID uuid.UUID) (*types.Version, error) {
	if branchID == uuid.Nil {
		return nil, nil
	}
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var row types.Version
	err := t.WithContext(dbc.Ctx).
		Where("branch_id = ?", branchID).
		Order("created_at ASC").
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

// GetPredecessor returns the newest version on the branch created strictly
// before the given time, or nil when the version is the branch's first.
func (r *versionRepo) GetPredecessor(dbc dbctx.Context, branchID uuid.UUID, before time.Time) (*types.Version, error) {
	if branchID == uuid.Nil {
		return nil, nil
	}
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var row types.Version
	err := t.WithContext(dbc.Ctx).
		Where("branch_id = ? AND created_at < ?", branchID, before).
		Order("created_at DESC").
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

func (r *versionRepo) ListByBranchID(dbc dbctx.Context, branchID uuid.UUID, limit, offset int) ([]*types.Version, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.Version
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

func (r *versionRepo) ListByDocumentID(dbc dbctx.Context, documentID uuid.UUID, limit, offset int) ([]*types.Version, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.Version
	if documentID == uuid.Nil {
		return out, nil
	}
	q := t.WithContext(dbc.Ctx).Where("document_id = ?", documentID).Order("created_at DESC")
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

func (r *versionRepo) ListByTag(dbc dbctx.Context, documentID uuid.UUID, tag string) ([]*types.Version, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.Version
	if documentID == uuid.Nil || tag == "" {
		return out, nil
	}
	err := t.WithContext(dbc.Ctx).
		Where("document_id = ? AND tag = ?", documentID, tag).
		Order("created_at DESC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *versionRepo) CountByBranchID(dbc dbctx.Context, branchID uuid.UUID) (int64, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if branchID == uuid.Nil {
		return 0, nil
	}
	var n int64
	err := t.WithContext(dbc.Ctx).
		Model(&types.Version{}).
		Where("branch_id = ?", branchID).
		Count(&n).Error
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (r *versionRepo) SetCurrent(dbc dbctx.Context, branchID, versionID uuid.UUID) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if branchID == uuid.Nil || versionID == uuid.Nil {
		return nil
	}
	now := time.Now().UTC()
	err := t.WithContext(dbc.Ctx).
		Model(&types.Version{}).
		Where("branch_id = ? AND is_current AND id <> ?", branchID, versionID).
		Updates(map[string]interface{}{"is_current": false, "updated_at": now}).Error
	if err != nil {
		return err
	}
	return t.WithContext(dbc.Ctx).
		Model(&types.Version{}).
		Where("id = ? AND branch_id = ?", versionID, branchID).
		Updates(map[string]interface{}{"is_current": true, "updated_at": now}).Error
}

func (r *versionRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
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
		Model(&types.Version{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *versionRepo) DeleteByBranchID(dbc dbctx.Context, branchID uuid.UUID) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if branchID == uuid.Nil {
		return nil
	}
	return t.WithContext(dbc.Ctx).Where("branch_id = ?", branchID).Delete(&types.Version{}).Error
}
