package reporting

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/trialworks/ars-backend/internal/domain"
	"github.com/trialworks/ars-backend/internal/pkg/dbctx"
	"github.com/trialworks/ars-backend/internal/pkg/logger"
)

type ReportingEventRepo interface {
	Create(dbc dbctx.Context, rows []*types.ReportingEvent) ([]*types.ReportingEvent, error)

	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.ReportingEvent, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.ReportingEvent, error)

	List(dbc dbctx.Context, studyID, status string, limit, offset int) ([]*types.ReportingEvent, error)

	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error

	Delete(dbc dbctx.Context, ids []uuid.UUID) error
}

type reportingEventRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewReportingEventRepo(db *gorm.DB, baseLog *logger.Logger) ReportingEventRepo {
	return &reportingEventRepo{db: db, log: baseLog.With("repo", "ReportingEventRepo")}
}

func (r *reportingEventRepo) Create(dbc dbctx.Context, rows []*types.ReportingEvent) ([]*types.ReportingEvent, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if len(rows) == 0 {
		return []*types.ReportingEvent{}, nil
	}
	if err := t.WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *reportingEventRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.ReportingEvent, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.ReportingEvent
	if len(ids) == 0 {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *reportingEventRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.ReportingEvent, error) {
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

func (r *reportingEventRepo) List(dbc dbctx.Context, studyID, status string, limit, offset int) ([]*types.ReportingEvent, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	q := t.WithContext(dbc.Ctx).Model(&types.ReportingEvent{}).Order("created_at DESC")
	if studyID != "" {
		q = q.Where("study_id = ?", studyID)
	}
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	var out []*types.ReportingEvent
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *reportingEventRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
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
		Model(&types.ReportingEvent{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *reportingEventRepo) Delete(dbc dbctx.Context, ids []uuid.UUID) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if len(ids) == 0 {
		return nil
	}
	return t.WithContext(dbc.Ctx).Where("id IN ?", ids).Delete(&types.ReportingEvent{}).Error
}
