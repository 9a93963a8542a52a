package services

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/trialworks/ars-backend/internal/data/repos"
	"github.com/trialworks/ars-backend/internal/data/store"
	types "github.com/trialworks/ars-backend/internal/domain"
	"github.com/trialworks/ars-backend/internal/domain/versioning"
	"github.com/trialworks/ars-backend/internal/pkg/dbctx"
	"github.com/trialworks/ars-backend/internal/pkg/logger"
	"github.com/trialworks/ars-backend/internal/vcs/tree"
)

type CreateDocumentInput struct {
	Name        string
	Description string
	StudyID     string
	Status      string
	Payload     tree.Value
	Actor       string

	// ID pins the row id instead of minting one. Import uses this to keep
	// document identity across systems; the HTTP create path leaves it nil.
	ID *uuid.UUID
}

type UpdateDocumentInput struct {
	Name        *string
	Description *string
	Status      *string
	Payload     *tree.Value
}

// DocumentService owns reporting event CRUD plus the serialize/deserialize
// boundary between the live document row and the versioned tree form.
type DocumentService interface {
	Create(ctx context.Context, in CreateDocumentInput) (*types.ReportingEvent, error)

	// CreateIn is Create inside the caller's transaction.
	CreateIn(dbc dbctx.Context, in CreateDocumentInput) (*types.ReportingEvent, error)

	Get(ctx context.Context, id uuid.UUID) (*types.ReportingEvent, error)
	List(ctx context.Context, studyID, status string, limit, offset int) ([]*types.ReportingEvent, error)
	Update(ctx context.Context, id uuid.UUID, in UpdateDocumentInput) (*types.ReportingEvent, error)
	Delete(ctx context.Context, id uuid.UUID, actor string) error

	// Serialize decodes the live document into its tree form. Deserialize
	// writes a tree back onto the live document and keeps the metadata
	// columns in sync with the root fields. Both run inside the caller's
	// transaction when one is supplied.
	Serialize(dbc dbctx.Context, id uuid.UUID) (tree.Value, error)
	Deserialize(dbc dbctx.Context, id uuid.UUID, doc tree.Value) error
}

type documentService struct {
	db     *gorm.DB
	log    *logger.Logger
	events repos.ReportingEventRepo
}

func NewDocumentService(db *gorm.DB, baseLog *logger.Logger, events repos.ReportingEventRepo) DocumentService {
	return &documentService{
		db:     db,
		log:    baseLog.With("service", "DocumentService"),
		events: events,
	}
}

func (s *documentService) Create(ctx context.Context, in CreateDocumentInput) (*types.ReportingEvent, error) {
	return s.CreateIn(dbctx.New(ctx), in)
}

func (s *documentService) CreateIn(dbc dbctx.Context, in CreateDocumentInput) (*types.ReportingEvent, error) {
	const op = "document.create"

	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, versioning.NewError(versioning.CodeValidation, op, "name is required", nil)
	}
	status := strings.TrimSpace(in.Status)
	if status == "" {
		status = "draft"
	}

	doc := in.Payload
	switch doc.Kind() {
	case tree.KindNull:
		doc = tree.Object(nil)
	case tree.KindObject:
	default:
		return nil, versioning.NewError(versioning.CodeValidation, op, "payload must be a JSON object", nil)
	}
	doc = syncRootField(doc, "name", name)
	if d := strings.TrimSpace(in.Description); d != "" {
		doc = syncRootField(doc, "description", d)
	}

	raw, err := doc.MarshalJSON()
	if err != nil {
		return nil, versioning.Wrap(versioning.CodeSerialization, op, err)
	}

	id := uuid.New()
	if in.ID != nil && *in.ID != uuid.Nil {
		id = *in.ID
	}
	row := &types.ReportingEvent{
		ID:          id,
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		StudyID:     strings.TrimSpace(in.StudyID),
		Status:      status,
		Payload:     datatypes.JSON(raw),
		CreatedBy:   strings.TrimSpace(in.Actor),
	}
	if _, err := s.events.Create(dbc, []*types.ReportingEvent{row}); err != nil {
		return nil, store.MapError(op, err)
	}
	s.log.Info("Reporting event created", "documentID", row.ID, "study", row.StudyID)
	return row, nil
}

func (s *documentService) Get(ctx context.Context, id uuid.UUID) (*types.ReportingEvent, error) {
	const op = "document.get"
	row, err := s.events.GetByID(dbctx.New(ctx), id)
	if err != nil {
		return nil, store.MapError(op, err)
	}
	if row == nil {
		return nil, versioning.NewError(versioning.CodeNotFound, op, "reporting event not found", nil)
	}
	return row, nil
}

func (s *documentService) List(ctx context.Context, studyID, status string, limit, offset int) ([]*types.ReportingEvent, error) {
	const op = "document.list"
	rows, err := s.events.List(dbctx.New(ctx), strings.TrimSpace(studyID), strings.TrimSpace(status), limit, offset)
	if err != nil {
		return nil, store.MapError(op, err)
	}
	return rows, nil
}

func (s *documentService) Update(ctx context.Context, id uuid.UUID, in UpdateDocumentInput) (*types.ReportingEvent, error) {
	const op = "document.update"

	var out *types.ReportingEvent
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		row, err := s.events.GetByID(dbc, id)
		if err != nil {
			return err
		}
		if row == nil {
			return versioning.NewError(versioning.CodeNotFound, op, "reporting event not found", nil)
		}

		if in.Name == nil && in.Description == nil && in.Status == nil && in.Payload == nil {
			out = row
			return nil
		}

		// The tree form is authoritative: metadata edits land in both the
		// column and the payload so the next snapshot sees them.
		doc, err := tree.FromJSON([]byte(row.Payload))
		if err != nil {
			return versioning.Wrap(versioning.CodeSerialization, op, err)
		}
		if in.Payload != nil {
			doc = *in.Payload
		}
		if doc.Kind() != tree.KindObject {
			return versioning.NewError(versioning.CodeValidation, op, "payload must be a JSON object", nil)
		}

		updates := map[string]interface{}{}
		if in.Name != nil {
			name := strings.TrimSpace(*in.Name)
			if name == "" {
				return versioning.NewError(versioning.CodeValidation, op, "name cannot be empty", nil)
			}
			updates["name"] = name
			if doc, err = doc.Set("name", tree.String(name)); err != nil {
				return versioning.Wrap(versioning.CodeInternal, op, err)
			}
		}
		if in.Description != nil {
			desc := strings.TrimSpace(*in.Description)
			updates["description"] = desc
			if doc, err = doc.Set("description", tree.String(desc)); err != nil {
				return versioning.Wrap(versioning.CodeInternal, op, err)
			}
		}
		if in.Status != nil {
			status := strings.TrimSpace(*in.Status)
			if status == "" {
				return versioning.NewError(versioning.CodeValidation, op, "status cannot be empty", nil)
			}
			updates["status"] = status
			if doc, err = doc.Set("status", tree.String(status)); err != nil {
				return versioning.Wrap(versioning.CodeInternal, op, err)
			}
		}

		// A wholesale payload replacement drags the metadata columns along,
		// mirroring Deserialize.
		if in.Payload != nil {
			if v, ok := doc.Field("name"); ok && in.Name == nil && v.Kind() == tree.KindString && strings.TrimSpace(v.StringVal()) != "" {
				updates["name"] = strings.TrimSpace(v.StringVal())
			}
			if v, ok := doc.Field("description"); ok && in.Description == nil && v.Kind() == tree.KindString {
				updates["description"] = v.StringVal()
			}
			if v, ok := doc.Field("status"); ok && in.Status == nil && v.Kind() == tree.KindString && strings.TrimSpace(v.StringVal()) != "" {
				updates["status"] = strings.TrimSpace(v.StringVal())
			}
		}

		raw, err := doc.MarshalJSON()
		if err != nil {
			return versioning.Wrap(versioning.CodeSerialization, op, err)
		}
		updates["payload"] = datatypes.JSON(raw)
		if err := s.events.UpdateFields(dbc, id, updates); err != nil {
			return err
		}
		out, err = s.events.GetByID(dbc, id)
		return err
	})
	if err != nil {
		return nil, store.MapError(op, err)
	}
	return out, nil
}

func (s *documentService) Delete(ctx context.Context, id uuid.UUID, actor string) error {
	const op = "document.delete"
	row, err := s.events.GetByID(dbctx.New(ctx), id)
	if err != nil {
		return store.MapError(op, err)
	}
	if row == nil {
		return versioning.NewError(versioning.CodeNotFound, op, "reporting event not found", nil)
	}
	if err := s.events.Delete(dbctx.New(ctx), []uuid.UUID{id}); err != nil {
		return store.MapError(op, err)
	}
	s.log.Info("Reporting event deleted", "documentID", id, "actor", actor)
	return nil
}

func (s *documentService) Serialize(dbc dbctx.Context, id uuid.UUID) (tree.Value, error) {
	const op = "document.serialize"
	row, err := s.events.GetByID(dbc, id)
	if err != nil {
		return tree.Null(), store.MapError(op, err)
	}
	if row == nil {
		return tree.Null(), versioning.NewError(versioning.CodeNotFound, op, "reporting event not found", nil)
	}
	doc, err := tree.FromJSON([]byte(row.Payload))
	if err != nil {
		return tree.Null(), versioning.Wrap(versioning.CodeSerialization, op, err)
	}
	if doc.Kind() != tree.KindObject {
		return tree.Null(), versioning.NewError(versioning.CodeSerialization, op, "document payload is not a JSON object", nil)
	}
	return doc, nil
}

func (s *documentService) Deserialize(dbc dbctx.Context, id uuid.UUID, doc tree.Value) error {
	const op = "document.deserialize"
	if doc.Kind() != tree.KindObject {
		return versioning.NewError(versioning.CodeSerialization, op, "document tree must be a JSON object", nil)
	}
	row, err := s.events.GetByID(dbc, id)
	if err != nil {
		return store.MapError(op, err)
	}
	if row == nil {
		return versioning.NewError(versioning.CodeNotFound, op, "reporting event not found", nil)
	}

	raw, err := doc.MarshalJSON()
	if err != nil {
		return versioning.Wrap(versioning.CodeSerialization, op, err)
	}
	updates := map[string]interface{}{"payload": datatypes.JSON(raw)}
	if v, ok := doc.Field("name"); ok && v.Kind() == tree.KindString && strings.TrimSpace(v.StringVal()) != "" {
		updates["name"] = strings.TrimSpace(v.StringVal())
	}
	if v, ok := doc.Field("description"); ok && v.Kind() == tree.KindString {
		updates["description"] = v.StringVal()
	}
	if v, ok := doc.Field("status"); ok && v.Kind() == tree.KindString && strings.TrimSpace(v.StringVal()) != "" {
		updates["status"] = strings.TrimSpace(v.StringVal())
	}
	if err := s.events.UpdateFields(dbc, id, updates); err != nil {
		return store.MapError(op, err)
	}
	return nil
}

// syncRootField sets a root string field when it is absent or empty so the
// tree form always carries the metadata the columns carry.
func syncRootField(doc tree.Value, key, val string) tree.Value {
	if val == "" {
		return doc
	}
	if existing, ok := doc.Field(key); ok {
		if existing.Kind() == tree.KindString && strings.TrimSpace(existing.StringVal()) != "" {
			return doc
		}
	}
	out, err := doc.Set(key, tree.String(val))
	if err != nil {
		return doc
	}
	return out
}
