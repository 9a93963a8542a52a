package exchange

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/trialworks/ars-backend/internal/data/repos"
	"github.com/trialworks/ars-backend/internal/data/store"
	types "github.com/trialworks/ars-backend/internal/domain"
	"github.com/trialworks/ars-backend/internal/domain/versioning"
	"github.com/trialworks/ars-backend/internal/pkg/dbctx"
	"github.com/trialworks/ars-backend/internal/pkg/logger"
	"github.com/trialworks/ars-backend/internal/services"
	"github.com/trialworks/ars-backend/internal/vcs/tree"
)

// batchLimit bounds the concurrent imports of one batch call.
const batchLimit = 4

type ExportInput struct {
	DocumentID uuid.UUID
	VersionID  *uuid.UUID
	Format     Format
	Actor      string
}

type ExportResult struct {
	Bundle *Bundle
	Data   []byte
	Format Format
}

type ImportResult struct {
	Document *types.ReportingEvent `json:"document"`
	Version  *types.Version        `json:"version"`
	Created  bool                  `json:"created"`
}

// BatchItem reports the outcome of one bundle in a batch import. Failed
// bundles carry Error and leave Result nil; siblings are unaffected.
type BatchItem struct {
	Index  int           `json:"index"`
	Result *ImportResult `json:"result,omitempty"`
	Error  string        `json:"error,omitempty"`
}

// Service exports reporting events as bundles and imports bundles back,
// materializing a snapshot on main for every import.
type Service interface {
	Export(ctx context.Context, in ExportInput) (*ExportResult, error)

	Import(ctx context.Context, bundle *Bundle, actor string) (*ImportResult, error)
	ImportData(ctx context.Context, data []byte, format Format, actor string) (*ImportResult, error)
	BatchImport(ctx context.Context, bundles []*Bundle, actor string) ([]BatchItem, error)
}

type service struct {
	db       *gorm.DB
	log      *logger.Logger
	events   repos.ReportingEventRepo
	branches repos.BranchRepo
	versions repos.VersionRepo

	documents services.DocumentService
	branchMgr services.BranchManager
	snapshots services.VersionManager
	history   services.HistoryTracker
	notify    services.VersionNotifier
}

func NewService(
	db *gorm.DB,
	baseLog *logger.Logger,
	events repos.ReportingEventRepo,
	branches repos.BranchRepo,
	versions repos.VersionRepo,
	documents services.DocumentService,
	branchMgr services.BranchManager,
	snapshots services.VersionManager,
	history services.HistoryTracker,
	notify services.VersionNotifier,
) Service {
	return &service{
		db:        db,
		log:       baseLog.With("service", "ExchangeService"),
		events:    events,
		branches:  branches,
		versions:  versions,
		documents: documents,
		branchMgr: branchMgr,
		snapshots: snapshots,
		history:   history,
		notify:    notify,
	}
}

func (s *service) Export(ctx context.Context, in ExportInput) (*ExportResult, error) {
	const op = "exchange.export"

	format := in.Format
	if format == "" {
		format = FormatJSON
	}

	var bundle *Bundle
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}

		row, err := s.events.GetByID(dbc, in.DocumentID)
		if err != nil {
			return err
		}
		if row == nil {
			return versioning.NewError(versioning.CodeNotFound, op, "reporting event not found", nil)
		}
		docPayload, err := payloadMap(op, row.Payload)
		if err != nil {
			return err
		}

		b := &Bundle{
			FormatVersion: FormatVersion,
			ExportedAt:    time.Now().UTC(),
			Document: DocumentRecord{
				ID:          row.ID.String(),
				Name:        row.Name,
				Description: row.Description,
				StudyID:     row.StudyID,
				Status:      row.Status,
				Payload:     docPayload,
			},
		}

		var versionID *uuid.UUID
		if in.VersionID != nil && *in.VersionID != uuid.Nil {
			v, err := s.versions.GetByID(dbc, *in.VersionID)
			if err != nil {
				return err
			}
			if v == nil {
				return versioning.NewError(versioning.CodeNotFound, op, "version not found", nil)
			}
			if v.DocumentID != in.DocumentID {
				return versioning.NewError(versioning.CodeValidation, op, "version belongs to a different reporting event", nil)
			}
			snapPayload, err := payloadMap(op, v.Payload)
			if err != nil {
				return err
			}
			branchName := ""
			if br, err := s.branches.GetByID(dbc, v.BranchID); err == nil && br != nil {
				branchName = br.Name
			}
			b.Snapshot = &SnapshotRecord{
				VersionName: v.Name,
				Branch:      branchName,
				Tag:         v.Tag,
				CreatedAt:   v.CreatedAt,
				Payload:     snapPayload,
			}
			versionID = &v.ID
		}

		if _, err := s.history.Record(dbc, services.RecordInput{
			DocumentID: in.DocumentID,
			VersionID:  versionID,
			Action:     versioning.ActionDocumentExported,
			Actor:      in.Actor,
			Summary:    map[string]any{"format": string(format)},
		}); err != nil {
			return err
		}

		bundle = b
		return nil
	})
	if txErr != nil {
		return nil, store.MapError(op, txErr)
	}

	data, err := bundle.Encode(format)
	if err != nil {
		return nil, err
	}
	s.log.Info("Reporting event exported", "documentID", in.DocumentID, "format", format)
	return &ExportResult{Bundle: bundle, Data: data, Format: format}, nil
}

func (s *service) ImportData(ctx context.Context, data []byte, format Format, actor string) (*ImportResult, error) {
	bundle, err := DecodeBundle(data, format)
	if err != nil {
		return nil, err
	}
	return s.Import(ctx, bundle, actor)
}

// Import creates the reporting event described by the bundle, or updates it
// when the bundle's document id already exists, and materializes the payload
// as a snapshot on main. One transaction per bundle.
func (s *service) Import(ctx context.Context, bundle *Bundle, actor string) (*ImportResult, error) {
	const op = "exchange.import"

	if bundle == nil {
		return nil, versioning.NewError(versioning.CodeValidation, op, "bundle is required", nil)
	}

	payload := bundle.Document.Payload
	mode := "document"
	if bundle.Snapshot != nil {
		payload = bundle.Snapshot.Payload
		mode = "snapshot"
	}
	doc, err := payloadTree(op, payload)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(bundle.Document.Name)
	if name == "" {
		if nv, ok := doc.Get("name"); ok && nv.Kind() == tree.KindString {
			name = strings.TrimSpace(nv.StringVal())
		}
	}
	if name == "" {
		return nil, versioning.NewError(versioning.CodeValidation, op, "bundle document has no name", nil)
	}

	var pinnedID *uuid.UUID
	if raw := strings.TrimSpace(bundle.Document.ID); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, versioning.NewError(versioning.CodeValidation, op, "invalid document id "+raw, nil)
		}
		pinnedID = &id
	}

	var (
		out     ImportResult
		created bool
	)
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}

		var row *types.ReportingEvent
		if pinnedID != nil {
			existing, err := s.events.GetByID(dbc, *pinnedID)
			if err != nil {
				return err
			}
			row = existing
		}

		if row == nil {
			fresh, err := s.documents.CreateIn(dbc, services.CreateDocumentInput{
				ID:          pinnedID,
				Name:        name,
				Description: bundle.Document.Description,
				StudyID:     bundle.Document.StudyID,
				Status:      bundle.Document.Status,
				Payload:     doc,
				Actor:       actor,
			})
			if err != nil {
				return err
			}
			row = fresh
			created = true
		}

		branch, err := s.branchMgr.GetOrCreateBranch(dbc, row.ID, versioning.MainBranchName, actor)
		if err != nil {
			return err
		}
		if _, err := s.branches.LockByID(dbc, branch.ID); err != nil {
			return err
		}

		if !created {
			merged := doc
			if v := strings.TrimSpace(bundle.Document.Name); v != "" {
				if merged, err = merged.Set("name", tree.String(v)); err != nil {
					return versioning.Wrap(versioning.CodeSerialization, op, err)
				}
			}
			if v := strings.TrimSpace(bundle.Document.Description); v != "" {
				if merged, err = merged.Set("description", tree.String(v)); err != nil {
					return versioning.Wrap(versioning.CodeSerialization, op, err)
				}
			}
			if v := strings.TrimSpace(bundle.Document.Status); v != "" {
				if merged, err = merged.Set("status", tree.String(v)); err != nil {
					return versioning.Wrap(versioning.CodeSerialization, op, err)
				}
			}
			if err := s.documents.Deserialize(dbc, row.ID, merged); err != nil {
				return err
			}
			if v := strings.TrimSpace(bundle.Document.StudyID); v != "" && v != row.StudyID {
				if err := s.events.UpdateFields(dbc, row.ID, map[string]interface{}{"study_id": v}); err != nil {
					return err
				}
			}
		}

		// Snapshot exactly what the live row now holds, after the root-field
		// sync done by CreateIn/Deserialize.
		live, err := s.documents.Serialize(dbc, row.ID)
		if err != nil {
			return err
		}

		versionName := ""
		tag := ""
		if bundle.Snapshot != nil {
			versionName = strings.TrimSpace(bundle.Snapshot.VersionName)
			tag = strings.TrimSpace(bundle.Snapshot.Tag)
		}
		version, err := s.snapshots.SnapshotPayload(dbc, services.SnapshotInput{
			DocumentID: row.ID,
			Branch:     branch,
			Payload:    live,
			Name:       versionName,
			Tag:        tag,
			Actor:      actor,
			Action:     versioning.ActionDocumentImported,
			Summary:    map[string]any{"mode": mode, "created": created},
		})
		if err != nil {
			return err
		}

		refreshed, err := s.events.GetByID(dbc, row.ID)
		if err != nil {
			return err
		}
		if refreshed != nil {
			row = refreshed
		}

		out = ImportResult{Document: row, Version: version, Created: created}
		return nil
	})
	if txErr != nil {
		return nil, store.MapError(op, txErr)
	}

	s.log.Info("Reporting event imported", "documentID", out.Document.ID, "created", out.Created)
	s.notify.DocumentImported(out.Document.ID, out.Version)
	return &out, nil
}

// BatchImport imports bundles concurrently, one transaction each. A failed
// bundle is reported on its index and does not stop the rest; the returned
// error is reserved for context cancellation.
func (s *service) BatchImport(ctx context.Context, bundles []*Bundle, actor string) ([]BatchItem, error) {
	items := make([]BatchItem, len(bundles))
	for i := range items {
		items[i].Index = i
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batchLimit)

	for i, b := range bundles {
		i, b := i, b
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := s.Import(gctx, b, actor)
			if err != nil {
				items[i] = BatchItem{Index: i, Error: err.Error()}
				return nil
			}
			items[i] = BatchItem{Index: i, Result: res}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return items, err
	}

	failed := 0
	for _, it := range items {
		if it.Error != "" {
			failed++
		}
	}
	if failed > 0 {
		s.log.Warn("Batch import finished with failures", "total", len(bundles), "failed", failed)
	}
	return items, nil
}
