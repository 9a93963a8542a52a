package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/trialworks/ars-backend/internal/data/repos"
	"github.com/trialworks/ars-backend/internal/data/store"
	types "github.com/trialworks/ars-backend/internal/domain"
	"github.com/trialworks/ars-backend/internal/domain/versioning"
	"github.com/trialworks/ars-backend/internal/observability"
	"github.com/trialworks/ars-backend/internal/pkg/dbctx"
	"github.com/trialworks/ars-backend/internal/pkg/logger"
	"github.com/trialworks/ars-backend/internal/vcs/diff"
	"github.com/trialworks/ars-backend/internal/vcs/tree"
)

type CreateVersionInput struct {
	DocumentID  uuid.UUID
	Branch      string
	Name        string
	Description string
	Tag         string
	Actor       string
}

// SnapshotInput is the transactional snapshot primitive. Branch must already
// be resolved and row-locked by the caller.
type SnapshotInput struct {
	DocumentID  uuid.UUID
	Branch      *types.Branch
	Payload     tree.Value
	Name        string
	Description string
	Tag         string
	Actor       string

	// Action and Summary feed the change log row written with the snapshot.
	Action  string
	Summary map[string]any
}

type VersionComparison struct {
	From *types.Version `json:"from"`
	To   *types.Version `json:"to"`

	Diff    diff.ChangeSet `json:"diff"`
	Summary diff.Summary   `json:"summary"`
}

// VersionManager owns snapshot lifecycle: capturing the live document as an
// immutable version, restoring a version back onto the live document, and
// version-level queries. One snapshot plus its audit row commit atomically.
type VersionManager interface {
	CreateVersion(ctx context.Context, in CreateVersionInput) (*types.Version, error)

	// SnapshotPayload inserts a version and makes it the branch tip inside
	// the caller's transaction. dbc.Tx must be set; the caller holds the
	// branch row lock.
	SnapshotPayload(dbc dbctx.Context, in SnapshotInput) (*types.Version, error)

	GetVersion(ctx context.Context, id uuid.UUID) (*types.Version, error)
	ListVersions(ctx context.Context, documentID uuid.UUID, branchName string, limit, offset int) ([]*types.Version, error)
	ListVersionsByTag(ctx context.Context, documentID uuid.UUID, tag string) ([]*types.Version, error)

	CompareVersions(ctx context.Context, fromID, toID uuid.UUID) (*VersionComparison, error)
	FieldHistory(ctx context.Context, documentID uuid.UUID, branchName, path string) ([]diff.FieldSnapshot, error)

	RestoreVersion(ctx context.Context, versionID uuid.UUID, backup bool, actor string) (*types.Version, error)
	CreateBranchFromVersion(ctx context.Context, versionID uuid.UUID, branchName, actor string) (*types.Branch, *types.Version, error)

	TagVersion(ctx context.Context, versionID uuid.UUID, tag string) (*types.Version, error)
}

type versionManager struct {
	db           *gorm.DB
	log          *logger.Logger
	documents    DocumentService
	branches     repos.BranchRepo
	versions     repos.VersionRepo
	branchMgr    BranchManager
	history      HistoryTracker
	notify       VersionNotifier
	branchNotify BranchNotifier
}

func NewVersionManager(
	db *gorm.DB,
	baseLog *logger.Logger,
	documents DocumentService,
	branches repos.BranchRepo,
	versions repos.VersionRepo,
	branchMgr BranchManager,
	history HistoryTracker,
	notify VersionNotifier,
	branchNotify BranchNotifier,
) VersionManager {
	return &versionManager{
		db:           db,
		log:          baseLog.With("service", "VersionManager"),
		documents:    documents,
		branches:     branches,
		versions:     versions,
		branchMgr:    branchMgr,
		history:      history,
		notify:       notify,
		branchNotify: branchNotify,
	}
}

func (s *versionManager) CreateVersion(ctx context.Context, in CreateVersionInput) (*types.Version, error) {
	const op = "version.create"

	branchName := strings.TrimSpace(in.Branch)
	if branchName == "" {
		branchName = versioning.MainBranchName
	}

	var out *types.Version
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}

		doc, err := s.documents.Serialize(dbc, in.DocumentID)
		if err != nil {
			return err
		}
		branch, err := s.branchMgr.GetOrCreateBranch(dbc, in.DocumentID, branchName, in.Actor)
		if err != nil {
			return err
		}
		if restrictsPush(branch) {
			return versioning.NewError(versioning.CodeInvariantViolation, op, "branch "+branch.Name+" only accepts merges", nil)
		}
		if _, err := s.branches.LockByID(dbc, branch.ID); err != nil {
			return err
		}

		out, err = s.SnapshotPayload(dbc, SnapshotInput{
			DocumentID:  in.DocumentID,
			Branch:      branch,
			Payload:     doc,
			Name:        in.Name,
			Description: in.Description,
			Tag:         in.Tag,
			Actor:       in.Actor,
			Action:      versioning.ActionVersionCreated,
		})
		return err
	})
	if txErr != nil {
		return nil, store.MapError(op, txErr)
	}

	s.log.Info("Version created", "documentID", in.DocumentID, "branch", branchName, "versionID", out.ID)
	s.notify.VersionCreated(in.DocumentID, out)
	return out, nil
}

func (s *versionManager) SnapshotPayload(dbc dbctx.Context, in SnapshotInput) (*types.Version, error) {
	const op = "version.snapshot"

	if dbc.Tx == nil {
		return nil, versioning.NewError(versioning.CodeInternal, op, "snapshot requires a transaction", nil)
	}
	if in.Branch == nil {
		return nil, versioning.NewError(versioning.CodeInternal, op, "snapshot requires a resolved branch", nil)
	}
	if in.Payload.Kind() != tree.KindObject {
		return nil, versioning.NewError(versioning.CodeSerialization, op, "snapshot payload must be a JSON object", nil)
	}

	raw, err := in.Payload.MarshalJSON()
	if err != nil {
		return nil, versioning.Wrap(versioning.CodeSerialization, op, err)
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		count, err := s.versions.CountByBranchID(dbc, in.Branch.ID)
		if err != nil {
			return nil, store.MapError(op, err)
		}
		name = fmt.Sprintf("v%d", count+1)
	}

	row := &types.Version{
		ID:          uuid.New(),
		DocumentID:  in.DocumentID,
		BranchID:    in.Branch.ID,
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		Payload:     datatypes.JSON(raw),
		Author:      strings.TrimSpace(in.Actor),
		Tag:         strings.TrimSpace(in.Tag),
	}
	if _, err := s.versions.Create(dbc, []*types.Version{row}); err != nil {
		return nil, store.MapError(op, err)
	}
	if err := s.versions.SetCurrent(dbc, in.Branch.ID, row.ID); err != nil {
		return nil, store.MapError(op, err)
	}
	row.IsCurrent = true

	summary := map[string]any{"branch": in.Branch.Name, "version_name": name}
	for k, v := range in.Summary {
		summary[k] = v
	}
	if _, err := s.history.Record(dbc, RecordInput{
		DocumentID: in.DocumentID,
		BranchID:   &in.Branch.ID,
		VersionID:  &row.ID,
		Action:     in.Action,
		Actor:      in.Actor,
		Summary:    summary,
	}); err != nil {
		return nil, err
	}
	if metrics := observability.Current(); metrics != nil {
		metrics.IncVersionOp(in.Action)
	}
	return row, nil
}

func (s *versionManager) GetVersion(ctx context.Context, id uuid.UUID) (*types.Version, error) {
	const op = "version.get"
	row, err := s.versions.GetByID(dbctx.New(ctx), id)
	if err != nil {
		return nil, store.MapError(op, err)
	}
	if row == nil {
		return nil, versioning.NewError(versioning.CodeNotFound, op, "version not found", nil)
	}
	return row, nil
}

func (s *versionManager) ListVersions(ctx context.Context, documentID uuid.UUID, branchName string, limit, offset int) ([]*types.Version, error) {
	const op = "version.list"

	dbc := dbctx.New(ctx)
	branchName = strings.TrimSpace(branchName)
	if branchName == "" {
		rows, err := s.versions.ListByDocumentID(dbc, documentID, limit, offset)
		if err != nil {
			return nil, store.MapError(op, err)
		}
		return rows, nil
	}

	branch, err := s.branches.GetByDocumentAndName(dbc, documentID, branchName)
	if err != nil {
		return nil, store.MapError(op, err)
	}
	if branch == nil {
		return nil, versioning.NewError(versioning.CodeNotFound, op, "branch not found", nil)
	}
	rows, err := s.versions.ListByBranchID(dbc, branch.ID, limit, offset)
	if err != nil {
		return nil, store.MapError(op, err)
	}
	return rows, nil
}

func (s *versionManager) ListVersionsByTag(ctx context.Context, documentID uuid.UUID, tag string) ([]*types.Version, error) {
	const op = "version.list_by_tag"
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return nil, versioning.NewError(versioning.CodeValidation, op, "tag is required", nil)
	}
	rows, err := s.versions.ListByTag(dbctx.New(ctx), documentID, tag)
	if err != nil {
		return nil, store.MapError(op, err)
	}
	return rows, nil
}

func (s *versionManager) CompareVersions(ctx context.Context, fromID, toID uuid.UUID) (*VersionComparison, error) {
	const op = "version.compare"

	dbc := dbctx.New(ctx)
	from, err := s.versions.GetByID(dbc, fromID)
	if err != nil {
		return nil, store.MapError(op, err)
	}
	if from == nil {
		return nil, versioning.NewError(versioning.CodeNotFound, op, "version not found", nil)
	}
	to, err := s.versions.GetByID(dbc, toID)
	if err != nil {
		return nil, store.MapError(op, err)
	}
	if to == nil {
		return nil, versioning.NewError(versioning.CodeNotFound, op, "version not found", nil)
	}
	if from.DocumentID != to.DocumentID {
		return nil, versioning.NewError(versioning.CodeValidation, op, "versions belong to different reporting events", nil)
	}

	fromTree, err := snapshotTree(from)
	if err != nil {
		return nil, err
	}
	toTree, err := snapshotTree(to)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	cs := diff.Compare(fromTree, toTree)
	if metrics := observability.Current(); metrics != nil {
		metrics.ObserveDiff(time.Since(start))
	}
	return &VersionComparison{From: from, To: to, Diff: cs, Summary: cs.Summary()}, nil
}

func (s *versionManager) FieldHistory(ctx context.Context, documentID uuid.UUID, branchName, path string) ([]diff.FieldSnapshot, error) {
	const op = "version.field_history"

	path = strings.TrimSpace(path)
	if path == "" {
		return nil, versioning.NewError(versioning.CodeValidation, op, "path is required", nil)
	}
	branchName = strings.TrimSpace(branchName)
	if branchName == "" {
		branchName = versioning.MainBranchName
	}

	dbc := dbctx.New(ctx)
	branch, err := s.branches.GetByDocumentAndName(dbc, documentID, branchName)
	if err != nil {
		return nil, store.MapError(op, err)
	}
	if branch == nil {
		return nil, versioning.NewError(versioning.CodeNotFound, op, "branch not found", nil)
	}
	rows, err := s.versions.ListByBranchID(dbc, branch.ID, 0, 0)
	if err != nil {
		return nil, store.MapError(op, err)
	}

	// FieldHistory wants oldest first.
	payloads := make([]diff.VersionPayload, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		doc, err := snapshotTree(rows[i])
		if err != nil {
			return nil, err
		}
		payloads = append(payloads, diff.VersionPayload{
			VersionID: rows[i].ID,
			Name:      rows[i].Name,
			Payload:   doc,
		})
	}
	return diff.FieldHistory(payloads, path), nil
}

func (s *versionManager) RestoreVersion(ctx context.Context, versionID uuid.UUID, backup bool, actor string) (*types.Version, error) {
	const op = "version.restore"

	var restored *types.Version
	var backupRow *types.Version
	var documentID uuid.UUID

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}

		v, err := s.versions.GetByID(dbc, versionID)
		if err != nil {
			return err
		}
		if v == nil {
			return versioning.NewError(versioning.CodeNotFound, op, "version not found", nil)
		}
		documentID = v.DocumentID

		branch, err := s.branches.GetByID(dbc, v.BranchID)
		if err != nil {
			return err
		}
		if branch == nil {
			return versioning.NewError(versioning.CodeNotFound, op, "branch for version no longer exists", nil)
		}
		if _, err := s.branches.LockByID(dbc, branch.ID); err != nil {
			return err
		}

		restoredTree, err := snapshotTree(v)
		if err != nil {
			return err
		}

		if backup {
			live, err := s.documents.Serialize(dbc, v.DocumentID)
			if err != nil {
				return err
			}
			if !tree.Equal(live, restoredTree) {
				backupRow, err = s.SnapshotPayload(dbc, SnapshotInput{
					DocumentID: v.DocumentID,
					Branch:     branch,
					Payload:    live,
					Name:       "pre-restore backup",
					Actor:      actor,
					Action:     versioning.ActionVersionCreated,
					Summary:    map[string]any{"backup_before_restore": true, "restoring": v.ID.String()},
				})
				if err != nil {
					return err
				}
			}
		}

		if err := s.documents.Deserialize(dbc, v.DocumentID, restoredTree); err != nil {
			return err
		}
		if err := s.versions.SetCurrent(dbc, branch.ID, v.ID); err != nil {
			return err
		}

		summary := map[string]any{"branch": branch.Name, "version_name": v.Name}
		if backupRow != nil {
			summary["backup_version_id"] = backupRow.ID.String()
		}
		if _, err := s.history.Record(dbc, RecordInput{
			DocumentID: v.DocumentID,
			BranchID:   &branch.ID,
			VersionID:  &v.ID,
			Action:     versioning.ActionVersionRestored,
			Actor:      actor,
			Summary:    summary,
		}); err != nil {
			return err
		}
		restored = v
		restored.IsCurrent = true
		return nil
	})
	if txErr != nil {
		return nil, store.MapError(op, txErr)
	}

	s.log.Info("Version restored", "documentID", documentID, "versionID", versionID)
	s.notify.VersionRestored(documentID, restored, backupRow)
	return restored, nil
}

func (s *versionManager) CreateBranchFromVersion(ctx context.Context, versionID uuid.UUID, branchName, actor string) (*types.Branch, *types.Version, error) {
	const op = "version.branch_from"

	name, err := normalizeBranchName(op, branchName)
	if err != nil {
		return nil, nil, err
	}
	if name == versioning.MainBranchName {
		return nil, nil, versioning.NewError(versioning.CodeValidation, op, "main is created implicitly with the first snapshot", nil)
	}

	var branch *types.Branch
	var initial *types.Version
	var documentID uuid.UUID

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}

		v, err := s.versions.GetByID(dbc, versionID)
		if err != nil {
			return err
		}
		if v == nil {
			return versioning.NewError(versioning.CodeNotFound, op, "version not found", nil)
		}
		documentID = v.DocumentID

		if existing, err := s.branches.GetByDocumentAndName(dbc, v.DocumentID, name); err != nil {
			return err
		} else if existing != nil {
			return versioning.NewError(versioning.CodeConflict, op, "branch "+name+" already exists", nil)
		}

		branch = &types.Branch{
			ID:              uuid.New(),
			DocumentID:      v.DocumentID,
			Name:            name,
			SourceBranchID:  &v.BranchID,
			SourceVersionID: &v.ID,
			ProtectionRules: datatypes.JSON([]byte(`{}`)),
			IsActive:        true,
			CreatedBy:       strings.TrimSpace(actor),
		}
		if _, err := s.branches.Create(dbc, []*types.Branch{branch}); err != nil {
			return err
		}
		if _, err := s.history.Record(dbc, RecordInput{
			DocumentID: v.DocumentID,
			BranchID:   &branch.ID,
			Action:     versioning.ActionBranchCreated,
			Actor:      actor,
			Summary:    map[string]any{"name": name, "source_version_id": v.ID.String()},
		}); err != nil {
			return err
		}

		doc, err := snapshotTree(v)
		if err != nil {
			return err
		}
		initial, err = s.SnapshotPayload(dbc, SnapshotInput{
			DocumentID:  v.DocumentID,
			Branch:      branch,
			Payload:     doc,
			Name:        v.Name,
			Description: v.Description,
			Actor:       actor,
			Action:      versioning.ActionVersionCreated,
			Summary:     map[string]any{"forked_from": v.ID.String()},
		})
		return err
	})
	if txErr != nil {
		return nil, nil, store.MapError(op, txErr)
	}

	s.log.Info("Branch forked from version", "documentID", documentID, "branch", name, "versionID", versionID)
	s.branchNotify.BranchCreated(documentID, branch)
	s.notify.VersionCreated(documentID, initial)
	return branch, initial, nil
}

func (s *versionManager) TagVersion(ctx context.Context, versionID uuid.UUID, tag string) (*types.Version, error) {
	const op = "version.tag"

	dbc := dbctx.New(ctx)
	v, err := s.versions.GetByID(dbc, versionID)
	if err != nil {
		return nil, store.MapError(op, err)
	}
	if v == nil {
		return nil, versioning.NewError(versioning.CodeNotFound, op, "version not found", nil)
	}
	if err := s.versions.UpdateFields(dbc, versionID, map[string]interface{}{"tag": strings.TrimSpace(tag)}); err != nil {
		return nil, store.MapError(op, err)
	}
	v.Tag = strings.TrimSpace(tag)
	return v, nil
}
