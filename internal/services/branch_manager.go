package services

import (
	"context"
	"encoding/json"
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

const maxBranchNameLen = 120

type CreateBranchInput struct {
	DocumentID uuid.UUID
	Name       string

	// SourceBranch defaults to main. SourceVersionID pins the fork point to
	// a specific snapshot on the source branch instead of its tip.
	SourceBranch    string
	SourceVersionID uuid.UUID

	Protected       bool
	ProtectionRules *types.ProtectionRuleSet

	Actor string
}

type BranchComparison struct {
	From *types.Version `json:"from"`
	To   *types.Version `json:"to"`

	// Diff lists the changes that turn From into To.
	Diff diff.ChangeSet `json:"diff"`
}

type BranchInfo struct {
	Branch              *types.Branch  `json:"branch"`
	VersionCount        int64          `json:"version_count"`
	Tip                 *types.Version `json:"tip,omitempty"`
	Ahead               int            `json:"ahead"`
	Behind              int            `json:"behind"`
	ActiveMergeRequests int            `json:"active_merge_requests"`
}

// BranchManager owns branch lifecycle: creation and deletion, protection
// flags, and branch-level comparison. main is created implicitly with the
// first snapshot and can never be deleted.
type BranchManager interface {
	CreateBranch(ctx context.Context, in CreateBranchInput) (*types.Branch, error)

	// GetOrCreateBranch runs inside the caller's transaction; main is
	// created protected when missing.
	GetOrCreateBranch(dbc dbctx.Context, documentID uuid.UUID, name, actor string) (*types.Branch, error)

	GetBranch(ctx context.Context, documentID uuid.UUID, name string) (*types.Branch, error)
	ListBranches(ctx context.Context, documentID uuid.UUID) ([]*types.Branch, error)
	DeleteBranch(ctx context.Context, documentID uuid.UUID, name string, force bool, actor string) error

	ProtectBranch(ctx context.Context, documentID uuid.UUID, name string, rules types.ProtectionRuleSet, actor string) (*types.Branch, error)
	UnprotectBranch(ctx context.Context, documentID uuid.UUID, name, actor string) (*types.Branch, error)

	CompareBranches(ctx context.Context, documentID uuid.UUID, fromName, toName string) (*BranchComparison, error)
	GetBranchInfo(ctx context.Context, documentID uuid.UUID, name string) (*BranchInfo, error)
}

type branchManager struct {
	db       *gorm.DB
	log      *logger.Logger
	events   repos.ReportingEventRepo
	branches repos.BranchRepo
	versions repos.VersionRepo
	mrs      repos.MergeRequestRepo
	history  HistoryTracker
	notify   BranchNotifier
}

func NewBranchManager(
	db *gorm.DB,
	baseLog *logger.Logger,
	events repos.ReportingEventRepo,
	branches repos.BranchRepo,
	versions repos.VersionRepo,
	mrs repos.MergeRequestRepo,
	history HistoryTracker,
	notify BranchNotifier,
) BranchManager {
	return &branchManager{
		db:       db,
		log:      baseLog.With("service", "BranchManager"),
		events:   events,
		branches: branches,
		versions: versions,
		mrs:      mrs,
		history:  history,
		notify:   notify,
	}
}

func (s *branchManager) CreateBranch(ctx context.Context, in CreateBranchInput) (*types.Branch, error) {
	const op = "branch.create"

	name, err := normalizeBranchName(op, in.Name)
	if err != nil {
		return nil, err
	}
	if name == versioning.MainBranchName {
		return nil, versioning.NewError(versioning.CodeValidation, op, "main is created implicitly with the first snapshot", nil)
	}

	var out *types.Branch
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}

		doc, err := s.events.GetByID(dbc, in.DocumentID)
		if err != nil {
			return err
		}
		if doc == nil {
			return versioning.NewError(versioning.CodeNotFound, op, "reporting event not found", nil)
		}
		if existing, err := s.branches.GetByDocumentAndName(dbc, in.DocumentID, name); err != nil {
			return err
		} else if existing != nil {
			return versioning.NewError(versioning.CodeConflict, op, "branch "+name+" already exists", nil)
		}

		srcName := strings.TrimSpace(in.SourceBranch)
		if srcName == "" {
			srcName = versioning.MainBranchName
		}
		src, err := s.GetOrCreateBranch(dbc, in.DocumentID, srcName, in.Actor)
		if err != nil {
			return err
		}

		var forkID *uuid.UUID
		if in.SourceVersionID != uuid.Nil {
			fork, err := s.versions.GetByID(dbc, in.SourceVersionID)
			if err != nil {
				return err
			}
			if fork == nil || fork.DocumentID != in.DocumentID {
				return versioning.NewError(versioning.CodeNotFound, op, "source version not found", nil)
			}
			if fork.BranchID != src.ID {
				return versioning.NewError(versioning.CodeValidation, op, "source version does not belong to branch "+srcName, nil)
			}
			forkID = &fork.ID
		} else {
			tip, err := resolveTip(dbc, s.versions, src)
			if err != nil {
				return err
			}
			if tip != nil {
				forkID = &tip.ID
			}
		}

		rules := types.ProtectionRuleSet{}
		if in.ProtectionRules != nil {
			rules = *in.ProtectionRules
		}
		rulesRaw, err := json.Marshal(rules)
		if err != nil {
			return versioning.Wrap(versioning.CodeSerialization, op, err)
		}

		row := &types.Branch{
			ID:              uuid.New(),
			DocumentID:      in.DocumentID,
			Name:            name,
			SourceBranchID:  &src.ID,
			SourceVersionID: forkID,
			Protected:       in.Protected,
			ProtectionRules: datatypes.JSON(rulesRaw),
			IsActive:        true,
			CreatedBy:       strings.TrimSpace(in.Actor),
		}
		if _, err := s.branches.Create(dbc, []*types.Branch{row}); err != nil {
			return err
		}

		summary := map[string]any{"name": name, "source_branch": src.Name}
		if forkID != nil {
			summary["source_version_id"] = forkID.String()
		}
		if _, err := s.history.Record(dbc, RecordInput{
			DocumentID: in.DocumentID,
			BranchID:   &row.ID,
			Action:     versioning.ActionBranchCreated,
			Actor:      in.Actor,
			Summary:    summary,
		}); err != nil {
			return err
		}
		out = row
		return nil
	})
	if txErr != nil {
		return nil, store.MapError(op, txErr)
	}

	s.log.Info("Branch created", "documentID", in.DocumentID, "branch", name)
	s.notify.BranchCreated(in.DocumentID, out)
	return out, nil
}

func (s *branchManager) GetOrCreateBranch(dbc dbctx.Context, documentID uuid.UUID, name, actor string) (*types.Branch, error) {
	const op = "branch.get_or_create"

	name, err := normalizeBranchName(op, name)
	if err != nil {
		return nil, err
	}
	row, err := s.branches.GetByDocumentAndName(dbc, documentID, name)
	if err != nil {
		return nil, store.MapError(op, err)
	}
	if row != nil {
		return row, nil
	}

	row = &types.Branch{
		ID:              uuid.New(),
		DocumentID:      documentID,
		Name:            name,
		Protected:       name == versioning.MainBranchName,
		ProtectionRules: datatypes.JSON([]byte(`{}`)),
		IsActive:        true,
		CreatedBy:       strings.TrimSpace(actor),
	}
	if _, err := s.branches.Create(dbc, []*types.Branch{row}); err != nil {
		return nil, store.MapError(op, err)
	}
	if _, err := s.history.Record(dbc, RecordInput{
		DocumentID: documentID,
		BranchID:   &row.ID,
		Action:     versioning.ActionBranchCreated,
		Actor:      actor,
		Summary:    map[string]any{"name": name, "implicit": true},
	}); err != nil {
		return nil, err
	}
	return row, nil
}

func (s *branchManager) GetBranch(ctx context.Context, documentID uuid.UUID, name string) (*types.Branch, error) {
	const op = "branch.get"
	row, err := s.branches.GetByDocumentAndName(dbctx.New(ctx), documentID, strings.TrimSpace(name))
	if err != nil {
		return nil, store.MapError(op, err)
	}
	if row == nil {
		return nil, versioning.NewError(versioning.CodeNotFound, op, "branch not found", nil)
	}
	return row, nil
}

func (s *branchManager) ListBranches(ctx context.Context, documentID uuid.UUID) ([]*types.Branch, error) {
	const op = "branch.list"
	rows, err := s.branches.ListByDocumentID(dbctx.New(ctx), documentID)
	if err != nil {
		return nil, store.MapError(op, err)
	}
	return rows, nil
}

func (s *branchManager) DeleteBranch(ctx context.Context, documentID uuid.UUID, name string, force bool, actor string) error {
	const op = "branch.delete"

	name = strings.TrimSpace(name)
	if name == versioning.MainBranchName {
		return versioning.NewError(versioning.CodeInvariantViolation, op, "main branch cannot be deleted", nil)
	}

	var deleted *types.Branch
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}

		row, err := s.branches.GetByDocumentAndName(dbc, documentID, name)
		if err != nil {
			return err
		}
		if row == nil {
			return versioning.NewError(versioning.CodeNotFound, op, "branch not found", nil)
		}
		if _, err := s.branches.LockByID(dbc, row.ID); err != nil {
			return err
		}

		count, err := s.versions.CountByBranchID(dbc, row.ID)
		if err != nil {
			return err
		}
		if row.Protected && !force {
			return versioning.NewError(versioning.CodeInvariantViolation, op, "branch "+name+" is protected; delete requires force", nil)
		}
		if count > 0 && !force {
			return versioning.NewError(versioning.CodeInvariantViolation, op, "branch "+name+" has versions; delete requires force", nil)
		}

		// Open merge requests pin the branch even under force; they must be
		// closed or merged first.
		active, err := s.mrs.ListActiveByBranchID(dbc, row.ID)
		if err != nil {
			return err
		}
		if len(active) > 0 {
			return versioning.NewError(versioning.CodeInvariantViolation, op, "branch "+name+" has active merge requests", nil)
		}

		if err := s.versions.DeleteByBranchID(dbc, row.ID); err != nil {
			return err
		}
		if err := s.branches.Delete(dbc, []uuid.UUID{row.ID}); err != nil {
			return err
		}
		if _, err := s.history.Record(dbc, RecordInput{
			DocumentID: documentID,
			BranchID:   &row.ID,
			Action:     versioning.ActionBranchDeleted,
			Actor:      actor,
			Summary:    map[string]any{"name": name, "forced": force, "versions_deleted": count},
		}); err != nil {
			return err
		}
		deleted = row
		return nil
	})
	if txErr != nil {
		return store.MapError(op, txErr)
	}

	s.log.Info("Branch deleted", "documentID", documentID, "branch", name, "forced", force)
	s.notify.BranchDeleted(documentID, deleted)
	return nil
}

func (s *branchManager) ProtectBranch(ctx context.Context, documentID uuid.UUID, name string, rules types.ProtectionRuleSet, actor string) (*types.Branch, error) {
	return s.setProtection(ctx, documentID, name, true, &rules, actor)
}

func (s *branchManager) UnprotectBranch(ctx context.Context, documentID uuid.UUID, name, actor string) (*types.Branch, error) {
	return s.setProtection(ctx, documentID, name, false, nil, actor)
}

func (s *branchManager) setProtection(ctx context.Context, documentID uuid.UUID, name string, protect bool, rules *types.ProtectionRuleSet, actor string) (*types.Branch, error) {
	const op = "branch.protect"

	var out *types.Branch
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}

		row, err := s.branches.GetByDocumentAndName(dbc, documentID, strings.TrimSpace(name))
		if err != nil {
			return err
		}
		if row == nil {
			return versioning.NewError(versioning.CodeNotFound, op, "branch not found", nil)
		}
		if _, err := s.branches.LockByID(dbc, row.ID); err != nil {
			return err
		}

		updates := map[string]interface{}{"protected": protect}
		if protect {
			set := types.ProtectionRuleSet{}
			if rules != nil {
				set = *rules
			}
			raw, err := json.Marshal(set)
			if err != nil {
				return versioning.Wrap(versioning.CodeSerialization, op, err)
			}
			updates["protection_rules"] = datatypes.JSON(raw)
		} else {
			updates["protection_rules"] = datatypes.JSON([]byte(`{}`))
		}
		if err := s.branches.UpdateFields(dbc, row.ID, updates); err != nil {
			return err
		}

		action := versioning.ActionBranchProtected
		if !protect {
			action = versioning.ActionBranchUnprotected
		}
		if _, err := s.history.Record(dbc, RecordInput{
			DocumentID: documentID,
			BranchID:   &row.ID,
			Action:     action,
			Actor:      actor,
			Summary:    map[string]any{"name": row.Name, "protected": protect},
		}); err != nil {
			return err
		}
		out, err = s.branches.GetByID(dbc, row.ID)
		return err
	})
	if txErr != nil {
		return nil, store.MapError(op, txErr)
	}
	return out, nil
}

func (s *branchManager) CompareBranches(ctx context.Context, documentID uuid.UUID, fromName, toName string) (*BranchComparison, error) {
	const op = "branch.compare"

	dbc := dbctx.New(ctx)
	from, err := s.branches.GetByDocumentAndName(dbc, documentID, strings.TrimSpace(fromName))
	if err != nil {
		return nil, store.MapError(op, err)
	}
	if from == nil {
		return nil, versioning.NewError(versioning.CodeNotFound, op, "branch "+fromName+" not found", nil)
	}
	to, err := s.branches.GetByDocumentAndName(dbc, documentID, strings.TrimSpace(toName))
	if err != nil {
		return nil, store.MapError(op, err)
	}
	if to == nil {
		return nil, versioning.NewError(versioning.CodeNotFound, op, "branch "+toName+" not found", nil)
	}

	fromTip, err := resolveTip(dbc, s.versions, from)
	if err != nil {
		return nil, store.MapError(op, err)
	}
	toTip, err := resolveTip(dbc, s.versions, to)
	if err != nil {
		return nil, store.MapError(op, err)
	}

	fromTree, err := snapshotTree(fromTip)
	if err != nil {
		return nil, err
	}
	toTree, err := snapshotTree(toTip)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	cs := diff.Compare(fromTree, toTree)
	if metrics := observability.Current(); metrics != nil {
		metrics.ObserveDiff(time.Since(start))
	}
	return &BranchComparison{
		From: fromTip,
		To:   toTip,
		Diff: cs,
	}, nil
}

func (s *branchManager) GetBranchInfo(ctx context.Context, documentID uuid.UUID, name string) (*BranchInfo, error) {
	const op = "branch.info"

	dbc := dbctx.New(ctx)
	row, err := s.branches.GetByDocumentAndName(dbc, documentID, strings.TrimSpace(name))
	if err != nil {
		return nil, store.MapError(op, err)
	}
	if row == nil {
		return nil, versioning.NewError(versioning.CodeNotFound, op, "branch not found", nil)
	}

	count, err := s.versions.CountByBranchID(dbc, row.ID)
	if err != nil {
		return nil, store.MapError(op, err)
	}
	tip, err := resolveTip(dbc, s.versions, row)
	if err != nil {
		return nil, store.MapError(op, err)
	}
	active, err := s.mrs.ListActiveByBranchID(dbc, row.ID)
	if err != nil {
		return nil, store.MapError(op, err)
	}

	info := &BranchInfo{
		Branch:              row,
		VersionCount:        count,
		Tip:                 tip,
		ActiveMergeRequests: len(active),
	}
	if row.Name != versioning.MainBranchName {
		ahead, behind, err := s.aheadBehind(dbc, row, count)
		if err != nil {
			return nil, store.MapError(op, err)
		}
		info.Ahead, info.Behind = ahead, behind
	}
	return info, nil
}

// aheadBehind counts snapshots added on the branch since its fork point and
// snapshots added on main in the same window.
func (s *branchManager) aheadBehind(dbc dbctx.Context, row *types.Branch, count int64) (int, int, error) {
	main, err := s.branches.GetByDocumentAndName(dbc, row.DocumentID, versioning.MainBranchName)
	if err != nil || main == nil {
		return int(count), 0, err
	}

	var fork *types.Version
	if row.SourceVersionID != nil {
		fork, err = s.versions.GetByID(dbc, *row.SourceVersionID)
		if err != nil {
			return 0, 0, err
		}
	}
	mainRows, err := s.versions.ListByBranchID(dbc, main.ID, 0, 0)
	if err != nil {
		return 0, 0, err
	}
	behind := 0
	for _, v := range mainRows {
		if fork == nil || v.CreatedAt.After(fork.CreatedAt) {
			behind++
		}
	}
	return int(count), behind, nil
}

func normalizeBranchName(op, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", versioning.NewError(versioning.CodeValidation, op, "branch name is required", nil)
	}
	if len(name) > maxBranchNameLen {
		return "", versioning.NewError(versioning.CodeValidation, op, "branch name is too long", nil)
	}
	return name, nil
}

// resolveTip finds the branch head: the current version, or the fork point
// for a branch that has no snapshots of its own yet. nil means the document
// has never been snapshotted on this line.
func resolveTip(dbc dbctx.Context, versions repos.VersionRepo, branch *types.Branch) (*types.Version, error) {
	if branch == nil {
		return nil, nil
	}
	cur, err := versions.GetCurrentByBranchID(dbc, branch.ID)
	if err != nil {
		return nil, err
	}
	if cur != nil {
		return cur, nil
	}
	if branch.SourceVersionID != nil {
		return versions.GetByID(dbc, *branch.SourceVersionID)
	}
	return nil, nil
}

// snapshotTree decodes a version payload. A nil version stands for the empty
// document.
func snapshotTree(v *types.Version) (tree.Value, error) {
	const op = "version.decode"
	if v == nil {
		return tree.Object(nil), nil
	}
	doc, err := tree.FromJSON([]byte(v.Payload))
	if err != nil {
		return tree.Null(), versioning.Wrap(versioning.CodeSerialization, op, err)
	}
	if doc.Kind() != tree.KindObject {
		return tree.Null(), versioning.NewError(versioning.CodeSerialization, op, "version payload is not a JSON object", nil)
	}
	return doc, nil
}
