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
	"github.com/trialworks/ars-backend/internal/pkg/dbctx"
	"github.com/trialworks/ars-backend/internal/pkg/logger"
)

var knownActions = map[string]bool{
	versioning.ActionVersionCreated:     true,
	versioning.ActionVersionRestored:    true,
	versioning.ActionBranchCreated:      true,
	versioning.ActionBranchDeleted:      true,
	versioning.ActionBranchProtected:    true,
	versioning.ActionBranchUnprotected:  true,
	versioning.ActionMergeRequestOpened: true,
	versioning.ActionMergeCompleted:     true,
	versioning.ActionMergeRequestClosed: true,
	versioning.ActionCherryPicked:       true,
	versioning.ActionReverted:           true,
	versioning.ActionDocumentImported:   true,
	versioning.ActionDocumentExported:   true,
}

type RecordInput struct {
	DocumentID uuid.UUID
	BranchID   *uuid.UUID
	VersionID  *uuid.UUID
	Action     string
	Actor      string
	Summary    map[string]any
}

type HistoryQuery struct {
	DocumentID uuid.UUID
	BranchID   *uuid.UUID
	Actions    []string
	Actor      string
	From       *time.Time
	To         *time.Time
	Limit      int
	Offset     int
}

// VersionLineage places one version within its branch: the snapshots that
// came before it, the snapshots built on top of it, and the audit rows that
// reference it (merges, cherry-picks, reverts, restores).
type VersionLineage struct {
	Version     *types.Version     `json:"version"`
	Ancestors   []*types.Version   `json:"ancestors"`
	Descendants []*types.Version   `json:"descendants"`
	Related     []*types.ChangeLog `json:"related"`
}

type ActivitySummary struct {
	Actor        string             `json:"actor"`
	Since        time.Time          `json:"since"`
	Total        int                `json:"total"`
	ActionCounts map[string]int     `json:"action_counts"`
	Recent       []*types.ChangeLog `json:"recent"`
}

// HistoryTracker writes and queries the append-only audit trail. Record runs
// inside the caller's transaction so a rolled-back mutation leaves no log row.
type HistoryTracker interface {
	Record(dbc dbctx.Context, in RecordInput) (*types.ChangeLog, error)

	GetChangeHistory(ctx context.Context, q HistoryQuery) ([]*types.ChangeLog, error)
	GetVersionHistory(ctx context.Context, versionID uuid.UUID) ([]*types.ChangeLog, error)
	GetVersionLineage(ctx context.Context, versionID uuid.UUID, maxDepth int) (*VersionLineage, error)
	GetUserActivity(ctx context.Context, actor string, since time.Time, limit int) (*ActivitySummary, error)
}

type historyTracker struct {
	db       *gorm.DB
	log      *logger.Logger
	logs     repos.ChangeLogRepo
	versions repos.VersionRepo
}

func NewHistoryTracker(db *gorm.DB, baseLog *logger.Logger, logs repos.ChangeLogRepo, versions repos.VersionRepo) HistoryTracker {
	return &historyTracker{
		db:       db,
		log:      baseLog.With("service", "HistoryTracker"),
		logs:     logs,
		versions: versions,
	}
}

func (s *historyTracker) Record(dbc dbctx.Context, in RecordInput) (*types.ChangeLog, error) {
	const op = "history.record"

	if in.DocumentID == uuid.Nil {
		return nil, versioning.NewError(versioning.CodeValidation, op, "document id is required", nil)
	}
	if !knownActions[in.Action] {
		return nil, versioning.NewError(versioning.CodeValidation, op, "unknown action "+in.Action, nil)
	}
	actor := strings.TrimSpace(in.Actor)
	if actor == "" {
		actor = "system"
	}

	summary := in.Summary
	if summary == nil {
		summary = map[string]any{}
	}
	raw, err := json.Marshal(summary)
	if err != nil {
		return nil, versioning.Wrap(versioning.CodeSerialization, op, err)
	}

	row := &types.ChangeLog{
		ID:         uuid.New(),
		DocumentID: in.DocumentID,
		BranchID:   in.BranchID,
		VersionID:  in.VersionID,
		Action:     in.Action,
		Summary:    datatypes.JSON(raw),
		Actor:      actor,
	}
	if _, err := s.logs.Create(dbc, []*types.ChangeLog{row}); err != nil {
		return nil, store.MapError(op, err)
	}
	return row, nil
}

func (s *historyTracker) GetChangeHistory(ctx context.Context, q HistoryQuery) ([]*types.ChangeLog, error) {
	const op = "history.change_history"
	if q.DocumentID == uuid.Nil {
		return nil, versioning.NewError(versioning.CodeValidation, op, "document id is required", nil)
	}
	for _, a := range q.Actions {
		if !knownActions[a] {
			return nil, versioning.NewError(versioning.CodeValidation, op, "unknown action "+a, nil)
		}
	}
	rows, err := s.logs.Search(dbctx.New(ctx), q.DocumentID, q.BranchID, q.Actions, strings.TrimSpace(q.Actor), q.From, q.To, q.Limit, q.Offset)
	if err != nil {
		return nil, store.MapError(op, err)
	}
	return rows, nil
}

func (s *historyTracker) GetVersionHistory(ctx context.Context, versionID uuid.UUID) ([]*types.ChangeLog, error) {
	const op = "history.version_history"
	if versionID == uuid.Nil {
		return nil, versioning.NewError(versioning.CodeValidation, op, "version id is required", nil)
	}
	rows, err := s.logs.ListByVersionID(dbctx.New(ctx), versionID)
	if err != nil {
		return nil, store.MapError(op, err)
	}
	return rows, nil
}

func (s *historyTracker) GetVersionLineage(ctx context.Context, versionID uuid.UUID, maxDepth int) (*VersionLineage, error) {
	const op = "history.version_lineage"

	dbc := dbctx.New(ctx)
	v, err := s.versions.GetByID(dbc, versionID)
	if err != nil {
		return nil, store.MapError(op, err)
	}
	if v == nil {
		return nil, versioning.NewError(versioning.CodeNotFound, op, "version not found", nil)
	}

	// Newest first; everything before the version in this ordering is a
	// descendant, everything after an ancestor.
	all, err := s.versions.ListByBranchID(dbc, v.BranchID, 0, 0)
	if err != nil {
		return nil, store.MapError(op, err)
	}

	lineage := &VersionLineage{
		Version:     v,
		Ancestors:   []*types.Version{},
		Descendants: []*types.Version{},
	}
	seen := false
	for _, row := range all {
		switch {
		case row.ID == v.ID:
			seen = true
		case !seen:
			lineage.Descendants = append(lineage.Descendants, row)
		default:
			lineage.Ancestors = append(lineage.Ancestors, row)
		}
	}
	if maxDepth > 0 {
		if len(lineage.Ancestors) > maxDepth {
			lineage.Ancestors = lineage.Ancestors[:maxDepth]
		}
		if len(lineage.Descendants) > maxDepth {
			lineage.Descendants = lineage.Descendants[len(lineage.Descendants)-maxDepth:]
		}
	}

	related, err := s.logs.ListByVersionID(dbc, versionID)
	if err != nil {
		return nil, store.MapError(op, err)
	}
	lineage.Related = related
	return lineage, nil
}

func (s *historyTracker) GetUserActivity(ctx context.Context, actor string, since time.Time, limit int) (*ActivitySummary, error) {
	const op = "history.user_activity"

	actor = strings.TrimSpace(actor)
	if actor == "" {
		return nil, versioning.NewError(versioning.CodeValidation, op, "actor is required", nil)
	}
	rows, err := s.logs.ListByActor(dbctx.New(ctx), actor, since, limit)
	if err != nil {
		return nil, store.MapError(op, err)
	}

	counts := map[string]int{}
	for _, row := range rows {
		counts[row.Action]++
	}
	return &ActivitySummary{
		Actor:        actor,
		Since:        since,
		Total:        len(rows),
		ActionCounts: counts,
		Recent:       rows,
	}, nil
}
