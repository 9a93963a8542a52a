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
	"github.com/trialworks/ars-backend/internal/pkg/envutil"
	"github.com/trialworks/ars-backend/internal/pkg/logger"
	"github.com/trialworks/ars-backend/internal/vcs/conflict"
	"github.com/trialworks/ars-backend/internal/vcs/diff"
	"github.com/trialworks/ars-backend/internal/vcs/merge"
	"github.com/trialworks/ars-backend/internal/vcs/tree"
)

// forkChainLimit bounds the fork-point walk when locating a merge base
// across nested branches.
const forkChainLimit = 16

type CreateMergeRequestInput struct {
	DocumentID   uuid.UUID
	SourceBranch string
	TargetBranch string
	Title        string
	Description  string
	Reviewers    []string
	TieBreak     string
	Draft        bool
	Actor        string
}

type ResolutionInput struct {
	Path      string      `json:"path"`
	Strategy  string      `json:"strategy"`
	Value     *tree.Value `json:"value,omitempty"`
	Rationale string      `json:"rationale,omitempty"`
}

type MergeResult struct {
	MergeRequest *types.MergeRequest         `json:"merge_request"`
	Version      *types.Version              `json:"version"`
	Resolutions  []*types.ConflictResolution `json:"resolutions,omitempty"`
}

// MergeEngine owns the merge request lifecycle plus the cherry-pick and
// revert operations that reuse its change-set machinery. Conflicts are
// computed eagerly at creation against pinned tip versions so the review
// set stays stable; the merge itself re-checks that the target has not
// advanced past the pinned tip.
type MergeEngine interface {
	CreateMergeRequest(ctx context.Context, in CreateMergeRequestInput) (*types.MergeRequest, error)
	GetMergeRequest(ctx context.Context, id uuid.UUID) (*types.MergeRequest, error)
	ListMergeRequests(ctx context.Context, documentID uuid.UUID, statuses []string, limit, offset int) ([]*types.MergeRequest, error)
	MarkReady(ctx context.Context, id uuid.UUID, actor string) (*types.MergeRequest, error)

	ListConflicts(ctx context.Context, id uuid.UUID) ([]conflict.Conflict, error)
	SuggestResolutions(ctx context.Context, id uuid.UUID) (map[string][]conflict.Suggestion, error)

	AutoMerge(ctx context.Context, id uuid.UUID, actor string) (*MergeResult, error)
	ManualMerge(ctx context.Context, id uuid.UUID, resolutions []ResolutionInput, actor string) (*MergeResult, error)
	CloseMergeRequest(ctx context.Context, id uuid.UUID, reason, actor string) (*types.MergeRequest, error)

	CherryPick(ctx context.Context, versionID uuid.UUID, targetBranch string, paths []string, actor string) (*types.Version, error)
	Revert(ctx context.Context, versionID uuid.UUID, targetBranch string, actor string) (*types.Version, error)
}

type mergeEngine struct {
	db          *gorm.DB
	log         *logger.Logger
	branches    repos.BranchRepo
	versions    repos.VersionRepo
	mrs         repos.MergeRequestRepo
	resolutions repos.ConflictResolutionRepo
	versionMgr  VersionManager
	history     HistoryTracker
	notify      MergeNotifier
	vnotify     VersionNotifier

	// tieBreak is the deployment-wide default for merge requests that do
	// not choose a side themselves.
	tieBreak string
}

func NewMergeEngine(
	db *gorm.DB,
	baseLog *logger.Logger,
	branches repos.BranchRepo,
	versions repos.VersionRepo,
	mrs repos.MergeRequestRepo,
	resolutions repos.ConflictResolutionRepo,
	versionMgr VersionManager,
	history HistoryTracker,
	notify MergeNotifier,
	vnotify VersionNotifier,
) MergeEngine {
	tieBreak := envutil.GetEnv("MERGE_TIE_BREAK", versioning.TieBreakSource, baseLog)
	if tieBreak != versioning.TieBreakSource && tieBreak != versioning.TieBreakTarget {
		tieBreak = versioning.TieBreakSource
	}
	return &mergeEngine{
		db:          db,
		log:         baseLog.With("service", "MergeEngine"),
		branches:    branches,
		versions:    versions,
		mrs:         mrs,
		resolutions: resolutions,
		versionMgr:  versionMgr,
		history:     history,
		notify:      notify,
		vnotify:     vnotify,
		tieBreak:    tieBreak,
	}
}

func (s *mergeEngine) CreateMergeRequest(ctx context.Context, in CreateMergeRequestInput) (*types.MergeRequest, error) {
	const op = "merge.create_request"

	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, versioning.NewError(versioning.CodeValidation, op, "title is required", nil)
	}
	tieBreak := strings.TrimSpace(in.TieBreak)
	if tieBreak == "" {
		tieBreak = s.tieBreak
	}
	if tieBreak != versioning.TieBreakSource && tieBreak != versioning.TieBreakTarget {
		return nil, versioning.NewError(versioning.CodeValidation, op, "tie_break must be source or target", nil)
	}

	var out *types.MergeRequest
	var detected []conflict.Conflict
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}

		src, err := s.branches.GetByDocumentAndName(dbc, in.DocumentID, strings.TrimSpace(in.SourceBranch))
		if err != nil {
			return err
		}
		if src == nil {
			return versioning.NewError(versioning.CodeNotFound, op, "source branch not found", nil)
		}
		tgt, err := s.branches.GetByDocumentAndName(dbc, in.DocumentID, strings.TrimSpace(in.TargetBranch))
		if err != nil {
			return err
		}
		if tgt == nil {
			return versioning.NewError(versioning.CodeNotFound, op, "target branch not found", nil)
		}

		srcTip, err := resolveTip(dbc, s.versions, src)
		if err != nil {
			return err
		}
		if srcTip == nil {
			return versioning.NewError(versioning.CodeInvariantViolation, op, "source branch has no versions to merge", nil)
		}
		tgtTip, err := resolveTip(dbc, s.versions, tgt)
		if err != nil {
			return err
		}
		if tgtTip == nil {
			return versioning.NewError(versioning.CodeInvariantViolation, op, "target branch has no versions to merge into", nil)
		}

		base, err := s.mergeBase(dbc, src, tgt, srcTip)
		if err != nil {
			return err
		}

		baseTree, err := snapshotTree(base)
		if err != nil {
			return err
		}
		srcTree, err := snapshotTree(srcTip)
		if err != nil {
			return err
		}
		tgtTree, err := snapshotTree(tgtTip)
		if err != nil {
			return err
		}

		confs := diff.FindConflicts(baseTree, srcTree, tgtTree)
		confsRaw, err := json.Marshal(confs)
		if err != nil {
			return versioning.Wrap(versioning.CodeSerialization, op, err)
		}
		detected = confs
		reviewers := in.Reviewers
		if reviewers == nil {
			reviewers = []string{}
		}
		reviewersRaw, err := json.Marshal(reviewers)
		if err != nil {
			return versioning.Wrap(versioning.CodeSerialization, op, err)
		}

		status := versioning.MergeStatusOpen
		if in.Draft {
			status = versioning.MergeStatusDraft
		}
		row := &types.MergeRequest{
			ID:              uuid.New(),
			DocumentID:      in.DocumentID,
			SourceBranchID:  src.ID,
			TargetBranchID:  tgt.ID,
			SourceVersionID: srcTip.ID,
			TargetVersionID: tgtTip.ID,
			Status:          status,
			Title:           title,
			Description:     strings.TrimSpace(in.Description),
			HasConflicts:    len(confs) > 0,
			Conflicts:       datatypes.JSON(confsRaw),
			Reviewers:       datatypes.JSON(reviewersRaw),
			TieBreak:        tieBreak,
			CreatedBy:       strings.TrimSpace(in.Actor),
		}
		if base != nil {
			row.BaseVersionID = &base.ID
		}
		if _, err := s.mrs.Create(dbc, []*types.MergeRequest{row}); err != nil {
			return err
		}

		if _, err := s.history.Record(dbc, RecordInput{
			DocumentID: in.DocumentID,
			BranchID:   &src.ID,
			VersionID:  &srcTip.ID,
			Action:     versioning.ActionMergeRequestOpened,
			Actor:      in.Actor,
			Summary: map[string]any{
				"merge_request_id": row.ID.String(),
				"source_branch":    src.Name,
				"target_branch":    tgt.Name,
				"has_conflicts":    row.HasConflicts,
				"conflict_count":   len(confs),
			},
		}); err != nil {
			return err
		}
		out = row
		return nil
	})
	if txErr != nil {
		return nil, store.MapError(op, txErr)
	}

	if metrics := observability.Current(); metrics != nil {
		byType := map[string]int{}
		for _, c := range detected {
			byType[c.Type]++
		}
		for t, n := range byType {
			metrics.AddConflictsDetected(t, n)
		}
	}

	s.log.Info("Merge request created", "documentID", in.DocumentID, "mergeRequestID", out.ID, "hasConflicts", out.HasConflicts)
	s.notify.MergeRequestOpened(in.DocumentID, out)
	return out, nil
}

// mergeBase locates the three-way base: the source branch's recorded fork
// point, walking nested forks toward the target, then the symmetric walk
// from the target, then a payload-equality scan for rows predating the fork
// column. nil means no common ancestor (empty-document base).
func (s *mergeEngine) mergeBase(dbc dbctx.Context, src, tgt *types.Branch, srcTip *types.Version) (*types.Version, error) {
	if src.ID == tgt.ID {
		return srcTip, nil
	}
	if v, err := s.walkForkChain(dbc, src, tgt.ID); err != nil || v != nil {
		return v, err
	}
	if v, err := s.walkForkChain(dbc, tgt, src.ID); err != nil || v != nil {
		return v, err
	}
	return s.scanEqualPayload(dbc, src, tgt)
}

func (s *mergeEngine) walkForkChain(dbc dbctx.Context, from *types.Branch, wantBranchID uuid.UUID) (*types.Version, error) {
	cur := from
	for i := 0; i < forkChainLimit && cur != nil && cur.SourceVersionID != nil; i++ {
		v, err := s.versions.GetByID(dbc, *cur.SourceVersionID)
		if err != nil {
			return nil, err
		}
		if v == nil {
			return nil, nil
		}
		if v.BranchID == wantBranchID {
			return v, nil
		}
		cur, err = s.branches.GetByID(dbc, v.BranchID)
		if err != nil {
			return nil, err
		}
	}
	return nil, nil
}

func (s *mergeEngine) scanEqualPayload(dbc dbctx.Context, src, tgt *types.Branch) (*types.Version, error) {
	srcRows, err := s.versions.ListByBranchID(dbc, src.ID, 0, 0)
	if err != nil {
		return nil, err
	}
	tgtRows, err := s.versions.ListByBranchID(dbc, tgt.ID, 0, 0)
	if err != nil {
		return nil, err
	}
	tgtTrees := make([]tree.Value, len(tgtRows))
	for i, row := range tgtRows {
		if tgtTrees[i], err = snapshotTree(row); err != nil {
			return nil, err
		}
	}
	for _, row := range srcRows {
		st, err := snapshotTree(row)
		if err != nil {
			return nil, err
		}
		for _, tt := range tgtTrees {
			if tree.Equal(st, tt) {
				return row, nil
			}
		}
	}
	return nil, nil
}

func (s *mergeEngine) GetMergeRequest(ctx context.Context, id uuid.UUID) (*types.MergeRequest, error) {
	const op = "merge.get_request"
	row, err := s.mrs.GetByID(dbctx.New(ctx), id)
	if err != nil {
		return nil, store.MapError(op, err)
	}
	if row == nil {
		return nil, versioning.NewError(versioning.CodeNotFound, op, "merge request not found", nil)
	}
	return row, nil
}

func (s *mergeEngine) ListMergeRequests(ctx context.Context, documentID uuid.UUID, statuses []string, limit, offset int) ([]*types.MergeRequest, error) {
	const op = "merge.list_requests"
	for _, st := range statuses {
		switch st {
		case versioning.MergeStatusDraft, versioning.MergeStatusOpen, versioning.MergeStatusMerged, versioning.MergeStatusClosed:
		default:
			return nil, versioning.NewError(versioning.CodeValidation, op, "unknown status "+st, nil)
		}
	}
	rows, err := s.mrs.ListByDocumentID(dbctx.New(ctx), documentID, statuses, limit, offset)
	if err != nil {
		return nil, store.MapError(op, err)
	}
	return rows, nil
}

func (s *mergeEngine) MarkReady(ctx context.Context, id uuid.UUID, actor string) (*types.MergeRequest, error) {
	const op = "merge.mark_ready"

	var out *types.MergeRequest
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		mr, err := s.mrs.LockByID(dbc, id)
		if err != nil {
			return err
		}
		if mr == nil {
			return versioning.NewError(versioning.CodeNotFound, op, "merge request not found", nil)
		}
		if mr.Status != versioning.MergeStatusDraft {
			return versioning.NewError(versioning.CodeInvariantViolation, op, "only draft merge requests can be marked ready", nil)
		}
		if err := s.mrs.UpdateFields(dbc, id, map[string]interface{}{"status": versioning.MergeStatusOpen}); err != nil {
			return err
		}
		out, err = s.mrs.GetByID(dbc, id)
		return err
	})
	if txErr != nil {
		return nil, store.MapError(op, txErr)
	}
	return out, nil
}

func (s *mergeEngine) ListConflicts(ctx context.Context, id uuid.UUID) ([]conflict.Conflict, error) {
	const op = "merge.list_conflicts"
	mr, err := s.GetMergeRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	return decodeConflicts(op, mr)
}

func (s *mergeEngine) SuggestResolutions(ctx context.Context, id uuid.UUID) (map[string][]conflict.Suggestion, error) {
	confs, err := s.ListConflicts(ctx, id)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]conflict.Suggestion, len(confs))
	for _, c := range confs {
		out[c.Path] = conflict.SuggestResolutions(c)
	}
	return out, nil
}

func (s *mergeEngine) AutoMerge(ctx context.Context, id uuid.UUID, actor string) (*MergeResult, error) {
	const op = "merge.auto"
	res, err := s.completeMerge(ctx, op, id, actor, true, nil)
	countMergeOutcome("auto", err)
	return res, err
}

func (s *mergeEngine) ManualMerge(ctx context.Context, id uuid.UUID, resolutions []ResolutionInput, actor string) (*MergeResult, error) {
	const op = "merge.manual"
	res, err := s.completeMerge(ctx, op, id, actor, false, resolutions)
	countMergeOutcome("manual", err)
	return res, err
}

// countMergeOutcome reports attempted merges. Pre-flight rejections (unknown
// id, wrong state, missing reviewers) are not attempts and stay uncounted.
func countMergeOutcome(mode string, err error) {
	metrics := observability.Current()
	if metrics == nil {
		return
	}
	switch {
	case err == nil:
		metrics.IncMergeOutcome("merged", mode)
	case versioning.IsCode(err, versioning.CodeUnresolvedConflict):
		metrics.IncMergeOutcome("unresolved_conflict", mode)
	case versioning.IsCode(err, versioning.CodeConflict):
		metrics.IncMergeOutcome("stale_target", mode)
	case versioning.IsCode(err, versioning.CodeValidation),
		versioning.IsCode(err, versioning.CodeNotFound),
		versioning.IsCode(err, versioning.CodeInvariantViolation):
	default:
		metrics.IncMergeOutcome("error", mode)
	}
}

func (s *mergeEngine) completeMerge(ctx context.Context, op string, id uuid.UUID, actor string, auto bool, inputs []ResolutionInput) (*MergeResult, error) {
	var result *MergeResult
	var documentID uuid.UUID

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}

		mr, err := s.mrs.LockByID(dbc, id)
		if err != nil {
			return err
		}
		if mr == nil {
			return versioning.NewError(versioning.CodeNotFound, op, "merge request not found", nil)
		}
		if mr.Status == versioning.MergeStatusDraft {
			return versioning.NewError(versioning.CodeInvariantViolation, op, "merge request is a draft; mark it ready first", nil)
		}
		if mr.IsTerminal() {
			return versioning.NewError(versioning.CodeInvariantViolation, op, "merge request is already "+mr.Status, nil)
		}
		documentID = mr.DocumentID

		src, err := s.branches.GetByID(dbc, mr.SourceBranchID)
		if err != nil {
			return err
		}
		tgt, err := s.branches.GetByID(dbc, mr.TargetBranchID)
		if err != nil {
			return err
		}
		if src == nil || tgt == nil {
			return versioning.NewError(versioning.CodeInvariantViolation, op, "merge request branch no longer exists", nil)
		}
		if requiresReview(tgt) && !hasReviewers(mr) {
			return versioning.NewError(versioning.CodeInvariantViolation, op, "target branch requires review; the merge request has no reviewers", nil)
		}

		confs, err := decodeConflicts(op, mr)
		if err != nil {
			return err
		}

		resolved := make(map[string]tree.Value, len(confs))
		rows := make([]*types.ConflictResolution, 0, len(confs))
		if auto {
			unresolved := []string{}
			for _, c := range confs {
				if !c.AutoResolvable {
					unresolved = append(unresolved, c.Path)
					continue
				}
				strategy, val, ok := conflict.AutoResolve(c, mr.TieBreak)
				if !ok {
					unresolved = append(unresolved, c.Path)
					continue
				}
				resolved[c.Path] = val
				rows = append(rows, buildResolution(mr.ID, c, strategy, val, "auto-resolved", actor))
			}
			if len(unresolved) > 0 {
				return versioning.NewConflictError(op, "conflicts cannot be auto-resolved", unresolved)
			}
		} else {
			byPath := make(map[string]ResolutionInput, len(inputs))
			known := make(map[string]bool, len(confs))
			for _, c := range confs {
				known[c.Path] = true
			}
			for _, in := range inputs {
				if !known[in.Path] {
					return versioning.NewError(versioning.CodeValidation, op, "resolution for unknown path "+in.Path, nil)
				}
				byPath[in.Path] = in
			}
			missing := []string{}
			for _, c := range confs {
				in, ok := byPath[c.Path]
				if !ok {
					missing = append(missing, c.Path)
					continue
				}
				val, err := conflict.ApplyResolution(c, in.Strategy, in.Value)
				if err != nil {
					return versioning.Wrap(versioning.CodeValidation, op, err)
				}
				resolved[c.Path] = val
				rows = append(rows, buildResolution(mr.ID, c, in.Strategy, val, in.Rationale, actor))
			}
			if len(missing) > 0 {
				return versioning.NewConflictError(op, "conflicting paths left unresolved", missing)
			}
		}

		for _, row := range rows {
			if _, err := s.resolutions.Upsert(dbc, row); err != nil {
				return err
			}
		}

		version, err := s.materializeMerge(dbc, op, mr, src, tgt, resolved, actor, auto)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		updates := map[string]interface{}{
			"status":            versioning.MergeStatusMerged,
			"merged_version_id": version.ID,
			"merged_by":         strings.TrimSpace(actor),
			"merged_at":         now,
		}
		if err := s.mrs.UpdateFields(dbc, mr.ID, updates); err != nil {
			return err
		}
		mr, err = s.mrs.GetByID(dbc, mr.ID)
		if err != nil {
			return err
		}
		result = &MergeResult{MergeRequest: mr, Version: version, Resolutions: rows}
		return nil
	})
	if txErr != nil {
		return nil, store.MapError(op, txErr)
	}

	s.log.Info("Merge completed", "documentID", documentID, "mergeRequestID", id, "versionID", result.Version.ID, "auto", auto)
	s.notify.MergeCompleted(documentID, result.MergeRequest, result.Version)
	return result, nil
}

// materializeMerge recombines both sides over the base and snapshots the
// result onto the locked target branch.
func (s *mergeEngine) materializeMerge(dbc dbctx.Context, op string, mr *types.MergeRequest, src, tgt *types.Branch, resolved map[string]tree.Value, actor string, auto bool) (*types.Version, error) {
	if _, err := s.branches.LockByID(dbc, tgt.ID); err != nil {
		return nil, err
	}
	tgtTip, err := resolveTip(dbc, s.versions, tgt)
	if err != nil {
		return nil, err
	}
	if tgtTip == nil || tgtTip.ID != mr.TargetVersionID {
		return nil, versioning.NewError(versioning.CodeConflict, op, "target branch advanced since the merge request was created", nil)
	}

	ids := []uuid.UUID{mr.SourceVersionID, mr.TargetVersionID}
	if mr.BaseVersionID != nil {
		ids = append(ids, *mr.BaseVersionID)
	}
	rows, err := s.versions.GetByIDs(dbc, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]*types.Version, len(rows))
	for _, row := range rows {
		byID[row.ID] = row
	}

	var base *types.Version
	if mr.BaseVersionID != nil {
		base = byID[*mr.BaseVersionID]
	}
	baseTree, err := snapshotTree(base)
	if err != nil {
		return nil, err
	}
	srcTree, err := snapshotTree(byID[mr.SourceVersionID])
	if err != nil {
		return nil, err
	}
	tgtTree, err := snapshotTree(byID[mr.TargetVersionID])
	if err != nil {
		return nil, err
	}

	merged, err := merge.Combine(baseTree, diff.Compare(baseTree, srcTree), diff.Compare(baseTree, tgtTree), resolved)
	if err != nil {
		return nil, versioning.Wrap(versioning.CodeInternal, op, err)
	}

	return s.versionMgr.SnapshotPayload(dbc, SnapshotInput{
		DocumentID: mr.DocumentID,
		Branch:     tgt,
		Payload:    merged,
		Name:       "merge " + src.Name,
		Actor:      actor,
		Action:     versioning.ActionMergeCompleted,
		Summary: map[string]any{
			"merge_request_id": mr.ID.String(),
			"source_branch":    src.Name,
			"target_branch":    tgt.Name,
			"auto":             auto,
			"resolutions":      len(resolved),
		},
	})
}

func (s *mergeEngine) CloseMergeRequest(ctx context.Context, id uuid.UUID, reason, actor string) (*types.MergeRequest, error) {
	const op = "merge.close"

	var out *types.MergeRequest
	var documentID uuid.UUID
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}

		mr, err := s.mrs.LockByID(dbc, id)
		if err != nil {
			return err
		}
		if mr == nil {
			return versioning.NewError(versioning.CodeNotFound, op, "merge request not found", nil)
		}
		if mr.IsTerminal() {
			return versioning.NewError(versioning.CodeInvariantViolation, op, "merge request is already "+mr.Status, nil)
		}
		documentID = mr.DocumentID

		now := time.Now().UTC()
		updates := map[string]interface{}{
			"status":       versioning.MergeStatusClosed,
			"close_reason": strings.TrimSpace(reason),
			"closed_by":    strings.TrimSpace(actor),
			"closed_at":    now,
		}
		if err := s.mrs.UpdateFields(dbc, id, updates); err != nil {
			return err
		}
		if _, err := s.history.Record(dbc, RecordInput{
			DocumentID: mr.DocumentID,
			BranchID:   &mr.SourceBranchID,
			Action:     versioning.ActionMergeRequestClosed,
			Actor:      actor,
			Summary:    map[string]any{"merge_request_id": mr.ID.String(), "reason": strings.TrimSpace(reason)},
		}); err != nil {
			return err
		}
		out, err = s.mrs.GetByID(dbc, id)
		return err
	})
	if txErr != nil {
		return nil, store.MapError(op, txErr)
	}

	s.log.Info("Merge request closed", "documentID", documentID, "mergeRequestID", id)
	s.notify.MergeRequestClosed(documentID, out)
	return out, nil
}

func (s *mergeEngine) CherryPick(ctx context.Context, versionID uuid.UUID, targetBranch string, paths []string, actor string) (*types.Version, error) {
	const op = "merge.cherry_pick"

	var out *types.Version
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

		pred, err := s.versions.GetPredecessor(dbc, v.BranchID, v.CreatedAt)
		if err != nil {
			return err
		}
		if pred == nil {
			return versioning.NewError(versioning.CodeInvariantViolation, op, "the first version of a branch cannot be cherry-picked", nil)
		}

		predTree, err := snapshotTree(pred)
		if err != nil {
			return err
		}
		vTree, err := snapshotTree(v)
		if err != nil {
			return err
		}
		cs := diff.Compare(predTree, vTree)
		if len(paths) > 0 {
			cs = cs.Filter(paths)
		}
		if cs.Empty() {
			return versioning.NewError(versioning.CodeInvariantViolation, op, "version introduces no changes at the requested paths", nil)
		}

		tgt, err := s.branches.GetByDocumentAndName(dbc, v.DocumentID, strings.TrimSpace(targetBranch))
		if err != nil {
			return err
		}
		if tgt == nil {
			return versioning.NewError(versioning.CodeNotFound, op, "target branch not found", nil)
		}
		if restrictsPush(tgt) {
			return versioning.NewError(versioning.CodeInvariantViolation, op, "branch "+tgt.Name+" only accepts merges", nil)
		}
		if _, err := s.branches.LockByID(dbc, tgt.ID); err != nil {
			return err
		}
		tip, err := resolveTip(dbc, s.versions, tgt)
		if err != nil {
			return err
		}
		tipTree, err := snapshotTree(tip)
		if err != nil {
			return err
		}

		applied, err := diff.ApplyPatch(tipTree, cs.Ops())
		if err != nil {
			return versioning.Wrap(versioning.CodeConflict, op, err)
		}

		var srcName string
		if srcBranch, err := s.branches.GetByID(dbc, v.BranchID); err != nil {
			return err
		} else if srcBranch != nil {
			srcName = srcBranch.Name
		}
		summary := map[string]any{"picked_from": v.ID.String(), "source_branch": srcName}
		if len(paths) > 0 {
			summary["paths"] = paths
		}
		out, err = s.versionMgr.SnapshotPayload(dbc, SnapshotInput{
			DocumentID: v.DocumentID,
			Branch:     tgt,
			Payload:    applied,
			Name:       "cherry-pick " + v.Name,
			Actor:      actor,
			Action:     versioning.ActionCherryPicked,
			Summary:    summary,
		})
		return err
	})
	if txErr != nil {
		return nil, store.MapError(op, txErr)
	}

	s.log.Info("Cherry-pick completed", "documentID", documentID, "versionID", versionID, "newVersionID", out.ID)
	s.vnotify.CherryPicked(documentID, out, versionID)
	return out, nil
}

func (s *mergeEngine) Revert(ctx context.Context, versionID uuid.UUID, targetBranch string, actor string) (*types.Version, error) {
	const op = "merge.revert"

	var out *types.Version
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

		pred, err := s.versions.GetPredecessor(dbc, v.BranchID, v.CreatedAt)
		if err != nil {
			return err
		}
		if pred == nil {
			return versioning.NewError(versioning.CodeInvariantViolation, op, "the first version of a branch cannot be reverted", nil)
		}

		var tgt *types.Branch
		if name := strings.TrimSpace(targetBranch); name != "" {
			tgt, err = s.branches.GetByDocumentAndName(dbc, v.DocumentID, name)
		} else {
			tgt, err = s.branches.GetByID(dbc, v.BranchID)
		}
		if err != nil {
			return err
		}
		if tgt == nil {
			return versioning.NewError(versioning.CodeNotFound, op, "target branch not found", nil)
		}
		if restrictsPush(tgt) {
			return versioning.NewError(versioning.CodeInvariantViolation, op, "branch "+tgt.Name+" only accepts merges", nil)
		}

		vTree, err := snapshotTree(v)
		if err != nil {
			return err
		}
		predTree, err := snapshotTree(pred)
		if err != nil {
			return err
		}
		inverse := diff.Compare(vTree, predTree)
		if inverse.Empty() {
			return versioning.NewError(versioning.CodeInvariantViolation, op, "version introduced no changes to revert", nil)
		}

		if _, err := s.branches.LockByID(dbc, tgt.ID); err != nil {
			return err
		}
		tip, err := resolveTip(dbc, s.versions, tgt)
		if err != nil {
			return err
		}
		tipTree, err := snapshotTree(tip)
		if err != nil {
			return err
		}
		applied, err := diff.ApplyPatch(tipTree, inverse.Ops())
		if err != nil {
			return versioning.Wrap(versioning.CodeConflict, op, err)
		}

		out, err = s.versionMgr.SnapshotPayload(dbc, SnapshotInput{
			DocumentID: v.DocumentID,
			Branch:     tgt,
			Payload:    applied,
			Name:       "revert " + v.Name,
			Actor:      actor,
			Action:     versioning.ActionReverted,
			Summary:    map[string]any{"reverted": v.ID.String(), "branch": tgt.Name},
		})
		return err
	})
	if txErr != nil {
		return nil, store.MapError(op, txErr)
	}

	s.log.Info("Revert completed", "documentID", documentID, "versionID", versionID, "newVersionID", out.ID)
	s.vnotify.Reverted(documentID, out, versionID)
	return out, nil
}

// =========================
// helpers
// =========================

func decodeConflicts(op string, mr *types.MergeRequest) ([]conflict.Conflict, error) {
	confs := []conflict.Conflict{}
	if len(mr.Conflicts) == 0 {
		return confs, nil
	}
	if err := json.Unmarshal(mr.Conflicts, &confs); err != nil {
		return nil, versioning.Wrap(versioning.CodeSerialization, op, err)
	}
	return confs, nil
}

func buildResolution(mrID uuid.UUID, c conflict.Conflict, strategy string, val tree.Value, rationale, actor string) *types.ConflictResolution {
	row := &types.ConflictResolution{
		ID:             uuid.New(),
		MergeRequestID: mrID,
		Path:           c.Path,
		ConflictType:   c.Type,
		Strategy:       strategy,
		Rationale:      strings.TrimSpace(rationale),
		ResolvedBy:     strings.TrimSpace(actor),
		ReviewStatus:   "approved",
		ResolvedAt:     time.Now().UTC(),
	}
	if raw, err := val.MarshalJSON(); err == nil {
		row.ResolvedValue = datatypes.JSON(raw)
	}
	return row
}

func decodeProtectionRules(b *types.Branch) types.ProtectionRuleSet {
	rules := types.ProtectionRuleSet{}
	if b == nil || len(b.ProtectionRules) == 0 {
		return rules
	}
	_ = json.Unmarshal(b.ProtectionRules, &rules)
	return rules
}

func requiresReview(b *types.Branch) bool {
	return b != nil && b.Protected && decodeProtectionRules(b).RequireReview
}

func restrictsPush(b *types.Branch) bool {
	return b != nil && b.Protected && decodeProtectionRules(b).RestrictPush
}

func hasReviewers(mr *types.MergeRequest) bool {
	if mr == nil || len(mr.Reviewers) == 0 {
		return false
	}
	reviewers := []string{}
	if err := json.Unmarshal(mr.Reviewers, &reviewers); err != nil {
		return false
	}
	return len(reviewers) > 0
}
