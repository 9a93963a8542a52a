package services

import (
	"context"
	"encoding/json"
	"testing"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/trialworks/ars-backend/internal/data/repos"
	"github.com/trialworks/ars-backend/internal/data/repos/testutil"
	"github.com/trialworks/ars-backend/internal/domain/versioning"
	"github.com/trialworks/ars-backend/internal/pkg/dbctx"
	"github.com/trialworks/ars-backend/internal/vcs/tree"
)

type stack struct {
	db *gorm.DB

	eventRepo   repos.ReportingEventRepo
	branchRepo  repos.BranchRepo
	versionRepo repos.VersionRepo
	mrRepo      repos.MergeRequestRepo
	logRepo     repos.ChangeLogRepo

	documents DocumentService
	history   HistoryTracker
	branches  BranchManager
	versions  VersionManager
	merges    MergeEngine
}

func newStack(tb testing.TB) *stack {
	tb.Helper()
	db := testutil.DB(tb)
	log := testutil.Logger(tb)

	eventRepo := repos.NewReportingEventRepo(db, log)
	branchRepo := repos.NewBranchRepo(db, log)
	versionRepo := repos.NewVersionRepo(db, log)
	mrRepo := repos.NewMergeRequestRepo(db, log)
	resRepo := repos.NewConflictResolutionRepo(db, log)
	logRepo := repos.NewChangeLogRepo(db, log)

	documents := NewDocumentService(db, log, eventRepo)
	history := NewHistoryTracker(db, log, logRepo, versionRepo)
	branches := NewBranchManager(db, log, eventRepo, branchRepo, versionRepo, mrRepo, history, NewBranchNotifier(nil))
	versions := NewVersionManager(db, log, documents, branchRepo, versionRepo, branches, history, NewVersionNotifier(nil), NewBranchNotifier(nil))
	merges := NewMergeEngine(db, log, branchRepo, versionRepo, mrRepo, resRepo, versions, history, NewMergeNotifier(nil), NewVersionNotifier(nil))

	return &stack{
		db:          db,
		eventRepo:   eventRepo,
		branchRepo:  branchRepo,
		versionRepo: versionRepo,
		mrRepo:      mrRepo,
		logRepo:     logRepo,
		documents:   documents,
		history:     history,
		branches:    branches,
		versions:    versions,
		merges:      merges,
	}
}

func payloadMap(tb testing.TB, raw datatypes.JSON) map[string]any {
	tb.Helper()
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		tb.Fatalf("decode payload: %v", err)
	}
	return m
}

func strPtr(s string) *string { return &s }

// A feature branch edit and a disjoint main edit merge without conflicts and
// both land in the merged snapshot.
func TestMergeDisjointChangesAcrossBranches(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	doc, err := s.documents.Create(ctx, CreateDocumentInput{Name: "A", Actor: "alice"})
	if err != nil {
		t.Fatalf("create document: %v", err)
	}
	v1, err := s.versions.CreateVersion(ctx, CreateVersionInput{DocumentID: doc.ID, Name: "V1", Actor: "alice"})
	if err != nil {
		t.Fatalf("create v1: %v", err)
	}
	if !v1.IsCurrent {
		t.Fatalf("expected v1 current on main")
	}

	if _, err := s.branches.CreateBranch(ctx, CreateBranchInput{DocumentID: doc.ID, Name: "feature", Actor: "bob"}); err != nil {
		t.Fatalf("create branch: %v", err)
	}

	if _, err := s.documents.Update(ctx, doc.ID, UpdateDocumentInput{Name: strPtr("B")}); err != nil {
		t.Fatalf("update name: %v", err)
	}
	v2, err := s.versions.CreateVersion(ctx, CreateVersionInput{DocumentID: doc.ID, Branch: "feature", Name: "V2", Actor: "bob"})
	if err != nil {
		t.Fatalf("create v2: %v", err)
	}

	// Back to main's state, then the disjoint edit.
	if _, err := s.versions.RestoreVersion(ctx, v1.ID, false, "alice"); err != nil {
		t.Fatalf("restore v1: %v", err)
	}
	if _, err := s.documents.Update(ctx, doc.ID, UpdateDocumentInput{Description: strPtr("d")}); err != nil {
		t.Fatalf("update description: %v", err)
	}
	v3, err := s.versions.CreateVersion(ctx, CreateVersionInput{DocumentID: doc.ID, Branch: versioning.MainBranchName, Name: "V3", Actor: "alice"})
	if err != nil {
		t.Fatalf("create v3: %v", err)
	}

	mr, err := s.merges.CreateMergeRequest(ctx, CreateMergeRequestInput{
		DocumentID:   doc.ID,
		SourceBranch: "feature",
		TargetBranch: versioning.MainBranchName,
		Title:        "merge feature",
		Actor:        "bob",
	})
	if err != nil {
		t.Fatalf("create merge request: %v", err)
	}
	if mr.BaseVersionID == nil || *mr.BaseVersionID != v1.ID {
		t.Fatalf("expected base v1, got %v", mr.BaseVersionID)
	}
	if mr.HasConflicts {
		t.Fatalf("expected no conflicts, got %s", string(mr.Conflicts))
	}
	if mr.SourceVersionID != v2.ID || mr.TargetVersionID != v3.ID {
		t.Fatalf("expected pinned tips v2/v3, got %s/%s", mr.SourceVersionID, mr.TargetVersionID)
	}

	res, err := s.merges.AutoMerge(ctx, mr.ID, "carol")
	if err != nil {
		t.Fatalf("auto merge: %v", err)
	}
	merged := payloadMap(t, res.Version.Payload)
	if merged["name"] != "B" || merged["description"] != "d" {
		t.Fatalf("unexpected merged payload: %v", merged)
	}
	if res.MergeRequest.Status != versioning.MergeStatusMerged {
		t.Fatalf("expected merged status, got %s", res.MergeRequest.Status)
	}
	if res.MergeRequest.MergedVersionID == nil || *res.MergeRequest.MergedVersionID != res.Version.ID {
		t.Fatalf("merged_version_id not recorded")
	}

	dbc := dbctx.New(ctx)
	main, err := s.branchRepo.GetByDocumentAndName(dbc, doc.ID, versioning.MainBranchName)
	if err != nil || main == nil {
		t.Fatalf("load main: %v", err)
	}
	cur, err := s.versionRepo.GetCurrentByBranchID(dbc, main.ID)
	if err != nil {
		t.Fatalf("current on main: %v", err)
	}
	if cur == nil || cur.ID != res.Version.ID {
		t.Fatalf("merged version is not current on main")
	}
}

// Both sides editing the same scalar is a value conflict: auto-merge refuses
// naming the path, a manual custom value completes the merge.
func TestMergeValueConflictNeedsManualResolution(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	doc, err := s.documents.Create(ctx, CreateDocumentInput{Name: "A", Actor: "alice"})
	if err != nil {
		t.Fatalf("create document: %v", err)
	}
	v1, err := s.versions.CreateVersion(ctx, CreateVersionInput{DocumentID: doc.ID, Name: "V1", Actor: "alice"})
	if err != nil {
		t.Fatalf("create v1: %v", err)
	}
	if _, err := s.branches.CreateBranch(ctx, CreateBranchInput{DocumentID: doc.ID, Name: "feature", Actor: "bob"}); err != nil {
		t.Fatalf("create branch: %v", err)
	}

	if _, err := s.documents.Update(ctx, doc.ID, UpdateDocumentInput{Name: strPtr("B")}); err != nil {
		t.Fatalf("update on feature: %v", err)
	}
	if _, err := s.versions.CreateVersion(ctx, CreateVersionInput{DocumentID: doc.ID, Branch: "feature", Name: "V2", Actor: "bob"}); err != nil {
		t.Fatalf("create v2: %v", err)
	}

	if _, err := s.versions.RestoreVersion(ctx, v1.ID, false, "alice"); err != nil {
		t.Fatalf("restore v1: %v", err)
	}
	if _, err := s.documents.Update(ctx, doc.ID, UpdateDocumentInput{Name: strPtr("C"), Description: strPtr("d")}); err != nil {
		t.Fatalf("update on main: %v", err)
	}
	if _, err := s.versions.CreateVersion(ctx, CreateVersionInput{DocumentID: doc.ID, Branch: versioning.MainBranchName, Name: "V3", Actor: "alice"}); err != nil {
		t.Fatalf("create v3: %v", err)
	}

	mr, err := s.merges.CreateMergeRequest(ctx, CreateMergeRequestInput{
		DocumentID:   doc.ID,
		SourceBranch: "feature",
		TargetBranch: versioning.MainBranchName,
		Title:        "conflicting merge",
		Actor:        "bob",
	})
	if err != nil {
		t.Fatalf("create merge request: %v", err)
	}
	if !mr.HasConflicts {
		t.Fatalf("expected a conflict")
	}
	confs, err := s.merges.ListConflicts(ctx, mr.ID)
	if err != nil {
		t.Fatalf("list conflicts: %v", err)
	}
	if len(confs) != 1 || confs[0].Path != "name" {
		t.Fatalf("expected one conflict on name, got %+v", confs)
	}
	if confs[0].Type != "value" {
		t.Fatalf("expected value conflict, got %s", confs[0].Type)
	}
	if confs[0].AutoResolvable {
		t.Fatalf("name conflict must not be auto-resolvable")
	}

	_, err = s.merges.AutoMerge(ctx, mr.ID, "carol")
	if !versioning.IsCode(err, versioning.CodeUnresolvedConflict) {
		t.Fatalf("expected unresolved_conflict, got %v", err)
	}
	paths := versioning.PathsOf(err)
	if len(paths) != 1 || paths[0] != "name" {
		t.Fatalf("expected conflict paths [name], got %v", paths)
	}

	// The failed auto-merge rolled back: still open, still mergeable.
	reloaded, err := s.merges.GetMergeRequest(ctx, mr.ID)
	if err != nil {
		t.Fatalf("reload merge request: %v", err)
	}
	if reloaded.Status != versioning.MergeStatusOpen {
		t.Fatalf("expected open after failed auto-merge, got %s", reloaded.Status)
	}

	val := tree.String("B")
	res, err := s.merges.ManualMerge(ctx, mr.ID, []ResolutionInput{
		{Path: "name", Strategy: "custom_value", Value: &val, Rationale: "keep the feature rename"},
	}, "carol")
	if err != nil {
		t.Fatalf("manual merge: %v", err)
	}
	merged := payloadMap(t, res.Version.Payload)
	if merged["name"] != "B" || merged["description"] != "d" {
		t.Fatalf("unexpected merged payload: %v", merged)
	}
	if len(res.Resolutions) != 1 || res.Resolutions[0].Path != "name" {
		t.Fatalf("expected one persisted resolution for name, got %+v", res.Resolutions)
	}
}

// Cherry-picking carries only the version's own changes (optionally filtered
// to chosen paths) onto the target tip; unrelated target fields stay intact.
func TestCherryPickCarriesOnlySelectedChanges(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	doc, err := s.documents.Create(ctx, CreateDocumentInput{
		Name:  "RE",
		Actor: "alice",
		Payload: tree.Object(map[string]tree.Value{
			"name":   tree.String("RE"),
			"status": tree.String("draft"),
			"owner":  tree.String("team-a"),
		}),
	})
	if err != nil {
		t.Fatalf("create document: %v", err)
	}
	v1, err := s.versions.CreateVersion(ctx, CreateVersionInput{DocumentID: doc.ID, Name: "V1", Actor: "alice"})
	if err != nil {
		t.Fatalf("create v1: %v", err)
	}

	// Fork with a materialized initial version so the pick has a
	// same-branch predecessor.
	if _, _, err := s.versions.CreateBranchFromVersion(ctx, v1.ID, "hotfix", "bob"); err != nil {
		t.Fatalf("branch from version: %v", err)
	}

	if _, err := s.documents.Update(ctx, doc.ID, UpdateDocumentInput{
		Payload: payloadPtr(tree.Object(map[string]tree.Value{
			"name":   tree.String("RE"),
			"status": tree.String("approved"),
			"owner":  tree.String("team-b"),
		})),
	}); err != nil {
		t.Fatalf("update on hotfix: %v", err)
	}
	v2, err := s.versions.CreateVersion(ctx, CreateVersionInput{DocumentID: doc.ID, Branch: "hotfix", Name: "V2", Actor: "bob"})
	if err != nil {
		t.Fatalf("create v2: %v", err)
	}

	// Meanwhile main drifts on an unrelated field.
	if _, err := s.versions.RestoreVersion(ctx, v1.ID, false, "alice"); err != nil {
		t.Fatalf("restore v1: %v", err)
	}
	if _, err := s.documents.Update(ctx, doc.ID, UpdateDocumentInput{Description: strPtr("changed on main")}); err != nil {
		t.Fatalf("update on main: %v", err)
	}
	v3, err := s.versions.CreateVersion(ctx, CreateVersionInput{DocumentID: doc.ID, Branch: versioning.MainBranchName, Name: "V3", Actor: "alice"})
	if err != nil {
		t.Fatalf("create v3: %v", err)
	}

	picked, err := s.merges.CherryPick(ctx, v2.ID, versioning.MainBranchName, []string{"status"}, "carol")
	if err != nil {
		t.Fatalf("cherry pick: %v", err)
	}

	got := payloadMap(t, picked.Payload)
	want := payloadMap(t, v3.Payload)
	if got["status"] != "approved" {
		t.Fatalf("status not carried: %v", got)
	}
	if got["owner"] != want["owner"] {
		t.Fatalf("owner should not be carried by the path filter: %v", got)
	}
	if got["description"] != "changed on main" || got["name"] != want["name"] {
		t.Fatalf("target fields must survive the pick: %v", got)
	}

	rows, err := s.logRepo.ListByVersionID(dbctx.New(ctx), picked.ID)
	if err != nil {
		t.Fatalf("list log rows: %v", err)
	}
	found := false
	for _, row := range rows {
		if row.Action == versioning.ActionCherryPicked {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a cherry_pick_completed log row")
	}
}

func payloadPtr(v tree.Value) *tree.Value { return &v }
