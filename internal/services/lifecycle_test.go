package services

import (
	"context"
	"testing"
	"time"

	types "github.com/trialworks/ars-backend/internal/domain"
	"github.com/trialworks/ars-backend/internal/domain/versioning"
	"github.com/trialworks/ars-backend/internal/pkg/dbctx"
)

func mustDocument(tb testing.TB, s *stack, name, actor string) *types.ReportingEvent {
	tb.Helper()
	doc, err := s.documents.Create(context.Background(), CreateDocumentInput{Name: name, Actor: actor})
	if err != nil {
		tb.Fatalf("create document: %v", err)
	}
	return doc
}

func mustVersion(tb testing.TB, s *stack, doc *types.ReportingEvent, branch, name, actor string) *types.Version {
	tb.Helper()
	v, err := s.versions.CreateVersion(context.Background(), CreateVersionInput{
		DocumentID: doc.ID, Branch: branch, Name: name, Actor: actor,
	})
	if err != nil {
		tb.Fatalf("create version %s on %q: %v", name, branch, err)
	}
	return v
}

func TestBranchDeleteGuards(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	doc := mustDocument(t, s, "guards", "alice")
	mustVersion(t, s, doc, "", "V1", "alice")

	err := s.branches.DeleteBranch(ctx, doc.ID, versioning.MainBranchName, true, "alice")
	if !versioning.IsCode(err, versioning.CodeInvariantViolation) {
		t.Fatalf("deleting main must fail with invariant_violation, got %v", err)
	}

	if _, err := s.branches.CreateBranch(ctx, CreateBranchInput{DocumentID: doc.ID, Name: "work", Actor: "bob"}); err != nil {
		t.Fatalf("create branch: %v", err)
	}
	mustVersion(t, s, doc, "work", "W1", "bob")

	err = s.branches.DeleteBranch(ctx, doc.ID, "work", false, "bob")
	if !versioning.IsCode(err, versioning.CodeInvariantViolation) {
		t.Fatalf("deleting a non-empty branch without force must fail, got %v", err)
	}
	if err := s.branches.DeleteBranch(ctx, doc.ID, "work", true, "bob"); err != nil {
		t.Fatalf("forced delete: %v", err)
	}

	// The name is free again after the soft delete.
	if _, err := s.branches.CreateBranch(ctx, CreateBranchInput{DocumentID: doc.ID, Name: "work", Actor: "bob"}); err != nil {
		t.Fatalf("recreate branch after delete: %v", err)
	}

	// An active merge request pins the branch even under force.
	mustVersion(t, s, doc, "work", "W2", "bob")
	if _, err := s.merges.CreateMergeRequest(ctx, CreateMergeRequestInput{
		DocumentID: doc.ID, SourceBranch: "work", TargetBranch: versioning.MainBranchName,
		Title: "pin", Actor: "bob",
	}); err != nil {
		t.Fatalf("create merge request: %v", err)
	}
	err = s.branches.DeleteBranch(ctx, doc.ID, "work", true, "bob")
	if !versioning.IsCode(err, versioning.CodeInvariantViolation) {
		t.Fatalf("delete with active merge request must fail, got %v", err)
	}
}

func TestDuplicateBranchNameConflicts(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	doc := mustDocument(t, s, "dup", "alice")
	mustVersion(t, s, doc, "", "V1", "alice")

	if _, err := s.branches.CreateBranch(ctx, CreateBranchInput{DocumentID: doc.ID, Name: "twice", Actor: "bob"}); err != nil {
		t.Fatalf("create branch: %v", err)
	}
	_, err := s.branches.CreateBranch(ctx, CreateBranchInput{DocumentID: doc.ID, Name: "twice", Actor: "bob"})
	if !versioning.IsCode(err, versioning.CodeConflict) {
		t.Fatalf("duplicate branch name must conflict, got %v", err)
	}
}

func TestMergeRequestLifecycleGuards(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	doc := mustDocument(t, s, "lifecycle", "alice")
	mustVersion(t, s, doc, "", "V1", "alice")
	if _, err := s.branches.CreateBranch(ctx, CreateBranchInput{DocumentID: doc.ID, Name: "feature", Actor: "bob"}); err != nil {
		t.Fatalf("create branch: %v", err)
	}
	if _, err := s.documents.Update(ctx, doc.ID, UpdateDocumentInput{Status: strPtr("in-review")}); err != nil {
		t.Fatalf("update: %v", err)
	}
	mustVersion(t, s, doc, "feature", "V2", "bob")

	mr, err := s.merges.CreateMergeRequest(ctx, CreateMergeRequestInput{
		DocumentID: doc.ID, SourceBranch: "feature", TargetBranch: versioning.MainBranchName,
		Title: "draft first", Draft: true, Actor: "bob",
	})
	if err != nil {
		t.Fatalf("create merge request: %v", err)
	}
	if mr.Status != versioning.MergeStatusDraft {
		t.Fatalf("expected draft, got %s", mr.Status)
	}

	if _, err := s.merges.AutoMerge(ctx, mr.ID, "carol"); !versioning.IsCode(err, versioning.CodeInvariantViolation) {
		t.Fatalf("merging a draft must fail, got %v", err)
	}
	if _, err := s.merges.MarkReady(ctx, mr.ID, "bob"); err != nil {
		t.Fatalf("mark ready: %v", err)
	}
	if _, err := s.merges.MarkReady(ctx, mr.ID, "bob"); !versioning.IsCode(err, versioning.CodeInvariantViolation) {
		t.Fatalf("marking an open request ready must fail, got %v", err)
	}

	if _, err := s.merges.AutoMerge(ctx, mr.ID, "carol"); err != nil {
		t.Fatalf("auto merge: %v", err)
	}
	if _, err := s.merges.AutoMerge(ctx, mr.ID, "carol"); !versioning.IsCode(err, versioning.CodeInvariantViolation) {
		t.Fatalf("merging twice must fail, got %v", err)
	}
	if _, err := s.merges.CloseMergeRequest(ctx, mr.ID, "late", "carol"); !versioning.IsCode(err, versioning.CodeInvariantViolation) {
		t.Fatalf("closing a merged request must fail, got %v", err)
	}
}

func TestMergeRefusedWhenTargetAdvanced(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	doc := mustDocument(t, s, "stale", "alice")
	v1 := mustVersion(t, s, doc, "", "V1", "alice")
	if _, err := s.branches.CreateBranch(ctx, CreateBranchInput{DocumentID: doc.ID, Name: "feature", Actor: "bob"}); err != nil {
		t.Fatalf("create branch: %v", err)
	}
	if _, err := s.documents.Update(ctx, doc.ID, UpdateDocumentInput{Status: strPtr("amended")}); err != nil {
		t.Fatalf("update: %v", err)
	}
	mustVersion(t, s, doc, "feature", "V2", "bob")

	mr, err := s.merges.CreateMergeRequest(ctx, CreateMergeRequestInput{
		DocumentID: doc.ID, SourceBranch: "feature", TargetBranch: versioning.MainBranchName,
		Title: "goes stale", Actor: "bob",
	})
	if err != nil {
		t.Fatalf("create merge request: %v", err)
	}

	// Target moves past the pinned tip.
	if _, err := s.versions.RestoreVersion(ctx, v1.ID, false, "alice"); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if _, err := s.documents.Update(ctx, doc.ID, UpdateDocumentInput{Description: strPtr("moved")}); err != nil {
		t.Fatalf("update: %v", err)
	}
	mustVersion(t, s, doc, versioning.MainBranchName, "V3", "alice")

	_, err = s.merges.AutoMerge(ctx, mr.ID, "carol")
	if !versioning.IsCode(err, versioning.CodeConflict) {
		t.Fatalf("expected conflict when target advanced, got %v", err)
	}
}

func TestProtectionGuards(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	doc := mustDocument(t, s, "protected", "alice")
	mustVersion(t, s, doc, "", "V1", "alice")
	if _, err := s.branches.CreateBranch(ctx, CreateBranchInput{DocumentID: doc.ID, Name: "feature", Actor: "bob"}); err != nil {
		t.Fatalf("create branch: %v", err)
	}
	if _, err := s.documents.Update(ctx, doc.ID, UpdateDocumentInput{Status: strPtr("final")}); err != nil {
		t.Fatalf("update: %v", err)
	}
	mustVersion(t, s, doc, "feature", "V2", "bob")

	if _, err := s.branches.ProtectBranch(ctx, doc.ID, versioning.MainBranchName, types.ProtectionRuleSet{RequireReview: true, RestrictPush: true}, "alice"); err != nil {
		t.Fatalf("protect: %v", err)
	}

	// Direct snapshots are blocked.
	_, err := s.versions.CreateVersion(ctx, CreateVersionInput{DocumentID: doc.ID, Branch: versioning.MainBranchName, Actor: "bob"})
	if !versioning.IsCode(err, versioning.CodeInvariantViolation) {
		t.Fatalf("push to restricted branch must fail, got %v", err)
	}

	// A merge without reviewers is refused, one with reviewers goes through.
	mr, err := s.merges.CreateMergeRequest(ctx, CreateMergeRequestInput{
		DocumentID: doc.ID, SourceBranch: "feature", TargetBranch: versioning.MainBranchName,
		Title: "no reviewers", Actor: "bob",
	})
	if err != nil {
		t.Fatalf("create merge request: %v", err)
	}
	if _, err := s.merges.AutoMerge(ctx, mr.ID, "carol"); !versioning.IsCode(err, versioning.CodeInvariantViolation) {
		t.Fatalf("merge without reviewers must fail, got %v", err)
	}
	if _, err := s.merges.CloseMergeRequest(ctx, mr.ID, "redo with reviewers", "bob"); err != nil {
		t.Fatalf("close: %v", err)
	}

	reviewed, err := s.merges.CreateMergeRequest(ctx, CreateMergeRequestInput{
		DocumentID: doc.ID, SourceBranch: "feature", TargetBranch: versioning.MainBranchName,
		Title: "with reviewers", Reviewers: []string{"carol"}, Actor: "bob",
	})
	if err != nil {
		t.Fatalf("create reviewed merge request: %v", err)
	}
	if _, err := s.merges.AutoMerge(ctx, reviewed.ID, "carol"); err != nil {
		t.Fatalf("reviewed auto merge: %v", err)
	}
}

func TestRestoreWithBackupSnapshot(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	doc := mustDocument(t, s, "restore", "alice")
	v1 := mustVersion(t, s, doc, "", "V1", "alice")
	if _, err := s.documents.Update(ctx, doc.ID, UpdateDocumentInput{Status: strPtr("revised")}); err != nil {
		t.Fatalf("update: %v", err)
	}
	v2 := mustVersion(t, s, doc, "", "V2", "alice")

	restored, err := s.versions.RestoreVersion(ctx, v1.ID, true, "alice")
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.ID != v1.ID || !restored.IsCurrent {
		t.Fatalf("restored version must become current")
	}

	live, err := s.documents.Get(ctx, doc.ID)
	if err != nil {
		t.Fatalf("get document: %v", err)
	}
	if payloadMap(t, live.Payload)["status"] != nil {
		t.Fatalf("live document should match v1 again: %s", string(live.Payload))
	}

	dbc := dbctx.New(ctx)
	count, err := s.versionRepo.CountByBranchID(dbc, v1.BranchID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected v1, v2 and the backup, got %d versions", count)
	}
	cur, err := s.versionRepo.GetCurrentByBranchID(dbc, v1.BranchID)
	if err != nil || cur == nil {
		t.Fatalf("current: %v", err)
	}
	if cur.ID != v1.ID {
		t.Fatalf("v1 must be current after restore, got %s", cur.ID)
	}

	// The backup row carries the pre-restore payload.
	rows, err := s.versionRepo.ListByBranchID(dbc, v1.BranchID, 0, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var backup *types.Version
	for _, row := range rows {
		if row.ID != v1.ID && row.ID != v2.ID {
			backup = row
		}
	}
	if backup == nil {
		t.Fatalf("backup snapshot missing")
	}
	if payloadMap(t, backup.Payload)["status"] != "revised" {
		t.Fatalf("backup must hold the pre-restore state: %s", string(backup.Payload))
	}
}

func TestRevertUndoesAVersion(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	doc := mustDocument(t, s, "revert", "alice")
	mustVersion(t, s, doc, "", "V1", "alice")
	if _, err := s.documents.Update(ctx, doc.ID, UpdateDocumentInput{Name: strPtr("renamed"), Status: strPtr("final")}); err != nil {
		t.Fatalf("update: %v", err)
	}
	v2 := mustVersion(t, s, doc, "", "V2", "alice")

	reverted, err := s.merges.Revert(ctx, v2.ID, "", "bob")
	if err != nil {
		t.Fatalf("revert: %v", err)
	}
	got := payloadMap(t, reverted.Payload)
	if got["name"] != "revert" || got["status"] != nil {
		t.Fatalf("revert must restore the predecessor's fields: %v", got)
	}
	if !reverted.IsCurrent {
		t.Fatalf("reverted snapshot must be the branch tip")
	}

	// Reverting the initial version has no predecessor to diff against.
	first, err := s.versionRepo.GetFirstByBranchID(dbctx.New(ctx), v2.BranchID)
	if err != nil || first == nil {
		t.Fatalf("first version: %v", err)
	}
	_, err = s.merges.Revert(ctx, first.ID, "", "bob")
	if !versioning.IsCode(err, versioning.CodeInvariantViolation) {
		t.Fatalf("reverting the first version must fail, got %v", err)
	}
}

func TestHistoryFiltersAndLineage(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	start := time.Now().UTC().Add(-time.Minute)

	doc := mustDocument(t, s, "history", "alice")
	v1 := mustVersion(t, s, doc, "", "V1", "alice")
	if _, err := s.documents.Update(ctx, doc.ID, UpdateDocumentInput{Status: strPtr("updated")}); err != nil {
		t.Fatalf("update: %v", err)
	}
	v2 := mustVersion(t, s, doc, "", "V2", "bob")
	if _, err := s.documents.Update(ctx, doc.ID, UpdateDocumentInput{Description: strPtr("more")}); err != nil {
		t.Fatalf("update: %v", err)
	}
	v3 := mustVersion(t, s, doc, "", "V3", "alice")

	created, err := s.history.GetChangeHistory(ctx, HistoryQuery{
		DocumentID: doc.ID,
		Actions:    []string{versioning.ActionVersionCreated},
	})
	if err != nil {
		t.Fatalf("change history: %v", err)
	}
	if len(created) != 3 {
		t.Fatalf("expected 3 version_created rows, got %d", len(created))
	}
	for _, row := range created {
		if row.Action != versioning.ActionVersionCreated {
			t.Fatalf("filter leaked action %s", row.Action)
		}
	}

	byBob, err := s.history.GetChangeHistory(ctx, HistoryQuery{DocumentID: doc.ID, Actor: "bob"})
	if err != nil {
		t.Fatalf("actor filter: %v", err)
	}
	if len(byBob) != 1 || byBob[0].VersionID == nil || *byBob[0].VersionID != v2.ID {
		t.Fatalf("expected exactly bob's snapshot, got %+v", byBob)
	}

	lineage, err := s.history.GetVersionLineage(ctx, v2.ID, 0)
	if err != nil {
		t.Fatalf("lineage: %v", err)
	}
	if len(lineage.Ancestors) != 1 || lineage.Ancestors[0].ID != v1.ID {
		t.Fatalf("expected ancestor v1, got %+v", lineage.Ancestors)
	}
	if len(lineage.Descendants) != 1 || lineage.Descendants[0].ID != v3.ID {
		t.Fatalf("expected descendant v3, got %+v", lineage.Descendants)
	}

	touching, err := s.history.GetVersionHistory(ctx, v2.ID)
	if err != nil {
		t.Fatalf("version history: %v", err)
	}
	if len(touching) != 1 || touching[0].Actor != "bob" || touching[0].Action != versioning.ActionVersionCreated {
		t.Fatalf("expected bob's version_created row for v2, got %+v", touching)
	}

	activity, err := s.history.GetUserActivity(ctx, "bob", start, 10)
	if err != nil {
		t.Fatalf("activity: %v", err)
	}
	if activity.ActionCounts[versioning.ActionVersionCreated] < 1 {
		t.Fatalf("expected bob's snapshot in activity, got %+v", activity.ActionCounts)
	}
}
