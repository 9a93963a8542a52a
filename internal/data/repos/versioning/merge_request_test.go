package versioning

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/trialworks/ars-backend/internal/data/repos/testutil"
	types "github.com/trialworks/ars-backend/internal/domain"
	"github.com/trialworks/ars-backend/internal/pkg/dbctx"
)

func TestMergeRequestRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewMergeRequestRepo(db, testutil.Logger(t))

	docID := uuid.New()
	sourceBranchID := uuid.New()
	targetBranchID := uuid.New()

	open := &types.MergeRequest{
		ID:              uuid.New(),
		DocumentID:      docID,
		SourceBranchID:  sourceBranchID,
		TargetBranchID:  targetBranchID,
		SourceVersionID: uuid.New(),
		TargetVersionID: uuid.New(),
		Status:          types.MergeStatusOpen,
		Title:           "Merge safety updates",
		Conflicts:       datatypes.JSON([]byte(`[]`)),
		Reviewers:       datatypes.JSON([]byte(`[]`)),
		TieBreak:        types.TieBreakSource,
		CreatedBy:       "alice",
	}
	closed := &types.MergeRequest{
		ID:              uuid.New(),
		DocumentID:      docID,
		SourceBranchID:  uuid.New(),
		TargetBranchID:  targetBranchID,
		SourceVersionID: uuid.New(),
		TargetVersionID: uuid.New(),
		Status:          types.MergeStatusClosed,
		Title:           "Abandoned",
		Conflicts:       datatypes.JSON([]byte(`[]`)),
		Reviewers:       datatypes.JSON([]byte(`[]`)),
		TieBreak:        types.TieBreakSource,
	}
	if _, err := repo.Create(dbc, []*types.MergeRequest{open, closed}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repo.GetByID(dbc, open.ID)
	if err != nil || got == nil || got.Title != "Merge safety updates" {
		t.Fatalf("GetByID: err=%v row=%+v", err, got)
	}

	locked, err := repo.LockByID(dbc, open.ID)
	if err != nil || locked == nil || locked.ID != open.ID {
		t.Fatalf("LockByID: err=%v row=%+v", err, locked)
	}

	rows, err := repo.ListByDocumentID(dbc, docID, nil, 0, 0)
	if err != nil || len(rows) != 2 {
		t.Fatalf("ListByDocumentID: err=%v len=%d", err, len(rows))
	}
	rows, err = repo.ListByDocumentID(dbc, docID, []string{types.MergeStatusOpen}, 0, 0)
	if err != nil || len(rows) != 1 || rows[0].ID != open.ID {
		t.Fatalf("ListByDocumentID open: err=%v len=%d", err, len(rows))
	}

	active, err := repo.ListActiveByBranchID(dbc, sourceBranchID)
	if err != nil || len(active) != 1 || active[0].ID != open.ID {
		t.Fatalf("ListActiveByBranchID source: err=%v len=%d", err, len(active))
	}
	active, err = repo.ListActiveByBranchID(dbc, targetBranchID)
	if err != nil || len(active) != 1 {
		t.Fatalf("ListActiveByBranchID target: err=%v len=%d", err, len(active))
	}

	if err := repo.UpdateFields(dbc, open.ID, map[string]interface{}{
		"status":        types.MergeStatusMerged,
		"has_conflicts": true,
	}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	got, err = repo.GetByID(dbc, open.ID)
	if err != nil || got == nil {
		t.Fatalf("GetByID after update: err=%v", err)
	}
	if got.Status != types.MergeStatusMerged || !got.HasConflicts {
		t.Fatalf("UpdateFields: status=%q hasConflicts=%v", got.Status, got.HasConflicts)
	}

	if active, err := repo.ListActiveByBranchID(dbc, sourceBranchID); err != nil || len(active) != 0 {
		t.Fatalf("ListActiveByBranchID after merge: err=%v len=%d", err, len(active))
	}
}
