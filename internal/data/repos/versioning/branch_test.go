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

func TestBranchRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewBranchRepo(db, testutil.Logger(t))

	doc := &types.ReportingEvent{
		ID:      uuid.New(),
		Name:    "CSR",
		StudyID: "CDISC01",
		Payload: datatypes.JSON([]byte(`{}`)),
	}
	if err := tx.WithContext(ctx).Create(doc).Error; err != nil {
		t.Fatalf("seed document: %v", err)
	}

	main := &types.Branch{
		ID:         uuid.New(),
		DocumentID: doc.ID,
		Name:       types.MainBranchName,
		Protected:  true,
	}
	feature := &types.Branch{
		ID:         uuid.New(),
		DocumentID: doc.ID,
		Name:       "feature-a",
	}
	if _, err := repo.Create(dbc, []*types.Branch{main, feature}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repo.GetByDocumentAndName(dbc, doc.ID, "feature-a")
	if err != nil {
		t.Fatalf("GetByDocumentAndName: %v", err)
	}
	if got == nil || got.ID != feature.ID {
		t.Fatalf("GetByDocumentAndName: got %+v", got)
	}
	if row, err := repo.GetByDocumentAndName(dbc, doc.ID, "missing"); err != nil || row != nil {
		t.Fatalf("GetByDocumentAndName missing: err=%v row=%v", err, row)
	}

	rows, err := repo.ListByDocumentID(dbc, doc.ID)
	if err != nil {
		t.Fatalf("ListByDocumentID: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("ListByDocumentID: len=%d", len(rows))
	}

	locked, err := repo.LockByID(dbc, feature.ID)
	if err != nil {
		t.Fatalf("LockByID: %v", err)
	}
	if locked == nil || locked.ID != feature.ID {
		t.Fatalf("LockByID: got %+v", locked)
	}

	if err := repo.UpdateFields(dbc, feature.ID, map[string]interface{}{"protected": true}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	got, err = repo.GetByID(dbc, feature.ID)
	if err != nil || got == nil {
		t.Fatalf("GetByID after update: err=%v row=%v", err, got)
	}
	if !got.Protected {
		t.Fatalf("UpdateFields: protected not set")
	}

	// Duplicate live name must violate the partial unique index.
	dup := &types.Branch{ID: uuid.New(), DocumentID: doc.ID, Name: "feature-a"}
	if _, err := repo.Create(dbc, []*types.Branch{dup}); err == nil {
		t.Fatalf("Create duplicate name: expected error")
	}
	// The failed insert poisons the outer test transaction, so run the
	// delete/reuse check on a fresh one.
	tx2 := testutil.Tx(t, db)
	dbc2 := dbctx.Context{Ctx: ctx, Tx: tx2}
	doc2 := &types.ReportingEvent{
		ID:      uuid.New(),
		Name:    "CSR2",
		StudyID: "CDISC01",
		Payload: datatypes.JSON([]byte(`{}`)),
	}
	if err := tx2.WithContext(ctx).Create(doc2).Error; err != nil {
		t.Fatalf("seed document 2: %v", err)
	}
	first := &types.Branch{ID: uuid.New(), DocumentID: doc2.ID, Name: "exploratory"}
	if _, err := repo.Create(dbc2, []*types.Branch{first}); err != nil {
		t.Fatalf("Create exploratory: %v", err)
	}
	if err := repo.Delete(dbc2, []uuid.UUID{first.ID}); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if row, err := repo.GetByID(dbc2, first.ID); err != nil || row != nil {
		t.Fatalf("after Delete GetByID: err=%v row=%v", err, row)
	}
	// A soft-deleted branch's name is reusable.
	reused := &types.Branch{ID: uuid.New(), DocumentID: doc2.ID, Name: "exploratory"}
	if _, err := repo.Create(dbc2, []*types.Branch{reused}); err != nil {
		t.Fatalf("Create reused name: %v", err)
	}
}
