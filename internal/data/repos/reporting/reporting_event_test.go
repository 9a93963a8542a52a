package reporting

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/trialworks/ars-backend/internal/data/repos/testutil"
	types "github.com/trialworks/ars-backend/internal/domain"
	"github.com/trialworks/ars-backend/internal/pkg/dbctx"
)

func TestReportingEventRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewReportingEventRepo(db, testutil.Logger(t))

	ev := &types.ReportingEvent{
		ID:        uuid.New(),
		Name:      "CSR Safety Tables",
		StudyID:   "CDISC01",
		Status:    "draft",
		Payload:   datatypes.JSON([]byte(`{"name":"CSR Safety Tables"}`)),
		CreatedBy: "alice",
	}
	other := &types.ReportingEvent{
		ID:      uuid.New(),
		Name:    "Interim Analysis",
		StudyID: "CDISC02",
		Status:  "final",
		Payload: datatypes.JSON([]byte(`{}`)),
	}
	if _, err := repo.Create(dbc, []*types.ReportingEvent{ev, other}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repo.GetByID(dbc, ev.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got == nil || got.Name != "CSR Safety Tables" {
		t.Fatalf("GetByID: got %+v", got)
	}

	if rows, err := repo.List(dbc, "CDISC01", "", 0, 0); err != nil || len(rows) != 1 {
		t.Fatalf("List by study: err=%v len=%d", err, len(rows))
	}
	if rows, err := repo.List(dbc, "", "final", 0, 0); err != nil || len(rows) != 1 {
		t.Fatalf("List by status: err=%v len=%d", err, len(rows))
	}
	if rows, err := repo.List(dbc, "", "", 1, 0); err != nil || len(rows) != 1 {
		t.Fatalf("List limit: err=%v len=%d", err, len(rows))
	}

	if err := repo.UpdateFields(dbc, ev.ID, map[string]interface{}{"status": "in_review"}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	got, err = repo.GetByID(dbc, ev.ID)
	if err != nil || got == nil {
		t.Fatalf("GetByID after update: err=%v row=%v", err, got)
	}
	if got.Status != "in_review" {
		t.Fatalf("UpdateFields: status=%q", got.Status)
	}

	if err := repo.Delete(dbc, []uuid.UUID{ev.ID}); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if row, err := repo.GetByID(dbc, ev.ID); err != nil || row != nil {
		t.Fatalf("after Delete GetByID: err=%v row=%v", err, row)
	}
}
