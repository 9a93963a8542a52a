package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"github.com/trialworks/ars-backend/internal/data/repos"
	"github.com/trialworks/ars-backend/internal/data/repos/testutil"
	types "github.com/trialworks/ars-backend/internal/domain"
	"github.com/trialworks/ars-backend/internal/domain/versioning"
	"github.com/trialworks/ars-backend/internal/pkg/dbctx"
	"github.com/trialworks/ars-backend/internal/services"
	"github.com/trialworks/ars-backend/internal/vcs/tree"
)

type stack struct {
	svc Service

	documents services.DocumentService
	snapshots services.VersionManager

	branchRepo  repos.BranchRepo
	versionRepo repos.VersionRepo
	logRepo     repos.ChangeLogRepo
}

func newStack(tb testing.TB) *stack {
	tb.Helper()
	db := testutil.DB(tb)
	log := testutil.Logger(tb)

	eventRepo := repos.NewReportingEventRepo(db, log)
	branchRepo := repos.NewBranchRepo(db, log)
	versionRepo := repos.NewVersionRepo(db, log)
	mrRepo := repos.NewMergeRequestRepo(db, log)
	logRepo := repos.NewChangeLogRepo(db, log)

	documents := services.NewDocumentService(db, log, eventRepo)
	history := services.NewHistoryTracker(db, log, logRepo, versionRepo)
	branches := services.NewBranchManager(db, log, eventRepo, branchRepo, versionRepo, mrRepo, history, services.NewBranchNotifier(nil))
	snapshots := services.NewVersionManager(db, log, documents, branchRepo, versionRepo, branches, history, services.NewVersionNotifier(nil), services.NewBranchNotifier(nil))

	svc := NewService(db, log, eventRepo, branchRepo, versionRepo, documents, branches, snapshots, history, services.NewVersionNotifier(nil))

	return &stack{
		svc:         svc,
		documents:   documents,
		snapshots:   snapshots,
		branchRepo:  branchRepo,
		versionRepo: versionRepo,
		logRepo:     logRepo,
	}
}

func seedDocument(tb testing.TB, st *stack, payload tree.Value) (*types.ReportingEvent, *types.Version) {
	tb.Helper()
	ctx := context.Background()

	doc, err := st.documents.Create(ctx, services.CreateDocumentInput{
		Name:    fmt.Sprintf("Exchange %s", uuid.NewString()[:8]),
		StudyID: "CDISC01",
		Payload: payload,
		Actor:   "alice",
	})
	if err != nil {
		tb.Fatalf("Create document: %v", err)
	}
	v, err := st.snapshots.CreateVersion(ctx, services.CreateVersionInput{
		DocumentID: doc.ID,
		Branch:     versioning.MainBranchName,
		Actor:      "alice",
	})
	if err != nil {
		tb.Fatalf("CreateVersion: %v", err)
	}
	return doc, v
}

func mustTree(tb testing.TB, raw string) tree.Value {
	tb.Helper()
	v, err := tree.FromJSON([]byte(raw))
	if err != nil {
		tb.Fatalf("FromJSON: %v", err)
	}
	return v
}

func hasAction(rows []*types.ChangeLog, action string) bool {
	for _, r := range rows {
		if r.Action == action {
			return true
		}
	}
	return false
}

// Exporting a document and importing the bundle with a cleared id produces an
// independent copy with the same payload, snapshotted on its own main branch.
func TestExportImportRoundTrip(t *testing.T) {
	st := newStack(t)
	ctx := context.Background()

	doc, v1 := seedDocument(t, st, mustTree(t, `{
		"analyses": [{"id": "An01", "reason": "SPECIFIED"}],
		"counts": {"subjects": 412, "ratio": 0.75}
	}`))

	res, err := st.svc.Export(ctx, ExportInput{DocumentID: doc.ID, Format: FormatJSON, Actor: "alice"})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if res.Bundle.Snapshot != nil {
		t.Fatalf("export without version carried a snapshot")
	}
	if res.Bundle.Document.ID != doc.ID.String() || res.Bundle.Document.Name != doc.Name {
		t.Fatalf("document record mismatch: %+v", res.Bundle.Document)
	}

	withVersion, err := st.svc.Export(ctx, ExportInput{DocumentID: doc.ID, VersionID: &v1.ID, Format: FormatYAML, Actor: "alice"})
	if err != nil {
		t.Fatalf("Export with version: %v", err)
	}
	if withVersion.Bundle.Snapshot == nil || withVersion.Bundle.Snapshot.Branch != versioning.MainBranchName {
		t.Fatalf("snapshot record: %+v", withVersion.Bundle.Snapshot)
	}
	if _, err := DecodeBundle(withVersion.Data, FormatYAML); err != nil {
		t.Fatalf("decode yaml export: %v", err)
	}

	bundle := res.Bundle
	bundle.Document.ID = ""
	out, err := st.svc.Import(ctx, bundle, "bob")
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if !out.Created {
		t.Fatalf("import of an id-less bundle should create")
	}
	if out.Document.ID == doc.ID {
		t.Fatalf("import reused the source document id")
	}

	origTree := mustTree(t, string(doc.Payload))
	copyTree := mustTree(t, string(out.Document.Payload))
	if !tree.Equal(origTree, copyTree) {
		t.Fatalf("imported payload drifted:\nwant %s\ngot  %s", origTree, copyTree)
	}

	dbc := dbctx.New(ctx)
	main, err := st.branchRepo.GetByDocumentAndName(dbc, out.Document.ID, versioning.MainBranchName)
	if err != nil || main == nil {
		t.Fatalf("main branch of import: %v %v", main, err)
	}
	cur, err := st.versionRepo.GetCurrentByBranchID(dbc, main.ID)
	if err != nil || cur == nil || cur.ID != out.Version.ID {
		t.Fatalf("imported version is not current: %v %v", cur, err)
	}

	logs, err := st.logRepo.ListByVersionID(dbc, out.Version.ID)
	if err != nil || !hasAction(logs, versioning.ActionDocumentImported) {
		t.Fatalf("document_imported log missing: %v %v", logs, err)
	}
	exports, err := st.logRepo.ListByDocumentID(dbc, doc.ID, []string{versioning.ActionDocumentExported}, 10, 0)
	if err != nil || len(exports) != 2 {
		t.Fatalf("export logs: want 2, got %d (%v)", len(exports), err)
	}
}

// Importing a bundle whose document id already exists updates the live
// document in place and adds a snapshot instead of creating a twin.
func TestImportUpdatesExistingDocument(t *testing.T) {
	st := newStack(t)
	ctx := context.Background()

	doc, _ := seedDocument(t, st, mustTree(t, `{"status": "draft", "owner": "team-a"}`))

	res, err := st.svc.Export(ctx, ExportInput{DocumentID: doc.ID, Format: FormatJSON, Actor: "alice"})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	bundle := res.Bundle
	bundle.Document.Status = "final"
	bundle.Document.Payload["status"] = "final"
	bundle.Document.Payload["owner"] = "team-b"

	out, err := st.svc.Import(ctx, bundle, "bob")
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if out.Created {
		t.Fatalf("import with a known id should update, not create")
	}
	if out.Document.ID != doc.ID {
		t.Fatalf("import switched document: %s != %s", out.Document.ID, doc.ID)
	}
	if out.Document.Status != "final" {
		t.Fatalf("status column not updated: %q", out.Document.Status)
	}

	var live map[string]any
	if err := json.Unmarshal(out.Document.Payload, &live); err != nil {
		t.Fatalf("decode live payload: %v", err)
	}
	if live["owner"] != "team-b" || live["status"] != "final" {
		t.Fatalf("live payload not updated: %v", live)
	}

	dbc := dbctx.New(ctx)
	count, err := st.versionRepo.CountByBranchID(dbc, out.Version.BranchID)
	if err != nil || count != 2 {
		t.Fatalf("version count: want 2, got %d (%v)", count, err)
	}
	cur, err := st.versionRepo.GetCurrentByBranchID(dbc, out.Version.BranchID)
	if err != nil || cur == nil || cur.ID != out.Version.ID {
		t.Fatalf("imported snapshot is not current: %v %v", cur, err)
	}
}

// One bad bundle in a batch fails on its own index while its siblings import.
func TestBatchImportReportsPartialFailure(t *testing.T) {
	st := newStack(t)
	ctx := context.Background()

	good := func() *Bundle {
		return &Bundle{
			FormatVersion: FormatVersion,
			Document: DocumentRecord{
				Name:    fmt.Sprintf("Batch %s", uuid.NewString()[:8]),
				StudyID: "CDISC01",
				Payload: map[string]any{"status": "draft"},
			},
		}
	}
	bad := &Bundle{FormatVersion: FormatVersion, Document: DocumentRecord{Payload: map[string]any{}}}

	items, err := st.svc.BatchImport(ctx, []*Bundle{good(), bad, good()}, "carol")
	if err != nil {
		t.Fatalf("BatchImport: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("items: %d", len(items))
	}
	if items[0].Result == nil || !items[0].Result.Created {
		t.Fatalf("first bundle should import: %+v", items[0])
	}
	if items[1].Error == "" || items[1].Result != nil {
		t.Fatalf("nameless bundle should fail: %+v", items[1])
	}
	if items[2].Result == nil || !items[2].Result.Created {
		t.Fatalf("third bundle should import: %+v", items[2])
	}

	for _, idx := range []int{0, 2} {
		if _, err := st.documents.Get(ctx, items[idx].Result.Document.ID); err != nil {
			t.Fatalf("imported document %d missing: %v", idx, err)
		}
	}
}

// A hand-written YAML bundle imports through the data path, with the payload
// name standing in for the missing document name.
func TestImportDataYAML(t *testing.T) {
	st := newStack(t)
	ctx := context.Background()

	name := fmt.Sprintf("YAML Import %s", uuid.NewString()[:8])
	data := fmt.Sprintf(`
document:
  study_id: CDISC01
  payload:
    name: %q
    status: draft
    counts:
      subjects: 412
`, name)

	out, err := st.svc.ImportData(ctx, []byte(data), FormatYAML, "dana")
	if err != nil {
		t.Fatalf("ImportData: %v", err)
	}
	if !out.Created {
		t.Fatalf("yaml import should create")
	}
	if out.Document.Name != name {
		t.Fatalf("name fell back wrong: %q", out.Document.Name)
	}

	var live map[string]any
	if err := json.Unmarshal(out.Document.Payload, &live); err != nil {
		t.Fatalf("decode live payload: %v", err)
	}
	counts, _ := live["counts"].(map[string]any)
	if counts == nil || counts["subjects"] != float64(412) {
		t.Fatalf("yaml numbers did not survive: %v", live)
	}
}
