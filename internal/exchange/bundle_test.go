package exchange

import (
	"testing"
	"time"

	"github.com/trialworks/ars-backend/internal/domain/versioning"
	"github.com/trialworks/ars-backend/internal/vcs/tree"
)

func TestParseFormat(t *testing.T) {
	cases := []struct {
		in   string
		want Format
		ok   bool
	}{
		{"", FormatJSON, true},
		{"json", FormatJSON, true},
		{"JSON", FormatJSON, true},
		{"yaml", FormatYAML, true},
		{"yml", FormatYAML, true},
		{"  yaml  ", FormatYAML, true},
		{"xml", "", false},
	}
	for _, c := range cases {
		got, err := ParseFormat(c.in)
		if c.ok != (err == nil) {
			t.Fatalf("ParseFormat(%q): err=%v", c.in, err)
		}
		if c.ok && got != c.want {
			t.Fatalf("ParseFormat(%q)=%q want %q", c.in, got, c.want)
		}
		if !c.ok && !versioning.IsCode(err, versioning.CodeValidation) {
			t.Fatalf("ParseFormat(%q): want validation code, got %v", c.in, err)
		}
	}
}

func sampleBundle() *Bundle {
	return &Bundle{
		FormatVersion: FormatVersion,
		ExportedAt:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Document: DocumentRecord{
			ID:      "5aa619f0-7b6e-4254-9c50-1f2f2b7cd8a3",
			Name:    "Primary ACS Report",
			StudyID: "CDISC01",
			Status:  "draft",
			Payload: map[string]any{
				"name":   "Primary ACS Report",
				"status": "draft",
				"analyses": []any{
					map[string]any{"id": "An01", "reason": "SPECIFIED"},
					map[string]any{"id": "An02", "reason": "EXPLORATORY"},
				},
				"counts": map[string]any{"subjects": 412, "ratio": 0.75, "locked": false},
			},
		},
		Snapshot: &SnapshotRecord{
			VersionName: "v3",
			Branch:      "main",
			Tag:         "interim-1",
			CreatedAt:   time.Date(2025, 5, 20, 9, 30, 0, 0, time.UTC),
			Payload:     map[string]any{"name": "Primary ACS Report", "analyses": []any{}},
		},
	}
}

func assertBundleEquivalent(t *testing.T, want, got *Bundle) {
	t.Helper()
	if got.FormatVersion != want.FormatVersion {
		t.Fatalf("format_version %q want %q", got.FormatVersion, want.FormatVersion)
	}
	if got.Document.ID != want.Document.ID || got.Document.Name != want.Document.Name ||
		got.Document.StudyID != want.Document.StudyID || got.Document.Status != want.Document.Status {
		t.Fatalf("document record mismatch: %+v", got.Document)
	}
	wantDoc, err := payloadTree("test", want.Document.Payload)
	if err != nil {
		t.Fatalf("payloadTree(want): %v", err)
	}
	gotDoc, err := payloadTree("test", got.Document.Payload)
	if err != nil {
		t.Fatalf("payloadTree(got): %v", err)
	}
	if !tree.Equal(wantDoc, gotDoc) {
		t.Fatalf("document payload drifted:\nwant %s\ngot  %s", wantDoc, gotDoc)
	}
	if (want.Snapshot == nil) != (got.Snapshot == nil) {
		t.Fatalf("snapshot presence mismatch")
	}
	if want.Snapshot != nil {
		if got.Snapshot.VersionName != want.Snapshot.VersionName ||
			got.Snapshot.Branch != want.Snapshot.Branch ||
			got.Snapshot.Tag != want.Snapshot.Tag {
			t.Fatalf("snapshot record mismatch: %+v", got.Snapshot)
		}
		wantSnap, _ := payloadTree("test", want.Snapshot.Payload)
		gotSnap, _ := payloadTree("test", got.Snapshot.Payload)
		if !tree.Equal(wantSnap, gotSnap) {
			t.Fatalf("snapshot payload drifted:\nwant %s\ngot  %s", wantSnap, gotSnap)
		}
	}
}

func TestBundleRoundTripJSON(t *testing.T) {
	b := sampleBundle()
	data, err := b.Encode(FormatJSON)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := DecodeBundle(data, FormatJSON)
	if err != nil {
		t.Fatalf("DecodeBundle: %v", err)
	}
	assertBundleEquivalent(t, b, got)
}

func TestBundleRoundTripYAML(t *testing.T) {
	b := sampleBundle()
	data, err := b.Encode(FormatYAML)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := DecodeBundle(data, FormatYAML)
	if err != nil {
		t.Fatalf("DecodeBundle: %v", err)
	}
	assertBundleEquivalent(t, b, got)
}

func TestDecodeBundleVersionGate(t *testing.T) {
	if _, err := DecodeBundle([]byte(`{"format_version":"2","document":{"name":"x"}}`), FormatJSON); !versioning.IsCode(err, versioning.CodeValidation) {
		t.Fatalf("future format_version: want validation, got %v", err)
	}
	// A missing version reads as current.
	b, err := DecodeBundle([]byte(`{"document":{"name":"x","payload":{"name":"x"}}}`), FormatJSON)
	if err != nil {
		t.Fatalf("missing format_version: %v", err)
	}
	if b.Document.Name != "x" {
		t.Fatalf("document name %q", b.Document.Name)
	}
}

func TestDecodeBundleBadData(t *testing.T) {
	if _, err := DecodeBundle([]byte(`{"document":`), FormatJSON); !versioning.IsCode(err, versioning.CodeSerialization) {
		t.Fatalf("truncated json: want serialization, got %v", err)
	}
	if _, err := DecodeBundle([]byte("document: [\n  - :"), FormatYAML); !versioning.IsCode(err, versioning.CodeSerialization) {
		t.Fatalf("bad yaml: want serialization, got %v", err)
	}
}

func TestFormatContentType(t *testing.T) {
	if got := FormatJSON.ContentType(); got != "application/json" {
		t.Fatalf("json content type %q", got)
	}
	if got := FormatYAML.ContentType(); got != "application/yaml" {
		t.Fatalf("yaml content type %q", got)
	}
}
