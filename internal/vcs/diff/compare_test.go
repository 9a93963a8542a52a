package diff

import (
	"testing"

	"github.com/trialworks/ars-backend/internal/vcs/tree"
)

func mustParse(t *testing.T, raw string) tree.Value {
	t.Helper()
	v, err := tree.FromJSON([]byte(raw))
	if err != nil {
		t.Fatalf("FromJSON(%s): %v", raw, err)
	}
	return v
}

func TestCompareIdenticalIsEmpty(t *testing.T) {
	for _, raw := range []string{
		`null`,
		`{"name":"RE1","analyses":[{"id":"AN01"},{"id":"AN02"}]}`,
		`[1,2,3]`,
		`{"nested":{"deep":{"list":[true,false]}}}`,
	} {
		v := mustParse(t, raw)
		if cs := Compare(v, v); !cs.Empty() {
			t.Fatalf("Compare(x,x) for %s: expected empty, got %+v", raw, cs)
		}
	}
}

func TestCompareBuckets(t *testing.T) {
	a := mustParse(t, `{"name":"A","status":"draft","counts":{"total":3},"tags":["x","y"],"old_key":1}`)
	b := mustParse(t, `{"name":"B","status":"draft","counts":{"total":"3"},"tags":["y","z"],"new_key":2}`)

	cs := Compare(a, b)

	if len(cs.ValueChanges) != 1 || cs.ValueChanges[0].Path != "name" {
		t.Fatalf("value changes: %+v", cs.ValueChanges)
	}
	if got := cs.ValueChanges[0].New.StringVal(); got != "B" {
		t.Fatalf("value change new: %q", got)
	}
	if len(cs.TypeChanges) != 1 || cs.TypeChanges[0].Path != "counts.total" {
		t.Fatalf("type changes: %+v", cs.TypeChanges)
	}
	if cs.TypeChanges[0].OldKind != "number" || cs.TypeChanges[0].NewKind != "string" {
		t.Fatalf("type change kinds: %+v", cs.TypeChanges[0])
	}
	if len(cs.KeysRemoved) != 1 || cs.KeysRemoved[0].Key != "old_key" {
		t.Fatalf("keys removed: %+v", cs.KeysRemoved)
	}
	if len(cs.KeysAdded) != 1 || cs.KeysAdded[0].Key != "new_key" {
		t.Fatalf("keys added: %+v", cs.KeysAdded)
	}
	if len(cs.ItemsRemoved) != 1 || cs.ItemsRemoved[0].Item.StringVal() != "x" {
		t.Fatalf("items removed: %+v", cs.ItemsRemoved)
	}
	if len(cs.ItemsAdded) != 1 || cs.ItemsAdded[0].Item.StringVal() != "z" {
		t.Fatalf("items added: %+v", cs.ItemsAdded)
	}
}

func TestCompareArrayOrderInsensitive(t *testing.T) {
	a := mustParse(t, `{"tags":["x","y","z"]}`)
	b := mustParse(t, `{"tags":["z","x","y"]}`)
	if cs := Compare(a, b); !cs.Empty() {
		t.Fatalf("reordering should not register: %+v", cs)
	}
}

func TestCompareArrayMultisetCounts(t *testing.T) {
	a := mustParse(t, `["x","x","y"]`)
	b := mustParse(t, `["x"]`)
	cs := Compare(a, b)
	if len(cs.ItemsRemoved) != 2 {
		t.Fatalf("items removed: %+v", cs.ItemsRemoved)
	}
	var xCount, yCount int
	for _, c := range cs.ItemsRemoved {
		switch c.Item.StringVal() {
		case "x":
			xCount = c.Count
		case "y":
			yCount = c.Count
		}
	}
	if xCount != 1 || yCount != 1 {
		t.Fatalf("multiset counts: x=%d y=%d", xCount, yCount)
	}
}

func TestCompareSymmetry(t *testing.T) {
	a := mustParse(t, `{"name":"A","extra":1,"counts":{"total":3},"tags":["x"]}`)
	b := mustParse(t, `{"name":"B","counts":{"total":4},"tags":["x","y"],"added":true}`)

	ab := Compare(a, b)
	ba := Compare(b, a)

	abPaths := ab.Paths()
	baPaths := ba.Paths()
	if len(abPaths) != len(baPaths) {
		t.Fatalf("path sets differ: %v vs %v", abPaths, baPaths)
	}
	for i := range abPaths {
		if abPaths[i] != baPaths[i] {
			t.Fatalf("path sets differ: %v vs %v", abPaths, baPaths)
		}
	}
	if !tree.Equal(ab.ValueChanges[0].Old, ba.ValueChanges[0].New) ||
		!tree.Equal(ab.ValueChanges[0].New, ba.ValueChanges[0].Old) {
		t.Fatalf("old/new not swapped: %+v vs %+v", ab.ValueChanges[0], ba.ValueChanges[0])
	}
	if len(ab.ItemsAdded) != len(ba.ItemsRemoved) || len(ab.ItemsRemoved) != len(ba.ItemsAdded) {
		t.Fatalf("item buckets not mirrored")
	}
}

func TestChangeSetPathsAndSummary(t *testing.T) {
	a := mustParse(t, `{"name":"A","meta":{"x":1}}`)
	b := mustParse(t, `{"name":"B","meta":{"y":2}}`)
	cs := Compare(a, b)

	paths := cs.Paths()
	want := []string{"meta.x", "meta.y", "name"}
	if len(paths) != len(want) {
		t.Fatalf("paths: %v", paths)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Fatalf("paths: got %v want %v", paths, want)
		}
	}

	s := cs.Summary()
	if s.ValuesChanged != 1 || s.KeysAdded != 1 || s.KeysRemoved != 1 || s.Total != 3 {
		t.Fatalf("summary: %+v", s)
	}
}

func TestFieldHistory(t *testing.T) {
	versions := []VersionPayload{
		{Name: "v1", Payload: mustParse(t, `{"status":"draft"}`)},
		{Name: "v2", Payload: mustParse(t, `{"status":"draft"}`)},
		{Name: "v3", Payload: mustParse(t, `{"status":"final"}`)},
		{Name: "v4", Payload: mustParse(t, `{}`)},
	}
	hist := FieldHistory(versions, "status")
	if len(hist) != 4 {
		t.Fatalf("history length: %d", len(hist))
	}
	wantChanged := []bool{true, false, true, true}
	wantPresent := []bool{true, true, true, false}
	for i := range hist {
		if hist[i].Changed != wantChanged[i] || hist[i].Present != wantPresent[i] {
			t.Fatalf("snapshot %d: %+v", i, hist[i])
		}
	}
	if hist[2].Value.StringVal() != "final" {
		t.Fatalf("v3 value: %s", hist[2].Value)
	}
}

func TestFieldHistoryAbsentEverywhere(t *testing.T) {
	versions := []VersionPayload{
		{Name: "v1", Payload: mustParse(t, `{}`)},
		{Name: "v2", Payload: mustParse(t, `{}`)},
	}
	for i, snap := range FieldHistory(versions, "missing") {
		if snap.Changed || snap.Present {
			t.Fatalf("snapshot %d should be absent and unchanged: %+v", i, snap)
		}
	}
}
