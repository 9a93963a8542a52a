package diff

import (
	"testing"

	"github.com/trialworks/ars-backend/internal/vcs/conflict"
)

func TestFindConflictsDisjointChanges(t *testing.T) {
	base := mustParse(t, `{"name":"A"}`)
	source := mustParse(t, `{"name":"B"}`)
	target := mustParse(t, `{"name":"A","description":"d"}`)

	if got := FindConflicts(base, source, target); len(got) != 0 {
		t.Fatalf("disjoint changes should not conflict: %+v", got)
	}
}

func TestFindConflictsValueConflict(t *testing.T) {
	base := mustParse(t, `{"name":"A"}`)
	source := mustParse(t, `{"name":"B"}`)
	target := mustParse(t, `{"name":"C"}`)

	got := FindConflicts(base, source, target)
	if len(got) != 1 {
		t.Fatalf("expected 1 conflict, got %+v", got)
	}
	c := got[0]
	if c.Path != "name" || c.Type != conflict.TypeValue {
		t.Fatalf("conflict: %+v", c)
	}
	if c.AutoResolvable {
		t.Fatalf("two non-empty scalars must not auto-resolve: %+v", c)
	}
	if c.Source.StringVal() != "B" || c.Target.StringVal() != "C" || c.Base.StringVal() != "A" {
		t.Fatalf("conflict sides: %+v", c)
	}
}

func TestFindConflictsIdenticalChangesAreNotConflicts(t *testing.T) {
	base := mustParse(t, `{"status":"draft","tags":["x"]}`)
	source := mustParse(t, `{"status":"final","tags":["x","y"]}`)
	target := mustParse(t, `{"status":"final","tags":["x","y"]}`)

	if got := FindConflicts(base, source, target); len(got) != 0 {
		t.Fatalf("identical changes should not conflict: %+v", got)
	}
}

func TestFindConflictsCompleteness(t *testing.T) {
	base := mustParse(t, `{"a":1,"b":2,"c":3,"meta":{"x":"0"}}`)
	source := mustParse(t, `{"a":10,"b":20,"c":3,"meta":{"x":"s"}}`)
	target := mustParse(t, `{"a":11,"b":2,"c":30,"meta":{"x":"t"}}`)

	got := FindConflicts(base, source, target)
	paths := ConflictPaths(got)
	want := map[string]bool{"a": true, "meta.x": true}
	if len(paths) != len(want) {
		t.Fatalf("conflict paths: %v", paths)
	}
	seen := map[string]int{}
	for _, p := range paths {
		if !want[p] {
			t.Fatalf("unexpected conflict path %q", p)
		}
		seen[p]++
	}
	for p, n := range seen {
		if n != 1 {
			t.Fatalf("path %q appears %d times", p, n)
		}
	}
}

func TestFindConflictsDeletion(t *testing.T) {
	base := mustParse(t, `{"note":"keep me"}`)
	source := mustParse(t, `{}`)
	target := mustParse(t, `{"note":"edited"}`)

	got := FindConflicts(base, source, target)
	if len(got) != 1 || got[0].Type != conflict.TypeDeletion {
		t.Fatalf("expected deletion conflict: %+v", got)
	}
	if !got[0].AutoResolvable {
		t.Fatalf("delete-vs-edit should auto-resolve toward the edit: %+v", got[0])
	}
	if got[0].SourcePresent {
		t.Fatalf("source should be absent: %+v", got[0])
	}
}

func TestFindConflictsLiftsToOutermostPath(t *testing.T) {
	base := mustParse(t, `{"section":{"title":"T","order":1}}`)
	source := mustParse(t, `{"section":"flattened"}`)
	target := mustParse(t, `{"section":{"title":"T2","order":1}}`)

	got := FindConflicts(base, source, target)
	if len(got) != 1 {
		t.Fatalf("expected a single lifted conflict: %+v", got)
	}
	if got[0].Path != "section" {
		t.Fatalf("conflict should surface at the subtree root: %+v", got[0])
	}
	if got[0].Type != conflict.TypeTypeMismatch {
		t.Fatalf("string vs object should be type_mismatch: %+v", got[0])
	}
}

func TestFindConflictsArraySubset(t *testing.T) {
	base := mustParse(t, `{"tags":["x"]}`)
	source := mustParse(t, `{"tags":["x","y"]}`)
	target := mustParse(t, `{"tags":["x","y","z"]}`)

	got := FindConflicts(base, source, target)
	if len(got) != 1 || got[0].Type != conflict.TypeArray {
		t.Fatalf("expected array conflict: %+v", got)
	}
	if !got[0].AutoResolvable {
		t.Fatalf("subset arrays should auto-resolve: %+v", got[0])
	}
}

func TestFindConflictsCriticalField(t *testing.T) {
	base := mustParse(t, `{"study_id":"S1"}`)
	source := mustParse(t, `{"study_id":"S2"}`)
	target := mustParse(t, `{"study_id":"S3"}`)

	got := FindConflicts(base, source, target)
	if len(got) != 1 || got[0].Type != conflict.TypeCriticalField {
		t.Fatalf("expected critical_field conflict: %+v", got)
	}
	if got[0].AutoResolvable {
		t.Fatalf("identity conflicts must never auto-resolve: %+v", got[0])
	}
}
