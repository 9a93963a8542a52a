package merge

import (
	"testing"

	"github.com/trialworks/ars-backend/internal/vcs/diff"
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

func combine(t *testing.T, base, source, target tree.Value, resolved map[string]tree.Value) tree.Value {
	t.Helper()
	out, err := Combine(base, diff.Compare(base, source), diff.Compare(base, target), resolved)
	if err != nil {
		t.Fatalf("Combine: %v", err)
	}
	return out
}

func TestCombineDisjointChanges(t *testing.T) {
	base := mustParse(t, `{"name":"A"}`)
	source := mustParse(t, `{"name":"B"}`)
	target := mustParse(t, `{"name":"A","description":"d"}`)

	got := combine(t, base, source, target, nil)
	want := mustParse(t, `{"name":"B","description":"d"}`)
	if !tree.Equal(got, want) {
		t.Fatalf("Combine: got %s want %s", got, want)
	}
}

func TestCombineIdenticalChangesApplyOnce(t *testing.T) {
	base := mustParse(t, `{"status":"draft","tags":["x"]}`)
	source := mustParse(t, `{"status":"final","tags":["x","y"]}`)
	target := mustParse(t, `{"status":"final","tags":["x","y"]}`)

	got := combine(t, base, source, target, nil)
	want := mustParse(t, `{"status":"final","tags":["x","y"]}`)
	if !tree.Equal(got, want) {
		t.Fatalf("identical array adds must not double: got %s", got)
	}
}

func TestCombineResolvedValuesWin(t *testing.T) {
	base := mustParse(t, `{"name":"A","description":""}`)
	source := mustParse(t, `{"name":"B","description":""}`)
	target := mustParse(t, `{"name":"C","description":"d"}`)

	got := combine(t, base, source, target, map[string]tree.Value{"name": tree.String("B")})
	want := mustParse(t, `{"name":"B","description":"d"}`)
	if !tree.Equal(got, want) {
		t.Fatalf("Combine with resolution: got %s want %s", got, want)
	}
}

func TestCombineNullResolutionDeletes(t *testing.T) {
	base := mustParse(t, `{"note":"orig","keep":1}`)
	source := mustParse(t, `{"keep":1}`)
	target := mustParse(t, `{"note":"edited","keep":1}`)

	got := combine(t, base, source, target, map[string]tree.Value{"note": tree.Null()})
	want := mustParse(t, `{"keep":1}`)
	if !tree.Equal(got, want) {
		t.Fatalf("null resolution should delete the path: got %s", got)
	}
}

func TestCombineConflictRegionExcludesBothSides(t *testing.T) {
	base := mustParse(t, `{"section":{"title":"T","order":1},"other":0}`)
	source := mustParse(t, `{"section":"flattened","other":0}`)
	target := mustParse(t, `{"section":{"title":"T2","order":1},"other":9}`)

	resolved := map[string]tree.Value{"section": mustParse(t, `{"title":"T2","order":1}`)}
	got := combine(t, base, source, target, resolved)
	want := mustParse(t, `{"section":{"title":"T2","order":1},"other":9}`)
	if !tree.Equal(got, want) {
		t.Fatalf("conflict region: got %s want %s", got, want)
	}
}

func TestCombineArrayChangesFromBothSides(t *testing.T) {
	base := mustParse(t, `{"tags":["a","b"]}`)
	source := mustParse(t, `{"tags":["a","b","s"]}`)
	target := mustParse(t, `{"tags":["b","t"]}`)

	// source added "s"; target removed "a" and added "t". The sides diverge
	// on the container, so the caller resolves tags and Combine applies
	// exactly that value.
	resolved := map[string]tree.Value{"tags": mustParse(t, `["b","s","t"]`)}
	got := combine(t, base, source, target, resolved)
	if !tree.Equal(got.GetOrNull("tags"), mustParse(t, `["b","s","t"]`)) {
		t.Fatalf("resolved array: %s", got)
	}
}

func TestCombineLeavesBaseUntouched(t *testing.T) {
	base := mustParse(t, `{"name":"A","meta":{"x":1}}`)
	source := mustParse(t, `{"name":"B","meta":{"x":1}}`)
	target := mustParse(t, `{"name":"A","meta":{"x":2}}`)

	_ = combine(t, base, source, target, nil)
	if !tree.Equal(base, mustParse(t, `{"name":"A","meta":{"x":1}}`)) {
		t.Fatalf("base mutated: %s", base)
	}
}
