package diff

import (
	"testing"

	"github.com/trialworks/ars-backend/internal/vcs/tree"
)

func TestGeneratePatchRoundTrip(t *testing.T) {
	cases := []struct{ name, source, target string }{
		{"scalars", `{"name":"A","status":"draft"}`, `{"name":"B","status":"final"}`},
		{"keys", `{"keep":1,"drop":2}`, `{"keep":1,"add":3}`},
		{"arrays", `{"tags":["x","y"]}`, `{"tags":["y","z","w"]}`},
		{"nested", `{"a":{"b":{"c":1}},"list":[{"id":"1"}]}`, `{"a":{"b":{"c":2,"d":3}},"list":[{"id":"2"}]}`},
		{"type change", `{"n":3}`, `{"n":"three"}`},
		{"identical", `{"same":true}`, `{"same":true}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			source := mustParse(t, tc.source)
			target := mustParse(t, tc.target)

			ops := GeneratePatch(source, target)
			got, err := ApplyPatch(source, ops)
			if err != nil {
				t.Fatalf("ApplyPatch: %v", err)
			}
			if !tree.Equal(got, target) {
				t.Fatalf("round trip: got %s want %s (ops %+v)", got, target, ops)
			}
		})
	}
}

func TestGeneratePatchOpOrder(t *testing.T) {
	source := mustParse(t, `{"b":1,"drop":2,"tags":["x"]}`)
	target := mustParse(t, `{"b":9,"add":3,"tags":["x","y"]}`)

	ops := GeneratePatch(source, target)
	phase := 0
	for _, op := range ops {
		var p int
		switch op.Op {
		case OpReplace:
			p = 0
		case OpRemove:
			p = 1
		case OpAdd:
			p = 2
		default:
			t.Fatalf("unknown op %q", op.Op)
		}
		if p < phase {
			t.Fatalf("op order violated: %+v", ops)
		}
		phase = p
	}
}

func TestApplyPatchRemovesArrayItemByValue(t *testing.T) {
	v := mustParse(t, `{"tags":["a","b","c"]}`)
	out, err := ApplyPatch(v, []PatchOp{{Op: OpRemove, Path: "tags", Value: tree.String("b")}})
	if err != nil {
		t.Fatalf("ApplyPatch: %v", err)
	}
	if !tree.Equal(out, mustParse(t, `{"tags":["a","c"]}`)) {
		t.Fatalf("remove by value: %s", out)
	}

	// removing an absent value is a no-op
	out, err = ApplyPatch(out, []PatchOp{{Op: OpRemove, Path: "tags", Value: tree.String("zz")}})
	if err != nil {
		t.Fatalf("ApplyPatch: %v", err)
	}
	if !tree.Equal(out, mustParse(t, `{"tags":["a","c"]}`)) {
		t.Fatalf("no-op remove changed value: %s", out)
	}
}

func TestApplyPatchUnknownOp(t *testing.T) {
	if _, err := ApplyPatch(tree.Null(), []PatchOp{{Op: "rename", Path: "x"}}); err == nil {
		t.Fatalf("expected error for unknown op")
	}
}
