package diff

import (
	"fmt"
	"sort"

	"github.com/trialworks/ars-backend/internal/vcs/tree"
)

const (
	OpReplace = "replace"
	OpAdd     = "add"
	OpRemove  = "remove"
)

// PatchOp is one step transforming a source snapshot toward a target.
// Replace and add carry the new value; remove of an array item carries the
// value to drop so position shifts cannot break it.
type PatchOp struct {
	Op    string     `json:"op"`
	Path  string     `json:"path"`
	Value tree.Value `json:"value,omitempty"`
}

// GeneratePatch derives the ordered operation list that transforms source
// into target.
func GeneratePatch(source, target tree.Value) []PatchOp {
	return Compare(source, target).Ops()
}

// Ops flattens the change-set into patch operations: replaces first, then
// removes, then adds, each path-sorted, so applying the patch never races
// its own index shifts.
func (cs ChangeSet) Ops() []PatchOp {
	var replaces, removes, adds []PatchOp
	for _, c := range cs.ValueChanges {
		replaces = append(replaces, PatchOp{Op: OpReplace, Path: c.Path, Value: c.New})
	}
	for _, c := range cs.TypeChanges {
		replaces = append(replaces, PatchOp{Op: OpReplace, Path: c.Path, Value: c.New})
	}
	for _, c := range cs.KeysRemoved {
		removes = append(removes, PatchOp{Op: OpRemove, Path: tree.ChildPath(c.Path, c.Key)})
	}
	for _, c := range cs.ItemsRemoved {
		for i := 0; i < c.Count; i++ {
			removes = append(removes, PatchOp{Op: OpRemove, Path: c.Path, Value: c.Item})
		}
	}
	for _, c := range cs.KeysAdded {
		adds = append(adds, PatchOp{Op: OpAdd, Path: tree.ChildPath(c.Path, c.Key), Value: c.Value})
	}
	for _, c := range cs.ItemsAdded {
		for i := 0; i < c.Count; i++ {
			adds = append(adds, PatchOp{Op: OpAdd, Path: c.Path, Value: c.Item})
		}
	}

	sortOps(replaces)
	sortOps(removes)
	sortOps(adds)

	out := make([]PatchOp, 0, len(replaces)+len(removes)+len(adds))
	out = append(out, replaces...)
	out = append(out, removes...)
	out = append(out, adds...)
	return out
}

func sortOps(ops []PatchOp) {
	sort.SliceStable(ops, func(i, j int) bool { return ops[i].Path < ops[j].Path })
}

// ApplyPatch replays ops onto v. Array adds append the value to the array at
// Path; array removes drop one occurrence of Value and are a no-op when the
// value is already gone.
func ApplyPatch(v tree.Value, ops []PatchOp) (tree.Value, error) {
	cur := v
	for _, op := range ops {
		next, err := applyOp(cur, op)
		if err != nil {
			return tree.Value{}, err
		}
		cur = next
	}
	return cur, nil
}

func applyOp(v tree.Value, op PatchOp) (tree.Value, error) {
	switch op.Op {
	case OpReplace:
		return v.Set(op.Path, op.Value)
	case OpAdd:
		if target, ok := v.Get(op.Path); ok && target.Kind() == tree.KindArray {
			return appendItem(v, op.Path, op.Value)
		}
		return v.Set(op.Path, op.Value)
	case OpRemove:
		if target, ok := v.Get(op.Path); ok && target.Kind() == tree.KindArray && !op.Value.IsNull() {
			return removeItem(v, op.Path, op.Value), nil
		}
		out, _ := v.Delete(op.Path)
		return out, nil
	default:
		return tree.Value{}, fmt.Errorf("apply patch: unknown op %q at %q", op.Op, op.Path)
	}
}

func appendItem(v tree.Value, path string, item tree.Value) (tree.Value, error) {
	arr, ok := v.Get(path)
	if !ok || arr.Kind() != tree.KindArray {
		return v.Set(path, tree.Array(item))
	}
	items := make([]tree.Value, 0, arr.Len()+1)
	items = append(items, arr.Items()...)
	items = append(items, item)
	return v.Set(path, tree.Array(items...))
}

func removeItem(v tree.Value, path string, item tree.Value) tree.Value {
	arr, ok := v.Get(path)
	if !ok || arr.Kind() != tree.KindArray {
		return v
	}
	items := arr.Items()
	for i, it := range items {
		if tree.Equal(it, item) {
			next := make([]tree.Value, 0, len(items)-1)
			next = append(next, items[:i]...)
			next = append(next, items[i+1:]...)
			out, err := v.Set(path, tree.Array(next...))
			if err != nil {
				return v
			}
			return out
		}
	}
	return v
}
