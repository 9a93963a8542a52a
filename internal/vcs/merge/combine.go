package merge

import (
	"fmt"
	"sort"

	"github.com/trialworks/ars-backend/internal/vcs/diff"
	"github.com/trialworks/ars-backend/internal/vcs/tree"
)

// Combine performs the pure three-way merge: starting from base, it applies
// every source change and every target change that does not touch a
// conflicting path, then sets the resolved value at each conflicting path.
// The resolved map's keys are exactly the conflicting paths; a null resolved
// value deletes the path. Changes both sides made identically apply once.
func Combine(base tree.Value, source, target diff.ChangeSet, resolved map[string]tree.Value) (tree.Value, error) {
	sourceOps := filterOps(source.Ops(), resolved)
	targetOps := dropDuplicateOps(sourceOps, filterOps(target.Ops(), resolved))

	out, err := diff.ApplyPatch(base.Clone(), sourceOps)
	if err != nil {
		return tree.Value{}, fmt.Errorf("apply source changes: %w", err)
	}
	out, err = diff.ApplyPatch(out, targetOps)
	if err != nil {
		return tree.Value{}, fmt.Errorf("apply target changes: %w", err)
	}

	paths := make([]string, 0, len(resolved))
	for p := range resolved {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		v := resolved[p]
		if v.IsNull() {
			out, _ = out.Delete(p)
			continue
		}
		out, err = out.Set(p, v)
		if err != nil {
			return tree.Value{}, fmt.Errorf("apply resolution at %q: %w", p, err)
		}
	}
	return out, nil
}

// filterOps drops every operation that lands at, under, or above a
// conflicting path; the resolution decides that whole region.
func filterOps(ops []diff.PatchOp, resolved map[string]tree.Value) []diff.PatchOp {
	if len(resolved) == 0 {
		return ops
	}
	out := make([]diff.PatchOp, 0, len(ops))
	for _, op := range ops {
		if touchesConflict(op.Path, resolved) {
			continue
		}
		out = append(out, op)
	}
	return out
}

func touchesConflict(path string, resolved map[string]tree.Value) bool {
	for p := range resolved {
		if path == p || pathUnder(path, p) || pathUnder(p, path) {
			return true
		}
	}
	return false
}

func pathUnder(path, ancestor string) bool {
	if ancestor == "" {
		return path != ""
	}
	return len(path) > len(ancestor) && path[:len(ancestor)] == ancestor && path[len(ancestor)] == '.'
}

// dropDuplicateOps removes target operations that repeat a source operation,
// consuming one source occurrence per duplicate. Replays of identical value
// sets would be harmless, but identical array adds must not double the item.
func dropDuplicateOps(source, target []diff.PatchOp) []diff.PatchOp {
	used := make([]bool, len(source))
	out := make([]diff.PatchOp, 0, len(target))
	for _, top := range target {
		matched := false
		for i, sop := range source {
			if used[i] || sop.Op != top.Op || sop.Path != top.Path {
				continue
			}
			if !tree.Equal(sop.Value, top.Value) {
				continue
			}
			used[i] = true
			matched = true
			break
		}
		if !matched {
			out = append(out, top)
		}
	}
	return out
}
