package diff

import (
	"sort"

	"github.com/trialworks/ars-backend/internal/vcs/conflict"
	"github.com/trialworks/ars-backend/internal/vcs/tree"
)

// FindConflicts returns the paths changed on both sides relative to base
// whose final values differ, each classified and flagged for auto
// resolution. Identical changes on both sides are not conflicts. When one
// side rewrites a subtree another side edits inside, the conflict is
// reported once, at the outermost overlapping path.
func FindConflicts(base, source, target tree.Value) []conflict.Conflict {
	sourcePaths := Compare(base, source).Paths()
	targetPaths := Compare(base, target).Paths()

	candidates := map[string]bool{}
	for _, sp := range sourcePaths {
		for _, tp := range targetPaths {
			switch {
			case sp == tp:
				candidates[sp] = true
			case isUnder(tp, sp):
				candidates[sp] = true
			case isUnder(sp, tp):
				candidates[tp] = true
			}
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	paths := make([]string, 0, len(candidates))
	for p := range candidates {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var out []conflict.Conflict
	for _, p := range paths {
		if coveredByShallower(p, paths) {
			continue
		}
		sv, sok := source.Get(p)
		tv, tok := target.Get(p)
		if sok == tok && tree.Equal(sv, tv) {
			// both sides landed on the same result
			continue
		}
		bv, bok := base.Get(p)
		out = append(out, conflict.New(p, bv, sv, tv, bok, sok, tok))
	}
	return out
}

func coveredByShallower(path string, paths []string) bool {
	for _, p := range paths {
		if p != path && isUnder(path, p) {
			return true
		}
	}
	return false
}

// ConflictPaths extracts just the paths, for error reporting.
func ConflictPaths(conflicts []conflict.Conflict) []string {
	out := make([]string, 0, len(conflicts))
	for _, c := range conflicts {
		out = append(out, c.Path)
	}
	return out
}
