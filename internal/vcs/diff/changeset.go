package diff

import (
	"sort"

	"github.com/trialworks/ars-backend/internal/vcs/tree"
)

// ValueChange records a scalar or subtree replaced at a path, same kind on
// both sides.
type ValueChange struct {
	Path string     `json:"path"`
	Old  tree.Value `json:"old"`
	New  tree.Value `json:"new"`
}

// TypeChange records a node whose kind differs between the two snapshots.
type TypeChange struct {
	Path    string     `json:"path"`
	OldKind string     `json:"old_kind"`
	NewKind string     `json:"new_kind"`
	Old     tree.Value `json:"old"`
	New     tree.Value `json:"new"`
}

// ItemChange records one array element added or removed. Items compare by
// value, not position: reordering an array produces no item changes.
type ItemChange struct {
	Path  string     `json:"path"`
	Item  tree.Value `json:"item"`
	Count int        `json:"count"`
}

// KeyChange records an object key present on only one side.
type KeyChange struct {
	Path  string     `json:"path"`
	Key   string     `json:"key"`
	Value tree.Value `json:"value"`
}

// ChangeSet buckets the structural differences between two snapshots.
type ChangeSet struct {
	ValueChanges []ValueChange `json:"value_changes,omitempty"`
	TypeChanges  []TypeChange  `json:"type_changes,omitempty"`
	ItemsAdded   []ItemChange  `json:"items_added,omitempty"`
	ItemsRemoved []ItemChange  `json:"items_removed,omitempty"`
	KeysAdded    []KeyChange   `json:"keys_added,omitempty"`
	KeysRemoved  []KeyChange   `json:"keys_removed,omitempty"`
}

// Empty reports whether the two snapshots were structurally identical.
func (cs ChangeSet) Empty() bool {
	return len(cs.ValueChanges) == 0 &&
		len(cs.TypeChanges) == 0 &&
		len(cs.ItemsAdded) == 0 &&
		len(cs.ItemsRemoved) == 0 &&
		len(cs.KeysAdded) == 0 &&
		len(cs.KeysRemoved) == 0
}

// Paths returns every changed path once, sorted. Item changes report the
// array's path; key changes report the full path of the key.
func (cs ChangeSet) Paths() []string {
	seen := map[string]bool{}
	for _, c := range cs.ValueChanges {
		seen[c.Path] = true
	}
	for _, c := range cs.TypeChanges {
		seen[c.Path] = true
	}
	for _, c := range cs.ItemsAdded {
		seen[c.Path] = true
	}
	for _, c := range cs.ItemsRemoved {
		seen[c.Path] = true
	}
	for _, c := range cs.KeysAdded {
		seen[tree.ChildPath(c.Path, c.Key)] = true
	}
	for _, c := range cs.KeysRemoved {
		seen[tree.ChildPath(c.Path, c.Key)] = true
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Touches reports whether the change-set modifies the given path or any node
// beneath it.
func (cs ChangeSet) Touches(path string) bool {
	for _, p := range cs.Paths() {
		if p == path || isUnder(p, path) || isUnder(path, p) {
			return true
		}
	}
	return false
}

// isUnder reports whether path sits strictly inside ancestor.
func isUnder(path, ancestor string) bool {
	if ancestor == "" {
		return path != ""
	}
	return len(path) > len(ancestor) && path[:len(ancestor)] == ancestor && path[len(ancestor)] == '.'
}

// Filter keeps only the changes whose path matches one of the wanted paths
// or sits beneath one. An empty wanted list keeps everything. Cherry-picks
// use this to carry a subset of a version's changes.
func (cs ChangeSet) Filter(wanted []string) ChangeSet {
	if len(wanted) == 0 {
		return cs
	}
	match := func(p string) bool {
		for _, w := range wanted {
			if p == w || isUnder(p, w) {
				return true
			}
		}
		return false
	}
	var out ChangeSet
	for _, c := range cs.ValueChanges {
		if match(c.Path) {
			out.ValueChanges = append(out.ValueChanges, c)
		}
	}
	for _, c := range cs.TypeChanges {
		if match(c.Path) {
			out.TypeChanges = append(out.TypeChanges, c)
		}
	}
	for _, c := range cs.ItemsAdded {
		if match(c.Path) {
			out.ItemsAdded = append(out.ItemsAdded, c)
		}
	}
	for _, c := range cs.ItemsRemoved {
		if match(c.Path) {
			out.ItemsRemoved = append(out.ItemsRemoved, c)
		}
	}
	for _, c := range cs.KeysAdded {
		if match(tree.ChildPath(c.Path, c.Key)) {
			out.KeysAdded = append(out.KeysAdded, c)
		}
	}
	for _, c := range cs.KeysRemoved {
		if match(tree.ChildPath(c.Path, c.Key)) {
			out.KeysRemoved = append(out.KeysRemoved, c)
		}
	}
	return out
}

// Summary counts the change buckets, the shape stored in change_log rows.
type Summary struct {
	ValuesChanged int `json:"values_changed"`
	TypesChanged  int `json:"types_changed"`
	ItemsAdded    int `json:"items_added"`
	ItemsRemoved  int `json:"items_removed"`
	KeysAdded     int `json:"keys_added"`
	KeysRemoved   int `json:"keys_removed"`
	Total         int `json:"total"`
}

func (cs ChangeSet) Summary() Summary {
	s := Summary{
		ValuesChanged: len(cs.ValueChanges),
		TypesChanged:  len(cs.TypeChanges),
		ItemsAdded:    len(cs.ItemsAdded),
		ItemsRemoved:  len(cs.ItemsRemoved),
		KeysAdded:     len(cs.KeysAdded),
		KeysRemoved:   len(cs.KeysRemoved),
	}
	s.Total = s.ValuesChanged + s.TypesChanged + s.ItemsAdded + s.ItemsRemoved + s.KeysAdded + s.KeysRemoved
	return s
}

func (cs *ChangeSet) sortBuckets() {
	sort.Slice(cs.ValueChanges, func(i, j int) bool { return cs.ValueChanges[i].Path < cs.ValueChanges[j].Path })
	sort.Slice(cs.TypeChanges, func(i, j int) bool { return cs.TypeChanges[i].Path < cs.TypeChanges[j].Path })
	sort.Slice(cs.ItemsAdded, func(i, j int) bool { return cs.ItemsAdded[i].Path < cs.ItemsAdded[j].Path })
	sort.Slice(cs.ItemsRemoved, func(i, j int) bool { return cs.ItemsRemoved[i].Path < cs.ItemsRemoved[j].Path })
	sort.Slice(cs.KeysAdded, func(i, j int) bool {
		if cs.KeysAdded[i].Path != cs.KeysAdded[j].Path {
			return cs.KeysAdded[i].Path < cs.KeysAdded[j].Path
		}
		return cs.KeysAdded[i].Key < cs.KeysAdded[j].Key
	})
	sort.Slice(cs.KeysRemoved, func(i, j int) bool {
		if cs.KeysRemoved[i].Path != cs.KeysRemoved[j].Path {
			return cs.KeysRemoved[i].Path < cs.KeysRemoved[j].Path
		}
		return cs.KeysRemoved[i].Key < cs.KeysRemoved[j].Key
	})
}
