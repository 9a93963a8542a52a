package diff

import (
	"sort"

	"github.com/trialworks/ars-backend/internal/vcs/tree"
)

// Compare walks two snapshots and buckets every structural difference,
// addressed by dotted path relative to the shared root. Arrays compare as
// multisets, so reordering alone never registers as a change.
func Compare(a, b tree.Value) ChangeSet {
	var cs ChangeSet
	compareNode("", a, b, &cs)
	cs.sortBuckets()
	return cs
}

func compareNode(path string, a, b tree.Value, cs *ChangeSet) {
	if a.Kind() != b.Kind() {
		cs.TypeChanges = append(cs.TypeChanges, TypeChange{
			Path:    path,
			OldKind: a.Kind().String(),
			NewKind: b.Kind().String(),
			Old:     a,
			New:     b,
		})
		return
	}

	switch a.Kind() {
	case tree.KindObject:
		compareObjects(path, a, b, cs)
	case tree.KindArray:
		compareArrays(path, a, b, cs)
	default:
		if !tree.Equal(a, b) {
			cs.ValueChanges = append(cs.ValueChanges, ValueChange{Path: path, Old: a, New: b})
		}
	}
}

func compareObjects(path string, a, b tree.Value, cs *ChangeSet) {
	for _, k := range a.Keys() {
		av, _ := a.Field(k)
		bv, ok := b.Field(k)
		if !ok {
			cs.KeysRemoved = append(cs.KeysRemoved, KeyChange{Path: path, Key: k, Value: av})
			continue
		}
		compareNode(tree.ChildPath(path, k), av, bv, cs)
	}
	for _, k := range b.Keys() {
		if _, ok := a.Field(k); !ok {
			bv, _ := b.Field(k)
			cs.KeysAdded = append(cs.KeysAdded, KeyChange{Path: path, Key: k, Value: bv})
		}
	}
}

// compareArrays matches items by value. Each side's items are counted by
// canonical encoding; the surplus on either side lands in ItemsRemoved or
// ItemsAdded. Order is deliberately ignored: analysis lists are sets in
// reporting events even though JSON serializes them as sequences.
func compareArrays(path string, a, b tree.Value, cs *ChangeSet) {
	counts := map[string]*itemCount{}
	for _, it := range a.Items() {
		key := it.String()
		c := counts[key]
		if c == nil {
			c = &itemCount{item: it}
			counts[key] = c
		}
		c.inA++
	}
	for _, it := range b.Items() {
		key := it.String()
		c := counts[key]
		if c == nil {
			c = &itemCount{item: it}
			counts[key] = c
		}
		c.inB++
	}

	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	// canonical-encoding order keeps repeated runs deterministic
	sort.Strings(keys)

	for _, k := range keys {
		c := counts[k]
		switch {
		case c.inA > c.inB:
			cs.ItemsRemoved = append(cs.ItemsRemoved, ItemChange{Path: path, Item: c.item, Count: c.inA - c.inB})
		case c.inB > c.inA:
			cs.ItemsAdded = append(cs.ItemsAdded, ItemChange{Path: path, Item: c.item, Count: c.inB - c.inA})
		}
	}
}

type itemCount struct {
	item tree.Value
	inA  int
	inB  int
}
