package tree

import (
	"fmt"
	"strconv"
	"strings"
)

// Paths address nodes with dot-separated segments; a decimal segment indexes
// an array ("analyses.2.name"). Document keys must not contain dots.

// SplitPath breaks a dotted path into segments. The empty path addresses the
// root and yields no segments.
func SplitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

// JoinPath builds a dotted path from segments, skipping empty ones.
func JoinPath(segs ...string) string {
	parts := make([]string, 0, len(segs))
	for _, s := range segs {
		if s == "" {
			continue
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, ".")
}

// ChildPath appends one segment to a parent path.
func ChildPath(parent, seg string) string {
	if parent == "" {
		return seg
	}
	return parent + "." + seg
}

// IndexSegment parses a path segment as an array index.
func IndexSegment(seg string) (int, bool) {
	if seg == "" {
		return 0, false
	}
	i, err := strconv.Atoi(seg)
	if err != nil || i < 0 {
		return 0, false
	}
	return i, true
}

// LastSegment returns the final segment of a path, or "" for the root.
func LastSegment(path string) string {
	segs := SplitPath(path)
	if len(segs) == 0 {
		return ""
	}
	return segs[len(segs)-1]
}

// ParentPath splits a path into its parent and final segment.
func ParentPath(path string) (string, string) {
	segs := SplitPath(path)
	if len(segs) == 0 {
		return "", ""
	}
	return JoinPath(segs[:len(segs)-1]...), segs[len(segs)-1]
}

// CrossesIndex reports whether any segment of the path is an array index,
// meaning the path addresses content inside an array element.
func CrossesIndex(path string) bool {
	for _, seg := range SplitPath(path) {
		if _, ok := IndexSegment(seg); ok {
			return true
		}
	}
	return false
}

// Get resolves a dotted path. The empty path returns v itself.
func (v Value) Get(path string) (Value, bool) {
	cur := v
	for _, seg := range SplitPath(path) {
		switch cur.kind {
		case KindObject:
			fv, ok := cur.fields[seg]
			if !ok {
				return Value{}, false
			}
			cur = fv
		case KindArray:
			i, ok := IndexSegment(seg)
			if !ok || i >= len(cur.items) {
				return Value{}, false
			}
			cur = cur.items[i]
		default:
			return Value{}, false
		}
	}
	return cur, true
}

// Exists reports whether the path resolves to a node.
func (v Value) Exists(path string) bool {
	_, ok := v.Get(path)
	return ok
}

// GetOrNull resolves a path, treating a missing node as null.
func (v Value) GetOrNull(path string) Value {
	got, ok := v.Get(path)
	if !ok {
		return Value{}
	}
	return got
}

// Set returns a copy of v with the node at path replaced by nv. Missing
// intermediate objects are created; an array segment may address one past the
// end to append. Containers along the path are copied, untouched subtrees are
// shared with v.
func (v Value) Set(path string, nv Value) (Value, error) {
	return v.set(SplitPath(path), path, nv)
}

func (v Value) set(segs []string, full string, nv Value) (Value, error) {
	if len(segs) == 0 {
		return nv, nil
	}
	seg := segs[0]
	if i, ok := IndexSegment(seg); ok && v.kind == KindArray {
		if i > len(v.items) {
			return Value{}, fmt.Errorf("set %q: index %d out of range (len %d)", full, i, len(v.items))
		}
		items := make([]Value, len(v.items), len(v.items)+1)
		copy(items, v.items)
		var child Value
		if i < len(items) {
			child = items[i]
		}
		updated, err := child.set(segs[1:], full, nv)
		if err != nil {
			return Value{}, err
		}
		if i == len(items) {
			items = append(items, updated)
		} else {
			items[i] = updated
		}
		return Value{kind: KindArray, items: items}, nil
	}

	switch v.kind {
	case KindObject, KindNull:
		fields := make(map[string]Value, len(v.fields)+1)
		for k, fv := range v.fields {
			fields[k] = fv
		}
		updated, err := fields[seg].set(segs[1:], full, nv)
		if err != nil {
			return Value{}, err
		}
		fields[seg] = updated
		return Value{kind: KindObject, fields: fields}, nil
	default:
		return Value{}, fmt.Errorf("set %q: cannot descend into %s at %q", full, v.kind, seg)
	}
}

// Delete returns a copy of v with the node at path removed, and whether
// anything was removed. Deleting from an array shifts later items down.
func (v Value) Delete(path string) (Value, bool) {
	segs := SplitPath(path)
	if len(segs) == 0 {
		return Value{}, !v.IsNull()
	}
	return v.delete(segs)
}

func (v Value) delete(segs []string) (Value, bool) {
	seg := segs[0]
	last := len(segs) == 1

	switch v.kind {
	case KindObject:
		child, ok := v.fields[seg]
		if !ok {
			return v, false
		}
		fields := make(map[string]Value, len(v.fields))
		for k, fv := range v.fields {
			fields[k] = fv
		}
		if last {
			delete(fields, seg)
			return Value{kind: KindObject, fields: fields}, true
		}
		updated, removed := child.delete(segs[1:])
		if !removed {
			return v, false
		}
		fields[seg] = updated
		return Value{kind: KindObject, fields: fields}, true
	case KindArray:
		i, ok := IndexSegment(seg)
		if !ok || i >= len(v.items) {
			return v, false
		}
		if last {
			items := make([]Value, 0, len(v.items)-1)
			items = append(items, v.items[:i]...)
			items = append(items, v.items[i+1:]...)
			return Value{kind: KindArray, items: items}, true
		}
		updated, removed := v.items[i].delete(segs[1:])
		if !removed {
			return v, false
		}
		items := make([]Value, len(v.items))
		copy(items, v.items)
		items[i] = updated
		return Value{kind: KindArray, items: items}, true
	default:
		return v, false
	}
}
