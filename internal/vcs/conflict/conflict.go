package conflict

import (
	"strings"

	"github.com/trialworks/ars-backend/internal/vcs/tree"
)

// Conflict classes.
const (
	TypeValue         = "value"
	TypeTypeMismatch  = "type_mismatch"
	TypeDeletion      = "deletion"
	TypeArray         = "array"
	TypeObject        = "object"
	TypeCriticalField = "critical_field"
)

// Resolution strategies.
const (
	StrategyKeepSource   = "keep_source"
	StrategyKeepTarget   = "keep_target"
	StrategyMergeArrays  = "merge_arrays"
	StrategyMergeObjects = "merge_objects"
	StrategyCustomValue  = "custom_value"
	StrategyManual       = "manual"
)

// Conflict is one path changed to different values on both sides of a merge
// relative to the base. Source and Target hold each side's final value; a
// side that deleted the path reports Present=false and a null value.
type Conflict struct {
	Path string `json:"path"`

	// value|type_mismatch|deletion|array|object|critical_field
	Type string `json:"type"`

	Base   tree.Value `json:"base"`
	Source tree.Value `json:"source"`
	Target tree.Value `json:"target"`

	BasePresent   bool `json:"base_present"`
	SourcePresent bool `json:"source_present"`
	TargetPresent bool `json:"target_present"`

	AutoResolvable bool `json:"auto_resolvable"`
}

// New builds a fully classified Conflict for a path with both sides' final
// values.
func New(path string, base, source, target tree.Value, basePresent, sourcePresent, targetPresent bool) Conflict {
	c := Conflict{
		Path:          path,
		Base:          base,
		Source:        source,
		Target:        target,
		BasePresent:   basePresent,
		SourcePresent: sourcePresent,
		TargetPresent: targetPresent,
	}
	c.Type = Classify(c)
	c.AutoResolvable = IsAutoResolvable(c)
	return c
}

// Classify assigns the conflict class. Identity fields always win; after
// that a missing side means deletion, then kind and container shape decide.
func Classify(c Conflict) string {
	if isIdentityPath(c.Path) {
		return TypeCriticalField
	}
	if c.sourceAbsent() || c.targetAbsent() {
		return TypeDeletion
	}
	if c.Source.Kind() != c.Target.Kind() {
		return TypeTypeMismatch
	}
	switch c.Source.Kind() {
	case tree.KindArray:
		return TypeArray
	case tree.KindObject:
		return TypeObject
	default:
		return TypeValue
	}
}

// isIdentityPath reports whether the path addresses an identity-critical
// field. id, uuid, version and *_id segments identify records anywhere in
// the tree; name and primary_key only pin identity inside array elements,
// so a document-level name edit stays an ordinary value conflict.
func isIdentityPath(path string) bool {
	seg := strings.ToLower(tree.LastSegment(path))
	if seg == "" {
		return false
	}
	switch seg {
	case "id", "uuid", "version":
		return true
	}
	if strings.HasSuffix(seg, "_id") {
		return true
	}
	if seg == "name" || seg == "primary_key" {
		return tree.CrossesIndex(path)
	}
	return false
}

// A deleted path and an explicit null are indistinguishable once the
// document round-trips through JSON, so both count as absent.
func (c Conflict) sourceAbsent() bool { return !c.SourcePresent || c.Source.IsNull() }
func (c Conflict) targetAbsent() bool { return !c.TargetPresent || c.Target.IsNull() }

// IsAutoResolvable reports whether the conflict can be settled without a
// human decision: one side empty and the other not, one array contained in
// the other, or two objects (key-wise merge always succeeds). Identity
// conflicts never auto-resolve.
func IsAutoResolvable(c Conflict) bool {
	if Classify(c) == TypeCriticalField {
		return false
	}
	srcEmpty := c.sourceAbsent() || c.Source.IsEmpty()
	tgtEmpty := c.targetAbsent() || c.Target.IsEmpty()
	if srcEmpty != tgtEmpty {
		return true
	}
	if srcEmpty && tgtEmpty {
		return false
	}
	if c.Source.Kind() == tree.KindArray && c.Target.Kind() == tree.KindArray {
		return isSubsetArray(c.Source, c.Target) || isSubsetArray(c.Target, c.Source)
	}
	if c.Source.Kind() == tree.KindObject && c.Target.Kind() == tree.KindObject {
		return true
	}
	return false
}

// isSubsetArray reports whether every distinct item of a also appears in b.
func isSubsetArray(a, b tree.Value) bool {
	have := map[string]bool{}
	for _, it := range b.Items() {
		have[it.String()] = true
	}
	for _, it := range a.Items() {
		if !have[it.String()] {
			return false
		}
	}
	return true
}

// MergeArrays unions the two sides, de-duplicated, keeping first-occurrence
// order with source items first.
func MergeArrays(source, target tree.Value) tree.Value {
	seen := map[string]bool{}
	var items []tree.Value
	for _, it := range append(append([]tree.Value{}, source.Items()...), target.Items()...) {
		key := it.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		items = append(items, it)
	}
	return tree.Array(items...)
}

// MergeObjects merges key-wise, recursing into keys both sides carry.
// Nested scalar collisions resolve to the target side.
func MergeObjects(source, target tree.Value) tree.Value {
	fields := map[string]tree.Value{}
	for _, k := range source.Keys() {
		sv, _ := source.Field(k)
		fields[k] = sv
	}
	for _, k := range target.Keys() {
		tv, _ := target.Field(k)
		sv, ok := fields[k]
		if !ok {
			fields[k] = tv
			continue
		}
		switch {
		case sv.Kind() == tree.KindObject && tv.Kind() == tree.KindObject:
			fields[k] = MergeObjects(sv, tv)
		case sv.Kind() == tree.KindArray && tv.Kind() == tree.KindArray:
			fields[k] = MergeArrays(sv, tv)
		default:
			fields[k] = tv
		}
	}
	return tree.Object(fields)
}
