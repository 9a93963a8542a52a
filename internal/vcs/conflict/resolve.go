package conflict

import (
	"fmt"
	"sort"

	"github.com/trialworks/ars-backend/internal/vcs/tree"
)

// Suggestion is one legal resolution for a conflict, with the value it would
// produce and a confidence weight for ranking in review UIs.
type Suggestion struct {
	Strategy   string      `json:"strategy"`
	Preview    *tree.Value `json:"preview,omitempty"`
	Confidence float64     `json:"confidence"`
	Reason     string      `json:"reason"`
}

// SuggestResolutions lists the strategies legal for the conflict's class,
// highest confidence first.
func SuggestResolutions(c Conflict) []Suggestion {
	var out []Suggestion

	srcEmpty := c.sourceAbsent() || c.Source.IsEmpty()
	tgtEmpty := c.targetAbsent() || c.Target.IsEmpty()

	srcConf, tgtConf := 0.5, 0.5
	srcReason, tgtReason := "take the source branch's value", "take the target branch's value"
	switch {
	case c.Type == TypeCriticalField:
		srcConf, tgtConf = 0.2, 0.2
		srcReason = "identity field; review before taking the source value"
		tgtReason = "identity field; review before taking the target value"
	case tgtEmpty && !srcEmpty:
		srcConf, tgtConf = 0.9, 0.1
		srcReason = "source carries the only non-empty value"
	case srcEmpty && !tgtEmpty:
		srcConf, tgtConf = 0.1, 0.9
		tgtReason = "target carries the only non-empty value"
	}

	src := c.Source
	tgt := c.Target
	out = append(out,
		Suggestion{Strategy: StrategyKeepSource, Preview: &src, Confidence: srcConf, Reason: srcReason},
		Suggestion{Strategy: StrategyKeepTarget, Preview: &tgt, Confidence: tgtConf, Reason: tgtReason},
	)

	if c.Type == TypeArray {
		merged := MergeArrays(c.Source, c.Target)
		conf := 0.7
		reason := "union of both sides, de-duplicated"
		if isSubsetArray(c.Source, c.Target) || isSubsetArray(c.Target, c.Source) {
			conf = 0.9
			reason = "one side already contains the other"
		}
		out = append(out, Suggestion{Strategy: StrategyMergeArrays, Preview: &merged, Confidence: conf, Reason: reason})
	}
	if c.Type == TypeObject {
		merged := MergeObjects(c.Source, c.Target)
		out = append(out, Suggestion{
			Strategy:   StrategyMergeObjects,
			Preview:    &merged,
			Confidence: 0.8,
			Reason:     "key-wise merge; colliding scalars take the target value",
		})
	}

	out = append(out,
		Suggestion{Strategy: StrategyCustomValue, Confidence: 0, Reason: "supply a replacement value"},
		Suggestion{Strategy: StrategyManual, Confidence: 0, Reason: "leave for a reviewer"},
	)

	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	return out
}

// ApplyResolution materializes the resolved value for a strategy. It is
// deterministic: identical inputs always produce the identical value.
// StrategyManual never resolves here, and StrategyCustomValue requires the
// caller to supply the value.
func ApplyResolution(c Conflict, strategy string, custom *tree.Value) (tree.Value, error) {
	switch strategy {
	case StrategyKeepSource:
		return c.Source.Clone(), nil
	case StrategyKeepTarget:
		return c.Target.Clone(), nil
	case StrategyMergeArrays:
		if c.Source.Kind() != tree.KindArray || c.Target.Kind() != tree.KindArray {
			return tree.Value{}, fmt.Errorf("merge_arrays at %q: both sides must be arrays (%s vs %s)",
				c.Path, c.Source.Kind(), c.Target.Kind())
		}
		return MergeArrays(c.Source, c.Target), nil
	case StrategyMergeObjects:
		if c.Source.Kind() != tree.KindObject || c.Target.Kind() != tree.KindObject {
			return tree.Value{}, fmt.Errorf("merge_objects at %q: both sides must be objects (%s vs %s)",
				c.Path, c.Source.Kind(), c.Target.Kind())
		}
		return MergeObjects(c.Source, c.Target), nil
	case StrategyCustomValue:
		if custom == nil {
			return tree.Value{}, fmt.Errorf("custom_value at %q: no value supplied", c.Path)
		}
		return custom.Clone(), nil
	case StrategyManual:
		return tree.Value{}, fmt.Errorf("manual strategy at %q cannot be applied automatically", c.Path)
	default:
		return tree.Value{}, fmt.Errorf("unknown resolution strategy %q at %q", strategy, c.Path)
	}
}

// AutoResolve picks the unattended resolution: the non-empty side when only
// one side carries content, the class merge for arrays and objects, and the
// tie-break side otherwise. Identity conflicts always require a human.
func AutoResolve(c Conflict, tieBreak string) (string, tree.Value, bool) {
	if c.Type == TypeCriticalField {
		return "", tree.Value{}, false
	}

	srcEmpty := c.sourceAbsent() || c.Source.IsEmpty()
	tgtEmpty := c.targetAbsent() || c.Target.IsEmpty()
	switch {
	case tgtEmpty && !srcEmpty:
		return StrategyKeepSource, c.Source.Clone(), true
	case srcEmpty && !tgtEmpty:
		return StrategyKeepTarget, c.Target.Clone(), true
	}

	if c.Source.Kind() == tree.KindArray && c.Target.Kind() == tree.KindArray {
		return StrategyMergeArrays, MergeArrays(c.Source, c.Target), true
	}
	if c.Source.Kind() == tree.KindObject && c.Target.Kind() == tree.KindObject {
		return StrategyMergeObjects, MergeObjects(c.Source, c.Target), true
	}

	if tieBreak == "target" {
		return StrategyKeepTarget, c.Target.Clone(), true
	}
	return StrategyKeepSource, c.Source.Clone(), true
}
