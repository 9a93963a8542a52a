package diff

import (
	"github.com/google/uuid"

	"github.com/trialworks/ars-backend/internal/vcs/tree"
)

// VersionPayload pairs a version's identity with its decoded snapshot, in
// branch order, oldest first.
type VersionPayload struct {
	VersionID uuid.UUID
	Name      string
	Payload   tree.Value
}

// FieldSnapshot is one version's value at a path. Changed is set when the
// value differs from the previous version in the list; the first version is
// Changed when the path exists there.
type FieldSnapshot struct {
	VersionID uuid.UUID  `json:"version_id"`
	Name      string     `json:"version_name"`
	Value     tree.Value `json:"value"`
	Present   bool       `json:"present"`
	Changed   bool       `json:"changed"`
}

// FieldHistory traces one path across an ordered version list.
func FieldHistory(versions []VersionPayload, path string) []FieldSnapshot {
	out := make([]FieldSnapshot, 0, len(versions))
	var prev tree.Value
	prevPresent := false
	for i, v := range versions {
		cur, present := v.Payload.Get(path)
		changed := false
		switch {
		case i == 0:
			changed = present
		case present != prevPresent:
			changed = true
		case present && !tree.Equal(cur, prev):
			changed = true
		}
		out = append(out, FieldSnapshot{
			VersionID: v.VersionID,
			Name:      v.Name,
			Value:     cur,
			Present:   present,
			Changed:   changed,
		})
		prev, prevPresent = cur, present
	}
	return out
}
