package versioning

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	MergeStatusDraft  = "draft"
	MergeStatusOpen   = "open"
	MergeStatusMerged = "merged"
	MergeStatusClosed = "closed"
)

const (
	TieBreakSource = "source"
	TieBreakTarget = "target"
)

// MergeRequest proposes integrating one branch's changes into another.
// Source/target version ids are captured at creation so the conflict set
// stays stable while the request is reviewed. merged and closed are terminal:
// no field changes after either is reached.
type MergeRequest struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	DocumentID uuid.UUID `gorm:"column:document_id;type:uuid;not null;index" json:"document_id"`

	SourceBranchID uuid.UUID `gorm:"column:source_branch_id;type:uuid;not null;index" json:"source_branch_id"`
	TargetBranchID uuid.UUID `gorm:"column:target_branch_id;type:uuid;not null;index" json:"target_branch_id"`

	SourceVersionID uuid.UUID  `gorm:"column:source_version_id;type:uuid;not null" json:"source_version_id"`
	TargetVersionID uuid.UUID  `gorm:"column:target_version_id;type:uuid;not null" json:"target_version_id"`
	BaseVersionID   *uuid.UUID `gorm:"column:base_version_id;type:uuid" json:"base_version_id,omitempty"`

	// draft|open|merged|closed
	Status string `gorm:"column:status;not null;default:'open';index" json:"status"`

	Title       string `gorm:"type:text;not null" json:"title"`
	Description string `gorm:"type:text;not null;default:''" json:"description"`

	HasConflicts bool           `gorm:"column:has_conflicts;not null;default:false" json:"has_conflicts"`
	Conflicts    datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'" json:"conflicts"`
	Reviewers    datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'" json:"reviewers"`

	// source|target: which side wins when an auto-resolution ends in a tie
	TieBreak string `gorm:"column:tie_break;not null;default:'source'" json:"tie_break"`

	CreatedBy string `gorm:"type:text;not null;default:''" json:"created_by"`

	MergedVersionID *uuid.UUID `gorm:"column:merged_version_id;type:uuid" json:"merged_version_id,omitempty"`
	MergedBy        string     `gorm:"type:text;not null;default:''" json:"merged_by,omitempty"`
	MergedAt        *time.Time `gorm:"column:merged_at" json:"merged_at,omitempty"`

	CloseReason string     `gorm:"type:text;not null;default:''" json:"close_reason,omitempty"`
	ClosedBy    string     `gorm:"type:text;not null;default:''" json:"closed_by,omitempty"`
	ClosedAt    *time.Time `gorm:"column:closed_at" json:"closed_at,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now();index" json:"updated_at"`
}

func (MergeRequest) TableName() string { return "merge_request" }

// IsTerminal reports whether the request can no longer change.
func (m *MergeRequest) IsTerminal() bool {
	return m.Status == MergeStatusMerged || m.Status == MergeStatusClosed
}

// ConflictResolution records one reviewed decision for one conflicting path
// of a merge request. Re-resolving a path upserts over the prior row; the
// unique (merge_request_id, path) index keeps one active decision per path.
type ConflictResolution struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	MergeRequestID uuid.UUID `gorm:"column:merge_request_id;type:uuid;not null;index;index:idx_conflict_resolution_mr_path,unique,priority:1" json:"merge_request_id"`

	Path string `gorm:"type:text;not null;index:idx_conflict_resolution_mr_path,unique,priority:2" json:"path"`

	// value|type_mismatch|deletion|array|object|critical_field
	ConflictType string `gorm:"column:conflict_type;not null" json:"conflict_type"`

	// keep_source|keep_target|merge_arrays|merge_objects|custom_value|manual
	Strategy string `gorm:"column:strategy;not null" json:"strategy"`

	ResolvedValue datatypes.JSON `gorm:"column:resolved_value;type:jsonb" json:"resolved_value,omitempty"`
	Rationale     string         `gorm:"type:text;not null;default:''" json:"rationale"`

	ResolvedBy string `gorm:"type:text;not null" json:"resolved_by"`

	// pending|approved
	ReviewStatus string `gorm:"column:review_status;not null;default:'pending'" json:"review_status"`

	ResolvedAt time.Time `gorm:"column:resolved_at;not null;default:now()" json:"resolved_at"`
	CreatedAt  time.Time `gorm:"not null;default:now();index" json:"created_at"`
}

func (ConflictResolution) TableName() string { return "conflict_resolution" }
