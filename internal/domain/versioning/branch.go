package versioning

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// MainBranchName is the default line of development. It is created implicitly
// with the first snapshot and can never be deleted.
const MainBranchName = "main"

// Branch is an independent line of versions for one reporting event.
// SourceVersionID records the fork point used as the merge base; it is nil
// only for main.
type Branch struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	// (document_id, name) uniqueness is enforced by a partial index in
	// EnsureVersioningIndexes so a deleted branch's name can be reused.
	DocumentID uuid.UUID `gorm:"column:document_id;type:uuid;not null;index" json:"document_id"`
	Name       string    `gorm:"type:text;not null" json:"name"`

	SourceBranchID  *uuid.UUID `gorm:"column:source_branch_id;type:uuid;index" json:"source_branch_id,omitempty"`
	SourceVersionID *uuid.UUID `gorm:"column:source_version_id;type:uuid" json:"source_version_id,omitempty"`

	Protected bool `gorm:"not null;default:false" json:"protected"`

	// {"require_review": bool, "restrict_push": bool}
	ProtectionRules datatypes.JSON `gorm:"column:protection_rules;type:jsonb;not null;default:'{}'" json:"protection_rules"`

	IsActive  bool   `gorm:"column:is_active;not null;default:true;index" json:"is_active"`
	CreatedBy string `gorm:"type:text;not null;default:''" json:"created_by"`

	CreatedAt time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now();index" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Branch) TableName() string { return "document_branch" }

// ProtectionRuleSet is the decoded shape of Branch.ProtectionRules.
type ProtectionRuleSet struct {
	RequireReview bool `json:"require_review"`
	RestrictPush  bool `json:"restrict_push"`
}
