package versioning

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Version is an immutable snapshot of a reporting event's document tree on a
// branch. Rows never change after insert except the IsCurrent flag, which is
// flipped under the branch row lock, and soft deletion when the owning branch
// is deleted.
type Version struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	DocumentID uuid.UUID `gorm:"column:document_id;type:uuid;not null;index" json:"document_id"`
	BranchID   uuid.UUID `gorm:"column:branch_id;type:uuid;not null;index;index:idx_document_version_branch_current,priority:1" json:"branch_id"`

	Name        string `gorm:"type:text;not null" json:"name"`
	Description string `gorm:"type:text;not null;default:''" json:"description"`

	Payload datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'" json:"payload"`

	Author string `gorm:"type:text;not null;default:''" json:"author"`
	Tag    string `gorm:"type:text;not null;default:'';index" json:"tag,omitempty"`

	IsCurrent bool `gorm:"column:is_current;not null;default:false;index:idx_document_version_branch_current,priority:2" json:"is_current"`

	CreatedAt time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now();index" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Version) TableName() string { return "document_version" }
