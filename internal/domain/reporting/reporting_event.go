package reporting

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ReportingEvent is the live, editable analysis-metadata document for a study.
// Payload holds the full document tree (analyses, methods, outputs, analysis
// sets) as jsonb; the versioning tables snapshot it, this row is always the
// working copy.
type ReportingEvent struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	Name        string `gorm:"type:text;not null" json:"name"`
	Description string `gorm:"type:text;not null;default:''" json:"description"`
	StudyID     string `gorm:"column:study_id;type:text;not null;index" json:"study_id"`

	// draft|in_review|final
	Status string `gorm:"column:status;not null;default:'draft';index" json:"status"`

	Payload datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'" json:"payload"`

	CreatedBy string `gorm:"type:text;not null;default:''" json:"created_by"`

	CreatedAt time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now();index" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (ReportingEvent) TableName() string { return "reporting_event" }
