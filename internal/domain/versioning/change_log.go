package versioning

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	ActionVersionCreated     = "version_created"
	ActionVersionRestored    = "version_restored"
	ActionBranchCreated      = "branch_created"
	ActionBranchDeleted      = "branch_deleted"
	ActionBranchProtected    = "branch_protected"
	ActionBranchUnprotected  = "branch_unprotected"
	ActionMergeRequestOpened = "merge_request_created"
	ActionMergeCompleted     = "merge_completed"
	ActionMergeRequestClosed = "merge_request_closed"
	ActionCherryPicked       = "cherry_pick_completed"
	ActionReverted           = "revert_completed"
	ActionDocumentImported   = "document_imported"
	ActionDocumentExported   = "document_exported"
)

// ChangeLog is the append-only audit ledger for every versioning action on a
// document. Rows are never updated or deleted; the repo exposes no write path
// besides insert, and soft-deleting a branch leaves its history in place.
type ChangeLog struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	DocumentID uuid.UUID  `gorm:"column:document_id;type:uuid;not null;index" json:"document_id"`
	BranchID   *uuid.UUID `gorm:"column:branch_id;type:uuid;index" json:"branch_id,omitempty"`
	VersionID  *uuid.UUID `gorm:"column:version_id;type:uuid;index" json:"version_id,omitempty"`

	Action string `gorm:"column:action;not null;index" json:"action"`

	Summary datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'" json:"summary"`

	Actor string `gorm:"type:text;not null;index" json:"actor"`

	CreatedAt time.Time `gorm:"not null;default:now();index" json:"created_at"`
}

func (ChangeLog) TableName() string { return "change_log" }
