package domain

import (
	"github.com/trialworks/ars-backend/internal/domain/reporting"
	"github.com/trialworks/ars-backend/internal/domain/versioning"
)

type ReportingEvent = reporting.ReportingEvent

type Version = versioning.Version
type Branch = versioning.Branch
type ProtectionRuleSet = versioning.ProtectionRuleSet
type MergeRequest = versioning.MergeRequest
type ConflictResolution = versioning.ConflictResolution
type ChangeLog = versioning.ChangeLog

type Error = versioning.Error
type ErrorCode = versioning.ErrorCode

const (
	MainBranchName = versioning.MainBranchName

	MergeStatusDraft  = versioning.MergeStatusDraft
	MergeStatusOpen   = versioning.MergeStatusOpen
	MergeStatusMerged = versioning.MergeStatusMerged
	MergeStatusClosed = versioning.MergeStatusClosed

	TieBreakSource = versioning.TieBreakSource
	TieBreakTarget = versioning.TieBreakTarget

	ActionVersionCreated     = versioning.ActionVersionCreated
	ActionVersionRestored    = versioning.ActionVersionRestored
	ActionBranchCreated      = versioning.ActionBranchCreated
	ActionBranchDeleted      = versioning.ActionBranchDeleted
	ActionBranchProtected    = versioning.ActionBranchProtected
	ActionBranchUnprotected  = versioning.ActionBranchUnprotected
	ActionMergeRequestOpened = versioning.ActionMergeRequestOpened
	ActionMergeCompleted     = versioning.ActionMergeCompleted
	ActionMergeRequestClosed = versioning.ActionMergeRequestClosed
	ActionCherryPicked       = versioning.ActionCherryPicked
	ActionReverted           = versioning.ActionReverted
	ActionDocumentImported   = versioning.ActionDocumentImported
	ActionDocumentExported   = versioning.ActionDocumentExported

	CodeValidation         = versioning.CodeValidation
	CodeNotFound           = versioning.CodeNotFound
	CodeConflict           = versioning.CodeConflict
	CodeInvariantViolation = versioning.CodeInvariantViolation
	CodeUnresolvedConflict = versioning.CodeUnresolvedConflict
	CodeSerialization      = versioning.CodeSerialization
	CodeRetryable          = versioning.CodeRetryable
	CodeInternal           = versioning.CodeInternal
)
