package services

import (
	"context"

	"github.com/google/uuid"

	types "github.com/trialworks/ars-backend/internal/domain"
	"github.com/trialworks/ars-backend/internal/realtime"
)

// =========================
// Version notifier
// =========================

type VersionNotifier interface {
	VersionCreated(documentID uuid.UUID, version *types.Version)
	VersionRestored(documentID uuid.UUID, version *types.Version, backup *types.Version)
	CherryPicked(documentID uuid.UUID, version *types.Version, pickedFrom uuid.UUID)
	Reverted(documentID uuid.UUID, version *types.Version, reverted uuid.UUID)
	DocumentImported(documentID uuid.UUID, version *types.Version)
}

type versionNotifier struct {
	emit SSEEmitter
}

func NewVersionNotifier(emit SSEEmitter) VersionNotifier {
	return &versionNotifier{emit: emit}
}

func (n *versionNotifier) VersionCreated(documentID uuid.UUID, version *types.Version) {
	if n == nil || n.emit == nil || documentID == uuid.Nil {
		return
	}
	n.emit.Emit(context.Background(), realtime.SSEMessage{
		Channel: realtime.DocumentChannel(documentID),
		Event:   realtime.SSEEventVersionCreated,
		Data: map[string]any{
			"version_id": safeVersionID(version),
			"branch_id":  safeVersionBranchID(version),
			"version":    version,
		},
	})
}

func (n *versionNotifier) VersionRestored(documentID uuid.UUID, version *types.Version, backup *types.Version) {
	if n == nil || n.emit == nil || documentID == uuid.Nil {
		return
	}
	n.emit.Emit(context.Background(), realtime.SSEMessage{
		Channel: realtime.DocumentChannel(documentID),
		Event:   realtime.SSEEventVersionRestored,
		Data: map[string]any{
			"version_id": safeVersionID(version),
			"backup_id":  safeVersionID(backup),
			"version":    version,
		},
	})
}

func (n *versionNotifier) CherryPicked(documentID uuid.UUID, version *types.Version, pickedFrom uuid.UUID) {
	if n == nil || n.emit == nil || documentID == uuid.Nil {
		return
	}
	n.emit.Emit(context.Background(), realtime.SSEMessage{
		Channel: realtime.DocumentChannel(documentID),
		Event:   realtime.SSEEventCherryPicked,
		Data: map[string]any{
			"version_id":  safeVersionID(version),
			"branch_id":   safeVersionBranchID(version),
			"picked_from": pickedFrom,
			"version":     version,
		},
	})
}

func (n *versionNotifier) Reverted(documentID uuid.UUID, version *types.Version, reverted uuid.UUID) {
	if n == nil || n.emit == nil || documentID == uuid.Nil {
		return
	}
	n.emit.Emit(context.Background(), realtime.SSEMessage{
		Channel: realtime.DocumentChannel(documentID),
		Event:   realtime.SSEEventReverted,
		Data: map[string]any{
			"version_id": safeVersionID(version),
			"branch_id":  safeVersionBranchID(version),
			"reverted":   reverted,
			"version":    version,
		},
	})
}

func (n *versionNotifier) DocumentImported(documentID uuid.UUID, version *types.Version) {
	if n == nil || n.emit == nil || documentID == uuid.Nil {
		return
	}
	n.emit.Emit(context.Background(), realtime.SSEMessage{
		Channel: realtime.DocumentChannel(documentID),
		Event:   realtime.SSEEventDocumentImported,
		Data: map[string]any{
			"version_id": safeVersionID(version),
			"version":    version,
		},
	})
}

// =========================
// Branch notifier
// =========================

type BranchNotifier interface {
	BranchCreated(documentID uuid.UUID, branch *types.Branch)
	BranchDeleted(documentID uuid.UUID, branch *types.Branch)
}

type branchNotifier struct {
	emit SSEEmitter
}

func NewBranchNotifier(emit SSEEmitter) BranchNotifier {
	return &branchNotifier{emit: emit}
}

func (n *branchNotifier) BranchCreated(documentID uuid.UUID, branch *types.Branch) {
	if n == nil || n.emit == nil || documentID == uuid.Nil {
		return
	}
	n.emit.Emit(context.Background(), realtime.SSEMessage{
		Channel: realtime.DocumentChannel(documentID),
		Event:   realtime.SSEEventBranchCreated,
		Data: map[string]any{
			"branch_id":   safeBranchID(branch),
			"branch_name": safeBranchName(branch),
			"branch":      branch,
		},
	})
}

func (n *branchNotifier) BranchDeleted(documentID uuid.UUID, branch *types.Branch) {
	if n == nil || n.emit == nil || documentID == uuid.Nil {
		return
	}
	n.emit.Emit(context.Background(), realtime.SSEMessage{
		Channel: realtime.DocumentChannel(documentID),
		Event:   realtime.SSEEventBranchDeleted,
		Data: map[string]any{
			"branch_id":   safeBranchID(branch),
			"branch_name": safeBranchName(branch),
		},
	})
}

// =========================
// Merge notifier
// =========================

type MergeNotifier interface {
	MergeRequestOpened(documentID uuid.UUID, mr *types.MergeRequest)
	MergeCompleted(documentID uuid.UUID, mr *types.MergeRequest, version *types.Version)
	MergeRequestClosed(documentID uuid.UUID, mr *types.MergeRequest)
}

type mergeNotifier struct {
	emit SSEEmitter
}

func NewMergeNotifier(emit SSEEmitter) MergeNotifier {
	return &mergeNotifier{emit: emit}
}

func (n *mergeNotifier) MergeRequestOpened(documentID uuid.UUID, mr *types.MergeRequest) {
	if n == nil || n.emit == nil || documentID == uuid.Nil {
		return
	}
	n.emit.Emit(context.Background(), realtime.SSEMessage{
		Channel: realtime.DocumentChannel(documentID),
		Event:   realtime.SSEEventMergeRequestOpened,
		Data: map[string]any{
			"merge_request_id": safeMergeRequestID(mr),
			"merge_request":    mr,
		},
	})
}

func (n *mergeNotifier) MergeCompleted(documentID uuid.UUID, mr *types.MergeRequest, version *types.Version) {
	if n == nil || n.emit == nil || documentID == uuid.Nil {
		return
	}
	n.emit.Emit(context.Background(), realtime.SSEMessage{
		Channel: realtime.DocumentChannel(documentID),
		Event:   realtime.SSEEventMergeCompleted,
		Data: map[string]any{
			"merge_request_id": safeMergeRequestID(mr),
			"version_id":       safeVersionID(version),
			"merge_request":    mr,
			"version":          version,
		},
	})
}

func (n *mergeNotifier) MergeRequestClosed(documentID uuid.UUID, mr *types.MergeRequest) {
	if n == nil || n.emit == nil || documentID == uuid.Nil {
		return
	}
	n.emit.Emit(context.Background(), realtime.SSEMessage{
		Channel: realtime.DocumentChannel(documentID),
		Event:   realtime.SSEEventMergeRequestClosed,
		Data: map[string]any{
			"merge_request_id": safeMergeRequestID(mr),
			"merge_request":    mr,
		},
	})
}

// =========================
// helpers
// =========================

func safeVersionID(v *types.Version) uuid.UUID {
	if v == nil {
		return uuid.Nil
	}
	return v.ID
}

func safeVersionBranchID(v *types.Version) uuid.UUID {
	if v == nil {
		return uuid.Nil
	}
	return v.BranchID
}

func safeBranchID(b *types.Branch) uuid.UUID {
	if b == nil {
		return uuid.Nil
	}
	return b.ID
}

func safeBranchName(b *types.Branch) string {
	if b == nil {
		return ""
	}
	return b.Name
}

func safeMergeRequestID(mr *types.MergeRequest) uuid.UUID {
	if mr == nil {
		return uuid.Nil
	}
	return mr.ID
}
