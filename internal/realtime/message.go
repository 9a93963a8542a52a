package realtime

import "github.com/google/uuid"

type SSEEvent string

const (
	SSEEventVersionCreated     SSEEvent = "version.created"
	SSEEventVersionRestored    SSEEvent = "version.restored"
	SSEEventBranchCreated      SSEEvent = "branch.created"
	SSEEventBranchDeleted      SSEEvent = "branch.deleted"
	SSEEventMergeRequestOpened SSEEvent = "merge_request.created"
	SSEEventMergeCompleted     SSEEvent = "merge.completed"
	SSEEventMergeRequestClosed SSEEvent = "merge_request.closed"
	SSEEventCherryPicked       SSEEvent = "cherry_pick.completed"
	SSEEventReverted           SSEEvent = "revert.completed"
	SSEEventDocumentImported   SSEEvent = "document.imported"
)

type SSEMessage struct {
	Channel string   `json:"channel"`
	Event   SSEEvent `json:"event"`
	Data    any      `json:"data,omitempty"`
}

// DocumentChannel is the per-document subscription key clients listen on.
func DocumentChannel(documentID uuid.UUID) string {
	return "document:" + documentID.String()
}
