package realtime

import (
	"github.com/google/uuid"

	"github.com/trialworks/ars-backend/internal/pkg/logger"
)

type SSEClient struct {
	ID       uuid.UUID
	Actor    string
	Channels map[string]bool
	Outbound chan SSEMessage
	done     chan struct{}
	Logger   *logger.Logger
}
