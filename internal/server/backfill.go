package server

import (
	"log"
	"time"

	"github.com/syncline-chat/syncline/internal/database"
	"github.com/syncline-chat/syncline/internal/metrics"
	"github.com/syncline-chat/syncline/internal/types"
)

const (
	// freshJoinLimit bounds the initial view delivered on a join with no
	// since timestamp.
	freshJoinLimit = 30
	// catchUpLimit bounds the worst-case burst after a long disconnect.
	// Clients needing more history use paged retrieval over HTTP.
	catchUpLimit = 100
)

// BackfillCoordinator computes the catch-up window of missed messages
// delivered to a session when it joins a conversation room.
type BackfillCoordinator struct {
	db  database.ChatRepository
	log *log.Logger
}

func NewBackfillCoordinator(db database.ChatRepository, logger *log.Logger) *BackfillCoordinator {
	return &BackfillCoordinator{db: db, log: logger}
}

// CatchUp returns the backfill window for a conversation in chronological
// order. Without since it is the newest freshJoinLimit messages; with
// since it is up to catchUpLimit messages created strictly after since.
// An unknown conversation yields an empty window, not an error.
func (b *BackfillCoordinator) CatchUp(conversationId string, since *time.Time) ([]types.Message, error) {
	opts := database.MessageRange{Limit: freshJoinLimit}
	if since != nil {
		opts.After = *since
		opts.Limit = catchUpLimit
	}

	msgs, err := b.db.MessagesByConversation(conversationId, opts)
	if err != nil {
		return nil, err
	}

	// The store orders newest first; reverse to chronological for delivery.
	out := make([]types.Message, len(msgs))
	for i, msg := range msgs {
		out[len(msgs)-1-i] = toWireMessage(msg)
	}

	metrics.BackfillMessages.Observe(float64(len(out)))
	return out, nil
}
