package server

import (
	"log"

	"github.com/syncline-chat/syncline/internal/database"
	"github.com/syncline-chat/syncline/internal/metrics"
	"github.com/syncline-chat/syncline/internal/registry"
	"github.com/syncline-chat/syncline/internal/types"
)

// FanoutDispatcher broadcasts newly persisted events to their interested
// rooms: the owning conversation room and each participant's personal
// room. It only ever runs after the triggering write has been durably
// applied; nothing it does is rolled back.
type FanoutDispatcher struct {
	db       database.ChatRepository
	registry *registry.Registry
	log      *log.Logger
}

func NewFanoutDispatcher(db database.ChatRepository, reg *registry.Registry, logger *log.Logger) *FanoutDispatcher {
	return &FanoutDispatcher{db: db, registry: reg, log: logger}
}

// MessageCreated broadcasts a persisted message to its conversation room,
// then notifies every participant's personal room so clients not viewing
// the conversation can reorder their sidebar. The participant fan-out is
// best effort: a failed participant lookup is logged and swallowed, the
// primary broadcast has already gone out.
func (d *FanoutDispatcher) MessageCreated(msg types.Message) {
	room := registry.ConversationRoom(msg.ConversationId)
	d.registry.Broadcast(room, &types.ServerEvent{
		BaseEvent: types.BaseEvent{Timestamp: Now()},
		NewMessage: &types.NewMessage{
			RoomId:  string(room),
			Message: msg,
		},
	})
	metrics.EventsBroadcast.WithLabelValues("new_message").Inc()

	participants, err := d.db.Participants(msg.ConversationId)
	if err != nil {
		d.log.Printf("participants for conversation %q: %v", msg.ConversationId, err)
		return
	}

	touched := &types.ConversationTouched{
		ConversationId: msg.ConversationId,
		UpdatedAt:      msg.CreatedAt,
	}
	for _, userId := range participants {
		d.registry.Broadcast(registry.UserRoom(userId), &types.ServerEvent{
			BaseEvent:           types.BaseEvent{Timestamp: Now()},
			ConversationTouched: touched,
		})
		metrics.EventsBroadcast.WithLabelValues("conversation_touched").Inc()
	}
}

// ConversationCreated notifies each new participant's personal room and
// the new conversation room itself, for clients already subscribed to
// that exact room id.
func (d *FanoutDispatcher) ConversationCreated(convo types.Conversation) {
	ev := &types.ServerEvent{
		BaseEvent:           types.BaseEvent{Timestamp: Now()},
		ConversationCreated: &types.ConversationCreated{Conversation: convo},
	}

	for _, userId := range convo.Participants {
		d.registry.Broadcast(registry.UserRoom(userId), ev)
	}
	d.registry.Broadcast(registry.ConversationRoom(convo.Id), ev)
	metrics.EventsBroadcast.WithLabelValues("conversation_created").Inc()
}
