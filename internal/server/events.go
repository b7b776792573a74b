package server

import (
	"net/http"
	"time"

	"github.com/syncline-chat/syncline/internal/database"
	"github.com/syncline-chat/syncline/internal/types"
)

func NoErrOK(id int, data any) *types.ServerEvent {
	return &types.ServerEvent{
		BaseEvent: types.BaseEvent{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &types.Response{
			ResponseCode: http.StatusOK,
			Data:         data,
		},
	}
}

func ErrBadEvent(id int) *types.ServerEvent {
	ev := &types.ServerEvent{
		BaseEvent: types.BaseEvent{
			Timestamp: Now(),
		},
		Response: &types.Response{
			ResponseCode: http.StatusBadRequest,
			Error:        "invalid event format",
		},
	}

	if id > 0 {
		ev.Id = id
	}
	return ev
}

func ErrServiceUnavailable(id int) *types.ServerEvent {
	return &types.ServerEvent{
		BaseEvent: types.BaseEvent{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &types.Response{
			ResponseCode: http.StatusServiceUnavailable,
			Error:        "service unavailable",
		},
	}
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}

func toWireMessage(msg database.Message) types.Message {
	return types.Message{
		Id:             msg.Id,
		ConversationId: msg.ConversationId,
		SenderId:       msg.SenderId,
		Content:        msg.Content,
		CreatedAt:      msg.CreatedAt,
	}
}
