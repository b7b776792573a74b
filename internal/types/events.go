package types

import (
	"errors"
	"time"
)

// BaseEvent carries the optional client-assigned correlation id and the
// server timestamp shared by every wire event.
type BaseEvent struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ClientEvent is the inbound wire envelope. Exactly one of the union
// fields is set; Validate rejects anything else before dispatch.
type ClientEvent struct {
	BaseEvent
	Join   *JoinRoom   `json:"join-room,omitempty"`
	Leave  *LeaveRoom  `json:"leave-room,omitempty"`
	Typing *SendTyping `json:"send-typing,omitempty"`
}

var ErrInvalidEvent = errors.New("invalid event envelope")

func (e *ClientEvent) Validate() error {
	var set int
	if e.Join != nil {
		if e.Join.RoomId == "" {
			return ErrInvalidEvent
		}
		set++
	}
	if e.Leave != nil {
		if e.Leave.RoomId == "" {
			return ErrInvalidEvent
		}
		set++
	}
	if e.Typing != nil {
		if e.Typing.RoomId == "" {
			return ErrInvalidEvent
		}
		set++
	}
	if set != 1 {
		return ErrInvalidEvent
	}
	return nil
}

type JoinRoom struct {
	RoomId string     `json:"room_id"`
	Since  *time.Time `json:"since,omitempty"`
}

type LeaveRoom struct {
	RoomId string `json:"room_id"`
}

type SendTyping struct {
	RoomId string `json:"room_id"`
	UserId string `json:"user_id"`
	Typing bool   `json:"typing"`
}

// ServerEvent is the outbound wire envelope, a tagged union mirroring
// ClientEvent. At most one payload field is set per event.
type ServerEvent struct {
	BaseEvent
	Response            *Response            `json:"response,omitempty"`
	CatchUp             *CatchUpBatch        `json:"catch-up-batch,omitempty"`
	NewMessage          *NewMessage          `json:"new-message,omitempty"`
	ConversationTouched *ConversationTouched `json:"conversation-touched,omitempty"`
	ConversationCreated *ConversationCreated `json:"conversation-created,omitempty"`
	Typing              *TypingRelay         `json:"typing-relay,omitempty"`
}

type Response struct {
	ResponseCode int    `json:"response_code"`
	Error        string `json:"error,omitempty"`
	Data         any    `json:"data,omitempty"`
}

type CatchUpBatch struct {
	RoomId   string    `json:"room_id"`
	Messages []Message `json:"messages"`
}

type NewMessage struct {
	RoomId  string  `json:"room_id"`
	Message Message `json:"message"`
}

type ConversationTouched struct {
	ConversationId string    `json:"conversation_id"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type ConversationCreated struct {
	Conversation Conversation `json:"conversation"`
}

type TypingRelay struct {
	RoomId string `json:"room_id"`
	UserId string `json:"user_id"`
	Typing bool   `json:"typing"`
}
