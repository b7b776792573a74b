package database

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a conversation or message does not exist.
	ErrNotFound = errors.New("not found")
	// ErrValidation is returned for empty content or a missing sender. It is
	// surfaced synchronously to the caller and never retried.
	ErrValidation = errors.New("validation failed")
)

const (
	// DefaultPageSize is the page size used when a range query does not
	// specify a limit.
	DefaultPageSize = 20
	// MaxPageSize is the hard cap applied server-side to range queries.
	MaxPageSize = 100
)

// MessageRange selects a window of a conversation's messages. BeforeId is
// an opaque keyset cursor equal to the last-seen message id; After selects
// messages created strictly later than the given instant. Results are
// ordered newest first by (created_at, id).
type MessageRange struct {
	BeforeId string
	After    time.Time
	Limit    int
}

// ClampedLimit returns the effective limit for the range, clamped to
// [1, MaxPageSize] with DefaultPageSize when unset.
func (r MessageRange) ClampedLimit() int {
	if r.Limit <= 0 {
		return DefaultPageSize
	}
	if r.Limit > MaxPageSize {
		return MaxPageSize
	}
	return r.Limit
}

type ChatRepository interface {
	Ping() error
	CreateConversation(params CreateConversationParams) (Conversation, error)
	GetConversation(id string) (Conversation, error)
	FindPrivateConversation(userA, userB string) (Conversation, error)
	ListConversations(userId string) ([]Conversation, error)
	Participants(conversationId string) ([]string, error)
	CreateMessage(conversationId, senderId, content string) (Message, error)
	MessagesByConversation(conversationId string, opts MessageRange) ([]Message, error)
	TouchConversation(conversationId string, ts time.Time) error
}
