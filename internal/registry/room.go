package registry

import (
	"strings"
)

// RoomID identifies a logical broadcast group. Rooms exist only while at
// least one session is subscribed; there is no persisted representation.
type RoomID string

const (
	conversationPrefix = "conversation:"
	userPrefix         = "user:"
)

// ConversationRoom is the room holding every live subscriber of a
// conversation.
func ConversationRoom(conversationId string) RoomID {
	return RoomID(conversationPrefix + conversationId)
}

// UserRoom is a user's personal notification channel, used for sidebar
// updates in clients not currently viewing the conversation.
func UserRoom(userId string) RoomID {
	return RoomID(userPrefix + userId)
}

// Conversation returns the conversation id and true if the room is a
// conversation room.
func (r RoomID) Conversation() (string, bool) {
	if rest, ok := strings.CutPrefix(string(r), conversationPrefix); ok && rest != "" {
		return rest, true
	}
	return "", false
}

// User returns the user id and true if the room is a personal room.
func (r RoomID) User() (string, bool) {
	if rest, ok := strings.CutPrefix(string(r), userPrefix); ok && rest != "" {
		return rest, true
	}
	return "", false
}
