package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClientEventValidate(t *testing.T) {
	tests := []struct {
		name    string
		event   ClientEvent
		wantErr bool
	}{
		{"join", ClientEvent{Join: &JoinRoom{RoomId: "conversation:c1"}}, false},
		{"leave", ClientEvent{Leave: &LeaveRoom{RoomId: "conversation:c1"}}, false},
		{"typing", ClientEvent{Typing: &SendTyping{RoomId: "conversation:c1", Typing: true}}, false},
		{"empty envelope", ClientEvent{}, true},
		{"join without room", ClientEvent{Join: &JoinRoom{}}, true},
		{"leave without room", ClientEvent{Leave: &LeaveRoom{}}, true},
		{"typing without room", ClientEvent{Typing: &SendTyping{Typing: true}}, true},
		{"two payloads", ClientEvent{
			Join:  &JoinRoom{RoomId: "conversation:c1"},
			Leave: &LeaveRoom{RoomId: "conversation:c1"},
		}, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.event.Validate()
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrInvalidEvent)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestClientEventWireFormat(t *testing.T) {
	since := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	raw := `{"id":4,"timestamp":"2025-06-01T12:00:05Z","join-room":{"room_id":"conversation:c1","since":"2025-06-01T12:00:00Z"}}`

	var ev ClientEvent
	assert.NoError(t, json.Unmarshal([]byte(raw), &ev))
	assert.NoError(t, ev.Validate())
	assert.Equal(t, 4, ev.Id)
	assert.NotNil(t, ev.Join)
	assert.Equal(t, "conversation:c1", ev.Join.RoomId)
	assert.NotNil(t, ev.Join.Since)
	assert.True(t, ev.Join.Since.Equal(since))
}

func TestServerEventOmitsUnsetPayloads(t *testing.T) {
	ev := ServerEvent{
		BaseEvent: BaseEvent{Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)},
		Typing:    &TypingRelay{RoomId: "conversation:c1", UserId: "u1", Typing: true},
	}

	bytes, err := json.Marshal(&ev)
	assert.NoError(t, err)
	assert.JSONEq(t,
		`{"timestamp":"2025-06-01T12:00:00Z","typing-relay":{"room_id":"conversation:c1","user_id":"u1","typing":true}}`,
		string(bytes))
}
