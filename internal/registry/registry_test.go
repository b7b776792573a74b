package registry

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/syncline-chat/syncline/internal/testutil"
	"github.com/syncline-chat/syncline/internal/types"
)

type fakeSession struct {
	id     string
	events chan *types.ServerEvent
}

func newFakeSession(id string, queueSize int) *fakeSession {
	return &fakeSession{id: id, events: make(chan *types.ServerEvent, queueSize)}
}

func (f *fakeSession) ID() string { return f.id }

func (f *fakeSession) Send(ev *types.ServerEvent) bool {
	select {
	case f.events <- ev:
		return true
	default:
		return false
	}
}

func TestJoinIsIdempotent(t *testing.T) {
	reg := NewRegistry(testutil.TestLogger(t))
	room := ConversationRoom("c1")
	s := newFakeSession("s1", 1)

	reg.Join(room, s)
	reg.Join(room, s)

	assert.Equal(t, 1, reg.MemberCount(room), "expected a double join to count once")
}

func TestLeavePrunesEmptyRoom(t *testing.T) {
	reg := NewRegistry(testutil.TestLogger(t))
	room := ConversationRoom("c1")
	s1 := newFakeSession("s1", 1)
	s2 := newFakeSession("s2", 1)

	reg.Join(room, s1)
	reg.Join(room, s2)
	reg.Leave(room, s1)
	assert.True(t, reg.RoomExists(room), "expected room to survive while a member remains")

	reg.Leave(room, s2)
	assert.False(t, reg.RoomExists(room), "expected empty room to be pruned")

	// double leave is safe
	reg.Leave(room, s2)
	assert.False(t, reg.RoomExists(room))
}

func TestLeaveUnjoinedRoomIsNoop(t *testing.T) {
	reg := NewRegistry(testutil.TestLogger(t))
	room := ConversationRoom("c1")
	s := newFakeSession("s1", 1)

	reg.Leave(room, s)
	assert.False(t, reg.RoomExists(room))
}

func TestMember(t *testing.T) {
	reg := NewRegistry(testutil.TestLogger(t))
	room := ConversationRoom("c1")
	s := newFakeSession("s1", 1)

	assert.False(t, reg.Member(room, s))
	reg.Join(room, s)
	assert.True(t, reg.Member(room, s))
	reg.Leave(room, s)
	assert.False(t, reg.Member(room, s))
}

func TestBroadcastExceptSkipsOrigin(t *testing.T) {
	reg := NewRegistry(testutil.TestLogger(t))
	room := ConversationRoom("c1")
	origin := newFakeSession("origin", 1)
	peer := newFakeSession("peer", 1)

	reg.Join(room, origin)
	reg.Join(room, peer)

	ev := &types.ServerEvent{Typing: &types.TypingRelay{RoomId: string(room), UserId: "u1", Typing: true}}
	reg.BroadcastExcept(room, ev, origin)

	assert.Len(t, peer.events, 1, "expected the peer to receive the relay")
	assert.Len(t, origin.events, 0, "expected the origin session to be excluded")
}

func TestBroadcastFullQueueDoesNotBlockPeers(t *testing.T) {
	reg := NewRegistry(testutil.TestLogger(t))
	room := ConversationRoom("c1")
	slow := newFakeSession("slow", 1)
	fast := newFakeSession("fast", 2)

	slow.events <- &types.ServerEvent{} // fill the slow peer's queue

	reg.Join(room, slow)
	reg.Join(room, fast)

	reg.Broadcast(room, &types.ServerEvent{NewMessage: &types.NewMessage{RoomId: string(room)}})

	assert.Len(t, fast.events, 1, "expected delivery to the healthy peer")
	assert.Len(t, slow.events, 1, "expected the slow peer's queue untouched beyond its capacity")
	// the slow peer stays a member; cleanup belongs to connection teardown
	assert.True(t, reg.Member(room, slow))
}

func TestConcurrentJoinLeaveBroadcast(t *testing.T) {
	reg := NewRegistry(testutil.TestLogger(t))
	room := ConversationRoom("c1")

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			s := newFakeSession(fmt.Sprintf("s%d", n), 64)
			for j := 0; j < 100; j++ {
				reg.Join(room, s)
				reg.Broadcast(room, &types.ServerEvent{})
				reg.Leave(room, s)
			}
		}(i)
	}
	wg.Wait()

	assert.False(t, reg.RoomExists(room), "expected no room entry once every session has left")
}

func TestRoomIDKinds(t *testing.T) {
	room := ConversationRoom("abc")
	assert.Equal(t, RoomID("conversation:abc"), room)
	conversationId, ok := room.Conversation()
	assert.True(t, ok)
	assert.Equal(t, "abc", conversationId)
	_, ok = room.User()
	assert.False(t, ok, "expected a conversation room not to parse as a user room")

	personal := UserRoom("u42")
	assert.Equal(t, RoomID("user:u42"), personal)
	userId, ok := personal.User()
	assert.True(t, ok)
	assert.Equal(t, "u42", userId)
	_, ok = personal.Conversation()
	assert.False(t, ok)

	_, ok = RoomID("user:").User()
	assert.False(t, ok, "expected an empty target to be rejected")
}
