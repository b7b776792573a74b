package registry

import (
	"hash/fnv"
	"log"
	"sync"

	"github.com/syncline-chat/syncline/internal/metrics"
	"github.com/syncline-chat/syncline/internal/types"
)

// Session is the registry's view of a connected client. Send must not
// block: it enqueues the event on the session's outbound queue and
// reports false when the queue is full or closed.
type Session interface {
	ID() string
	Send(ev *types.ServerEvent) bool
}

const numShards = 32

type shard struct {
	mu    sync.Mutex
	rooms map[RoomID]map[Session]struct{}
}

// Registry maps room ids to their currently subscribed sessions. Locking
// is sharded by room id so membership mutation on one room never contends
// with broadcast enumeration on another. Within a shard, join/leave and
// broadcast are serialized, so a broadcast never observes a
// partially-updated member set.
type Registry struct {
	shards [numShards]shard
	log    *log.Logger
}

func NewRegistry(logger *log.Logger) *Registry {
	r := &Registry{log: logger}
	for i := range r.shards {
		r.shards[i].rooms = make(map[RoomID]map[Session]struct{})
	}
	return r
}

func (r *Registry) shardFor(room RoomID) *shard {
	h := fnv.New32a()
	h.Write([]byte(room))
	return &r.shards[h.Sum32()%numShards]
}

// Join subscribes the session to the room, creating the room entry if
// absent. Joining an already joined room has no additional effect.
func (r *Registry) Join(room RoomID, s Session) {
	sh := r.shardFor(room)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	members, ok := sh.rooms[room]
	if !ok {
		members = make(map[Session]struct{})
		sh.rooms[room] = members
		metrics.RoomsActive.Inc()
	}
	members[s] = struct{}{}
}

// Leave removes the session from the room. The room entry is pruned once
// its member set is empty; empty rooms are never retained. Leaving a room
// the session is not in is a no-op.
func (r *Registry) Leave(room RoomID, s Session) {
	sh := r.shardFor(room)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	members, ok := sh.rooms[room]
	if !ok {
		return
	}
	delete(members, s)
	if len(members) == 0 {
		delete(sh.rooms, room)
		metrics.RoomsActive.Dec()
	}
}

// Member reports whether the session is currently subscribed to the room.
// Membership is the authority for whether a late payload (e.g. a backfill
// that raced a leave) is still relevant.
func (r *Registry) Member(room RoomID, s Session) bool {
	sh := r.shardFor(room)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	members, ok := sh.rooms[room]
	if !ok {
		return false
	}
	_, ok = members[s]
	return ok
}

// Broadcast delivers the event to every session subscribed to the room.
func (r *Registry) Broadcast(room RoomID, ev *types.ServerEvent) {
	r.BroadcastExcept(room, ev, nil)
}

// BroadcastExcept delivers the event to every session subscribed to the
// room other than except. Delivery is a non-blocking enqueue per peer: a
// session whose queue is full or closed is skipped and counted, never
// blocking delivery to the rest. Cleanup of dead sessions belongs to
// connection teardown, not to broadcast.
func (r *Registry) BroadcastExcept(room RoomID, ev *types.ServerEvent, except Session) {
	sh := r.shardFor(room)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	for s := range sh.rooms[room] {
		if s == except {
			continue
		}
		if !s.Send(ev) {
			metrics.EventsDropped.Inc()
			r.log.Printf("dropped event for session %q in room %q", s.ID(), room)
		}
	}
}

// LeaveAll removes the session from every given room. Used on connection
// teardown so no exit path leaves a dead session in a member set.
func (r *Registry) LeaveAll(rooms []RoomID, s Session) {
	for _, room := range rooms {
		r.Leave(room, s)
	}
}

// MemberCount returns the current size of the room's member set, zero if
// the room does not exist.
func (r *Registry) MemberCount(room RoomID) int {
	sh := r.shardFor(room)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return len(sh.rooms[room])
}

// RoomExists reports whether the registry holds an entry for the room.
func (r *Registry) RoomExists(room RoomID) bool {
	sh := r.shardFor(room)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	_, ok := sh.rooms[room]
	return ok
}
