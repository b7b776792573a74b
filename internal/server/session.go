package server

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/syncline-chat/syncline/internal/metrics"
	"github.com/syncline-chat/syncline/internal/registry"
	"github.com/syncline-chat/syncline/internal/types"
)

const (
	writeWait     = 10 * time.Second
	pongWait      = 60 * time.Second
	pingInterval  = (pongWait * 9) / 10
	maxEventSize  = 4096
	sendQueueSize = 256
)

// Session is one long-lived bidirectional channel for a connected client.
// It owns its room memberships and forwards inbound events to handlers.
// Inbound events are dispatched serially: each one, including its
// backfill, completes before the next is read. Sessions for different
// connections run concurrently.
type Session struct {
	id       string
	user     types.User
	conn     *websocket.Conn
	cs       *ChatServer
	log      *log.Logger
	send     chan *types.ServerEvent
	rooms    map[registry.RoomID]struct{}
	roomsMu  sync.Mutex
	stop     chan struct{}
	stopOnce sync.Once
}

func NewSession(user types.User, conn *websocket.Conn, cs *ChatServer, l *log.Logger) *Session {
	return &Session{
		id:    uuid.New().String(),
		user:  user,
		conn:  conn,
		cs:    cs,
		log:   l,
		send:  make(chan *types.ServerEvent, sendQueueSize),
		rooms: make(map[registry.RoomID]struct{}),
		stop:  make(chan struct{}),
	}
}

func (s *Session) ID() string { return s.id }

// Send enqueues an event on the session's outbound queue without
// blocking. It returns false when the queue is full; the event is dropped
// rather than exerting backpressure on the broadcaster.
func (s *Session) Send(ev *types.ServerEvent) bool {
	select {
	case s.send <- ev:
		return true
	default:
		return false
	}
}

func (s *Session) WritePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		s.conn.Close()
		s.log.Printf("session %q: write exiting", s.id)
	}()

	for {
		select {
		case ev, ok := <-s.send:
			if !ok {
				return
			}

			bytes, err := json.Marshal(ev)
			if err != nil {
				s.log.Println("failed to serialize event:", err)
				continue
			}

			if !s.writeMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-s.stop:
			return
		case <-ticker.C:
			if !s.writeMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (s *Session) ReadPump() {
	defer func() {
		s.conn.Close()
		s.cleanup()
		s.log.Printf("session %q: read exiting", s.id)
	}()

	s.conn.SetReadLimit(maxEventSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(appData string) error { s.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				s.log.Printf("ws: read: %v", err)
			}
			break
		}

		var ev types.ClientEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			s.log.Println("error parsing event:", err)
			s.Send(ErrBadEvent(-1))
			continue
		}

		if err := ev.Validate(); err != nil {
			s.Send(ErrBadEvent(ev.Id))
			continue
		}

		switch {
		case ev.Join != nil:
			s.handleJoin(&ev)
		case ev.Leave != nil:
			s.handleLeave(&ev)
		case ev.Typing != nil:
			s.handleTyping(&ev)
		}
	}
}

func (s *Session) writeMessage(msgType int, msg []byte) bool {
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := s.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			s.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

// handleJoin subscribes the session to the room. Joining a conversation
// room also triggers backfill: the store fetch happens with no registry
// lock held, and the batch is delivered only if the session is still a
// member when it arrives. The catch-up batch goes to this session alone,
// even when empty.
func (s *Session) handleJoin(ev *types.ClientEvent) {
	room := registry.RoomID(ev.Join.RoomId)
	s.addRoom(room)
	s.cs.registry.Join(room, s)

	conversationId, ok := room.Conversation()
	if !ok {
		s.Send(NoErrOK(ev.Id, nil))
		return
	}

	msgs, err := s.cs.backfill.CatchUp(conversationId, ev.Join.Since)
	if err != nil {
		s.log.Printf("backfill for %q: %v", room, err)
		s.Send(ErrServiceUnavailable(ev.Id))
		return
	}

	if !s.cs.registry.Member(room, s) {
		// left while the backfill was in flight
		return
	}

	s.Send(&types.ServerEvent{
		BaseEvent: types.BaseEvent{Id: ev.Id, Timestamp: Now()},
		CatchUp: &types.CatchUpBatch{
			RoomId:   string(room),
			Messages: msgs,
		},
	})
	metrics.EventsBroadcast.WithLabelValues("catch_up_batch").Inc()
}

func (s *Session) handleLeave(ev *types.ClientEvent) {
	room := registry.RoomID(ev.Leave.RoomId)
	s.cs.registry.Leave(room, s)
	s.delRoom(room)
	s.Send(NoErrOK(ev.Id, nil))
}

// handleTyping relays the typing state verbatim to the room's other
// members. The origin session never receives its own typing state back,
// and nothing is retained server-side.
func (s *Session) handleTyping(ev *types.ClientEvent) {
	room := registry.RoomID(ev.Typing.RoomId)
	s.cs.registry.BroadcastExcept(room, &types.ServerEvent{
		BaseEvent: types.BaseEvent{Timestamp: Now()},
		Typing: &types.TypingRelay{
			RoomId: string(room),
			UserId: s.user.Id,
			Typing: ev.Typing.Typing,
		},
	}, s)
	metrics.EventsBroadcast.WithLabelValues("typing_relay").Inc()
}

func (s *Session) stopSession() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
}

// cleanup runs on every read pump exit path, normal or not: the session
// is removed from every room it had joined before anything else can
// observe it.
func (s *Session) cleanup() {
	s.leaveAllRooms()
	s.cs.deregister(s)
	s.stopSession()
}

func (s *Session) leaveAllRooms() {
	s.roomsMu.Lock()
	rooms := make([]registry.RoomID, 0, len(s.rooms))
	for room := range s.rooms {
		rooms = append(rooms, room)
	}
	clear(s.rooms)
	s.roomsMu.Unlock()

	s.cs.registry.LeaveAll(rooms, s)
}

func (s *Session) addRoom(room registry.RoomID) {
	s.roomsMu.Lock()
	defer s.roomsMu.Unlock()
	s.rooms[room] = struct{}{}
}

func (s *Session) delRoom(room registry.RoomID) {
	s.roomsMu.Lock()
	defer s.roomsMu.Unlock()
	delete(s.rooms, room)
}
