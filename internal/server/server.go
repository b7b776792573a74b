package server

import (
	"context"
	"log"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/syncline-chat/syncline/internal/database"
	"github.com/syncline-chat/syncline/internal/metrics"
	"github.com/syncline-chat/syncline/internal/registry"
	"github.com/syncline-chat/syncline/internal/types"
)

// ChatServer owns the authoritative set of live connections on this
// node and the components they share: the room registry, the backfill
// coordinator and the fan-out dispatcher.
type ChatServer struct {
	log        *log.Logger
	db         database.ChatRepository
	registry   *registry.Registry
	backfill   *BackfillCoordinator
	dispatcher *FanoutDispatcher
	sessions   map[*Session]struct{}
	sessionsMu sync.Mutex
	wg         sync.WaitGroup
}

func NewChatServer(logger *log.Logger, db database.ChatRepository) *ChatServer {
	reg := registry.NewRegistry(logger)
	return &ChatServer{
		log:        logger,
		db:         db,
		registry:   reg,
		backfill:   NewBackfillCoordinator(db, logger),
		dispatcher: NewFanoutDispatcher(db, reg, logger),
		sessions:   make(map[*Session]struct{}),
	}
}

// Dispatcher exposes the fan-out dispatcher to the request/response glue
// that persists messages and conversations.
func (cs *ChatServer) Dispatcher() *FanoutDispatcher {
	return cs.dispatcher
}

// Registry exposes room membership, used by tests and diagnostics.
func (cs *ChatServer) Registry() *registry.Registry {
	return cs.registry
}

// Serve runs the session for an upgraded connection. It blocks until the
// connection closes and guarantees the session has left every room by the
// time it returns.
func (cs *ChatServer) Serve(user types.User, conn *websocket.Conn) {
	session := NewSession(user, conn, cs, cs.log)
	cs.register(session)

	cs.wg.Add(1)
	defer cs.wg.Done()

	go session.WritePump()
	session.ReadPump()
}

func (cs *ChatServer) register(s *Session) {
	cs.sessionsMu.Lock()
	defer cs.sessionsMu.Unlock()
	cs.sessions[s] = struct{}{}
	metrics.ConnectionsActive.Inc()
	cs.log.Printf("registered session %q for user %q", s.id, s.user.Id)
}

func (cs *ChatServer) deregister(s *Session) {
	cs.sessionsMu.Lock()
	defer cs.sessionsMu.Unlock()
	if _, ok := cs.sessions[s]; !ok {
		return
	}
	delete(cs.sessions, s)
	metrics.ConnectionsActive.Dec()
	cs.log.Printf("deregistered session %q", s.id)
}

// Shutdown stops every live session and waits for their pumps to exit or
// the context to expire.
func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.sessionsMu.Lock()
	for s := range cs.sessions {
		s.stopSession()
	}
	cs.sessionsMu.Unlock()

	done := make(chan struct{})
	go func() {
		cs.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
