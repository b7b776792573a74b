// Package client implements the client side of the delivery core: an
// explicitly owned connection handle, the timeline reconciliation engine
// for optimistic sends, and the typing presence state machines.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/syncline-chat/syncline/internal/types"
)

// Handlers holds the callbacks dispatched per server event. Nil entries
// are skipped. All callbacks run on the connection's read goroutine.
type Handlers struct {
	OnResponse            func(types.Response)
	OnCatchUp             func(types.CatchUpBatch)
	OnNewMessage          func(types.NewMessage)
	OnConversationTouched func(types.ConversationTouched)
	OnConversationCreated func(types.ConversationCreated)
	OnTyping              func(types.TypingRelay)
}

// Conn is the single connection handle a client owns: dialed once on
// first use, reused by every component that needs it, shut down
// explicitly. There is no global socket.
type Conn struct {
	url      string
	header   http.Header
	log      *log.Logger
	handlers Handlers

	mu        sync.Mutex
	conn      *websocket.Conn
	nextId    int
	done      chan struct{}
	closeOnce sync.Once

	writeMu sync.Mutex
}

func NewConn(url string, handlers Handlers, logger *log.Logger) *Conn {
	return &Conn{
		url:      url,
		log:      logger,
		handlers: handlers,
		done:     make(chan struct{}),
	}
}

// SetRequestHeader sets headers sent with the upgrade request, such as
// the session cookie. Must be called before Connect.
func (c *Conn) SetRequestHeader(h http.Header) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.header = h
}

// Connect dials the server if not already connected and starts the read
// loop. Calling Connect on a live connection is a no-op.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, c.header)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.url, err)
	}

	c.conn = conn
	go c.readLoop(conn)
	return nil
}

// JoinRoom subscribes to a room, optionally backfilling messages created
// after since.
func (c *Conn) JoinRoom(roomId string, since *time.Time) error {
	return c.send(&types.ClientEvent{
		Join: &types.JoinRoom{RoomId: roomId, Since: since},
	})
}

func (c *Conn) LeaveRoom(roomId string) error {
	return c.send(&types.ClientEvent{
		Leave: &types.LeaveRoom{RoomId: roomId},
	})
}

func (c *Conn) SendTyping(roomId, userId string, typing bool) error {
	return c.send(&types.ClientEvent{
		Typing: &types.SendTyping{RoomId: roomId, UserId: userId, Typing: typing},
	})
}

// Done is closed when the connection has shut down.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Close shuts the connection down. Safe to call more than once.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()

		if conn != nil {
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			conn.Close()
		}
		close(c.done)
	})
}

func (c *Conn) send(ev *types.ClientEvent) error {
	c.mu.Lock()
	conn := c.conn
	c.nextId++
	ev.Id = c.nextId
	c.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("not connected")
	}

	bytes, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("serialize event: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, bytes)
}

func (c *Conn) readLoop(conn *websocket.Conn) {
	defer c.Close()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			return
		}

		var ev types.ServerEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			c.log.Println("error parsing server event:", err)
			continue
		}

		c.dispatch(&ev)
	}
}

func (c *Conn) dispatch(ev *types.ServerEvent) {
	switch {
	case ev.Response != nil:
		if c.handlers.OnResponse != nil {
			c.handlers.OnResponse(*ev.Response)
		}
	case ev.CatchUp != nil:
		if c.handlers.OnCatchUp != nil {
			c.handlers.OnCatchUp(*ev.CatchUp)
		}
	case ev.NewMessage != nil:
		if c.handlers.OnNewMessage != nil {
			c.handlers.OnNewMessage(*ev.NewMessage)
		}
	case ev.ConversationTouched != nil:
		if c.handlers.OnConversationTouched != nil {
			c.handlers.OnConversationTouched(*ev.ConversationTouched)
		}
	case ev.ConversationCreated != nil:
		if c.handlers.OnConversationCreated != nil {
			c.handlers.OnConversationCreated(*ev.ConversationCreated)
		}
	case ev.Typing != nil:
		if c.handlers.OnTyping != nil {
			c.handlers.OnTyping(*ev.Typing)
		}
	}
}
