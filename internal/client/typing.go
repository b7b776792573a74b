package client

import (
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	// idleTimeout stops the typing signal after input goes quiet.
	idleTimeout = time.Second
	// hardTimeout covers abandoned typing without an explicit stop.
	hardTimeout = 3 * time.Second
)

// Composer is the per-composition debounce state machine for typing
// presence. It has two states, idle and composing, and emits at most one
// typing=true per composition plus a matching typing=false on every exit
// path. Both timers are cancelled whenever the composition ends so a late
// typing=false can never leak into a room the client has already left.
// emit runs with no internal lock held, so the callback may re-enter the
// composer, e.g. a send pipeline calling Sent from inside it.
type Composer struct {
	mu        sync.Mutex
	emit      func(typing bool)
	composing bool
	closed    bool
	idle      time.Duration
	hard      time.Duration
	idleTimer *time.Timer
	hardTimer *time.Timer
}

func NewComposer(emit func(typing bool)) *Composer {
	return &Composer{
		emit: emit,
		idle: idleTimeout,
		hard: hardTimeout,
	}
}

// Input reports the current composer text after a keystroke.
func (c *Composer) Input(text string) {
	c.mu.Lock()

	if c.closed {
		c.mu.Unlock()
		return
	}

	empty := strings.TrimSpace(text) == ""
	if !c.composing {
		if empty {
			c.mu.Unlock()
			return
		}
		c.composing = true
		c.hardTimer = time.AfterFunc(c.hard, c.hardExpire)
		c.mu.Unlock()
		c.emit(true)
		return
	}

	if empty {
		stop := c.endCompositionLocked()
		c.mu.Unlock()
		if stop {
			c.emit(false)
		}
		return
	}

	if c.idleTimer != nil {
		c.idleTimer.Stop()
	}
	c.idleTimer = time.AfterFunc(c.idle, c.idleExpire)
	c.mu.Unlock()
}

// Blur ends the composition when the input loses focus.
func (c *Composer) Blur() {
	c.mu.Lock()
	stop := c.endCompositionLocked()
	c.mu.Unlock()

	if stop {
		c.emit(false)
	}
}

// Sent ends the composition after a successful send.
func (c *Composer) Sent() {
	c.mu.Lock()
	stop := c.endCompositionLocked()
	c.mu.Unlock()

	if stop {
		c.emit(false)
	}
}

// Close cancels both timers without emitting. Used on navigation away or
// teardown, when the peer set that would receive the stop no longer
// includes this client.
func (c *Composer) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	c.composing = false
	c.cancelTimersLocked()
}

func (c *Composer) idleExpire() {
	c.mu.Lock()
	stop := c.endCompositionLocked()
	c.mu.Unlock()

	if stop {
		c.emit(false)
	}
}

func (c *Composer) hardExpire() {
	c.mu.Lock()
	stop := c.endCompositionLocked()
	c.mu.Unlock()

	if stop {
		c.emit(false)
	}
}

// endCompositionLocked must be called with c.mu held. It reports whether
// the composition was live, in which case the caller emits the stop
// signal after releasing the lock.
func (c *Composer) endCompositionLocked() bool {
	if c.closed || !c.composing {
		return false
	}
	c.composing = false
	c.cancelTimersLocked()
	return true
}

// cancelTimersLocked must be called with c.mu held.
func (c *Composer) cancelTimersLocked() {
	if c.idleTimer != nil {
		c.idleTimer.Stop()
		c.idleTimer = nil
	}
	if c.hardTimer != nil {
		c.hardTimer.Stop()
		c.hardTimer = nil
	}
}

// Roster aggregates the typing users observed per room, keyed by user id.
// It backs the "N people typing" display and is never persisted.
type Roster struct {
	mu    sync.Mutex
	rooms map[string]map[string]struct{}
}

func NewRoster() *Roster {
	return &Roster{rooms: make(map[string]map[string]struct{})}
}

// Apply folds a typing-relay event into the roster.
func (r *Roster) Apply(roomId, userId string, typing bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	users, ok := r.rooms[roomId]
	if typing {
		if !ok {
			users = make(map[string]struct{})
			r.rooms[roomId] = users
		}
		users[userId] = struct{}{}
		return
	}

	if !ok {
		return
	}
	delete(users, userId)
	if len(users) == 0 {
		delete(r.rooms, roomId)
	}
}

// Typing returns the user ids currently typing in the room, sorted for
// stable display.
func (r *Roster) Typing(roomId string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	users := r.rooms[roomId]
	out := make([]string, 0, len(users))
	for userId := range users {
		out = append(out, userId)
	}
	sort.Strings(out)
	return out
}
