package client

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/syncline-chat/syncline/internal/types"
)

const (
	provisionalPrefix = "temp-"
	// confirmHighlight is how long a just-confirmed message keeps its
	// visual mark after reconciliation.
	confirmHighlight = 700 * time.Millisecond
)

// ProvisionalID generates a client-local identifier for an optimistically
// shown message. Provisional ids are never valid store identifiers and
// stay distinguishable until reconciled.
func ProvisionalID() string {
	return provisionalPrefix + uuid.New().String()
}

func IsProvisionalID(id string) bool {
	return strings.HasPrefix(id, provisionalPrefix)
}

// Timeline holds the ordered message sequence for one active
// conversation, chronological oldest first. It merges locally-originated
// provisional messages with server-confirmed ones without duplication or
// reordering. The reconciliation logic is pure state bookkeeping,
// independent of any rendering technology: interested renderers listen on
// Updates.
type Timeline struct {
	mu        sync.Mutex
	messages  []types.Message
	confirmed map[string]*time.Timer
	highlight time.Duration
	updates   chan struct{}
}

func NewTimeline() *Timeline {
	return &Timeline{
		confirmed: make(map[string]*time.Timer),
		highlight: confirmHighlight,
		updates:   make(chan struct{}, 1),
	}
}

// Updates signals, coalesced, whenever the timeline changes.
func (t *Timeline) Updates() <-chan struct{} {
	return t.updates
}

func (t *Timeline) notify() {
	select {
	case t.updates <- struct{}{}:
	default:
	}
}

// AppendProvisional appends a locally-originated message ahead of server
// confirmation. Provisional entries are never deduplicated.
func (t *Timeline) AppendProvisional(msg types.Message) {
	t.mu.Lock()
	t.messages = append(t.messages, msg)
	t.mu.Unlock()
	t.notify()
}

// ReconcileIncoming merges a server-confirmed message. A duplicate id is
// a no-op: broadcasts may arrive more than once. Otherwise the first
// provisional entry with the same sender and content is replaced in
// place, preserving its position, and marked just-confirmed for a bounded
// highlight window. With no match the message is appended.
func (t *Timeline) ReconcileIncoming(msg types.Message) {
	t.mu.Lock()

	for _, m := range t.messages {
		if m.Id == msg.Id {
			t.mu.Unlock()
			return
		}
	}

	for i, m := range t.messages {
		if IsProvisionalID(m.Id) && m.SenderId == msg.SenderId && m.Content == msg.Content {
			t.messages[i] = msg
			t.markConfirmed(msg.Id)
			t.mu.Unlock()
			t.notify()
			return
		}
	}

	t.messages = append(t.messages, msg)
	t.mu.Unlock()
	t.notify()
}

// MergeBatch folds a catch-up batch into the timeline, skipping ids
// already present.
func (t *Timeline) MergeBatch(msgs []types.Message) {
	t.mu.Lock()
	seen := make(map[string]struct{}, len(t.messages))
	for _, m := range t.messages {
		seen[m.Id] = struct{}{}
	}

	var changed bool
	for _, msg := range msgs {
		if _, ok := seen[msg.Id]; ok {
			continue
		}
		t.messages = append(t.messages, msg)
		changed = true
	}
	t.mu.Unlock()

	if changed {
		t.notify()
	}
}

// RemoveProvisional deletes a provisional entry after a failed send and
// returns its content so the composer can restore it for retry.
func (t *Timeline) RemoveProvisional(tempId string) (string, bool) {
	t.mu.Lock()
	for i, m := range t.messages {
		if m.Id == tempId {
			content := m.Content
			t.messages = append(t.messages[:i], t.messages[i+1:]...)
			t.mu.Unlock()
			t.notify()
			return content, true
		}
	}
	t.mu.Unlock()
	return "", false
}

// JustConfirmed reports whether the message is inside its post-
// reconciliation highlight window.
func (t *Timeline) JustConfirmed(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.confirmed[id]
	return ok
}

// Messages returns a snapshot of the timeline in chronological order.
func (t *Timeline) Messages() []types.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]types.Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Close cancels any pending highlight timers.
func (t *Timeline) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, timer := range t.confirmed {
		timer.Stop()
		delete(t.confirmed, id)
	}
}

// markConfirmed must be called with t.mu held.
func (t *Timeline) markConfirmed(id string) {
	if timer, ok := t.confirmed[id]; ok {
		timer.Stop()
	}
	t.confirmed[id] = time.AfterFunc(t.highlight, func() {
		t.mu.Lock()
		delete(t.confirmed, id)
		t.mu.Unlock()
		t.notify()
	})
}
