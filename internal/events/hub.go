// Package events fans component events out to live subscribers and keeps a
// short backlog so a reconnecting client can resume from its last id.
package events

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Event types published by hostbridge components.
const (
	TypeConsentRequested    = "consent.requested"
	TypeConsentResolved     = "consent.resolved"
	TypeDeletionCompleted   = "deletion.completed"
	TypeNotificationShown   = "notification.shown"
	TypeNotificationCleared = "notification.cleared"
	TypePlayerAction        = "player.action"
	TypePrinterStatus       = "printer.status"
	TypeIndexScanned        = "index.scanned"
	TypeAccessRequested     = "storage.access_requested"
)

type Event struct {
	ID   int64     `json:"id"`
	Type string    `json:"type"`
	At   time.Time `json:"at"`
	Data []byte    `json:"data"` // JSON payload
}

// Role is what a subscriber can do with the events it receives.
type Role uint8

const (
	// RoleObserver only reads the stream.
	RoleObserver Role = iota
	// RoleConsent can also answer consent prompts, so it counts as a
	// foreground surface.
	RoleConsent
)

func (r Role) String() string {
	if r == RoleConsent {
		return "consent"
	}
	return "observer"
}

const subscriberBuffer = 128

type subscriber struct {
	ch   chan Event
	role Role
}

// Hub is an in-memory pub/sub. Slow subscribers drop events rather than
// stall publishers; the backlog lets them catch up on reconnect.
type Hub struct {
	seq atomic.Int64

	mu   sync.Mutex
	log  backlog
	subs map[*subscriber]struct{}
}

func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = 100
	}
	return &Hub{
		log:  backlog{buf: make([]Event, capacity)},
		subs: make(map[*subscriber]struct{}),
	}
}

// Publish stamps data as the next event and delivers it. A nil or
// unencodable payload is sent as an empty object.
func (h *Hub) Publish(eventType string, data any) {
	ev := Event{
		ID:   h.seq.Add(1),
		Type: eventType,
		At:   time.Now().UTC(),
		Data: encode(data),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.log.add(ev)
	for s := range h.subs {
		select {
		case s.ch <- ev:
		default:
		}
	}
}

// Subscribe registers a subscriber with the given role. The returned func
// unregisters it and closes the channel; calling it again is a no-op.
func (h *Hub) Subscribe(role Role) (<-chan Event, func()) {
	s := &subscriber{ch: make(chan Event, subscriberBuffer), role: role}

	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, s)
			h.mu.Unlock()
			close(s.ch)
		})
	}
}

// Subscribers reports the number of live subscriptions of any role.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Count reports the number of live subscriptions holding role.
func (h *Hub) Count(role Role) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for s := range h.subs {
		if s.role == role {
			n++
		}
	}
	return n
}

// SnapshotSince returns backlog events newer than lastID, oldest first.
// Zero returns the whole backlog.
func (h *Hub) SnapshotSince(lastID int64) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.log.since(lastID)
}

func encode(data any) []byte {
	if data == nil {
		return []byte("{}")
	}
	b, err := json.Marshal(data)
	if err != nil {
		return []byte("{}")
	}
	return b
}

// backlog is a fixed-size ring of the most recent events.
type backlog struct {
	buf  []Event
	next int
	full bool
}

func (b *backlog) add(ev Event) {
	b.buf[b.next] = ev
	b.next = (b.next + 1) % len(b.buf)
	if b.next == 0 {
		b.full = true
	}
}

func (b *backlog) since(lastID int64) []Event {
	n, start := b.next, 0
	if b.full {
		n, start = len(b.buf), b.next
	}
	out := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		if ev := b.buf[(start+i)%len(b.buf)]; ev.ID > lastID {
			out = append(out, ev)
		}
	}
	return out
}
