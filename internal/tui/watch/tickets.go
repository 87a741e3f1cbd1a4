package watch

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/charmbracelet/bubbles/table"

	"github.com/mattjoyce/hostbridge/internal/consent"
	"github.com/mattjoyce/hostbridge/internal/events"
	"github.com/mattjoyce/hostbridge/internal/notify"
)

// Ticket statuses shown in the table.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusDenied   = "denied"
	StatusExpired  = "expired"
	StatusCanceled = "canceled"
	StatusDeleted  = "deleted"
	StatusFailed   = "failed"
)

const maxTickets = 20

// TicketState is one consent ticket as seen on the event stream.
type TicketState struct {
	Token       string
	Path        string
	DisplayName string
	Owner       string
	Status      string
	ErrorKind   string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// Board accumulates tickets and the current notification from events.
type Board struct {
	tickets      map[string]*TicketState
	notification *notify.Notification
	lastAction   string
}

func NewBoard() *Board {
	return &Board{tickets: make(map[string]*TicketState)}
}

// Apply folds one event into the board. Unknown or malformed events are
// ignored.
func (b *Board) Apply(e events.Event) {
	switch e.Type {
	case events.TypeConsentRequested:
		var p consent.RequestedPayload
		if json.Unmarshal(e.Data, &p) != nil || p.Token == "" {
			return
		}
		b.tickets[p.Token] = &TicketState{
			Token:       p.Token,
			Path:        p.Path,
			DisplayName: p.DisplayName,
			Owner:       p.Owner,
			Status:      StatusPending,
			IssuedAt:    p.IssuedAt,
			ExpiresAt:   p.ExpiresAt,
		}
		b.trim()

	case events.TypeConsentResolved:
		var p consent.ResolvedPayload
		if json.Unmarshal(e.Data, &p) != nil {
			return
		}
		if t, ok := b.tickets[p.Token]; ok {
			t.Status = outcomeStatus(p.Outcome)
		}

	case events.TypeDeletionCompleted:
		var p consent.CompletedPayload
		if json.Unmarshal(e.Data, &p) != nil {
			return
		}
		t, ok := b.tickets[p.Token]
		if !ok {
			return
		}
		t.ErrorKind = p.ErrorKind
		if t.Status == StatusApproved || t.Status == StatusPending {
			if p.Deleted {
				t.Status = StatusDeleted
			} else {
				t.Status = StatusFailed
			}
		}

	case events.TypeNotificationShown:
		var n notify.Notification
		if json.Unmarshal(e.Data, &n) != nil {
			return
		}
		b.notification = &n

	case events.TypeNotificationCleared:
		b.notification = nil

	case events.TypePlayerAction:
		var p map[string]string
		if json.Unmarshal(e.Data, &p) == nil {
			b.lastAction = p["action"]
		}
	}
}

func outcomeStatus(outcome string) string {
	switch outcome {
	case "approved":
		return StatusApproved
	case "denied":
		return StatusDenied
	case "timeout":
		return StatusExpired
	default:
		return StatusCanceled
	}
}

// trim drops the oldest settled tickets once the board is full.
func (b *Board) trim() {
	if len(b.tickets) <= maxTickets {
		return
	}
	list := b.Tickets()
	for i := len(list) - 1; i >= 0 && len(b.tickets) > maxTickets; i-- {
		if list[i].Status != StatusPending {
			delete(b.tickets, list[i].Token)
		}
	}
}

// Tickets returns tickets newest first.
func (b *Board) Tickets() []*TicketState {
	out := make([]*TicketState, 0, len(b.tickets))
	for _, t := range b.tickets {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IssuedAt.Equal(out[j].IssuedAt) {
			return out[i].Token > out[j].Token
		}
		return out[i].IssuedAt.After(out[j].IssuedAt)
	})
	return out
}

// Get returns the ticket for token.
func (b *Board) Get(token string) (*TicketState, bool) {
	t, ok := b.tickets[token]
	return t, ok
}

func (b *Board) Notification() *notify.Notification { return b.notification }

func (b *Board) LastAction() string { return b.lastAction }

// Rows renders tickets as table rows, newest first. The countdown column
// shows time left for pending tickets.
func (b *Board) Rows(now time.Time) []table.Row {
	var rows []table.Row
	for _, t := range b.Tickets() {
		left := ""
		if t.Status == StatusPending && !t.ExpiresAt.IsZero() {
			d := t.ExpiresAt.Sub(now).Round(time.Second)
			if d < 0 {
				d = 0
			}
			left = formatDuration(d)
		}
		name := t.DisplayName
		if name == "" {
			name = t.Path
		}
		rows = append(rows, table.Row{t.Status, name, t.Owner, left, t.Token})
	}
	return rows
}
