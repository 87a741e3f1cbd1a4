// Package consent is the host consent surface: tickets are shown to
// whatever consent UIs are subscribed to the event hub, and their verdicts
// come back over the API.
package consent

import (
	"context"
	"log/slog"
	"time"

	"github.com/mattjoyce/hostbridge/internal/deletion"
	"github.com/mattjoyce/hostbridge/internal/events"
)

// Hub is the slice of events.Hub the surface needs.
type Hub interface {
	Publish(eventType string, data any)
	Count(role events.Role) int
}

// RequestedPayload is published with consent.requested.
type RequestedPayload struct {
	Token       string    `json:"token"`
	Path        string    `json:"path"`
	IndexID     int64     `json:"index_id"`
	DisplayName string    `json:"display_name"`
	Owner       string    `json:"owner"`
	IssuedAt    time.Time `json:"issued_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// ResolvedPayload is published with consent.resolved.
type ResolvedPayload struct {
	Token   string `json:"token"`
	Path    string `json:"path"`
	Outcome string `json:"outcome"`
}

// CompletedPayload is published with deletion.completed.
type CompletedPayload struct {
	Token     string          `json:"token"`
	Path      string          `json:"path"`
	Tier      string          `json:"tier"`
	Deleted   bool            `json:"deleted"`
	Partial   bool            `json:"partial"`
	ErrorKind string          `json:"error_kind,omitempty"`
	Report    deletion.Report `json:"report"`
}

// HubSurface implements deletion.Host over the event hub. A foreground
// surface exists while at least one consent subscriber is connected;
// read-only streams do not count.
type HubSurface struct {
	hub    Hub
	logger *slog.Logger
}

func NewHubSurface(hub Hub, logger *slog.Logger) *HubSurface {
	return &HubSurface{hub: hub, logger: logger}
}

func (s *HubSurface) HasForeground() bool {
	return s.hub.Count(events.RoleConsent) > 0
}

func (s *HubSurface) Present(ctx context.Context, t deletion.Ticket) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.hub.Publish(events.TypeConsentRequested, RequestedPayload{
		Token:       t.Token,
		Path:        t.Path,
		IndexID:     t.Entry.ID,
		DisplayName: t.Entry.DisplayName,
		Owner:       t.Entry.Owner,
		IssuedAt:    t.IssuedAt,
		ExpiresAt:   t.ExpiresAt,
	})
	s.logger.Debug("consent ticket presented", "request_token", t.Token, "surfaces", s.hub.Count(events.RoleConsent))
	return nil
}

// Observe publishes the outcome of every resolved deletion. Register it
// with Coordinator.OnResolved.
func (s *HubSurface) Observe(r deletion.Result) {
	if r.Report.Consent != deletion.ConsentNone {
		s.hub.Publish(events.TypeConsentResolved, ResolvedPayload{
			Token:   r.Token,
			Path:    r.Path,
			Outcome: string(r.Report.Consent),
		})
	}
	s.hub.Publish(events.TypeDeletionCompleted, CompletedPayload{
		Token:     r.Token,
		Path:      r.Path,
		Tier:      r.Tier.String(),
		Deleted:   r.Deleted,
		Partial:   r.Partial,
		ErrorKind: string(deletion.KindOf(r.Error())),
		Report:    r.Report,
	})
}
