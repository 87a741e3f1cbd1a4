package notify

import (
	"context"

	"github.com/mattjoyce/hostbridge/internal/events"
)

// Publisher is the subset of events.Hub used here.
type Publisher interface {
	Publish(eventType string, data any)
}

// HubDisplay renders notifications as events for connected clients.
type HubDisplay struct {
	hub Publisher
}

func NewHubDisplay(hub Publisher) *HubDisplay {
	return &HubDisplay{hub: hub}
}

func (d *HubDisplay) Show(ctx context.Context, n Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.hub.Publish(events.TypeNotificationShown, n)
	return nil
}

func (d *HubDisplay) Clear(ctx context.Context, channelID string, id int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.hub.Publish(events.TypeNotificationCleared, map[string]any{
		"channel_id": channelID,
		"id":         id,
	})
	return nil
}

func (d *HubDisplay) Action(ctx context.Context, a Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.hub.Publish(events.TypePlayerAction, map[string]string{"action": string(a)})
	return nil
}
