package watch

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/hostbridge/internal/api"
	"github.com/mattjoyce/hostbridge/internal/events"
	"github.com/mattjoyce/hostbridge/internal/notify"
)

func renderEventStream(eventLog []events.Event, theme Theme, width int) string {
	innerWidth := width - 4

	if len(eventLog) == 0 {
		return theme.Border.Width(innerWidth).Render(lipgloss.JoinVertical(lipgloss.Left,
			theme.Title.Render("EVENT STREAM"),
			theme.Dim.Render("  Waiting for events..."),
		))
	}

	var lines []string
	for i, e := range eventLog {
		if i >= 8 {
			break
		}
		lines = append(lines, formatEvent(e, theme))
	}

	return theme.Border.Width(innerWidth).Render(lipgloss.JoinVertical(lipgloss.Left,
		theme.Title.Render("EVENT STREAM"),
		lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n")),
	))
}

func formatEvent(e events.Event, theme Theme) string {
	ts := theme.Dim.Render(e.At.Format("15:04:05"))

	var style lipgloss.Style
	switch {
	case e.Type == events.TypeConsentRequested:
		style = theme.Pending
	case e.Type == events.TypeDeletionCompleted:
		style = theme.Approved
	case strings.HasPrefix(e.Type, "notification"), e.Type == events.TypePlayerAction:
		style = theme.Highlight
	default:
		style = theme.Dim
	}

	return fmt.Sprintf("%s %s %s", ts, style.Render(fmt.Sprintf("%-22s", e.Type)), describeEvent(e))
}

// accessRequest returns the prompt carried by a storage access request.
func accessRequest(e events.Event) (string, bool) {
	if e.Type != events.TypeAccessRequested {
		return "", false
	}
	var p api.AccessRequestedPayload
	if err := json.Unmarshal(e.Data, &p); err != nil || p.Message == "" {
		return "", false
	}
	return p.Message, true
}

func describeEvent(e events.Event) string {
	data := make(map[string]any)
	_ = json.Unmarshal(e.Data, &data)

	var parts []string
	for _, key := range []string{"path", "outcome", "error_kind", "title", "action", "root"} {
		if v, ok := data[key].(string); ok && v != "" {
			parts = append(parts, v)
		}
	}
	if d, ok := data["deleted"].(bool); ok && d {
		parts = append(parts, "deleted")
	}

	if len(parts) == 0 {
		raw := string(e.Data)
		if len(raw) > 60 {
			raw = raw[:60] + "..."
		}
		return raw
	}
	return strings.Join(parts, " ")
}

func renderNotification(n *notify.Notification, lastAction string, theme Theme, width int) string {
	innerWidth := width - 4
	body := theme.Dim.Render("  No media notification")
	if n != nil {
		state := "⏸"
		if n.Playing {
			state = "▶"
		}
		body = fmt.Sprintf("  %s %s - %s", state, theme.Highlight.Render(n.Title), n.Artist)
	}
	if lastAction != "" {
		body += theme.Dim.Render("  last: " + lastAction)
	}
	return theme.Border.Width(innerWidth).Render(lipgloss.JoinVertical(lipgloss.Left,
		theme.Title.Render("NOW PLAYING"),
		body,
	))
}
