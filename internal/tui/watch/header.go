package watch

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// HealthState mirrors the last /healthz answer.
type HealthState struct {
	Status         string
	UptimeSeconds  int64
	Tier           string
	ConsentPending bool
	IndexEntries   int
	Subscribers    int
	Surfaces       int
	Connected      bool
	LastCheck      time.Time
}

func renderHeader(health HealthState, ticker Ticker, activity Activity, theme Theme, width int, now time.Time) string {
	innerWidth := width - 4

	statusText := theme.Approved.Render("HEALTHY")
	if !health.Connected {
		statusText = theme.Denied.Render("CONNECTING")
	} else if health.Status != "ok" && health.Status != "" {
		statusText = theme.Denied.Render("DEGRADED")
	}

	lastEvent := "never"
	if !activity.LastEvent().IsZero() {
		lastEvent = fmt.Sprintf("%s ago", now.Sub(activity.LastEvent()).Round(time.Second))
	}

	title := fmt.Sprintf(" HOSTBRIDGE CONSENT %s", theme.Highlight.Render(ticker.Current()))
	clock := theme.Dim.Render(now.Format("15:04:05"))
	pad := innerWidth - lipgloss.Width(title) - lipgloss.Width(clock) - 4
	if pad < 1 {
		pad = 1
	}
	titleLine := title + strings.Repeat(" ", pad) + clock + " "

	pending := "no"
	if health.ConsentPending {
		pending = theme.Pending.Render("yes")
	}
	tier := health.Tier
	if tier == "" {
		tier = "?"
	}
	statsLine := fmt.Sprintf(" %s  ⏱ %s  Tier: %s  Pending: %s  Indexed: %d  Surfaces: %d",
		statusText,
		formatDuration(time.Duration(health.UptimeSeconds)*time.Second),
		tier, pending, health.IndexEntries, health.Surfaces,
	)
	activityLine := fmt.Sprintf(" Last event: %s %s", lastEvent, activity.Render(theme))

	return theme.Border.Width(innerWidth).Render(
		lipgloss.JoinVertical(lipgloss.Left, titleLine, statsLine, activityLine),
	)
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}
