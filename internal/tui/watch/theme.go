// Package watch is the terminal consent surface: it follows the event
// stream, lists consent tickets, and answers them over the API.
package watch

import "github.com/charmbracelet/lipgloss"

// Theme holds every style the watch TUI renders with.
type Theme struct {
	Approved lipgloss.Style
	Pending  lipgloss.Style
	Denied   lipgloss.Style
	Expired  lipgloss.Style

	Border    lipgloss.Style
	Title     lipgloss.Style
	Dim       lipgloss.Style
	Highlight lipgloss.Style

	TickerActive   lipgloss.Style
	TickerInactive lipgloss.Style
}

func NewDefaultTheme() Theme {
	purple := lipgloss.Color("#874BFD")

	return Theme{
		Approved: lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00")),
		Pending:  lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFF00")),
		Denied:   lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")),
		Expired:  lipgloss.NewStyle().Foreground(lipgloss.Color("#666666")),

		Border: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(purple),
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Padding(0, 1),
		Dim:       lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),
		Highlight: lipgloss.NewStyle().Foreground(lipgloss.Color("#E5C07B")),

		TickerActive:   lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00")),
		TickerInactive: lipgloss.NewStyle().Foreground(lipgloss.Color("#444444")),
	}
}

// StatusStyle picks the style for a ticket status.
func (t Theme) StatusStyle(status string) lipgloss.Style {
	switch status {
	case StatusPending:
		return t.Pending
	case StatusApproved, StatusDeleted:
		return t.Approved
	case StatusDenied, StatusFailed:
		return t.Denied
	default:
		return t.Expired
	}
}
