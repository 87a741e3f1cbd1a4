package watch

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/hostbridge/internal/events"
)

const eventLogSize = 50

// Model is the BubbleTea model for the consent watch TUI. While it is
// connected to /events the daemon counts it as a foreground surface.
type Model struct {
	client *Client

	width  int
	height int

	health   HealthState
	board    *Board
	eventLog []events.Event
	lastID   int64

	ticker   Ticker
	activity Activity
	now      func() time.Time

	theme   Theme
	tickets table.Model

	hubEvents chan events.Event

	lastError string
	flash     string
}

// New creates a watch model talking to the API behind client.
func New(client *Client) *Model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Status", Width: 9},
			{Title: "Media", Width: 32},
			{Title: "Owner", Width: 18},
			{Title: "Left", Width: 8},
			{Title: "Token", Width: 16},
		}),
		table.WithFocused(true),
		table.WithHeight(8),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	return &Model{
		client:    client,
		board:     NewBoard(),
		hubEvents: make(chan events.Event, 100),
		ticker:    NewTicker(),
		now:       time.Now,
		theme:     NewDefaultTheme(),
		tickets:   t,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		subscribeToEvents(m.client, 0, m.hubEvents),
		receiveNextEvent(m.hubEvents),
		func() tea.Msg { return fetchHealth(m.client) },
		tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) }),
		tea.EnterAltScreen,
	)
}

// selectedPending returns the token of the highlighted ticket when it is
// still awaiting a verdict.
func (m Model) selectedPending() (string, bool) {
	row := m.tickets.SelectedRow()
	if len(row) < 5 {
		return "", false
	}
	t, ok := m.board.Get(row[4])
	if !ok || t.Status != StatusPending {
		return "", false
	}
	return t.Token, true
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "y", "n":
			token, ok := m.selectedPending()
			if !ok {
				m.flash = "selected ticket is not pending"
				return m, nil
			}
			return m, answer(m.client, token, msg.String() == "y")
		case "r":
			return m, func() tea.Msg { return fetchHealth(m.client) }
		}
		var cmd tea.Cmd
		m.tickets, cmd = m.tickets.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.ticker.Tick()
		m.activity.Decay(m.now())
		m.tickets.SetRows(m.board.Rows(m.now()))
		return m, tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })

	case eventMsg:
		e := events.Event(msg)
		if e.ID > m.lastID {
			m.lastID = e.ID
		}
		m.eventLog = append([]events.Event{e}, m.eventLog...)
		if len(m.eventLog) > eventLogSize {
			m.eventLog = m.eventLog[:eventLogSize]
		}
		m.activity.OnEvent(m.now())
		m.board.Apply(e)
		m.tickets.SetRows(m.board.Rows(m.now()))
		if prompt, ok := accessRequest(e); ok {
			m.flash = prompt
		}
		m.health.Connected = true
		m.lastError = ""
		return m, receiveNextEvent(m.hubEvents)

	case answeredMsg:
		if msg.err != nil {
			m.lastError = msg.err.Error()
			return m, nil
		}
		verdict := "denied"
		if msg.approved {
			verdict = "approved"
		}
		m.flash = fmt.Sprintf("%s %s", verdict, msg.token)
		return m, nil

	case healthMsg:
		m.health.Status = msg.Status
		m.health.UptimeSeconds = msg.UptimeSeconds
		m.health.Tier = msg.Tier
		m.health.ConsentPending = msg.ConsentPending
		m.health.IndexEntries = msg.IndexEntries
		m.health.Subscribers = msg.Subscribers
		m.health.Surfaces = msg.ConsentSurfaces
		m.health.Connected = true
		m.health.LastCheck = m.now()
		m.lastError = ""
		return m, tea.Tick(5*time.Second, func(time.Time) tea.Msg {
			return fetchHealth(m.client)
		})

	case sseDisconnectedMsg:
		m.health.Connected = false
		m.lastError = "event stream disconnected, reconnecting..."
		// The pending receiveNextEvent keeps reading the channel the new
		// subscription writes to.
		return m, tea.Tick(3*time.Second, func(time.Time) tea.Msg { return reconnectMsg{} })

	case reconnectMsg:
		return m, subscribeToEvents(m.client, m.lastID, m.hubEvents)

	case errMsg:
		m.lastError = msg.Error()
		return m, tea.Tick(5*time.Second, func(time.Time) tea.Msg {
			return fetchHealth(m.client)
		})
	}

	return m, nil
}

func (m Model) View() string {
	if m.width == 0 {
		return "Connecting to hostbridge..."
	}

	innerWidth := m.width - 4
	header := renderHeader(m.health, m.ticker, m.activity, m.theme, m.width, m.now())
	tickets := m.theme.Border.Width(innerWidth).Render(lipgloss.JoinVertical(lipgloss.Left,
		m.theme.Title.Render("CONSENT TICKETS"),
		m.tickets.View(),
	))
	nowPlaying := renderNotification(m.board.Notification(), m.board.LastAction(), m.theme, m.width)
	stream := renderEventStream(m.eventLog, m.theme, m.width)

	parts := []string{header, tickets, nowPlaying, stream}
	if m.lastError != "" {
		parts = append(parts, m.theme.Denied.Render(" ⚠ "+m.lastError))
	} else if m.flash != "" {
		parts = append(parts, m.theme.Highlight.Render(" "+m.flash))
	}
	parts = append(parts, m.theme.Dim.Render(" [y] Approve • [n] Deny • [↑/↓] Select • [r] Refresh • [q] Quit"))

	return lipgloss.NewStyle().Margin(1, 2).Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}
