// Package notify drives the persistent playback notification shown while
// music is playing.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// Action is a transport control sent from the notification or the app.
type Action string

const (
	ActionPlay     Action = "PLAY"
	ActionPause    Action = "PAUSE"
	ActionNext     Action = "NEXT"
	ActionPrevious Action = "PREVIOUS"
	ActionStop     Action = "STOP"
)

const (
	DefaultChannelID = "MusicPlayerChannel"
	DefaultID        = 1

	unknownTitle  = "Unknown Song"
	unknownArtist = "Unknown Artist"
)

var ErrUnknownAction = errors.New("unknown player action")

// ParseAction accepts an action name in any case. Empty means no action.
func ParseAction(s string) (Action, error) {
	a := Action(strings.ToUpper(strings.TrimSpace(s)))
	switch a {
	case "", ActionPlay, ActionPause, ActionNext, ActionPrevious, ActionStop:
		return a, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
}

// Command updates the notification. Title and Artist fall back to
// placeholders when empty.
type Command struct {
	Action  Action `json:"action,omitempty"`
	Title   string `json:"title,omitempty"`
	Artist  string `json:"artist,omitempty"`
	Playing bool   `json:"playing"`
}

// Notification is the ongoing notification as rendered.
type Notification struct {
	ChannelID string   `json:"channel_id"`
	ID        int      `json:"id"`
	Title     string   `json:"title"`
	Artist    string   `json:"artist"`
	Playing   bool     `json:"playing"`
	Toggle    Action   `json:"toggle"`
	Controls  []Action `json:"controls"`
	Ongoing   bool     `json:"ongoing"`
}

// Display renders notifications for the host.
type Display interface {
	Show(ctx context.Context, n Notification) error
	Clear(ctx context.Context, channelID string, id int) error
	Action(ctx context.Context, a Action) error
}

// Service keeps the single playback notification in sync with commands.
type Service struct {
	display   Display
	channelID string
	id        int
	logger    *slog.Logger

	mu      sync.Mutex
	current *Notification
}

func NewService(display Display, channelID string, id int, logger *slog.Logger) *Service {
	if channelID == "" {
		channelID = DefaultChannelID
	}
	if id == 0 {
		id = DefaultID
	}
	return &Service{
		display:   display,
		channelID: channelID,
		id:        id,
		logger:    logger.With("component", "notify"),
	}
}

// Handle applies cmd. STOP clears the notification and returns false;
// every other command shows it and returns true.
func (s *Service) Handle(ctx context.Context, cmd Command) (Notification, bool, error) {
	action, err := ParseAction(string(cmd.Action))
	if err != nil {
		return Notification{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if action != "" {
		if err := s.display.Action(ctx, action); err != nil {
			s.logger.Warn("player action not delivered", "action", action, "error", err)
		}
	}

	if action == ActionStop {
		s.current = nil
		if err := s.display.Clear(ctx, s.channelID, s.id); err != nil {
			return Notification{}, false, fmt.Errorf("clear notification: %w", err)
		}
		s.logger.Debug("notification cleared")
		return Notification{}, false, nil
	}

	playing := cmd.Playing
	switch action {
	case ActionPlay:
		playing = true
	case ActionPause:
		playing = false
	}

	n := Notification{
		ChannelID: s.channelID,
		ID:        s.id,
		Title:     orDefault(cmd.Title, unknownTitle),
		Artist:    orDefault(cmd.Artist, unknownArtist),
		Playing:   playing,
		Toggle:    ActionPlay,
		Controls:  []Action{ActionPrevious, ActionPlay, ActionNext},
		Ongoing:   true,
	}
	if playing {
		n.Toggle = ActionPause
		n.Controls[1] = ActionPause
	}

	if err := s.display.Show(ctx, n); err != nil {
		return Notification{}, false, fmt.Errorf("show notification: %w", err)
	}
	s.current = &n
	s.logger.Debug("notification shown", "title", n.Title, "playing", n.Playing)
	return n, true, nil
}

// Current returns the notification on screen, if any.
func (s *Service) Current() (Notification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return Notification{}, false
	}
	return *s.current, true
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
