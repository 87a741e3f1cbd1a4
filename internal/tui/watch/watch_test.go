package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/hostbridge/internal/api"
	"github.com/mattjoyce/hostbridge/internal/consent"
	"github.com/mattjoyce/hostbridge/internal/events"
	"github.com/mattjoyce/hostbridge/internal/notify"
)

func event(t *testing.T, id int64, typ string, payload any) events.Event {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return events.Event{ID: id, Type: typ, At: time.Now(), Data: data}
}

func TestBoardTracksTicketLifecycle(t *testing.T) {
	issued := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	b := NewBoard()

	b.Apply(event(t, 1, events.TypeConsentRequested, consent.RequestedPayload{
		Token: "tok", Path: "/music/a.mp3", DisplayName: "a.mp3", Owner: "com.other",
		IssuedAt: issued, ExpiresAt: issued.Add(2 * time.Minute),
	}))
	got, ok := b.Get("tok")
	require.True(t, ok)
	assert.Equal(t, StatusPending, got.Status)

	rows := b.Rows(issued.Add(30 * time.Second))
	require.Len(t, rows, 1)
	assert.Equal(t, "a.mp3", rows[0][1])
	assert.Equal(t, "1m 30s", rows[0][3])

	b.Apply(event(t, 2, events.TypeConsentResolved, consent.ResolvedPayload{Token: "tok", Outcome: "approved"}))
	assert.Equal(t, StatusApproved, got.Status)

	b.Apply(event(t, 3, events.TypeDeletionCompleted, consent.CompletedPayload{Token: "tok", Deleted: true}))
	assert.Equal(t, StatusDeleted, got.Status)
	assert.Equal(t, "", b.Rows(issued)[0][3])
}

func TestBoardKeepsDenialFinal(t *testing.T) {
	b := NewBoard()
	b.Apply(event(t, 1, events.TypeConsentRequested, consent.RequestedPayload{Token: "tok"}))
	b.Apply(event(t, 2, events.TypeConsentResolved, consent.ResolvedPayload{Token: "tok", Outcome: "denied"}))
	b.Apply(event(t, 3, events.TypeDeletionCompleted, consent.CompletedPayload{Token: "tok", ErrorKind: "user_denied"}))

	got, _ := b.Get("tok")
	assert.Equal(t, StatusDenied, got.Status)
	assert.Equal(t, "user_denied", got.ErrorKind)
}

func TestBoardOutcomes(t *testing.T) {
	assert.Equal(t, StatusExpired, outcomeStatus("timeout"))
	assert.Equal(t, StatusCanceled, outcomeStatus("canceled"))
	assert.Equal(t, StatusCanceled, outcomeStatus("no_host_context"))
}

func TestBoardTrimsSettledTickets(t *testing.T) {
	b := NewBoard()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < maxTickets+5; i++ {
		tok := fmt.Sprintf("t%02d", i)
		b.Apply(event(t, int64(i), events.TypeConsentRequested, consent.RequestedPayload{
			Token: tok, IssuedAt: base.Add(time.Duration(i) * time.Second),
		}))
		if i > 0 {
			b.Apply(event(t, int64(i), events.TypeConsentResolved, consent.ResolvedPayload{Token: tok, Outcome: "denied"}))
		}
	}
	assert.LessOrEqual(t, len(b.Tickets()), maxTickets+1)
	_, ok := b.Get("t00")
	assert.True(t, ok, "pending tickets are never trimmed")
}

func TestBoardNotification(t *testing.T) {
	b := NewBoard()
	b.Apply(event(t, 1, events.TypeNotificationShown, notify.Notification{Title: "Song", Artist: "Band", Playing: true}))
	require.NotNil(t, b.Notification())
	assert.Equal(t, "Song", b.Notification().Title)

	b.Apply(event(t, 2, events.TypePlayerAction, map[string]string{"action": "NEXT"}))
	assert.Equal(t, "NEXT", b.LastAction())

	b.Apply(event(t, 3, events.TypeNotificationCleared, map[string]any{"id": 1}))
	assert.Nil(t, b.Notification())
}

func TestBoardIgnoresMalformed(t *testing.T) {
	b := NewBoard()
	b.Apply(events.Event{Type: events.TypeConsentRequested, Data: []byte("{")})
	b.Apply(events.Event{Type: "other", Data: []byte(`{}`)})
	assert.Empty(t, b.Tickets())
}

func TestClientAnswerSignsBody(t *testing.T) {
	var gotSig, gotAuth, gotPath string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotSig = r.Header.Get("X-Hostbridge-Signature")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := &Client{BaseURL: srv.URL + "/", APIKey: "key", ConsentSecret: "s3cret"}
	require.NoError(t, c.Answer(context.Background(), "tok", true))

	assert.Equal(t, "/consent/tok", gotPath)
	assert.Equal(t, "Bearer key", gotAuth)
	assert.JSONEq(t, `{"approved":true}`, string(gotBody))
	assert.NoError(t, consent.VerifySignature(gotBody, gotSig, "s3cret"))
}

func TestClientAnswerReportsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"no outstanding consent request for token"}`))
	}))
	defer srv.Close()

	err := (&Client{BaseURL: srv.URL}).Answer(context.Background(), "gone", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no outstanding consent request")
}

func TestClientStreamParsesEvents(t *testing.T) {
	var lastEventID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lastEventID = r.Header.Get("Last-Event-ID")
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = fmt.Fprint(w, ": connected\n\n")
		_, _ = fmt.Fprint(w, "id: 7\nevent: consent.requested\ndata: {\"token\":\"a\"}\n\n")
		_, _ = fmt.Fprint(w, "id: 8\nevent: deletion.completed\ndata: {\"token\":\"a\"}\n\n")
	}))
	defer srv.Close()

	ch := make(chan events.Event, 4)
	c := &Client{BaseURL: srv.URL}
	require.NoError(t, c.Stream(context.Background(), 6, ch))
	close(ch)

	var got []events.Event
	for e := range ch {
		got = append(got, e)
	}
	require.Len(t, got, 2)
	assert.Equal(t, "6", lastEventID)
	assert.Equal(t, int64(7), got[0].ID)
	assert.Equal(t, events.TypeConsentRequested, got[0].Type)
	assert.Equal(t, events.TypeDeletionCompleted, got[1].Type)
}

func TestClientHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok","tier":"consent","consent_pending":true,"subscribers":2,"consent_surfaces":1}`))
	}))
	defer srv.Close()

	h, err := (&Client{BaseURL: srv.URL}).Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "consent", h.Tier)
	assert.True(t, h.ConsentPending)
	assert.Equal(t, 2, h.Subscribers)
	assert.Equal(t, 1, h.ConsentSurfaces)
}

func TestModelRejectsVerdictWithoutPendingSelection(t *testing.T) {
	m := New(&Client{BaseURL: "http://unused"})
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("y")})
	assert.Nil(t, cmd)
	assert.Equal(t, "selected ticket is not pending", next.(Model).flash)
}

func TestModelAnswersSelectedPendingTicket(t *testing.T) {
	m := New(&Client{BaseURL: "http://unused"})
	var model tea.Model = *m
	model, _ = model.Update(eventMsg(event(t, 4, events.TypeConsentRequested, consent.RequestedPayload{
		Token: "tok", DisplayName: "a.mp3", ExpiresAt: time.Now().Add(time.Minute),
	})))
	assert.Equal(t, int64(4), model.(Model).lastID)

	_, cmd := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("n")})
	assert.NotNil(t, cmd)
}

func TestModelHealthUpdatesHeader(t *testing.T) {
	m := New(&Client{BaseURL: "http://unused"})
	var model tea.Model = *m
	model, _ = model.Update(healthMsg{Status: "ok", Tier: "recoverable", IndexEntries: 3})
	model, _ = model.Update(tea.WindowSizeMsg{Width: 120, Height: 40})

	got := model.(Model)
	assert.True(t, got.health.Connected)
	assert.Equal(t, "recoverable", got.health.Tier)
	assert.Contains(t, got.View(), "Tier: recoverable")
}

func TestActivityDecays(t *testing.T) {
	var a Activity
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a.OnEvent(at)
	assert.Equal(t, 5, a.Dots())
	a.Decay(at.Add(5 * time.Second))
	assert.Equal(t, 3, a.Dots())
	a.Decay(at.Add(time.Minute))
	assert.Equal(t, 0, a.Dots())
}

func TestModelFlashesAccessRequest(t *testing.T) {
	m := New(&Client{BaseURL: "http://unused"})
	var model tea.Model = *m
	model, _ = model.Update(eventMsg(event(t, 9, events.TypeAccessRequested, api.AccessRequestedPayload{
		APILevel: 30, Message: "Please grant 'All files access'",
	})))
	assert.Equal(t, "Please grant 'All files access'", model.(Model).flash)
	assert.Equal(t, int64(9), model.(Model).lastID)
}
