package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/hostbridge/internal/auth"
	"github.com/mattjoyce/hostbridge/internal/consent"
	"github.com/mattjoyce/hostbridge/internal/deletion"
	"github.com/mattjoyce/hostbridge/internal/events"
	"github.com/mattjoyce/hostbridge/internal/journal"
	"github.com/mattjoyce/hostbridge/internal/log"
	"github.com/mattjoyce/hostbridge/internal/mediaindex"
	"github.com/mattjoyce/hostbridge/internal/notify"
	"github.com/mattjoyce/hostbridge/internal/printer"
	"github.com/mattjoyce/hostbridge/internal/storage"
)

const (
	adminKey      = "admin-key"
	consentSecret = "s3cret"
)

type testEnv struct {
	handler http.Handler
	hub     *events.Hub
	coord   *deletion.Coordinator
	store   *mediaindex.Store
	scanner *mediaindex.Scanner
	dir     string
}

func newTestEnv(t *testing.T, tier string, mutate func(*Config)) *testEnv {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	db, err := storage.OpenSQLite(ctx, filepath.Join(t.TempDir(), "hostbridge.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	logger := log.Discard()
	hub := events.NewHub(64)
	store := mediaindex.NewStore(db, mediaindex.Options{Owner: "hostbridge", EnforceOwnership: tier != "unrestricted"})
	scanner := mediaindex.NewScanner(store, logger)
	surface := consent.NewHubSurface(hub, logger)
	jr := journal.NewStore(db)

	rem := deletion.NewRemover(deletion.OSFS{}, nil, deletion.RemoverOptions{}, logger)
	coord := deletion.New(deletion.Config{TierOverride: tier, ConsentTimeout: 5 * time.Second}, store, surface, rem, logger)
	coord.SetJournal(jr)
	coord.OnResolved(surface.Observe)

	runCtx, cancel := context.WithCancel(ctx)
	require.NoError(t, coord.Start(runCtx))
	t.Cleanup(func() {
		coord.Stop()
		cancel()
	})

	cfg := Config{
		APIKey: adminKey,
		Tokens: []auth.TokenConfig{
			{Token: "reader", Scopes: []string{auth.ScopeIndexRO}},
		},
		MaxSyncWait:   2 * time.Second,
		ConsentSecret: consentSecret,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	paired := []printer.Device{{Name: "Honeywell 6824", Address: "00:11:22:33:44:55"}}
	srv := New(cfg, Deps{
		Deleter:  coord,
		Index:    store,
		Scanner:  scanner,
		Roots:    []mediaindex.Root{{Path: dir, Collection: mediaindex.CollectionAudio, Owner: "com.other"}},
		Journal:  jr,
		Printer:  printer.NewService(&pipeDialer{}, paired, nil, hub, logger),
		Notifier: notify.NewService(notify.NewHubDisplay(hub), "", 0, logger),
		Events:   hub,
	}, logger)

	return &testEnv{handler: srv.Handler(), hub: hub, coord: coord, store: store, scanner: scanner, dir: dir}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		rdr = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rdr)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) file(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(e.dir, name)
	require.NoError(t, os.WriteFile(path, []byte("audio"), 0o644))
	return path
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type pipeDialer struct{}

func (pipeDialer) Dial(context.Context, string) (io.ReadWriteCloser, error) {
	return nopConn{}, nil
}

type nopConn struct{}

func (nopConn) Read([]byte) (int, error)    { return 0, io.EOF }
func (nopConn) Write(p []byte) (int, error) { return len(p), nil }
func (nopConn) Close() error                { return nil }

func TestHealthzAndMetricsAreOpen(t *testing.T) {
	env := newTestEnv(t, "consent", nil)

	rec := env.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	h := decode[HealthzResponse](t, rec)
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, "consent", h.Tier)
	assert.False(t, h.ConsentPending)

	rec = env.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthAndScopes(t *testing.T) {
	env := newTestEnv(t, "unrestricted", nil)

	rec := env.do(t, http.MethodPost, "/media/delete", "", DeleteRequest{Locator: "/x"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/media/delete", "wrong", DeleteRequest{Locator: "/x"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/media/delete", "reader", DeleteRequest{Locator: "/x"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodGet, "/index", "reader", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDeleteUnrestricted(t *testing.T) {
	env := newTestEnv(t, "unrestricted", nil)
	path := env.file(t, "a.mp3")
	_, err := env.scanner.IndexFile(context.Background(), path, mediaindex.CollectionAudio, "com.other")
	require.NoError(t, err)

	rec := env.do(t, http.MethodPost, "/media/delete", adminKey, DeleteRequest{Locator: "file://" + path})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[DeleteResponse](t, rec)
	assert.Equal(t, "completed", resp.Status)
	assert.True(t, resp.Deleted)
	assert.Equal(t, "unrestricted", resp.Tier)
	require.NotNil(t, resp.Report)
	assert.True(t, resp.Report.Index.Deleted)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))

	rec = env.do(t, http.MethodGet, "/journal", adminKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	j := decode[JournalResponse](t, rec)
	require.Len(t, j.Entries, 1)
	assert.Equal(t, resp.Token, j.Entries[0].RequestToken)
}

func TestDeleteRejectsEmptyLocator(t *testing.T) {
	env := newTestEnv(t, "unrestricted", nil)
	rec := env.do(t, http.MethodPost, "/media/delete", adminKey, DeleteRequest{Locator: "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = env.do(t, http.MethodPost, "/media/delete", adminKey, []byte("{"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteConsentWithoutForeground(t *testing.T) {
	env := newTestEnv(t, "consent", nil)
	path := env.file(t, "a.mp3")
	_, err := env.scanner.IndexFile(context.Background(), path, mediaindex.CollectionAudio, "com.other")
	require.NoError(t, err)

	rec := env.do(t, http.MethodPost, "/media/delete", adminKey, DeleteRequest{Locator: path})
	require.Equal(t, http.StatusPreconditionFailed, rec.Code, rec.Body.String())
	resp := decode[DeleteResponse](t, rec)
	assert.Equal(t, "no_host_context", resp.ErrorKind)
	assert.FileExists(t, path)
}

func TestConsentFlowOverHTTP(t *testing.T) {
	env := newTestEnv(t, "consent", nil)
	path := env.file(t, "a.mp3")
	_, err := env.scanner.IndexFile(context.Background(), path, mediaindex.CollectionAudio, "com.other")
	require.NoError(t, err)

	// A consent subscriber stands in for the consent UI.
	ch, unsubscribe := env.hub.Subscribe(events.RoleConsent)
	defer unsubscribe()

	rec := env.do(t, http.MethodPost, "/media/delete", adminKey, DeleteRequest{Locator: path})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	pending := decode[DeleteResponse](t, rec)
	assert.Equal(t, "pending", pending.Status)

	select {
	case ev := <-ch:
		assert.Equal(t, events.TypeConsentRequested, ev.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("consent.requested not published")
	}

	rec = env.do(t, http.MethodPost, "/media/delete", adminKey, DeleteRequest{Locator: path})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "busy", decode[ErrorResponse](t, rec).Kind)

	rec = env.do(t, http.MethodGet, "/consent/pending", adminKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	p := decode[PendingResponse](t, rec)
	require.True(t, p.Pending)
	assert.Equal(t, pending.Token, p.Ticket.Token)

	body := []byte(`{"approved":true}`)
	rec = env.do(t, http.MethodPost, "/consent/"+pending.Token, adminKey, body, "X-Hostbridge-Signature", "sha256=00")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/consent/"+pending.Token, adminKey, body,
		"X-Hostbridge-Signature", consent.Sign(body, consentSecret))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	require.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return os.IsNotExist(err)
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		rec := env.do(t, http.MethodGet, "/journal", adminKey, nil)
		return len(decode[JournalResponse](t, rec).Entries) == 1
	}, 2*time.Second, 10*time.Millisecond)

	rec = env.do(t, http.MethodPost, "/consent/"+pending.Token, adminKey, body,
		"X-Hostbridge-Signature", consent.Sign(body, consentSecret))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestConsentCancelOverHTTP(t *testing.T) {
	env := newTestEnv(t, "consent", func(c *Config) { c.ConsentSecret = "" })
	path := env.file(t, "a.mp3")
	_, err := env.scanner.IndexFile(context.Background(), path, mediaindex.CollectionAudio, "com.other")
	require.NoError(t, err)
	_, unsubscribe := env.hub.Subscribe(events.RoleConsent)
	defer unsubscribe()

	rec := env.do(t, http.MethodDelete, "/consent/nope", adminKey, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/media/delete", adminKey, DeleteRequest{Locator: path})
	require.Equal(t, http.StatusAccepted, rec.Code)
	token := decode[DeleteResponse](t, rec).Token

	rec = env.do(t, http.MethodDelete, "/consent/"+token, adminKey, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.FileExists(t, path)

	rec = env.do(t, http.MethodGet, "/consent/pending", adminKey, nil)
	assert.False(t, decode[PendingResponse](t, rec).Pending)
}

func TestDeleteWaitsForDenial(t *testing.T) {
	env := newTestEnv(t, "consent", func(c *Config) { c.ConsentSecret = "" })
	path := env.file(t, "a.mp3")
	_, err := env.scanner.IndexFile(context.Background(), path, mediaindex.CollectionAudio, "com.other")
	require.NoError(t, err)
	ch, unsubscribe := env.hub.Subscribe(events.RoleConsent)
	defer unsubscribe()

	go func() {
		for ev := range ch {
			if ev.Type != events.TypeConsentRequested {
				continue
			}
			var p consent.RequestedPayload
			if json.Unmarshal(ev.Data, &p) == nil {
				env.coord.OnConsentResult(p.Token, false)
			}
			return
		}
	}()

	rec := env.do(t, http.MethodPost, "/media/delete", adminKey, DeleteRequest{Locator: path, WaitMs: 2000})
	require.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())
	resp := decode[DeleteResponse](t, rec)
	assert.Equal(t, "user_denied", resp.ErrorKind)
	assert.False(t, resp.Deleted)
	assert.FileExists(t, path)
}

func TestSyncWaitClampsBeforeConverting(t *testing.T) {
	ceiling := 2 * time.Second
	assert.Equal(t, time.Duration(0), syncWait(0, ceiling))
	assert.Equal(t, time.Duration(0), syncWait(-5, ceiling))
	assert.Equal(t, 500*time.Millisecond, syncWait(500, ceiling))
	assert.Equal(t, ceiling, syncWait(2000, ceiling))
	assert.Equal(t, ceiling, syncWait(math.MaxInt64, ceiling))
	assert.Equal(t, ceiling, syncWait(math.MaxInt64/1000+1, ceiling))
}

func TestDeleteWithHugeWaitStillWaits(t *testing.T) {
	env := newTestEnv(t, "consent", func(c *Config) { c.ConsentSecret = "" })
	path := env.file(t, "a.mp3")
	_, err := env.scanner.IndexFile(context.Background(), path, mediaindex.CollectionAudio, "com.other")
	require.NoError(t, err)
	ch, unsubscribe := env.hub.Subscribe(events.RoleConsent)
	defer unsubscribe()

	go func() {
		for ev := range ch {
			if ev.Type != events.TypeConsentRequested {
				continue
			}
			var p consent.RequestedPayload
			if json.Unmarshal(ev.Data, &p) == nil {
				env.coord.OnConsentResult(p.Token, false)
			}
			return
		}
	}()

	rec := env.do(t, http.MethodPost, "/media/delete", adminKey, DeleteRequest{Locator: path, WaitMs: math.MaxInt64})
	require.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())
	assert.Equal(t, "user_denied", decode[DeleteResponse](t, rec).ErrorKind)
}

func TestIndexListAndScan(t *testing.T) {
	env := newTestEnv(t, "unrestricted", nil)
	env.file(t, "a.mp3")
	env.file(t, "b.flac")
	env.file(t, "notes.txt")

	rec := env.do(t, http.MethodPost, "/index/scan", adminKey, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	scan := decode[ScanResponse](t, rec)
	require.Len(t, scan.Results, 1)
	assert.Equal(t, 2, scan.Results[0].ItemsUpserted)

	rec = env.do(t, http.MethodPost, "/index/scan", adminKey, ScanRequest{Root: "/elsewhere"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/index?limit=1", "reader", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[IndexListResponse](t, rec)
	assert.Equal(t, 2, list.Total)
	assert.Len(t, list.Entries, 1)

	rec = env.do(t, http.MethodGet, "/index?limit=zero", "reader", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPrinterRoutes(t *testing.T) {
	env := newTestEnv(t, "unrestricted", nil)

	rec := env.do(t, http.MethodPost, "/printer/print", adminKey, PrintRequest{Text: "hi"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodGet, "/printer/devices", adminKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[DevicesResponse](t, rec).Devices, 1)

	rec = env.do(t, http.MethodPost, "/printer/connect", adminKey, ConnectRequest{Address: "AA:AA:AA:AA:AA:AA"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/printer/connect", adminKey, ConnectRequest{Address: "00:11:22:33:44:55"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/printer/print", adminKey, PrintRequest{Text: "hi", Copies: 2})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/printer/raw", adminKey, RawRequest{Data: []byte{0x1B, 0x40}})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/printer/status", adminKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[printer.Status](t, rec).Online)

	rec = env.do(t, http.MethodPost, "/printer/disconnect", adminKey, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestStorageAccessRoutes(t *testing.T) {
	newServer := func(t *testing.T, facts deletion.PlatformFacts) (http.Handler, *events.Hub) {
		hub := events.NewHub(16)
		rem := deletion.NewRemover(deletion.OSFS{}, nil, deletion.RemoverOptions{}, log.Discard())
		coord := deletion.New(deletion.Config{Facts: facts, RequireAllFilesAccess: true}, nil, nil, rem, log.Discard())
		ctx, cancel := context.WithCancel(context.Background())
		require.NoError(t, coord.Start(ctx))
		t.Cleanup(func() {
			coord.Stop()
			cancel()
		})
		srv := New(Config{APIKey: adminKey}, Deps{Deleter: coord, Events: hub}, log.Discard())
		return srv.Handler(), hub
	}
	env := &testEnv{}

	t.Run("missing grant", func(t *testing.T) {
		h, hub := newServer(t, deletion.PlatformFacts{APILevel: 30})
		env.handler = h

		rec := env.do(t, http.MethodGet, "/storage/access", adminKey, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		got := decode[AccessResponse](t, rec)
		assert.True(t, got.Required)
		assert.False(t, got.Granted)
		assert.True(t, got.Enforced)
		assert.Equal(t, deletion.UserConsentRequired, got.Tier)

		rec = env.do(t, http.MethodPost, "/storage/access", adminKey, nil)
		require.Equal(t, http.StatusAccepted, rec.Code)
		assert.Contains(t, decode[AccessResponse](t, rec).Message, "All files access")
		evs := hub.SnapshotSince(0)
		require.Len(t, evs, 1)
		assert.Equal(t, events.TypeAccessRequested, evs[0].Type)

		rec = env.do(t, http.MethodPost, "/media/delete", adminKey, DeleteRequest{Locator: "/music/a.mp3"})
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, "permission_needed", decode[ErrorResponse](t, rec).Kind)
	})

	t.Run("granted", func(t *testing.T) {
		h, hub := newServer(t, deletion.PlatformFacts{APILevel: 30, AllFilesAccess: true})
		env.handler = h

		rec := env.do(t, http.MethodPost, "/storage/access", adminKey, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		got := decode[AccessResponse](t, rec)
		assert.True(t, got.Granted)
		assert.Equal(t, deletion.Unrestricted, got.Tier)
		assert.Empty(t, hub.SnapshotSince(0))
	})
}

func TestNotificationRoutes(t *testing.T) {
	env := newTestEnv(t, "unrestricted", nil)

	rec := env.do(t, http.MethodGet, "/notification", adminKey, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodPost, "/notification", adminKey, notify.Command{Action: notify.ActionPlay, Title: "Song"})
	require.Equal(t, http.StatusOK, rec.Code)
	n := decode[notify.Notification](t, rec)
	assert.Equal(t, "Song", n.Title)
	assert.Equal(t, "Unknown Artist", n.Artist)

	rec = env.do(t, http.MethodPost, "/notification", adminKey, notify.Command{Action: "REWIND"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/notification", adminKey, notify.Command{Action: notify.ActionStop})
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestDeleteRateLimit(t *testing.T) {
	env := newTestEnv(t, "unrestricted", func(c *Config) { c.RateLimit = 1 })
	missing := filepath.Join(env.dir, "gone.mp3")

	rec := env.do(t, http.MethodPost, "/media/delete", adminKey, DeleteRequest{Locator: missing})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodPost, "/media/delete", adminKey, DeleteRequest{Locator: missing})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestStatusForKind(t *testing.T) {
	assert.Equal(t, http.StatusConflict, statusForKind(deletion.KindBusy))
	assert.Equal(t, http.StatusGatewayTimeout, statusForKind(deletion.KindTimeout))
	assert.Equal(t, http.StatusInternalServerError, statusForKind("mystery"))
}
