// Package api exposes hostbridge to local clients over HTTP.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mattjoyce/hostbridge/internal/auth"
	"github.com/mattjoyce/hostbridge/internal/deletion"
	"github.com/mattjoyce/hostbridge/internal/events"
	"github.com/mattjoyce/hostbridge/internal/journal"
	"github.com/mattjoyce/hostbridge/internal/mediaindex"
	"github.com/mattjoyce/hostbridge/internal/notify"
	"github.com/mattjoyce/hostbridge/internal/printer"
)

// Deleter is the deletion coordinator as seen by the API.
type Deleter interface {
	Delete(ctx context.Context, locator string) (*deletion.Future, error)
	OnConsentResult(token string, approved bool) bool
	Cancel(token string) bool
	Pending() (deletion.Ticket, bool)
	Tier() deletion.Tier
	Access() deletion.AccessStatus
}

// IndexReader lists the content index.
type IndexReader interface {
	List(ctx context.Context, prefix string, limit int) ([]mediaindex.Entry, error)
	Count(ctx context.Context) (int, error)
}

// IndexScanner rescans a configured root.
type IndexScanner interface {
	ScanRoot(ctx context.Context, root mediaindex.Root) (*mediaindex.ScanResult, error)
}

// JournalReader returns recent deletion records.
type JournalReader interface {
	Recent(ctx context.Context, limit int) ([]journal.Entry, error)
}

// Printer drives the paired line printer.
type Printer interface {
	Devices() []printer.Device
	Connect(ctx context.Context, address string) (printer.Device, error)
	Disconnect() error
	PrintText(text string, opts printer.PrintOptions) error
	SendRaw(data []byte) error
	Status() printer.Status
}

// Notifier drives the playback notification.
type Notifier interface {
	Handle(ctx context.Context, cmd notify.Command) (notify.Notification, bool, error)
	Current() (notify.Notification, bool)
}

// Config holds API server configuration
type Config struct {
	Listen string
	// APIKey is the legacy single bearer token (admin/full access).
	APIKey string
	// Tokens is an optional list of scoped bearer tokens.
	Tokens []auth.TokenConfig
	// MaxSyncWait caps how long POST /media/delete blocks for a result.
	MaxSyncWait time.Duration
	// RateLimit is delete requests per minute per client; 0 disables.
	RateLimit int
	// ConsentSecret, when set, requires signed consent callbacks.
	ConsentSecret   string
	SignatureHeader string
}

// Deps are the components the server routes to. Nil optional components
// answer 503.
type Deps struct {
	Deleter  Deleter
	Index    IndexReader
	Scanner  IndexScanner
	Roots    []mediaindex.Root
	Journal  JournalReader
	Printer  Printer
	Notifier Notifier
	Events   *events.Hub
}

// Server represents the HTTP API server
type Server struct {
	config    Config
	deps      Deps
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates a new API server instance
func New(config Config, deps Deps, logger *slog.Logger) *Server {
	if config.MaxSyncWait <= 0 {
		config.MaxSyncWait = 30 * time.Second
	}
	if config.SignatureHeader == "" {
		config.SignatureHeader = "X-Hostbridge-Signature"
	}
	if deps.Events == nil {
		deps.Events = events.NewHub(256)
	}
	return &Server{
		config:    config,
		deps:      deps,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Handler returns the routed handler without starting a listener.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// Start starts the HTTP server (blocking)
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      s.setupRoutes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: s.config.MaxSyncWait + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// setupRoutes configures the HTTP router
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// Unauthenticated ops endpoints.
	r.Get("/healthz", s.handleHealthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.With(s.requireScopes(auth.ScopeMediaRW), RateLimit(s.config.RateLimit, time.Minute)).
			Post("/media/delete", s.handleDelete)

		r.With(s.requireScopes(auth.ScopeConsentRO)).Get("/consent/pending", s.handleConsentPending)
		r.With(s.requireScopes(auth.ScopeConsentRW)).Post("/consent/{token}", s.handleConsentResult)
		r.With(s.requireScopes(auth.ScopeConsentRW)).Delete("/consent/{token}", s.handleConsentCancel)

		r.With(s.requireScopes(auth.ScopeEventsRO)).Get("/events", s.handleEvents)

		r.With(s.requireScopes(auth.ScopeMediaRW)).Get("/storage/access", s.handleAccessCheck)
		r.With(s.requireScopes(auth.ScopeMediaRW)).Post("/storage/access", s.handleAccessRequest)

		r.With(s.requireScopes(auth.ScopeIndexRO)).Get("/index", s.handleIndexList)
		r.With(s.requireScopes(auth.ScopeIndexRW)).Post("/index/scan", s.handleIndexScan)

		r.With(s.requireScopes(auth.ScopeJournalRO, auth.ScopeMediaRW)).Get("/journal", s.handleJournal)

		r.Route("/printer", func(r chi.Router) {
			r.With(s.requireScopes(auth.ScopePrinterRO)).Get("/devices", s.handlePrinterDevices)
			r.With(s.requireScopes(auth.ScopePrinterRO)).Get("/status", s.handlePrinterStatus)
			r.With(s.requireScopes(auth.ScopePrinterRW)).Post("/connect", s.handlePrinterConnect)
			r.With(s.requireScopes(auth.ScopePrinterRW)).Post("/disconnect", s.handlePrinterDisconnect)
			r.With(s.requireScopes(auth.ScopePrinterRW)).Post("/print", s.handlePrinterPrint)
			r.With(s.requireScopes(auth.ScopePrinterRW)).Post("/raw", s.handlePrinterRaw)
		})

		r.With(s.requireScopes(auth.ScopeNotifyRW)).Get("/notification", s.handleNotificationCurrent)
		r.With(s.requireScopes(auth.ScopeNotifyRW)).Post("/notification", s.handleNotification)
	})

	return r
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
