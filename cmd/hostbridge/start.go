package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mattjoyce/hostbridge/internal/api"
	"github.com/mattjoyce/hostbridge/internal/auth"
	"github.com/mattjoyce/hostbridge/internal/config"
	"github.com/mattjoyce/hostbridge/internal/consent"
	"github.com/mattjoyce/hostbridge/internal/deletion"
	"github.com/mattjoyce/hostbridge/internal/events"
	"github.com/mattjoyce/hostbridge/internal/journal"
	"github.com/mattjoyce/hostbridge/internal/lock"
	"github.com/mattjoyce/hostbridge/internal/log"
	"github.com/mattjoyce/hostbridge/internal/mediaindex"
	"github.com/mattjoyce/hostbridge/internal/metrics"
	"github.com/mattjoyce/hostbridge/internal/notify"
	"github.com/mattjoyce/hostbridge/internal/printer"
	"github.com/mattjoyce/hostbridge/internal/storage"
)

const journalPruneInterval = time.Hour

// runtime is the wired component graph shared by the daemon and the
// local media commands.
type runtime struct {
	cfg         *config.Config
	db          *sql.DB
	hub         *events.Hub
	store       *mediaindex.Store
	scanner     *mediaindex.Scanner
	roots       []mediaindex.Root
	journal     *journal.Store
	surface     *consent.HubSurface
	coordinator *deletion.Coordinator
}

// selectTier derives the capability tier the same way the coordinator
// will, so the index can be opened with matching ownership rules.
func selectTier(cfg *config.Config) deletion.Tier {
	fallback, err := deletion.ParseTier(cfg.Platform.DefaultTier)
	if err != nil {
		fallback = deletion.UserConsentRequired
	}
	return deletion.SelectTier(platformFacts(cfg), cfg.Platform.Tier, fallback)
}

func platformFacts(cfg *config.Config) deletion.PlatformFacts {
	return deletion.PlatformFacts{
		APILevel:       cfg.Platform.APILevel,
		AllFilesAccess: cfg.Platform.AllFilesAccess,
	}
}

func rootsFromConfig(cfg *config.Config) []mediaindex.Root {
	roots := make([]mediaindex.Root, 0, len(cfg.Index.Roots))
	for _, r := range cfg.Index.Roots {
		coll, err := mediaindex.ParseCollection(r.Collection)
		if err != nil {
			coll = mediaindex.CollectionAudio
		}
		roots = append(roots, mediaindex.Root{
			Path:       r.Path,
			Extensions: r.Extensions,
			MaxDepth:   r.MaxDepth,
			Collection: coll,
			Owner:      r.Owner,
		})
	}
	return roots
}

// buildRuntime opens the index database and wires the deletion path. The
// caller owns db and must Close it.
func buildRuntime(ctx context.Context, cfg *config.Config) (*runtime, error) {
	if err := storage.CheckLocalFilesystem(cfg.Index.Path); err != nil {
		return nil, err
	}
	db, err := storage.OpenSQLite(ctx, cfg.Index.Path)
	if err != nil {
		return nil, fmt.Errorf("open index database: %w", err)
	}

	tier := selectTier(cfg)
	store := mediaindex.NewStore(db, mediaindex.Options{
		Owner:            cfg.Index.Owner,
		EnforceOwnership: tier != deletion.Unrestricted,
	})
	hub := events.NewHub(256)
	surface := consent.NewHubSurface(hub, log.WithComponent("consent"))

	remover := deletion.NewRemover(deletion.OSFS{}, nil, deletion.RemoverOptions{
		External:     cfg.Deletion.ExternalRemove,
		ExternalWait: cfg.Deletion.ExternalRemoveWait,
	}, log.WithComponent("remover"))

	coord := deletion.New(deletion.Config{
		Facts:                 platformFacts(cfg),
		TierOverride:          cfg.Platform.Tier,
		DefaultTier:           cfg.Platform.DefaultTier,
		ConsentTimeout:        cfg.Deletion.ConsentTimeout,
		RequireAllFilesAccess: cfg.Platform.RequireAllFilesAccess,
	}, store, surface, remover, log.WithComponent("deletion"))

	rt := &runtime{
		cfg:         cfg,
		db:          db,
		hub:         hub,
		store:       store,
		scanner:     mediaindex.NewScanner(store, log.WithComponent("indexer")),
		roots:       rootsFromConfig(cfg),
		surface:     surface,
		coordinator: coord,
	}
	if cfg.Deletion.Journal {
		rt.journal = journal.NewStore(db)
		coord.SetJournal(rt.journal)
	}
	coord.OnResolved(surface.Observe)
	return rt, nil
}

func newDialer(cfg *config.Config) printer.Dialer {
	if cfg.Printer.Transport == "tcp" {
		return printer.TCPDialer{Timeout: 5 * time.Second}
	}
	return printer.RFCOMMDialer{Channel: cfg.Printer.Channel}
}

func apiConfig(cfg *config.Config) api.Config {
	tokens := make([]auth.TokenConfig, 0, len(cfg.API.Auth.Tokens))
	for _, t := range cfg.API.Auth.Tokens {
		tokens = append(tokens, auth.TokenConfig{Token: t.Token, Scopes: t.Scopes})
	}
	return api.Config{
		Listen:          cfg.API.Listen,
		APIKey:          cfg.API.Auth.APIKey,
		Tokens:          tokens,
		MaxSyncWait:     cfg.API.MaxSyncWait,
		RateLimit:       cfg.API.RateLimit,
		ConsentSecret:   cfg.Consent.Secret,
		SignatureHeader: cfg.Consent.SignatureHeader,
	}
}

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	path := resolveConfigPath(*configPath)
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel)
	logger := log.WithComponent("main")
	logger.Info("hostbridge starting", "version", version, "config", path)

	pidLock, err := lock.AcquirePIDLock(cfg.Service.LockPath)
	if err != nil {
		logger.Error("failed to acquire PID lock (another instance may be running)", "path", cfg.Service.LockPath, "error", err)
		return 1
	}
	defer func() { _ = pidLock.Release() }()
	logger.Info("acquired PID lock", "path", pidLock.Path())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := buildRuntime(ctx, cfg)
	if err != nil {
		logger.Error("failed to build runtime", "error", err)
		return 1
	}
	defer rt.db.Close()
	logger.Info("index opened", "path", cfg.Index.Path, "tier", rt.coordinator.Tier().String())

	if err := serve(ctx, rt, logger); err != nil {
		logger.Error("component failed", "error", err)
		return 1
	}
	logger.Info("hostbridge stopped")
	return 0
}

// serve runs every long-lived component until ctx ends or one fails.
func serve(ctx context.Context, rt *runtime, logger *slog.Logger) error {
	cfg := rt.cfg

	if n, err := rt.store.Count(ctx); err == nil {
		metrics.SetIndexEntries(n)
	}

	if err := rt.coordinator.Start(ctx); err != nil {
		return fmt.Errorf("deletion coordinator: %w", err)
	}
	defer rt.coordinator.Stop()

	printers := printer.NewService(newDialer(cfg), cfg.Printer.Paired, cfg.Printer.NameFilters, rt.hub, log.WithComponent("printer"))
	defer func() { _ = printers.Disconnect() }()
	notifier := notify.NewService(notify.NewHubDisplay(rt.hub), cfg.Notification.ChannelID, cfg.Notification.ID, log.WithComponent("notify"))

	g, gctx := errgroup.WithContext(ctx)

	if len(rt.roots) > 0 {
		g.Go(func() error {
			for _, root := range rt.roots {
				res, err := rt.scanner.ScanRoot(gctx, root)
				if err != nil {
					logger.Warn("initial index scan failed", "root", root.Path, "error", err)
					continue
				}
				rt.hub.Publish(events.TypeIndexScanned, res)
			}
			if n, err := rt.store.Count(gctx); err == nil {
				metrics.SetIndexEntries(n)
			}
			return nil
		})
		if cfg.Index.Watch {
			watcher := mediaindex.NewWatcher(rt.scanner, rt.store, rt.roots, log.WithComponent("index-watch"))
			g.Go(func() error {
				if err := watcher.Run(gctx); err != nil {
					return fmt.Errorf("index watcher: %w", err)
				}
				return nil
			})
		}
	}

	if rt.journal != nil && cfg.Deletion.JournalRetention > 0 {
		g.Go(func() error {
			pruneJournal(gctx, rt.journal, cfg.Deletion.JournalRetention, logger)
			return nil
		})
	}

	if cfg.API.Enabled {
		deps := api.Deps{
			Deleter:  rt.coordinator,
			Index:    rt.store,
			Scanner:  rt.scanner,
			Roots:    rt.roots,
			Printer:  printers,
			Notifier: notifier,
			Events:   rt.hub,
		}
		if rt.journal != nil {
			deps.Journal = rt.journal
		}
		server := api.New(apiConfig(cfg), deps, log.WithComponent("api"))
		g.Go(func() error {
			if err := server.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("api: %w", err)
			}
			return nil
		})
		logger.Info("API server enabled", "listen", cfg.API.Listen)
	}

	logger.Info("hostbridge running (press Ctrl+C to stop)")
	return g.Wait()
}

func pruneJournal(ctx context.Context, j *journal.Store, retention time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(journalPruneInterval)
	defer ticker.Stop()
	for {
		if n, err := j.Prune(ctx, retention); err != nil {
			logger.Warn("journal prune failed", "error", err)
		} else if n > 0 {
			logger.Info("journal pruned", "removed", n)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

type statusReport struct {
	Config       string `json:"config"`
	LockPath     string `json:"lock_path"`
	Running      bool   `json:"running"`
	PID          int    `json:"pid,omitempty"`
	Tier         string `json:"tier"`
	IndexPath    string `json:"index_path"`
	IndexEntries int    `json:"index_entries"`
	IndexError   string `json:"index_error,omitempty"`
}

func runSystemStatus(args []string) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output in JSON format")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	path := resolveConfigPath(*configPath)
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	report := statusReport{
		Config:    path,
		LockPath:  cfg.Service.LockPath,
		Tier:      selectTier(cfg).String(),
		IndexPath: cfg.Index.Path,
	}
	pid, running, err := lock.Inspect(cfg.Service.LockPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Lock check failed: %v\n", err)
		return 1
	}
	report.PID, report.Running = pid, running

	ctx := context.Background()
	if db, err := storage.OpenSQLite(ctx, cfg.Index.Path); err != nil {
		report.IndexError = err.Error()
	} else {
		n, err := mediaindex.NewStore(db, mediaindex.Options{Owner: cfg.Index.Owner}).Count(ctx)
		if err != nil {
			report.IndexError = err.Error()
		}
		report.IndexEntries = n
		_ = db.Close()
	}

	if *jsonOut {
		data, _ := json.MarshalIndent(report, "", "  ")
		fmt.Println(string(data))
	} else {
		state := "stopped"
		if report.Running {
			state = fmt.Sprintf("running (pid %d)", report.PID)
		}
		fmt.Printf("daemon:  %s\n", state)
		fmt.Printf("tier:    %s\n", report.Tier)
		fmt.Printf("index:   %s (%d entries)\n", report.IndexPath, report.IndexEntries)
		if report.IndexError != "" {
			fmt.Printf("  error: %s\n", report.IndexError)
		}
	}
	if report.IndexError != "" {
		return 1
	}
	return 0
}
