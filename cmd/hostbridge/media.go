package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/hostbridge/internal/api"
	"github.com/mattjoyce/hostbridge/internal/config"
	"github.com/mattjoyce/hostbridge/internal/journal"
	"github.com/mattjoyce/hostbridge/internal/lock"
	"github.com/mattjoyce/hostbridge/internal/log"
	"github.com/mattjoyce/hostbridge/internal/mediaindex"
	"github.com/mattjoyce/hostbridge/internal/storage"
	"github.com/mattjoyce/hostbridge/internal/tui/watch"
)

const (
	apiKeyEnvVar        = "HOSTBRIDGE_API_KEY"
	consentSecretEnvVar = "HOSTBRIDGE_CONSENT_SECRET"
	defaultAPIURL       = "http://localhost:8080"
)

// loadForTool loads config for one-shot commands, sending logs to stderr.
func loadForTool(configPath string) (*config.Config, string, error) {
	path := resolveConfigPath(configPath)
	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, err
	}
	log.SetupWriter(cfg.Service.LogLevel, os.Stderr)
	return cfg, path, nil
}

func runIndexScan(args []string) int {
	fs := flag.NewFlagSet("scan", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	rootPath := fs.String("root", "", "Scan only this root (must be configured unless --owner is given)")
	owner := fs.String("owner", "", "Owner recorded for an ad-hoc --root")
	jsonOut := fs.Bool("json", false, "Output in JSON format")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, _, err := loadForTool(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	roots := rootsFromConfig(cfg)
	if *rootPath != "" {
		var picked []mediaindex.Root
		for _, r := range roots {
			if r.Path == *rootPath {
				picked = append(picked, r)
			}
		}
		if len(picked) == 0 {
			picked = []mediaindex.Root{{Path: *rootPath, Collection: mediaindex.CollectionAudio, Owner: *owner}}
		}
		roots = picked
	}
	if len(roots) == 0 {
		fmt.Fprintln(os.Stderr, "No index roots configured (set index.roots or pass --root)")
		return 1
	}

	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, cfg.Index.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open index: %v\n", err)
		return 1
	}
	defer db.Close()

	store := mediaindex.NewStore(db, mediaindex.Options{Owner: cfg.Index.Owner})
	scanner := mediaindex.NewScanner(store, log.WithComponent("indexer"))

	code := 0
	var results []*mediaindex.ScanResult
	for _, root := range roots {
		res, err := scanner.ScanRoot(ctx, root)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Scan of %s failed: %v\n", root.Path, err)
			code = 1
		}
		if res != nil {
			results = append(results, res)
		}
	}

	if *jsonOut {
		data, _ := json.MarshalIndent(results, "", "  ")
		fmt.Println(string(data))
		return code
	}
	for _, r := range results {
		fmt.Printf("%s: %d scanned, %d indexed, %d skipped, %d errors (%s)\n",
			r.Root, r.TotalScanned, r.ItemsUpserted, r.ItemsSkipped, r.ErrorCount, r.Finished.Sub(r.Started).Round(time.Millisecond))
	}
	return code
}

func runIndexList(args []string) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	prefix := fs.String("prefix", "", "Only entries whose path starts with this prefix")
	limit := fs.Int("limit", 50, "Maximum entries to show")
	jsonOut := fs.Bool("json", false, "Output in JSON format")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, _, err := loadForTool(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, cfg.Index.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open index: %v\n", err)
		return 1
	}
	defer db.Close()

	store := mediaindex.NewStore(db, mediaindex.Options{Owner: cfg.Index.Owner})
	entries, err := store.List(ctx, *prefix, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "List failed: %v\n", err)
		return 1
	}
	total, err := store.Count(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Count failed: %v\n", err)
		return 1
	}

	if *jsonOut {
		data, _ := json.MarshalIndent(api.IndexListResponse{Total: total, Entries: entries}, "", "  ")
		fmt.Println(string(data))
		return 0
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCOLLECTION\tOWNER\tSIZE\tPATH")
	for _, e := range entries {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\n", e.ID, e.Collection, e.Owner, e.SizeBytes, e.Path)
	}
	_ = tw.Flush()
	fmt.Printf("%d of %d entries\n", len(entries), total)
	return 0
}

func runMediaDelete(args []string) int {
	fs := flag.NewFlagSet("delete", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	apiURL := fs.String("api-url", "", "Send the request to a running daemon at this URL")
	apiKey := fs.String("api-key", os.Getenv(apiKeyEnvVar), "API Bearer Token")
	wait := fs.Duration("wait", 30*time.Second, "How long to wait for a result")
	jsonOut := fs.Bool("json", false, "Output in JSON format")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	// Flags may also follow the locator.
	var locator string
	if fs.NArg() > 0 {
		locator = fs.Arg(0)
		if err := fs.Parse(fs.Args()[1:]); err != nil {
			fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
			return 1
		}
	}
	if locator == "" {
		fmt.Fprintln(os.Stderr, "Usage: hostbridge media delete <locator> [--config PATH] [--api-url URL --api-key KEY] [--wait DURATION] [--json]")
		return 1
	}

	var (
		resp api.DeleteResponse
		code int
		err  error
	)
	if *apiURL != "" {
		resp, code, err = deleteViaAPI(*apiURL, *apiKey, locator, *wait)
	} else {
		resp, code, err = deleteLocal(*configPath, locator, *wait)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Delete failed: %v\n", err)
		return 1
	}
	return reportDelete(resp, code, *jsonOut)
}

// deleteLocal runs a coordinator in this process. Consent-tier requests
// have no foreground surface here and resolve with no_host_context.
func deleteLocal(configPath, locator string, wait time.Duration) (api.DeleteResponse, int, error) {
	cfg, _, err := loadForTool(configPath)
	if err != nil {
		return api.DeleteResponse{}, 0, err
	}
	if pid, held, _ := lock.Inspect(cfg.Service.LockPath); held {
		return api.DeleteResponse{}, 0, fmt.Errorf("daemon running (pid %d); use --api-url", pid)
	}

	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()

	rt, err := buildRuntime(ctx, cfg)
	if err != nil {
		return api.DeleteResponse{}, 0, err
	}
	defer rt.db.Close()

	if err := rt.coordinator.Start(context.Background()); err != nil {
		return api.DeleteResponse{}, 0, err
	}
	defer rt.coordinator.Stop()

	fut, err := rt.coordinator.Delete(ctx, locator)
	if err != nil {
		return api.DeleteResponse{}, 0, err
	}
	select {
	case <-fut.Done():
	case <-ctx.Done():
		return api.DeleteResponse{Token: fut.Token(), Status: "pending", Tier: rt.coordinator.Tier().String()}, http.StatusAccepted, nil
	}
	res, _ := fut.Result()
	resp, code := api.ResponseFor(res)
	return resp, code, nil
}

func deleteViaAPI(baseURL, apiKey, locator string, wait time.Duration) (api.DeleteResponse, int, error) {
	var resp api.DeleteResponse
	body, err := json.Marshal(api.DeleteRequest{Locator: locator, WaitMs: wait.Milliseconds()})
	if err != nil {
		return resp, 0, err
	}
	req, err := http.NewRequest(http.MethodPost, strings.TrimRight(baseURL, "/")+"/media/delete", bytes.NewReader(body))
	if err != nil {
		return resp, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	client := &http.Client{Timeout: wait + 10*time.Second}
	httpResp, err := client.Do(req)
	if err != nil {
		return resp, 0, err
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return resp, 0, err
	}
	if err := json.Unmarshal(raw, &resp); err != nil || (resp.Token == "" && resp.Status == "") {
		var apiErr api.ErrorResponse
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			return resp, httpResp.StatusCode, errors.New(apiErr.Error)
		}
		return resp, httpResp.StatusCode, fmt.Errorf("unexpected response: %s", httpResp.Status)
	}
	return resp, httpResp.StatusCode, nil
}

// reportDelete prints the outcome. Exit codes: 0 deleted, 2 pending
// consent, 1 otherwise.
func reportDelete(resp api.DeleteResponse, code int, jsonOut bool) int {
	if jsonOut {
		data, _ := json.MarshalIndent(resp, "", "  ")
		fmt.Println(string(data))
	} else {
		switch {
		case resp.Status == "pending":
			fmt.Printf("Pending consent (token %s, tier %s)\n", resp.Token, resp.Tier)
		case resp.Deleted && resp.Partial:
			fmt.Printf("Deleted %s (partial: one layer did not confirm)\n", resp.Path)
		case resp.Deleted:
			fmt.Printf("Deleted %s\n", resp.Path)
		default:
			fmt.Printf("Not deleted %s: %s (%s)\n", resp.Path, resp.ErrorKind, resp.Error)
		}
	}

	switch {
	case resp.Status == "pending" || code == http.StatusAccepted:
		return 2
	case resp.Deleted:
		return 0
	default:
		return 1
	}
}

func runConsentWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	apiURL := fs.String("api-url", defaultAPIURL, "API URL")
	apiKey := fs.String("api-key", os.Getenv(apiKeyEnvVar), "API Bearer Token")
	secret := fs.String("consent-secret", os.Getenv(consentSecretEnvVar), "HMAC secret for signed verdicts")
	header := fs.String("signature-header", "X-Hostbridge-Signature", "Header carrying the verdict signature")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	if *apiKey == "" {
		fmt.Fprintf(os.Stderr, "Error: API key required. Use --api-key or %s env var.\n", apiKeyEnvVar)
		return 1
	}

	m := watch.New(&watch.Client{
		BaseURL:         *apiURL,
		APIKey:          *apiKey,
		ConsentSecret:   *secret,
		SignatureHeader: *header,
	})
	p := tea.NewProgram(m)
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		return 1
	}
	return 0
}

func runJournalList(args []string) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	limit := fs.Int("limit", 20, "Maximum entries to show")
	jsonOut := fs.Bool("json", false, "Output in JSON format")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, _, err := loadForTool(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, cfg.Index.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open index: %v\n", err)
		return 1
	}
	defer db.Close()

	entries, err := journal.NewStore(db).Recent(ctx, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Journal read failed: %v\n", err)
		return 1
	}

	if *jsonOut {
		data, _ := json.MarshalIndent(api.JournalResponse{Entries: entries}, "", "  ")
		fmt.Println(string(data))
		return 0
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "COMPLETED\tTIER\tDELETED\tKIND\tPATH")
	for _, e := range entries {
		deleted := "no"
		if e.Deleted {
			deleted = "yes"
			if e.Partial {
				deleted = "partial"
			}
		}
		kind := e.ErrorKind
		if kind == "" {
			kind = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.CompletedAt.Local().Format(time.DateTime), e.Tier, deleted, kind, e.Path)
	}
	_ = tw.Flush()
	return 0
}
