package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"runtime/debug"
	"strings"
	"time"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage()
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	switch cmd {
	// --- NOUNS ---
	case "system":
		return runSystemNoun(args)
	case "config":
		return runConfigNoun(args)
	case "index":
		return runIndexNoun(args)
	case "media":
		return runMediaNoun(args)
	case "consent":
		return runConsentNoun(args)
	case "journal":
		return runJournalNoun(args)
	case "storage":
		return runStorageNoun(args)

	// --- ROOT ALIASES ---
	case "start":
		return runStart(args)
	case "doctor":
		return runConfigCheck(args)
	case "version", "--version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage()
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return 1
	}
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Usage: hostbridge version [--json]")
		return 1
	}

	info := currentVersionInfo()

	if *jsonOut {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render version JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("hostbridge %s\n", info.Version)
	fmt.Printf("commit: %s\n", info.Commit)
	fmt.Printf("built_at: %s\n", info.BuildTime)
	return 0
}

func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:   strings.TrimSpace(version),
		Commit:    "unknown",
		BuildTime: "unknown",
	}
	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}

	commit := strings.TrimSpace(gitCommit)
	if commit == "" || commit == "unknown" {
		commit = strings.TrimSpace(readBuildSetting("vcs.revision"))
	}
	if commit != "" {
		info.Commit = shortenCommit(commit)
	}

	built := strings.TrimSpace(buildDate)
	if built == "" || built == "unknown" {
		built = strings.TrimSpace(readBuildSetting("vcs.time"))
	}
	if normalized, ok := normalizeBuildTimeUTC(built); ok {
		info.BuildTime = normalized
	}
	return info
}

func shortenCommit(commit string) string {
	if len(commit) <= 12 {
		return commit
	}
	return commit[:12]
}

func normalizeBuildTimeUTC(raw string) (string, bool) {
	if raw == "" || raw == "unknown" {
		return "", false
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return "", false
	}
	return t.UTC().Format(time.RFC3339), true
}

func readBuildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return setting.Value
		}
	}
	return ""
}

func printUsage() {
	fmt.Print(`hostbridge - media deletion coordinator and host device bridge

Usage:
  hostbridge <noun> <action> [flags]

Core Resources (Nouns):
  system    Daemon lifecycle and health
  config    Configuration and integrity
  index     System content index
  media     Media file operations
  consent   User consent surface
  journal   Deletion audit log
  storage   Host storage access grant

System Commands:
  system start      Start the daemon in the foreground
  system status     Show lock holder, index size, and pending consent

Config Commands:
  config init       Write a default configuration file
  config check      Validate configuration (alias: doctor)
  config lock       Record integrity hashes for the configuration

Index Commands:
  index scan        Index configured roots (or --root PATH)
  index list        List indexed entries

Media Commands:
  media delete <locator>   Delete a media file (local or via --api-url)

Consent Commands:
  consent watch     Interactive consent TUI

Journal Commands:
  journal list      Show recent deletion outcomes

Storage Commands:
  storage access    Check (or --request) the all files access grant

General:
  version           Show version information
  help              Show this help message

Use 'hostbridge <noun> help' for resource-specific flags.
`)
}

// --- NOUN DISPATCHERS ---

func runSystemNoun(args []string) int {
	if len(args) < 1 {
		printSystemNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printSystemNounHelp(os.Stdout)
		return 0
	}

	action, actionArgs := args[0], args[1:]
	switch action {
	case "start":
		if hasHelpFlag(actionArgs) {
			fmt.Println("Usage: hostbridge system start [--config PATH]")
			fmt.Println("Start the deletion coordinator, index watcher, and API in the foreground.")
			return 0
		}
		return runStart(actionArgs)
	case "status":
		if hasHelpFlag(actionArgs) {
			fmt.Println("Usage: hostbridge system status [--config PATH] [--json]")
			fmt.Println("Show daemon lock holder, index size, and pending consent.")
			return 0
		}
		return runSystemStatus(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown system action: %s\n", action)
		return 1
	}
}

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		printConfigNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printConfigNounHelp(os.Stdout)
		return 0
	}

	action, actionArgs := args[0], args[1:]
	switch action {
	case "init":
		if hasHelpFlag(actionArgs) {
			fmt.Println("Usage: hostbridge config init [--config PATH] [--force]")
			fmt.Println("Write a commented default configuration.")
			return 0
		}
		return runConfigInit(actionArgs)
	case "check":
		if hasHelpFlag(actionArgs) {
			fmt.Println("Usage: hostbridge config check [--config PATH] [--format human|json] [--strict] [--json]")
			fmt.Println("Validate configuration syntax, policy, and integrity.")
			return 0
		}
		return runConfigCheck(actionArgs)
	case "lock":
		if hasHelpFlag(actionArgs) {
			fmt.Println("Usage: hostbridge config lock [--config PATH]")
			fmt.Println("Authorize the current configuration by recording its integrity hash.")
			return 0
		}
		return runConfigLock(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		return 1
	}
}

func runIndexNoun(args []string) int {
	if len(args) < 1 {
		printIndexNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printIndexNounHelp(os.Stdout)
		return 0
	}

	action, actionArgs := args[0], args[1:]
	switch action {
	case "scan":
		return runIndexScan(actionArgs)
	case "list":
		return runIndexList(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown index action: %s\n", action)
		return 1
	}
}

func runMediaNoun(args []string) int {
	if len(args) < 1 || isHelpToken(args[0]) {
		w := os.Stdout
		if len(args) < 1 {
			w = os.Stderr
		}
		fmt.Fprintln(w, "Usage: hostbridge media delete <locator> [--config PATH] [--api-url URL --api-key KEY] [--wait DURATION] [--json]")
		if len(args) < 1 {
			return 1
		}
		return 0
	}

	action, actionArgs := args[0], args[1:]
	switch action {
	case "delete":
		return runMediaDelete(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown media action: %s\n", action)
		return 1
	}
}

func runConsentNoun(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: hostbridge consent <action>")
		fmt.Fprintln(os.Stderr, "Actions: watch")
		return 1
	}
	if isHelpToken(args[0]) {
		fmt.Println("Usage: hostbridge consent <action>")
		fmt.Println("Actions: watch")
		return 0
	}

	action, actionArgs := args[0], args[1:]
	switch action {
	case "watch":
		if hasHelpFlag(actionArgs) {
			printConsentWatchHelp()
			return 0
		}
		return runConsentWatch(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown consent action: %s\n", action)
		return 1
	}
}

func runJournalNoun(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: hostbridge journal list [--config PATH] [--limit N] [--json]")
		return 1
	}
	if isHelpToken(args[0]) {
		fmt.Println("Usage: hostbridge journal list [--config PATH] [--limit N] [--json]")
		return 0
	}

	action, actionArgs := args[0], args[1:]
	switch action {
	case "list":
		return runJournalList(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown journal action: %s\n", action)
		return 1
	}
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

func printSystemNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: hostbridge system <action>")
	fmt.Fprintln(w, "Actions: start, status")
}

func printConfigNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: hostbridge config <action> [flags]")
	fmt.Fprintln(w, "Actions: init, check, lock")
}

func printIndexNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: hostbridge index <action> [flags]")
	fmt.Fprintln(w, "Actions: scan, list")
}

func printConsentWatchHelp() {
	fmt.Println("Usage: hostbridge consent watch [flags]")
	fmt.Println()
	fmt.Println("Interactive consent surface. While connected with a key holding")
	fmt.Println("consent:rw it counts as a foreground surface, so consent-tier")
	fmt.Println("deletions can be approved. Read-only keys only watch.")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  --api-url URL          API URL (default: http://localhost:8080)")
	fmt.Println("  --api-key KEY          Bearer token (or HOSTBRIDGE_API_KEY env var)")
	fmt.Println("  --consent-secret S     HMAC secret for verdicts (or HOSTBRIDGE_CONSENT_SECRET)")
	fmt.Println()
	fmt.Println("Keybindings:")
	fmt.Println("  y / n            Approve / deny the selected pending ticket")
	fmt.Println("  ↑/↓, k/j         Select ticket")
	fmt.Println("  r                Refresh health")
	fmt.Println("  q, Ctrl+C        Quit")
}
