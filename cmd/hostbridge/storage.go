package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mattjoyce/hostbridge/internal/api"
	"github.com/mattjoyce/hostbridge/internal/deletion"
)

const storageAccessUsage = "Usage: hostbridge storage access [--config PATH] [--request --api-url URL --api-key KEY] [--json]"

func runStorageNoun(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, storageAccessUsage)
		return 1
	}
	if isHelpToken(args[0]) {
		fmt.Println(storageAccessUsage)
		return 0
	}

	action, actionArgs := args[0], args[1:]
	switch action {
	case "access":
		if hasHelpFlag(actionArgs) {
			fmt.Println(storageAccessUsage)
			fmt.Println("Check the host's all files access grant, or ask a running daemon to request it.")
			return 0
		}
		return runStorageAccess(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown storage action: %s\n", action)
		return 1
	}
}

// runStorageAccess exits 0 when the grant is held, 2 when it is missing,
// and 1 on error.
func runStorageAccess(args []string) int {
	fs := flag.NewFlagSet("access", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	request := fs.Bool("request", false, "Ask the daemon to raise the grant request with connected surfaces")
	apiURL := fs.String("api-url", "", "Daemon API URL (required with --request)")
	apiKey := fs.String("api-key", "", "Bearer token (or HOSTBRIDGE_API_KEY env var)")
	jsonOut := fs.Bool("json", false, "Output in JSON format")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	var resp api.AccessResponse
	if *request {
		if *apiURL == "" {
			fmt.Fprintln(os.Stderr, "--request needs --api-url; the grant itself is platform.all_files_access")
			return 1
		}
		key := *apiKey
		if key == "" {
			key = os.Getenv(apiKeyEnvVar)
		}
		var err error
		resp, err = requestAccessViaAPI(*apiURL, key)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Access request failed: %v\n", err)
			return 1
		}
	} else {
		cfg, _, err := loadForTool(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			return 1
		}
		resp.AccessStatus = deletion.AccessFor(platformFacts(cfg), cfg.Platform.RequireAllFilesAccess, selectTier(cfg))
	}

	if *jsonOut {
		data, _ := json.MarshalIndent(resp, "", "  ")
		fmt.Println(string(data))
	} else {
		printAccess(resp)
	}
	if !resp.Granted {
		return 2
	}
	return 0
}

func printAccess(resp api.AccessResponse) {
	switch {
	case !resp.Required:
		fmt.Printf("All files access: not gated at api_level %d\n", resp.APILevel)
	case resp.Granted:
		fmt.Println("All files access: granted")
	default:
		fmt.Println("All files access: NOT granted")
	}
	fmt.Printf("Tier: %s\n", resp.Tier)
	if resp.Enforced && !resp.Granted {
		fmt.Println("Deletions are refused with permission_needed until the grant is given.")
	}
	if resp.Message != "" {
		fmt.Println(resp.Message)
	}
}

func requestAccessViaAPI(baseURL, apiKey string) (api.AccessResponse, error) {
	var resp api.AccessResponse
	req, err := http.NewRequest(http.MethodPost, strings.TrimRight(baseURL, "/")+"/storage/access", nil)
	if err != nil {
		return resp, err
	}
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	httpResp, err := client.Do(req)
	if err != nil {
		return resp, err
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return resp, err
	}
	if httpResp.StatusCode != http.StatusOK && httpResp.StatusCode != http.StatusAccepted {
		var apiErr api.ErrorResponse
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			return resp, errors.New(apiErr.Error)
		}
		return resp, fmt.Errorf("unexpected response: %s", httpResp.Status)
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return resp, err
	}
	return resp, nil
}
