package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/hostbridge/internal/deletion"
	"github.com/mattjoyce/hostbridge/internal/mediaindex"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads, verifies and validates the configuration at configPath.
// Unset fields take their values from Defaults.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run 'hostbridge config init'", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
	}

	if err := verifyConfigHash(absPath); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Parse decodes YAML over Defaults after ${VAR} interpolation. It does not
// validate.
func Parse(data []byte) (*Config, error) {
	cfg := Defaults()
	// Lists replace defaults rather than merging with them.
	cfg.Printer.NameFilters = nil
	if err := yaml.Unmarshal([]byte(interpolateEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if len(cfg.Printer.NameFilters) == 0 {
		cfg.Printer.NameFilters = Defaults().Printer.NameFilters
	}
	return cfg, nil
}

// verifyConfigHash checks path against a .checksums manifest next to it.
// A missing manifest skips verification.
func verifyConfigHash(path string) error {
	dir := filepath.Dir(path)
	checksums, err := LoadChecksums(dir)
	if err != nil {
		return nil
	}
	basename := filepath.Base(path)
	expected, ok := checksums.Hashes[basename]
	if !ok {
		return fmt.Errorf("config file %s has no hash in checksums at %s\n"+
			"Run: hostbridge config lock --config %s", basename, dir, path)
	}
	if err := VerifyFileHash(path, expected); err != nil {
		return fmt.Errorf("config verification failed for %s: %w\n"+
			"This indicates tampering or unauthorized modification.\n"+
			"If you edited this file intentionally, run: hostbridge config lock --config %s", path, err, path)
	}
	return nil
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is (not expanded).
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		// If not found, leave the placeholder (will fail validation if required)
		return match
	})
}

// Validate reports the first problem with cfg.
func Validate(cfg *Config) error {
	return validate(cfg)
}

func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[strings.ToLower(cfg.Service.LogLevel)] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}

	if cfg.Index.Path == "" {
		return fmt.Errorf("index.path is required")
	}
	if cfg.Index.Owner == "" {
		return fmt.Errorf("index.owner is required")
	}
	for i, root := range cfg.Index.Roots {
		if root.Path == "" {
			return fmt.Errorf("index.roots[%d].path is required", i)
		}
		if root.MaxDepth < 0 {
			return fmt.Errorf("index.roots[%d].max_depth must not be negative", i)
		}
		if root.Collection != "" {
			if _, err := mediaindex.ParseCollection(root.Collection); err != nil {
				return fmt.Errorf("index.roots[%d].collection: %w", i, err)
			}
		}
	}

	if cfg.Platform.APILevel < 0 {
		return fmt.Errorf("platform.api_level must not be negative")
	}
	if t := cfg.Platform.Tier; t != "" && t != "auto" {
		if _, err := deletion.ParseTier(t); err != nil {
			return fmt.Errorf("platform.tier: %w", err)
		}
	}
	if t := cfg.Platform.DefaultTier; t != "" {
		if _, err := deletion.ParseTier(t); err != nil {
			return fmt.Errorf("platform.default_tier: %w", err)
		}
	}

	if cfg.Deletion.ConsentTimeout <= 0 {
		return fmt.Errorf("deletion.consent_timeout must be positive")
	}
	if cfg.Deletion.ExternalRemoveWait < 0 {
		return fmt.Errorf("deletion.external_remove_wait must not be negative")
	}
	if err := checkUnresolved("consent.secret", cfg.Consent.Secret); err != nil {
		return err
	}

	switch cfg.Printer.Transport {
	case "rfcomm", "tcp":
	default:
		return fmt.Errorf("printer.transport must be one of: rfcomm, tcp (got %q)", cfg.Printer.Transport)
	}
	for i, d := range cfg.Printer.Paired {
		if d.Address == "" {
			return fmt.Errorf("printer.paired[%d].address is required", i)
		}
	}

	if cfg.API.Enabled {
		if cfg.API.Listen == "" {
			return fmt.Errorf("api.listen is required when api is enabled")
		}
		if err := checkUnresolved("api.auth.api_key", cfg.API.Auth.APIKey); err != nil {
			return err
		}
		for i, tok := range cfg.API.Auth.Tokens {
			if tok.Token == "" {
				return fmt.Errorf("api.auth.tokens[%d].token is required", i)
			}
			if err := checkUnresolved(fmt.Sprintf("api.auth.tokens[%d].token", i), tok.Token); err != nil {
				return err
			}
			if len(tok.Scopes) == 0 {
				return fmt.Errorf("api.auth.tokens[%d].scopes must be non-empty", i)
			}
		}
		if cfg.API.RateLimit < 0 {
			return fmt.Errorf("api.rate_limit must not be negative")
		}
	}

	return nil
}

func checkUnresolved(field, value string) error {
	if matches := envVarPattern.FindStringSubmatch(value); len(matches) > 1 {
		return fmt.Errorf("%s: environment variable ${%s} is not set", field, matches[1])
	}
	return nil
}
