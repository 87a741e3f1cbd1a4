package config

import (
	"time"

	"github.com/mattjoyce/hostbridge/internal/notify"
	"github.com/mattjoyce/hostbridge/internal/printer"
)

// Config represents the complete hostbridge configuration.
type Config struct {
	Service      ServiceConfig      `yaml:"service"`
	Index        IndexConfig        `yaml:"index"`
	Platform     PlatformConfig     `yaml:"platform"`
	Deletion     DeletionConfig     `yaml:"deletion"`
	Consent      ConsentConfig      `yaml:"consent"`
	Printer      PrinterConfig      `yaml:"printer"`
	Notification NotificationConfig `yaml:"notification"`
	API          APIConfig          `yaml:"api"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name     string `yaml:"name"`
	LogLevel string `yaml:"log_level"`
	LockPath string `yaml:"lock_path"`
}

// IndexConfig defines the emulated system content index.
type IndexConfig struct {
	Path  string       `yaml:"path"`
	Owner string       `yaml:"owner"` // package identity used for ownership checks
	Roots []RootConfig `yaml:"roots,omitempty"`
	Watch bool         `yaml:"watch"`
}

// RootConfig is one directory tree the indexer covers.
type RootConfig struct {
	Path       string   `yaml:"path"`
	Extensions []string `yaml:"extensions,omitempty"`
	MaxDepth   int      `yaml:"max_depth,omitempty"`
	Collection string   `yaml:"collection,omitempty"`
	Owner      string   `yaml:"owner,omitempty"`
}

// PlatformConfig describes the host the coordinator runs against.
type PlatformConfig struct {
	APILevel    int    `yaml:"api_level"` // 0 means unknown
	Tier        string `yaml:"tier"`      // auto | unrestricted | recoverable | consent
	DefaultTier string `yaml:"default_tier"`

	// AllFilesAccess records whether the host granted "all files access".
	AllFilesAccess bool `yaml:"all_files_access"`
	// RequireAllFilesAccess refuses deletions outright while the grant is
	// missing, instead of asking per file.
	RequireAllFilesAccess bool `yaml:"require_all_files_access"`
}

// DeletionConfig tunes the deletion coordinator.
type DeletionConfig struct {
	ConsentTimeout     time.Duration `yaml:"consent_timeout"`
	ExternalRemove     bool          `yaml:"external_remove"`
	ExternalRemoveWait time.Duration `yaml:"external_remove_wait"`
	Journal            bool          `yaml:"journal"`
	JournalRetention   time.Duration `yaml:"journal_retention"`
}

// ConsentConfig secures consent callbacks.
type ConsentConfig struct {
	Secret          string `yaml:"secret"`
	SignatureHeader string `yaml:"signature_header"`
}

// PrinterConfig lists the paired printers and how to reach them.
type PrinterConfig struct {
	Paired      []printer.Device `yaml:"paired,omitempty"`
	NameFilters []string         `yaml:"name_filters,omitempty"`
	Transport   string           `yaml:"transport"` // rfcomm | tcp
	Channel     uint8            `yaml:"channel"`
}

// NotificationConfig identifies the playback notification.
type NotificationConfig struct {
	ChannelID string `yaml:"channel_id"`
	ID        int    `yaml:"id"`
}

// APIConfig defines HTTP API server settings.
type APIConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Listen      string        `yaml:"listen"`
	Auth        APIAuthConfig `yaml:"auth"`
	MaxSyncWait time.Duration `yaml:"max_sync_wait"`
	RateLimit   int           `yaml:"rate_limit"` // delete requests per minute, 0 disables
}

// APIAuthConfig defines API authentication settings.
type APIAuthConfig struct {
	// APIKey is the legacy single bearer token (admin/full access).
	// Prefer Tokens for scoped access.
	APIKey string     `yaml:"api_key"`
	Tokens []APIToken `yaml:"tokens,omitempty"`
}

// APIToken defines a bearer token and its scopes.
type APIToken struct {
	Token  string   `yaml:"token"`
	Scopes []string `yaml:"scopes"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:     "hostbridge",
			LogLevel: "info",
			LockPath: "./data/hostbridge.lock",
		},
		Index: IndexConfig{
			Path:  "./data/index.db",
			Owner: "hostbridge",
		},
		Platform: PlatformConfig{
			Tier:        "auto",
			DefaultTier: "consent",
		},
		Deletion: DeletionConfig{
			ConsentTimeout:     2 * time.Minute,
			ExternalRemove:     true,
			ExternalRemoveWait: 100 * time.Millisecond,
			Journal:            true,
			JournalRetention:   30 * 24 * time.Hour,
		},
		Consent: ConsentConfig{
			SignatureHeader: "X-Hostbridge-Signature",
		},
		Printer: PrinterConfig{
			NameFilters: append([]string(nil), printer.DefaultNameFilters...),
			Transport:   "rfcomm",
			Channel:     1,
		},
		Notification: NotificationConfig{
			ChannelID: notify.DefaultChannelID,
			ID:        notify.DefaultID,
		},
		API: APIConfig{
			Enabled:     false,
			Listen:      "127.0.0.1:8080",
			MaxSyncWait: 30 * time.Second,
			RateLimit:   60,
		},
	}
}
