package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		env     map[string]string
		wantErr string
		checkFn func(t *testing.T, cfg *Config)
	}{
		{
			name: "empty file takes defaults",
			yaml: "{}\n",
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.Deletion.ConsentTimeout != 2*time.Minute {
					t.Errorf("consent_timeout = %v, want 2m", cfg.Deletion.ConsentTimeout)
				}
				if cfg.Platform.DefaultTier != "consent" {
					t.Errorf("default_tier = %q, want consent", cfg.Platform.DefaultTier)
				}
				if len(cfg.Printer.NameFilters) != 4 {
					t.Errorf("name_filters = %v, want defaults", cfg.Printer.NameFilters)
				}
				if cfg.Notification.ChannelID != "MusicPlayerChannel" || cfg.Notification.ID != 1 {
					t.Errorf("notification defaults not applied: %+v", cfg.Notification)
				}
			},
		},
		{
			name: "sections parsed",
			yaml: `
service:
  log_level: debug
index:
  path: ${INDEX_DB}
  owner: com.example.player
  roots:
    - path: /music
      collection: audio
      max_depth: 3
platform:
  api_level: 29
  tier: auto
deletion:
  consent_timeout: 45s
printer:
  transport: tcp
  name_filters: [zebra]
  paired:
    - name: Zebra ZQ
      address: 10.0.0.5:9100
api:
  enabled: true
  listen: 127.0.0.1:9090
  auth:
    tokens:
      - token: ${HB_TOKEN}
        scopes: ["media:rw"]
`,
			env: map[string]string{"INDEX_DB": "/tmp/idx.db", "HB_TOKEN": "tok-1"},
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.Index.Path != "/tmp/idx.db" {
					t.Errorf("index.path = %q", cfg.Index.Path)
				}
				if cfg.Platform.APILevel != 29 {
					t.Errorf("api_level = %d", cfg.Platform.APILevel)
				}
				if cfg.Deletion.ConsentTimeout != 45*time.Second {
					t.Errorf("consent_timeout = %v", cfg.Deletion.ConsentTimeout)
				}
				if got := cfg.Printer.NameFilters; len(got) != 1 || got[0] != "zebra" {
					t.Errorf("name_filters = %v", got)
				}
				if cfg.API.Auth.Tokens[0].Token != "tok-1" {
					t.Errorf("token not interpolated: %q", cfg.API.Auth.Tokens[0].Token)
				}
				if cfg.Index.Roots[0].MaxDepth != 3 {
					t.Errorf("max_depth = %d", cfg.Index.Roots[0].MaxDepth)
				}
			},
		},
		{
			name:    "bad tier",
			yaml:    "platform:\n  tier: sometimes\n",
			wantErr: "platform.tier",
		},
		{
			name:    "bad collection",
			yaml:    "index:\n  roots:\n    - path: /x\n      collection: video\n",
			wantErr: "collection",
		},
		{
			name:    "unset token env",
			yaml:    "api:\n  enabled: true\n  auth:\n    api_key: ${HB_MISSING_KEY}\n",
			wantErr: "HB_MISSING_KEY",
		},
		{
			name:    "bad transport",
			yaml:    "printer:\n  transport: usb\n",
			wantErr: "printer.transport",
		},
		{
			name:    "zero consent timeout",
			yaml:    "deletion:\n  consent_timeout: 0s\n",
			wantErr: "consent_timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg, err := Load(writeConfig(t, tt.yaml))
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("Load() error = %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			tt.checkFn(t, cfg)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadDirectory(t *testing.T) {
	path := writeConfig(t, "service:\n  name: dir-mode\n")
	cfg, err := Load(filepath.Dir(path))
	if err != nil {
		t.Fatalf("Load(dir) error = %v", err)
	}
	if cfg.Service.Name != "dir-mode" {
		t.Errorf("service.name = %q", cfg.Service.Name)
	}
}

func TestLockAndVerify(t *testing.T) {
	path := writeConfig(t, "service:\n  name: locked\n")

	hash, err := Lock(path)
	if err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	if len(hash) != 64 {
		t.Fatalf("hash = %q, want 64 hex chars", hash)
	}
	if _, err := Load(path); err != nil {
		t.Fatalf("Load() after lock error = %v", err)
	}

	if err := os.WriteFile(path, []byte("service:\n  name: tampered\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "hash mismatch") {
		t.Fatalf("Load() after tamper error = %v, want hash mismatch", err)
	}
}

func TestWriteDefault(t *testing.T) {
	t.Setenv("HOSTBRIDGE_API_KEY", "k")
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	if err := WriteDefault(path, false); err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}
	if err := WriteDefault(path, false); !errors.Is(err, ErrConfigExists) {
		t.Fatalf("second WriteDefault() error = %v, want ErrConfigExists", err)
	}
	if err := WriteDefault(path, true); err != nil {
		t.Fatalf("forced WriteDefault() error = %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load(default) error = %v", err)
	}
	if !cfg.API.Enabled || cfg.API.Auth.APIKey != "k" {
		t.Errorf("api section not loaded: %+v", cfg.API)
	}
	if cfg.Deletion.ExternalRemoveWait != 100*time.Millisecond {
		t.Errorf("external_remove_wait = %v", cfg.Deletion.ExternalRemoveWait)
	}
}
