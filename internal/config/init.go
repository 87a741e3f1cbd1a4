package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
)

// ErrConfigExists is returned by WriteDefault when the target exists and
// force is not set.
var ErrConfigExists = errors.New("config file already exists")

const defaultTemplate = `# hostbridge configuration
service:
  name: hostbridge
  log_level: info
  lock_path: ./data/hostbridge.lock

index:
  path: ./data/index.db
  owner: hostbridge
  watch: true
  roots:
    - path: ${HOME}/Music
      collection: audio
      max_depth: 8

platform:
  api_level: 0          # 0 = unknown, falls back to default_tier
  tier: auto            # auto | unrestricted | recoverable | consent
  default_tier: consent
  all_files_access: false          # host grant; lifts the consent tier at api_level >= 30
  require_all_files_access: false  # refuse deletions while the grant is missing

deletion:
  consent_timeout: 2m
  external_remove: true
  external_remove_wait: 100ms
  journal: true
  journal_retention: 720h

consent:
  secret: ""
  signature_header: X-Hostbridge-Signature

printer:
  transport: rfcomm     # rfcomm | tcp
  channel: 1
  paired: []

notification:
  channel_id: MusicPlayerChannel
  id: 1

api:
  enabled: true
  listen: 127.0.0.1:8080
  max_sync_wait: 30s
  rate_limit: 60
  auth:
    api_key: ${HOSTBRIDGE_API_KEY}
`

// WriteDefault writes the default configuration to path atomically.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%w: %s", ErrConfigExists, path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	pending, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o600))
	if err != nil {
		return fmt.Errorf("create pending config file: %w", err)
	}
	defer func() { _ = pending.Cleanup() }()

	if _, err := pending.WriteString(defaultTemplate); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace config file: %w", err)
	}
	return nil
}
