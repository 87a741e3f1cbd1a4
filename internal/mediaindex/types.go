// Package mediaindex is the system content index: a host-maintained catalog
// of media files that may reference a file independently of its filesystem
// entry. Rows carry an owner so the host can refuse deletions requested by a
// package that did not create them.
package mediaindex

import (
	"errors"
	"fmt"
	"time"
)

// Collection partitions the index the way the host does.
type Collection string

const (
	CollectionAudio Collection = "audio"
	CollectionFiles Collection = "files"
)

func (c Collection) String() string {
	return string(c)
}

// ParseCollection accepts "audio" or "files"; empty means audio.
func ParseCollection(s string) (Collection, error) {
	switch Collection(s) {
	case "", CollectionAudio:
		return CollectionAudio, nil
	case CollectionFiles:
		return CollectionFiles, nil
	default:
		return "", fmt.Errorf("unknown collection %q", s)
	}
}

// Entry is a single index row.
type Entry struct {
	ID          int64      `json:"id"`
	Path        string     `json:"path"`
	Collection  Collection `json:"collection"`
	Owner       string     `json:"owner"`
	DisplayName string     `json:"display_name"`
	SizeBytes   int64      `json:"size_bytes"`
	ModTime     time.Time  `json:"mod_time"`
	Fingerprint string     `json:"fingerprint,omitempty"`
	IndexedAt   time.Time  `json:"indexed_at"`
}

var (
	// ErrNotOwner is the host's recoverable security fault: the caller tried
	// to delete a row some other package owns.
	ErrNotOwner = errors.New("index row is owned by another package")

	ErrEntryNotFound = errors.New("index entry not found")
)

// Root describes a directory tree the host indexer covers.
type Root struct {
	Path       string
	Extensions []string
	MaxDepth   int
	Collection Collection
	Owner      string
}

// DefaultExtensions are the audio formats indexed when a root lists none.
var DefaultExtensions = []string{".mp3", ".m4a", ".flac", ".wav", ".ogg", ".aac", ".opus"}

// ScanResult reports the outcome of a root scan.
type ScanResult struct {
	Root          string    `json:"root"`
	Started       time.Time `json:"started"`
	Finished      time.Time `json:"finished"`
	TotalScanned  int       `json:"total_scanned"`
	ItemsUpserted int       `json:"items_upserted"`
	ItemsSkipped  int       `json:"items_skipped"`
	ErrorCount    int       `json:"error_count"`
	LastError     string    `json:"last_error,omitempty"`
}
