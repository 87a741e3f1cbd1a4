package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Mount is the filesystem a path lives on, read from the nearest ancestor
// that exists.
type Mount struct {
	Path   string
	FSType string
	// Network mounts break SQLite locking and make existence checks lag
	// behind other hosts.
	Network bool
	// Watchable is false where inotify misses changes made elsewhere.
	Watchable bool
}

type fsTypeFunc func(path string) (string, error)

var networkTypes = map[string]bool{
	"afpfs":  true,
	"cifs":   true,
	"nfs":    true,
	"smbfs":  true,
	"smb2":   true,
	"webdav": true,
}

// InspectMount classifies the filesystem under path. Unsupported platforms
// report an empty type, which reads as local.
func InspectMount(path string) (Mount, error) {
	return inspectMount(path, filesystemType)
}

func inspectMount(path string, fsType fsTypeFunc) (Mount, error) {
	dir, err := existingAncestor(path)
	if err != nil {
		return Mount{}, err
	}
	t, err := fsType(dir)
	if err != nil {
		return Mount{}, fmt.Errorf("detect filesystem for %q: %w", dir, err)
	}
	t = strings.ToLower(strings.TrimSpace(t))
	network := networkTypes[t]
	return Mount{
		Path:      dir,
		FSType:    t,
		Network:   network,
		Watchable: !network && t != "fuse",
	}, nil
}

// CheckLocalFilesystem refuses a database path on a network mount. The
// media index and the deletion journal both depend on SQLite locking.
func CheckLocalFilesystem(path string) error {
	return checkLocal(path, filesystemType)
}

func checkLocal(path string, fsType fsTypeFunc) error {
	switch {
	case path == "":
		return errors.New("database path is empty")
	case isMemoryPath(path):
		return nil
	}
	m, err := inspectMount(path, fsType)
	if err != nil {
		return fmt.Errorf("database path %q: %w", path, err)
	}
	if m.Network {
		return fmt.Errorf("database path %q is on network filesystem %q; SQLite requires a local filesystem for reliable locking. Point index.path at local disk",
			path, m.FSType)
	}
	return nil
}

func existingAncestor(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("absolute path: %w", err)
	}
	for p := abs; ; p = filepath.Dir(p) {
		_, err := os.Stat(p)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("stat %q: %w", p, err)
		}
		if filepath.Dir(p) == p {
			return "", fmt.Errorf("no existing parent for %q", abs)
		}
	}
}

func isMemoryPath(path string) bool {
	return path == ":memory:" || strings.HasPrefix(path, "file::memory:")
}
