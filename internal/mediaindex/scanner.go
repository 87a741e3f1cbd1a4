package mediaindex

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zeebo/blake3"
)

// fingerprintBytes bounds how much of each file is hashed.
const fingerprintBytes = 64 * 1024

// Scanner walks index roots and upserts matching files.
type Scanner struct {
	store  *Store
	logger *slog.Logger
}

func NewScanner(store *Store, logger *slog.Logger) *Scanner {
	return &Scanner{store: store, logger: logger}
}

// ScanRoot indexes every matching file under root. Files that resolve
// outside the root through symlinks are skipped.
func (sc *Scanner) ScanRoot(ctx context.Context, root Root) (*ScanResult, error) {
	result := &ScanResult{Root: root.Path, Started: time.Now().UTC()}
	finish := func(err error) (*ScanResult, error) {
		result.Finished = time.Now().UTC()
		if err != nil {
			result.LastError = err.Error()
		}
		return result, err
	}

	rootAbs, err := filepath.Abs(root.Path)
	if err != nil {
		return finish(fmt.Errorf("resolve root path: %w", err))
	}
	rootResolved, err := filepath.EvalSymlinks(rootAbs)
	if err != nil {
		return finish(fmt.Errorf("resolve root path: %w", err))
	}
	rootResolved = filepath.Clean(rootResolved)

	extensions := root.Extensions
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	collection := root.Collection
	if collection == "" {
		collection = CollectionAudio
	}

	err = filepath.WalkDir(rootAbs, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			result.ErrorCount++
			result.LastError = walkErr.Error()
			sc.logger.Warn("index scan walk error", "path", path, "error", walkErr)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if root.MaxDepth > 0 && path != rootAbs {
				rel, err := filepath.Rel(rootAbs, path)
				if err != nil {
					return fs.SkipDir
				}
				if strings.Count(rel, string(os.PathSeparator))+1 > root.MaxDepth {
					return fs.SkipDir
				}
			}
			return nil
		}

		result.TotalScanned++
		if !IsAllowedExtension(filepath.Ext(d.Name()), extensions) {
			result.ItemsSkipped++
			return nil
		}

		resolved, err := filepath.EvalSymlinks(path)
		if err != nil {
			result.ItemsSkipped++
			sc.logger.Debug("index scan skip unresolvable file", "path", path, "error", err)
			return nil
		}
		rel, err := filepath.Rel(rootResolved, resolved)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
			result.ItemsSkipped++
			sc.logger.Warn("index scan skip file outside root", "path", path)
			return nil
		}

		if _, err := sc.IndexFile(ctx, path, collection, root.Owner); err != nil {
			result.ErrorCount++
			result.LastError = err.Error()
			sc.logger.Warn("index scan upsert failed", "path", path, "error", err)
			return nil
		}
		result.ItemsUpserted++
		return nil
	})
	if err != nil {
		return finish(err)
	}

	result.Finished = time.Now().UTC()
	sc.logger.Info("index scan complete",
		"root", root.Path,
		"scanned", result.TotalScanned,
		"upserted", result.ItemsUpserted,
		"skipped", result.ItemsSkipped,
		"errors", result.ErrorCount,
	)
	return result, nil
}

// IndexFile stats, fingerprints and upserts a single file.
func (sc *Scanner) IndexFile(ctx context.Context, path string, collection Collection, owner string) (Entry, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Entry{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return Entry{}, fmt.Errorf("%s is a directory", path)
	}
	fp, err := Fingerprint(path)
	if err != nil {
		return Entry{}, err
	}
	e := Entry{
		Path:        filepath.Clean(path),
		Collection:  collection,
		Owner:       owner,
		DisplayName: info.Name(),
		SizeBytes:   info.Size(),
		ModTime:     info.ModTime(),
		Fingerprint: fp,
	}
	id, err := sc.store.Upsert(ctx, e)
	if err != nil {
		return Entry{}, err
	}
	e.ID = id
	return e, nil
}

// Fingerprint hashes the head of a file with BLAKE3.
func Fingerprint(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	h := blake3.New()
	if _, err := io.Copy(h, io.LimitReader(f, fingerprintBytes)); err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// IsAllowedExtension reports whether ext is in allowed, case-insensitively.
func IsAllowedExtension(ext string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if !strings.HasPrefix(a, ".") {
			a = "." + a
		}
		if strings.EqualFold(ext, a) {
			return true
		}
	}
	return false
}
