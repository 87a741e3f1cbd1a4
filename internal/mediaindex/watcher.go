package mediaindex

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Watcher keeps the index in step with its roots the way the host's media
// scanner does: new or rewritten files are indexed, vanished files purged.
type Watcher struct {
	scanner *Scanner
	store   *Store
	roots   []Root
	logger  *slog.Logger
}

func NewWatcher(scanner *Scanner, store *Store, roots []Root, logger *slog.Logger) *Watcher {
	return &Watcher{scanner: scanner, store: store, roots: roots, logger: logger}
}

// Run blocks until ctx is cancelled or the underlying watcher fails.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fsnotify.NewWatcher: %w", err)
	}
	defer func() { _ = fw.Close() }()

	for _, root := range w.roots {
		if err := w.addTree(fw, root.Path); err != nil {
			return err
		}
	}
	w.logger.Info("index watcher started", "roots", len(w.roots))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("index watcher stopped")
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return fmt.Errorf("watcher channel closed")
			}
			w.handle(ctx, fw, ev)
		case err, ok := <-fw.Errors:
			if !ok {
				return fmt.Errorf("watcher error channel closed")
			}
			w.logger.Warn("fsnotify watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, fw *fsnotify.Watcher, ev fsnotify.Event) {
	root, ok := w.rootFor(ev.Name)
	if !ok {
		return
	}

	switch {
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		n, err := w.store.PurgePath(ctx, filepath.Clean(ev.Name))
		if err != nil {
			w.logger.Warn("index purge failed", "path", ev.Name, "error", err)
			return
		}
		if n > 0 {
			w.logger.Debug("index purged vanished file", "path", ev.Name, "rows", n)
		}
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		info, err := os.Stat(ev.Name)
		if err != nil {
			return
		}
		if info.IsDir() {
			if ev.Has(fsnotify.Create) {
				if err := w.addTree(fw, ev.Name); err != nil {
					w.logger.Warn("index watch add failed", "path", ev.Name, "error", err)
				}
			}
			return
		}
		extensions := root.Extensions
		if len(extensions) == 0 {
			extensions = DefaultExtensions
		}
		if !IsAllowedExtension(filepath.Ext(ev.Name), extensions) {
			return
		}
		collection := root.Collection
		if collection == "" {
			collection = CollectionAudio
		}
		if _, err := w.scanner.IndexFile(ctx, ev.Name, collection, root.Owner); err != nil {
			w.logger.Warn("index update failed", "path", ev.Name, "error", err)
		}
	}
}

func (w *Watcher) addTree(fw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		if !d.IsDir() {
			return nil
		}
		if err := fw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) rootFor(path string) (Root, bool) {
	clean := filepath.Clean(path)
	for _, r := range w.roots {
		base := filepath.Clean(r.Path)
		if clean == base || strings.HasPrefix(clean, base+string(os.PathSeparator)) {
			return r, true
		}
	}
	return Root{}, false
}
