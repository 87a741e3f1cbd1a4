package mediaindex

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/hostbridge/internal/log"
)

func TestWatcherIndexesAndPurges(t *testing.T) {
	s := openTestStore(t, false)
	root := t.TempDir()
	roots := []Root{{Path: root, Owner: testOwner}}
	w := NewWatcher(NewScanner(s, log.Discard()), s, roots, log.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Give the watcher a moment to register the root.
	time.Sleep(100 * time.Millisecond)

	path := filepath.Join(root, "new.mp3")
	writeFile(t, path, "fresh")

	require.Eventually(t, func() bool {
		_, ok, err := s.FindByPath(context.Background(), path)
		return err == nil && ok
	}, 3*time.Second, 20*time.Millisecond)

	require.NoError(t, os.Remove(path))

	require.Eventually(t, func() bool {
		_, ok, err := s.FindByPath(context.Background(), path)
		return err == nil && !ok
	}, 3*time.Second, 20*time.Millisecond)
}

func TestWatcherIgnoresOtherExtensions(t *testing.T) {
	s := openTestStore(t, false)
	root := t.TempDir()
	w := NewWatcher(NewScanner(s, log.Discard()), s, []Root{{Path: root}}, log.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	writeFile(t, filepath.Join(root, "readme.txt"), "x")
	time.Sleep(200 * time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	n, err := s.Count(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)
}
