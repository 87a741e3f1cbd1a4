package mediaindex

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/hostbridge/internal/log"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestScanRootIndexesMatchingFiles(t *testing.T) {
	s := openTestStore(t, false)
	root := t.TempDir()

	writeFile(t, filepath.Join(root, "a.mp3"), "aaa")
	writeFile(t, filepath.Join(root, "album", "b.FLAC"), "bbb")
	writeFile(t, filepath.Join(root, "notes.txt"), "skip")

	sc := NewScanner(s, log.Discard())
	res, err := sc.ScanRoot(context.Background(), Root{Path: root, Owner: testOwner})
	require.NoError(t, err)
	assert.Equal(t, 3, res.TotalScanned)
	assert.Equal(t, 2, res.ItemsUpserted)
	assert.Equal(t, 1, res.ItemsSkipped)
	assert.Zero(t, res.ErrorCount)

	e, ok, err := s.FindByPath(context.Background(), filepath.Join(root, "album", "b.FLAC"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, testOwner, e.Owner)
	assert.Equal(t, "b.FLAC", e.DisplayName)
	assert.Len(t, e.Fingerprint, 64)
}

func TestScanRootHonorsMaxDepth(t *testing.T) {
	s := openTestStore(t, false)
	root := t.TempDir()

	writeFile(t, filepath.Join(root, "top.mp3"), "1")
	writeFile(t, filepath.Join(root, "d1", "one.mp3"), "2")
	writeFile(t, filepath.Join(root, "d1", "d2", "two.mp3"), "3")

	sc := NewScanner(s, log.Discard())
	res, err := sc.ScanRoot(context.Background(), Root{Path: root, MaxDepth: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, res.ItemsUpserted)

	_, ok, err := s.FindByPath(context.Background(), filepath.Join(root, "d1", "d2", "two.mp3"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestScanRootSkipsSymlinkEscapes(t *testing.T) {
	s := openTestStore(t, false)
	root := t.TempDir()
	outside := t.TempDir()

	writeFile(t, filepath.Join(outside, "secret.mp3"), "x")
	require.NoError(t, os.Symlink(filepath.Join(outside, "secret.mp3"), filepath.Join(root, "link.mp3")))

	sc := NewScanner(s, log.Discard())
	res, err := sc.ScanRoot(context.Background(), Root{Path: root})
	require.NoError(t, err)
	assert.Zero(t, res.ItemsUpserted)
	assert.Equal(t, 1, res.ItemsSkipped)
}

func TestScanRootMissingRoot(t *testing.T) {
	s := openTestStore(t, false)
	sc := NewScanner(s, log.Discard())

	res, err := sc.ScanRoot(context.Background(), Root{Path: filepath.Join(t.TempDir(), "missing")})
	require.Error(t, err)
	require.NotNil(t, res)
	assert.NotEmpty(t, res.LastError)
}

func TestFingerprintReadsOnlyHead(t *testing.T) {
	dir := t.TempDir()
	head := strings.Repeat("a", fingerprintBytes)
	writeFile(t, filepath.Join(dir, "one"), head+"tail-one")
	writeFile(t, filepath.Join(dir, "two"), head+"tail-two")

	a, err := Fingerprint(filepath.Join(dir, "one"))
	require.NoError(t, err)
	b, err := Fingerprint(filepath.Join(dir, "two"))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestIsAllowedExtension(t *testing.T) {
	assert.True(t, IsAllowedExtension(".MP3", []string{".mp3"}))
	assert.True(t, IsAllowedExtension(".ogg", []string{"ogg"}))
	assert.False(t, IsAllowedExtension(".txt", DefaultExtensions))
	assert.True(t, IsAllowedExtension(".anything", nil))
}
