package mediaindex

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/hostbridge/internal/storage"
)

const testOwner = "com.example.player"

func openTestStore(t *testing.T, enforce bool) *Store {
	t.Helper()
	db, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db, Options{Owner: testOwner, EnforceOwnership: enforce})
}

func TestUpsertAndFindByPath(t *testing.T) {
	s := openTestStore(t, false)
	ctx := context.Background()

	mod := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	id, err := s.Upsert(ctx, Entry{Path: "/music/a.mp3", Owner: testOwner, DisplayName: "a.mp3", SizeBytes: 42, ModTime: mod})
	require.NoError(t, err)
	require.NotZero(t, id)

	e, ok, err := s.FindByPath(ctx, "/music/a.mp3")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, id, e.ID)
	assert.Equal(t, CollectionAudio, e.Collection)
	assert.Equal(t, int64(42), e.SizeBytes)
	assert.True(t, mod.Equal(e.ModTime))
	assert.False(t, e.IndexedAt.IsZero())

	again, err := s.Upsert(ctx, Entry{Path: "/music/a.mp3", Owner: testOwner, DisplayName: "a.mp3", SizeBytes: 43})
	require.NoError(t, err)
	assert.Equal(t, id, again, "upsert keeps the row id")
}

func TestFindByPathIsExactMatch(t *testing.T) {
	s := openTestStore(t, false)
	ctx := context.Background()

	_, err := s.Upsert(ctx, Entry{Path: "/music/a.mp3"})
	require.NoError(t, err)

	for _, p := range []string{"/music/A.mp3", "/music/a.mp3/", "music/a.mp3", "/music/a.mp"} {
		_, ok, err := s.FindByPath(ctx, p)
		require.NoError(t, err)
		assert.False(t, ok, "path %q must not match", p)
	}
}

func TestFindByPathIgnoresFilesCollection(t *testing.T) {
	s := openTestStore(t, false)
	ctx := context.Background()

	_, err := s.Upsert(ctx, Entry{Path: "/docs/a.mp3", Collection: CollectionFiles})
	require.NoError(t, err)

	_, ok, err := s.FindByPath(ctx, "/docs/a.mp3")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteByIDEnforcesOwnership(t *testing.T) {
	s := openTestStore(t, true)
	ctx := context.Background()

	mine, err := s.Upsert(ctx, Entry{Path: "/music/mine.mp3", Owner: testOwner})
	require.NoError(t, err)
	theirs, err := s.Upsert(ctx, Entry{Path: "/music/theirs.mp3", Owner: "com.other"})
	require.NoError(t, err)

	n, err := s.DeleteByID(ctx, mine)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = s.DeleteByID(ctx, theirs)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotOwner))

	_, err = s.Get(ctx, theirs)
	require.NoError(t, err, "foreign row must survive")

	n, err = s.DeleteByID(ctx, 9999)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDeleteByPathSpansCollections(t *testing.T) {
	s := openTestStore(t, false)
	ctx := context.Background()

	_, err := s.Upsert(ctx, Entry{Path: "/music/a.mp3", Collection: CollectionAudio})
	require.NoError(t, err)
	_, err = s.Upsert(ctx, Entry{Path: "/music/a.mp3", Collection: CollectionFiles})
	require.NoError(t, err)
	_, err = s.Upsert(ctx, Entry{Path: "/music/b.mp3"})
	require.NoError(t, err)

	n, err := s.DeleteByPath(ctx, "/music/a.mp3")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestDeleteByPathReportsForeignRows(t *testing.T) {
	s := openTestStore(t, true)
	ctx := context.Background()

	_, err := s.Upsert(ctx, Entry{Path: "/music/a.mp3", Collection: CollectionAudio, Owner: "com.other"})
	require.NoError(t, err)
	_, err = s.Upsert(ctx, Entry{Path: "/music/a.mp3", Collection: CollectionFiles, Owner: testOwner})
	require.NoError(t, err)

	n, err := s.DeleteByPath(ctx, "/music/a.mp3")
	assert.ErrorIs(t, err, ErrNotOwner)
	assert.Equal(t, int64(1), n)

	_, ok, err := s.FindByPath(ctx, "/music/a.mp3")
	require.NoError(t, err)
	assert.True(t, ok, "foreign audio row survives")
}

func TestDeleteApprovedIgnoresOwnership(t *testing.T) {
	s := openTestStore(t, true)
	ctx := context.Background()

	id, err := s.Upsert(ctx, Entry{Path: "/music/theirs.mp3", Owner: "com.other"})
	require.NoError(t, err)

	n, err := s.DeleteApproved(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = s.Get(ctx, id)
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestListWithPrefixAndLimit(t *testing.T) {
	s := openTestStore(t, false)
	ctx := context.Background()

	for _, p := range []string{"/music/b.mp3", "/music/a.mp3", "/podcasts/x.mp3", "/music_other/c.mp3"} {
		_, err := s.Upsert(ctx, Entry{Path: p})
		require.NoError(t, err)
	}

	all, err := s.List(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "/music/a.mp3", all[0].Path)

	music, err := s.List(ctx, "/music/", 0)
	require.NoError(t, err)
	require.Len(t, music, 2)

	limited, err := s.List(ctx, "", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestUpsertRejectsEmptyPath(t *testing.T) {
	s := openTestStore(t, false)
	_, err := s.Upsert(context.Background(), Entry{})
	require.Error(t, err)
}

func TestParseCollection(t *testing.T) {
	c, err := ParseCollection("")
	require.NoError(t, err)
	assert.Equal(t, CollectionAudio, c)

	c, err = ParseCollection("files")
	require.NoError(t, err)
	assert.Equal(t, CollectionFiles, c)

	_, err = ParseCollection("video")
	assert.Error(t, err)
}
