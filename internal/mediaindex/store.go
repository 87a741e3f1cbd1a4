package mediaindex

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Options controls how the store treats deletions.
type Options struct {
	// Owner is the package identity deletions are attributed to.
	Owner string
	// EnforceOwnership makes DeleteByID and DeleteByPath refuse rows owned
	// by anyone else with ErrNotOwner.
	EnforceOwnership bool
}

// Store is the SQLite-backed index.
type Store struct {
	db      *sql.DB
	owner   string
	enforce bool
}

func NewStore(db *sql.DB, opts Options) *Store {
	return &Store{
		db:      db,
		owner:   opts.Owner,
		enforce: opts.EnforceOwnership,
	}
}

// Owner returns the identity deletions are attributed to.
func (s *Store) Owner() string { return s.owner }

const entryColumns = `id, data, collection, owner, display_name, size_bytes, mod_time, fingerprint, indexed_at`

// Upsert inserts or refreshes the row for (collection, path) and returns its id.
func (s *Store) Upsert(ctx context.Context, e Entry) (int64, error) {
	if e.Path == "" {
		return 0, fmt.Errorf("index path is empty")
	}
	if e.Collection == "" {
		e.Collection = CollectionAudio
	}
	now := time.Now().UTC()
	var modTime any
	if !e.ModTime.IsZero() {
		modTime = e.ModTime.UTC().Format(time.RFC3339Nano)
	}
	var fingerprint any
	if e.Fingerprint != "" {
		fingerprint = e.Fingerprint
	}

	var id int64
	err := s.db.QueryRowContext(ctx, `
INSERT INTO media_index(data, collection, owner, display_name, size_bytes, mod_time, fingerprint, indexed_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(collection, data) DO UPDATE SET
  display_name = excluded.display_name,
  size_bytes   = excluded.size_bytes,
  mod_time     = excluded.mod_time,
  fingerprint  = excluded.fingerprint,
  indexed_at   = excluded.indexed_at
RETURNING id;
`, e.Path, string(e.Collection), e.Owner, e.DisplayName, e.SizeBytes, modTime, fingerprint, now.Format(time.RFC3339Nano)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert index entry: %w", err)
	}
	return id, nil
}

// FindByPath returns the audio row whose stored path equals path exactly.
func (s *Store) FindByPath(ctx context.Context, path string) (Entry, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+entryColumns+`
FROM media_index
WHERE collection = ? AND data = ?
ORDER BY id ASC
LIMIT 1;`, string(CollectionAudio), path)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("query index by path: %w", err)
	}
	return e, true, nil
}

// Get returns a row by id.
func (s *Store) Get(ctx context.Context, id int64) (Entry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM media_index WHERE id = ?;`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrEntryNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("get index entry: %w", err)
	}
	return e, nil
}

// DeleteByID removes a single row, subject to ownership enforcement.
func (s *Store) DeleteByID(ctx context.Context, id int64) (int64, error) {
	if s.enforce {
		var owner string
		err := s.db.QueryRowContext(ctx, `SELECT owner FROM media_index WHERE id = ?;`, id).Scan(&owner)
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		if err != nil {
			return 0, fmt.Errorf("read index owner: %w", err)
		}
		if owner != s.owner {
			return 0, fmt.Errorf("delete index entry %d: %w", id, ErrNotOwner)
		}
	}
	return s.exec(ctx, `DELETE FROM media_index WHERE id = ?;`, id)
}

// DeleteByPath removes every row in either collection whose stored path
// equals path. Under enforcement it removes the caller's rows and reports
// ErrNotOwner if foreign rows remain.
func (s *Store) DeleteByPath(ctx context.Context, path string) (int64, error) {
	if !s.enforce {
		return s.exec(ctx, `DELETE FROM media_index WHERE data = ?;`, path)
	}

	n, err := s.exec(ctx, `DELETE FROM media_index WHERE data = ? AND owner = ?;`, path, s.owner)
	if err != nil {
		return 0, err
	}
	var foreign int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM media_index WHERE data = ?;`, path).Scan(&foreign); err != nil {
		return n, fmt.Errorf("count remaining index rows: %w", err)
	}
	if foreign > 0 {
		return n, fmt.Errorf("delete index rows for %q: %w", path, ErrNotOwner)
	}
	return n, nil
}

// DeleteApproved removes a row whose deletion the user confirmed through the
// host consent surface. Ownership is not checked.
func (s *Store) DeleteApproved(ctx context.Context, id int64) (int64, error) {
	return s.exec(ctx, `DELETE FROM media_index WHERE id = ?;`, id)
}

// PurgePath is host housekeeping for files that vanished from disk.
func (s *Store) PurgePath(ctx context.Context, path string) (int64, error) {
	return s.exec(ctx, `DELETE FROM media_index WHERE data = ?;`, path)
}

// List returns rows ordered by path. limit <= 0 means no limit.
func (s *Store) List(ctx context.Context, prefix string, limit int) ([]Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM media_index`
	var args []any
	if prefix != "" {
		query += ` WHERE data LIKE ? ESCAPE '\'`
		args = append(args, escapeLike(prefix)+"%")
	}
	query += ` ORDER BY data ASC, id ASC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list index entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan index entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Count returns the number of rows across both collections.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM media_index;`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count index entries: %w", err)
	}
	return n, nil
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete index rows: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(r rowScanner) (Entry, error) {
	var (
		e           Entry
		collection  string
		modTimeS    sql.NullString
		fingerprint sql.NullString
		indexedAtS  string
	)
	if err := r.Scan(&e.ID, &e.Path, &collection, &e.Owner, &e.DisplayName, &e.SizeBytes, &modTimeS, &fingerprint, &indexedAtS); err != nil {
		return Entry{}, err
	}
	e.Collection = Collection(collection)
	if modTimeS.Valid {
		if t, err := time.Parse(time.RFC3339Nano, modTimeS.String); err == nil {
			e.ModTime = t
		}
	}
	if fingerprint.Valid {
		e.Fingerprint = fingerprint.String
	}
	if t, err := time.Parse(time.RFC3339Nano, indexedAtS); err == nil {
		e.IndexedAt = t
	}
	return e, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
