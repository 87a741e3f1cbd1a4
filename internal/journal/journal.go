// Package journal keeps an audit trail of resolved deletion requests.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/hostbridge/internal/deletion"
)

// Entry is one journaled deletion.
type Entry struct {
	ID           string          `json:"id"`
	RequestToken string          `json:"request_token"`
	Locator      string          `json:"locator"`
	Path         string          `json:"path"`
	Tier         string          `json:"tier"`
	Deleted      bool            `json:"deleted"`
	Partial      bool            `json:"partial"`
	ErrorKind    string          `json:"error_kind,omitempty"`
	LastError    string          `json:"last_error,omitempty"`
	Report       json.RawMessage `json:"report"`
	CreatedAt    time.Time       `json:"created_at"`
	CompletedAt  time.Time       `json:"completed_at"`
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Record persists a resolved deletion. It satisfies deletion.Journal.
func (s *Store) Record(ctx context.Context, r deletion.Result) error {
	report, err := json.Marshal(r.Report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	var errorKind, lastError any
	if r.Err != nil {
		errorKind = string(r.Err.Kind)
		lastError = r.Err.Error()
	}

	completed := r.CompletedAt
	if completed.IsZero() {
		completed = time.Now().UTC()
	}
	created := r.StartedAt
	if created.IsZero() {
		created = completed
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO deletion_log(id, request_token, locator, path, tier, deleted, partial, error_kind, last_error, report, created_at, completed_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`,
		uuid.NewString(),
		r.Token,
		r.Locator,
		r.Path,
		r.Tier.String(),
		boolToInt(r.Deleted),
		boolToInt(r.Partial),
		errorKind,
		lastError,
		string(report),
		created.UTC().Format(time.RFC3339Nano),
		completed.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert deletion_log: %w", err)
	}
	return nil
}

// Recent returns the newest entries first. limit <= 0 defaults to 50.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, request_token, locator, path, tier, deleted, partial, error_kind, last_error, report, created_at, completed_at
FROM deletion_log
ORDER BY completed_at DESC, rowid DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query deletion_log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Entry
	for rows.Next() {
		var (
			e                    Entry
			deleted, partial     int
			errorKind, lastError sql.NullString
			report               string
			createdS, completedS string
		)
		if err := rows.Scan(&e.ID, &e.RequestToken, &e.Locator, &e.Path, &e.Tier, &deleted, &partial, &errorKind, &lastError, &report, &createdS, &completedS); err != nil {
			return nil, fmt.Errorf("scan deletion_log: %w", err)
		}
		e.Deleted = deleted != 0
		e.Partial = partial != 0
		e.ErrorKind = errorKind.String
		e.LastError = lastError.String
		e.Report = json.RawMessage(report)
		if t, err := time.Parse(time.RFC3339Nano, createdS); err == nil {
			e.CreatedAt = t
		}
		if t, err := time.Parse(time.RFC3339Nano, completedS); err == nil {
			e.CompletedAt = t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Prune deletes entries completed before now-retention.
func (s *Store) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().Add(-retention).Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx, `DELETE FROM deletion_log WHERE completed_at < ?;`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune deletion_log: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
