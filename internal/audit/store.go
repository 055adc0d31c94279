// Package audit keeps a PostgreSQL history of dictionary operations.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/morphdict/internal/dictionary"
	"github.com/Adithya-Monish-Kumar-K/morphdict/pkg/postgres"
)

const schema = `
CREATE TABLE IF NOT EXISTS dictionary_audit (
    id          BIGSERIAL PRIMARY KEY,
    operation   TEXT NOT NULL,
    dictionary  TEXT NOT NULL,
    encoding    TEXT NOT NULL,
    added       INTEGER NOT NULL DEFAULT 0,
    removed     INTEGER NOT NULL DEFAULT 0,
    duplicates  INTEGER NOT NULL DEFAULT 0,
    total       INTEGER NOT NULL,
    changed     BOOLEAN NOT NULL,
    dry_run     BOOLEAN NOT NULL DEFAULT FALSE,
    request_id  TEXT,
    recorded_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS dictionary_audit_dictionary_idx
    ON dictionary_audit (dictionary, recorded_at DESC);
`

// DefaultLimit bounds List when the caller passes a non-positive limit.
const DefaultLimit = 50

// Entry is one row of the audit log.
type Entry struct {
	ID         int64     `json:"id"`
	Operation  string    `json:"operation"`
	Dictionary string    `json:"dictionary"`
	Encoding   string    `json:"encoding"`
	Added      int       `json:"added"`
	Removed    int       `json:"removed"`
	Duplicates int       `json:"duplicates_removed"`
	Total      int       `json:"total"`
	Changed    bool      `json:"changed"`
	DryRun     bool      `json:"dry_run"`
	RequestID  string    `json:"request_id,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Store persists operation reports in the dictionary_audit table.
type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

func NewStore(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "audit-store"),
	}
}

// Migrate creates the audit table and its index when missing.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.Migrate(ctx, "dictionary_audit", schema); err != nil {
		return fmt.Errorf("creating audit schema: %w", err)
	}
	return nil
}

// Record inserts r. It satisfies dictionary.AuditRecorder.
func (s *Store) Record(ctx context.Context, r dictionary.Report) error {
	at := r.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err := s.db.DB.ExecContext(ctx,
		`INSERT INTO dictionary_audit
			(operation, dictionary, encoding, added, removed, duplicates, total, changed, dry_run, request_id, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		string(r.Operation), r.Dictionary, r.Encoding.String(),
		r.Added, r.Removed, r.Duplicates, r.Total, r.Changed, r.DryRun,
		nullableString(r.RequestID), at,
	)
	if err != nil {
		return fmt.Errorf("recording %s on %s: %w", r.Operation, r.Dictionary, err)
	}
	return nil
}

// List returns the newest entries for dictionary, newest first.
func (s *Store) List(ctx context.Context, dictionary string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT id, operation, dictionary, encoding, added, removed, duplicates, total, changed, dry_run,
			COALESCE(request_id, ''), recorded_at
		FROM dictionary_audit
		WHERE dictionary = $1
		ORDER BY recorded_at DESC, id DESC
		LIMIT $2`,
		dictionary, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing audit entries: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Operation, &e.Dictionary, &e.Encoding,
			&e.Added, &e.Removed, &e.Duplicates, &e.Total, &e.Changed, &e.DryRun,
			&e.RequestID, &e.RecordedAt); err != nil {
			return nil, fmt.Errorf("scanning audit row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
