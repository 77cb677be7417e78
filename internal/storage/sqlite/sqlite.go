package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/FranksOps/slsharvest/internal/storage"
	_ "modernc.org/sqlite"
)

// ensure sqliteBackend implements storage.Backend
var _ storage.Backend = (*sqliteBackend)(nil)

type sqliteBackend struct {
	db *sql.DB
}

// created_at is stored as Unix nanoseconds so ordering and range filters
// compare integers rather than formatted strings.
const schema = `
CREATE TABLE IF NOT EXISTS page_records (
	id TEXT PRIMARY KEY,
	run_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	filename TEXT NOT NULL,
	range_start INTEGER NOT NULL,
	range_end INTEGER NOT NULL,
	page INTEGER NOT NULL,
	status_code INTEGER NOT NULL,
	outcome TEXT NOT NULL,
	items INTEGER NOT NULL,
	pages INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	error TEXT
);
CREATE INDEX IF NOT EXISTS page_records_run ON page_records (run_id, filename);
`

// New creates a new SQLite-backed storage.Backend.
func New(dsn string) (storage.Backend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	// A single connection serializes writers from concurrent targets.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: %w", err)
	}

	return &sqliteBackend{db: db}, nil
}

func (b *sqliteBackend) Save(ctx context.Context, r *storage.PageRecord) error {
	query := `
	INSERT INTO page_records (
		id, run_id, kind, filename, range_start, range_end, page, status_code, outcome, items, pages, duration_ms, created_at, error
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := b.db.ExecContext(ctx, query,
		r.ID,
		r.RunID,
		string(r.Kind),
		r.Filename,
		r.RangeStart,
		r.RangeEnd,
		r.Page,
		r.StatusCode,
		string(r.Outcome),
		r.Items,
		r.Pages,
		r.Duration.Milliseconds(),
		r.CreatedAt.UnixNano(),
		r.Error,
	)
	if err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}
	return nil
}

func (b *sqliteBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.PageRecord, error) {
	query := `SELECT id, run_id, kind, filename, range_start, range_end, page, status_code, outcome, items, pages, duration_ms, created_at, error FROM page_records WHERE 1=1`
	args := []any{}

	if filter.RunID != "" {
		query += ` AND run_id = ?`
		args = append(args, filter.RunID)
	}
	if filter.Filename != "" {
		query += ` AND filename = ?`
		args = append(args, filter.Filename)
	}
	if filter.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(filter.Kind))
	}
	if filter.Outcome != "" {
		query += ` AND outcome = ?`
		args = append(args, string(filter.Outcome))
	}
	if filter.Since != nil {
		query += ` AND created_at >= ?`
		args = append(args, filter.Since.UnixNano())
	}

	query += ` ORDER BY created_at ASC, rowid ASC`

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	} else if filter.Offset > 0 {
		// SQLite only accepts OFFSET after a LIMIT clause.
		query += ` LIMIT -1`
	}
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	defer rows.Close()

	var records []*storage.PageRecord
	for rows.Next() {
		var r storage.PageRecord
		var kind, outcome string
		var errText sql.NullString
		var durationMs, createdAt int64

		err := rows.Scan(
			&r.ID, &r.RunID, &kind, &r.Filename, &r.RangeStart, &r.RangeEnd, &r.Page,
			&r.StatusCode, &outcome, &r.Items, &r.Pages, &durationMs, &createdAt, &errText,
		)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}

		r.Kind = storage.Kind(kind)
		r.Outcome = storage.Outcome(outcome)
		r.Duration = time.Duration(durationMs) * time.Millisecond
		r.CreatedAt = time.Unix(0, createdAt).UTC()
		r.Error = errText.String
		records = append(records, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}

	return records, nil
}

func (b *sqliteBackend) Close() error {
	return b.db.Close()
}
