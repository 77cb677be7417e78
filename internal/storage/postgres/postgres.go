package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/FranksOps/slsharvest/internal/storage"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ensure postgresBackend implements storage.Backend
var _ storage.Backend = (*postgresBackend)(nil)

type postgresBackend struct {
	pool *pgxpool.Pool
}

const schema = `
CREATE TABLE IF NOT EXISTS page_records (
	id TEXT PRIMARY KEY,
	run_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	filename TEXT NOT NULL,
	range_start BIGINT NOT NULL,
	range_end BIGINT NOT NULL,
	page INTEGER NOT NULL,
	status_code INTEGER NOT NULL,
	outcome TEXT NOT NULL,
	items INTEGER NOT NULL,
	pages INTEGER NOT NULL,
	duration_ms BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	error TEXT
);
CREATE INDEX IF NOT EXISTS page_records_run ON page_records (run_id, filename);
`

// New creates a new Postgres-backed storage.Backend.
func New(ctx context.Context, dsn string) (storage.Backend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: %w", err)
	}

	_, err = pool.Exec(ctx, schema)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: %w", err)
	}

	return &postgresBackend{pool: pool}, nil
}

func (b *postgresBackend) Save(ctx context.Context, r *storage.PageRecord) error {
	query := `
	INSERT INTO page_records (
		id, run_id, kind, filename, range_start, range_end, page, status_code, outcome, items, pages, duration_ms, created_at, error
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := b.pool.Exec(ctx, query,
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
		r.CreatedAt,
		r.Error,
	)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	return nil
}

func (b *postgresBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.PageRecord, error) {
	query := `SELECT id, run_id, kind, filename, range_start, range_end, page, status_code, outcome, items, pages, duration_ms, created_at, error FROM page_records WHERE 1=1`
	args := []any{}
	paramCount := 1

	if filter.RunID != "" {
		query += fmt.Sprintf(` AND run_id = $%d`, paramCount)
		args = append(args, filter.RunID)
		paramCount++
	}
	if filter.Filename != "" {
		query += fmt.Sprintf(` AND filename = $%d`, paramCount)
		args = append(args, filter.Filename)
		paramCount++
	}
	if filter.Kind != "" {
		query += fmt.Sprintf(` AND kind = $%d`, paramCount)
		args = append(args, string(filter.Kind))
		paramCount++
	}
	if filter.Outcome != "" {
		query += fmt.Sprintf(` AND outcome = $%d`, paramCount)
		args = append(args, string(filter.Outcome))
		paramCount++
	}
	if filter.Since != nil {
		query += fmt.Sprintf(` AND created_at >= $%d`, paramCount)
		args = append(args, *filter.Since)
		paramCount++
	}

	query += ` ORDER BY created_at ASC, id ASC`

	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, paramCount)
		args = append(args, filter.Limit)
		paramCount++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, paramCount)
		args = append(args, filter.Offset)
	}

	rows, err := b.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	defer rows.Close()

	var records []*storage.PageRecord
	for rows.Next() {
		var r storage.PageRecord
		var kind, outcome string
		var errText *string
		var durationMs int64

		err := rows.Scan(
			&r.ID, &r.RunID, &kind, &r.Filename, &r.RangeStart, &r.RangeEnd, &r.Page,
			&r.StatusCode, &outcome, &r.Items, &r.Pages, &durationMs, &r.CreatedAt, &errText,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}

		r.Kind = storage.Kind(kind)
		r.Outcome = storage.Outcome(outcome)
		r.Duration = time.Duration(durationMs) * time.Millisecond
		r.CreatedAt = r.CreatedAt.UTC()
		if errText != nil {
			r.Error = *errText
		}

		records = append(records, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}

	return records, nil
}

func (b *postgresBackend) Close() error {
	b.pool.Close()
	return nil
}
