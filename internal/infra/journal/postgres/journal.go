// Package postgres appends committed changes to a Postgres table through the
// pgx database/sql driver.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"socialcore/internal/infra/journal"
	"socialcore/pkg/domain"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

const (
	defaultDriver = "pgx"
	// DefaultDSN is used when NewJournal receives an empty DSN.
	DefaultDSN = "postgres://localhost/socialcore?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Journal writes each change as one row of the changes table.
type Journal struct {
	db *sql.DB
	mu sync.Mutex
}

// NewJournal connects to dsn and ensures the changes table exists.
func NewJournal(ctx context.Context, dsn string) (*Journal, error) {
	if dsn == "" {
		dsn = DefaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := ensureTable(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Journal{db: db}, nil
}

func ensureTable(ctx context.Context, db *sql.DB) error {
	ddl := `CREATE TABLE IF NOT EXISTS changes (
		seq BIGSERIAL PRIMARY KEY,
		entity TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		action TEXT NOT NULL,
		before JSONB,
		after JSONB,
		occurred_at TIMESTAMPTZ NOT NULL
	)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure changes table: %w", err)
	}
	return nil
}

// Append inserts the changes in a single transaction.
func (j *Journal) Append(ctx context.Context, changes []domain.Change) (retErr error) {
	if len(changes) == 0 {
		return nil
	}
	records := make([]journal.Record, 0, len(changes))
	for _, ch := range changes {
		rec, err := journal.Encode(ch)
		if err != nil {
			return err
		}
		records = append(records, rec)
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for _, rec := range records {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO changes(entity, entity_id, action, before, after, occurred_at) VALUES ($1, $2, $3, $4, $5, $6)`,
			string(rec.Entity), rec.EntityID, string(rec.Action), jsonb(rec.Before), jsonb(rec.After), rec.OccurredAt,
		); err != nil {
			return fmt.Errorf("insert %s change: %w", rec.Entity, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Recent returns up to limit of the newest rows, oldest first. A non-positive
// limit returns every row.
func (j *Journal) Recent(ctx context.Context, limit int) ([]journal.Record, error) {
	var limitArg any
	if limit > 0 {
		limitArg = limit
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT seq, entity, entity_id, action, before, after, occurred_at FROM changes ORDER BY seq DESC LIMIT $1`, limitArg)
	if err != nil {
		return nil, fmt.Errorf("select changes: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []journal.Record
	for rows.Next() {
		var (
			rec            journal.Record
			entity, action string
			before, after  []byte
		)
		if err := rows.Scan(&rec.Seq, &entity, &rec.EntityID, &action, &before, &after, &rec.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan change: %w", err)
		}
		rec.Entity = domain.EntityType(entity)
		rec.Action = domain.Action(action)
		rec.Before = before
		rec.After = after
		rec.OccurredAt = rec.OccurredAt.UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate changes: %w", err)
	}
	for i, k := 0, len(out)-1; i < k; i, k = i+1, k-1 {
		out[i], out[k] = out[k], out[i]
	}
	return out, nil
}

// Close releases the connection pool.
func (j *Journal) Close() error { return j.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (j *Journal) DB() *sql.DB { return j.db }

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}

func jsonb(raw []byte) any {
	if raw == nil {
		return nil
	}
	return string(raw)
}
