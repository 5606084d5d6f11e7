// Package sqlite appends committed changes to a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"socialcore/internal/infra/journal"
	"socialcore/pkg/domain"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// DefaultPath is used when NewJournal receives an empty path.
const DefaultPath = "socialcore-journal.db"

// Journal writes each change as one row of the changes table.
type Journal struct {
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// NewJournal opens (creating when needed) the journal database at path.
func NewJournal(path string) (*Journal, error) {
	if path == "" {
		path = DefaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS changes (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		entity TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		action TEXT NOT NULL,
		before BLOB,
		after BLOB,
		occurred_at TEXT NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create changes table: %w", err)
	}
	return &Journal{db: db, path: path}, nil
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
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for _, rec := range records {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO changes(entity, entity_id, action, before, after, occurred_at) VALUES(?,?,?,?,?,?)`,
			string(rec.Entity), rec.EntityID, string(rec.Action), nullable(rec.Before), nullable(rec.After),
			rec.OccurredAt.Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("insert %s change: %w", rec.Entity, err)
		}
	}
	return tx.Commit()
}

// Recent returns up to limit of the newest rows, oldest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]journal.Record, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT seq, entity, entity_id, action, before, after, occurred_at FROM changes ORDER BY seq DESC LIMIT ?`, limit)
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
			occurred       string
		)
		if err := rows.Scan(&rec.Seq, &entity, &rec.EntityID, &action, &before, &after, &occurred); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		rec.Entity = domain.EntityType(entity)
		rec.Action = domain.Action(action)
		rec.Before = before
		rec.After = after
		if rec.OccurredAt, err = time.Parse(time.RFC3339Nano, occurred); err != nil {
			return nil, fmt.Errorf("parse occurred_at %q: %w", occurred, err)
		}
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

// Close releases the database handle.
func (j *Journal) Close() error { return j.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (j *Journal) DB() *sql.DB { return j.db }

// Path returns the configured database path.
func (j *Journal) Path() string { return j.path }

func nullable(raw []byte) any {
	if raw == nil {
		return nil
	}
	return raw
}
