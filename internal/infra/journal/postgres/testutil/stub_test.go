package testutil

import (
	"context"
	"testing"
)

func TestStubRecordsInsertsAndSelects(t *testing.T) {
	db, conn := NewStubDB()
	ctx := context.Background()
	if _, err := db.ExecContext(ctx, `INSERT INTO things(name, size) VALUES ($1, $2)`, "a", 1); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO things(name, size) VALUES ($1, $2)`, "b", 2); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if len(conn.Tables["things"]) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(conn.Tables["things"]))
	}
	rows, err := db.QueryContext(ctx, `SELECT seq, name FROM things ORDER BY seq DESC LIMIT $1`, 1)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	defer func() { _ = rows.Close() }()
	var names []string
	for rows.Next() {
		var seq int64
		var name string
		if err := rows.Scan(&seq, &name); err != nil {
			t.Fatalf("scan: %v", err)
		}
		names = append(names, name)
	}
	if len(names) != 1 || names[0] != "b" {
		t.Fatalf("expected newest row only, got %v", names)
	}
}

func TestStubFailures(t *testing.T) {
	db, conn := NewStubDB()
	conn.FailBegin = true
	if _, err := db.Begin(); err == nil {
		t.Fatalf("expected begin failure")
	}
	conn.FailBegin = false
	conn.FailExec = true
	if _, err := db.Exec(`INSERT INTO things(name) VALUES ($1)`, "x"); err == nil {
		t.Fatalf("expected exec failure")
	}
	conn.FailExec = false
	if _, err := db.Query(`UPDATE things SET name = 1`); err == nil {
		t.Fatalf("expected unparsable select to fail")
	}
}
