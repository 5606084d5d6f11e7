package sqlite

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"socialcore/pkg/domain"
)

func TestJournalAppendAndRecent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "journal.db")
	j, err := NewJournal(path)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { _ = j.Close() })
	ctx := context.Background()
	at := time.Date(2024, 3, 4, 5, 6, 7, 8, time.UTC)
	user := domain.User{ID: "u1", Name: "Ada", SubscribedToUserIDs: []string{}}
	if err := j.Append(ctx, []domain.Change{
		{Entity: domain.EntityUser, EntityID: "u1", Action: domain.ActionCreate, After: user, OccurredAt: at},
		{Entity: domain.EntityUser, EntityID: "u1", Action: domain.ActionDelete, Before: user, OccurredAt: at.Add(time.Second)},
	}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := j.Append(ctx, nil); err != nil {
		t.Fatalf("empty append: %v", err)
	}

	recs, err := j.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if recs[0].Action != domain.ActionCreate || recs[1].Action != domain.ActionDelete || recs[0].Seq >= recs[1].Seq {
		t.Fatalf("unexpected order %+v", recs)
	}
	if recs[0].Before != nil || recs[1].After != nil {
		t.Fatalf("expected absent payloads to stay nil")
	}
	var decoded domain.User
	if err := json.Unmarshal(recs[0].After, &decoded); err != nil || decoded.Name != "Ada" {
		t.Fatalf("unexpected after payload %s (%v)", recs[0].After, err)
	}
	if !recs[0].OccurredAt.Equal(at) {
		t.Fatalf("timestamp mismatch: %v", recs[0].OccurredAt)
	}

	newest, err := j.Recent(ctx, 1)
	if err != nil || len(newest) != 1 || newest[0].Action != domain.ActionDelete {
		t.Fatalf("unexpected recent(1) %+v %v", newest, err)
	}
}

func TestJournalReopenKeepsRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := NewJournal(path)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	if err := j.Append(context.Background(), []domain.Change{{Entity: domain.EntityPost, EntityID: "p", Action: domain.ActionCreate, OccurredAt: time.Now()}}); err != nil {
		t.Fatalf("append: %v", err)
	}
	_ = j.Close()
	reopened, err := NewJournal(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = reopened.Close() })
	recs, err := reopened.Recent(context.Background(), 10)
	if err != nil || len(recs) != 1 || reopened.Path() != path {
		t.Fatalf("expected previous row after reopen, got %+v %v", recs, err)
	}
}
