package journal

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"socialcore/pkg/domain"
)

func TestEncodeChange(t *testing.T) {
	at := time.Date(2024, 5, 6, 7, 8, 9, 0, time.FixedZone("x", 3600))
	rec, err := Encode(domain.Change{
		Entity:     domain.EntityPost,
		EntityID:   "p1",
		Action:     domain.ActionCreate,
		After:      domain.Post{ID: "p1", Title: "hello", UserID: "u1"},
		OccurredAt: at,
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if rec.Before != nil {
		t.Fatalf("expected nil before payload, got %s", rec.Before)
	}
	var post domain.Post
	if err := json.Unmarshal(rec.After, &post); err != nil || post.Title != "hello" {
		t.Fatalf("unexpected after payload %s (%v)", rec.After, err)
	}
	if rec.OccurredAt.Location() != time.UTC || !rec.OccurredAt.Equal(at) {
		t.Fatalf("expected UTC timestamp, got %v", rec.OccurredAt)
	}
}

func TestEncodeRejectsUnmarshalablePayload(t *testing.T) {
	if _, err := Encode(domain.Change{Before: make(chan int)}); err == nil {
		t.Fatalf("expected encode error")
	}
}

func TestMemoryJournalCapacityAndOrder(t *testing.T) {
	j := NewMemory(3)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := j.Append(ctx, []domain.Change{{Entity: domain.EntityUser, EntityID: string(rune('a' + i)), Action: domain.ActionCreate}}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	all, _ := j.Recent(ctx, 0)
	if len(all) != 3 {
		t.Fatalf("expected capacity to bound records, got %d", len(all))
	}
	if all[0].Seq != 3 || all[2].Seq != 5 || all[2].EntityID != "e" {
		t.Fatalf("unexpected retained records %+v", all)
	}
	last, _ := j.Recent(ctx, 1)
	if len(last) != 1 || last[0].Seq != 5 {
		t.Fatalf("unexpected recent(1) %+v", last)
	}
}
