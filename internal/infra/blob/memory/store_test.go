package memory

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"socialcore/internal/blob/core"
)

func TestMemoryStoreLifecycle(t *testing.T) {
	s := New()
	ctx := context.Background()
	if s.Driver() != core.DriverMemory {
		t.Fatalf("unexpected driver %s", s.Driver())
	}
	meta := map[string]string{"format": "json"}
	info, err := s.Put(ctx, "exports/a.json", strings.NewReader(`{"a":1}`), core.PutOptions{ContentType: "application/json", Metadata: meta})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	meta["format"] = "mutated"
	if info.Size != 7 || info.ETag == "" || info.Metadata["format"] != "json" {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, err := s.Put(ctx, "exports/a.json", strings.NewReader("x"), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	if _, err := s.Put(ctx, " ", strings.NewReader("x"), core.PutOptions{}); err == nil {
		t.Fatalf("expected empty key to be rejected")
	}
	_, _ = s.Put(ctx, "other/b.json", strings.NewReader("{}"), core.PutOptions{})

	got, body, err := s.Get(ctx, "exports/a.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, _ := io.ReadAll(body)
	_ = body.Close()
	if string(data) != `{"a":1}` || got.ContentType != "application/json" {
		t.Fatalf("unexpected blob %+v %q", got, data)
	}
	if _, _, err := s.Get(ctx, "missing"); !errors.Is(err, core.ErrNotExist) {
		t.Fatalf("expected ErrNotExist, got %v", err)
	}

	listed, _ := s.List(ctx, "exports/")
	if len(listed) != 1 || listed[0].Key != "exports/a.json" {
		t.Fatalf("unexpected list %+v", listed)
	}
	all, _ := s.List(ctx, "")
	if len(all) != 2 || all[0].Key != "exports/a.json" {
		t.Fatalf("expected sorted full list, got %+v", all)
	}

	if ok, _ := s.Delete(ctx, "exports/a.json"); !ok {
		t.Fatalf("expected delete to report existing blob")
	}
	if ok, _ := s.Delete(ctx, "exports/a.json"); ok {
		t.Fatalf("expected second delete to report missing blob")
	}
}
