package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/marvst/properties-scraper/internal/models"
)

func TestMemory_GetNotFound(t *testing.T) {
	mem := NewMemory()

	if _, err := mem.Get(context.Background(), "https://example.com/1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get on empty store error = %v, want ErrNotFound", err)
	}
}

func TestMemory_PutGet(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	rec := models.StoredRecord{
		IdentityKey: "https://example.com/1",
		Fields:      map[string]any{"price": 100.0},
		ContentHash: "abc",
		FirstSeenAt: now,
		LastSeenAt:  now,
	}

	if err := mem.Put(ctx, rec); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := mem.Get(ctx, rec.IdentityKey)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if got.ContentHash != "abc" || got.Fields["price"] != 100.0 {
		t.Errorf("Get returned %+v, want stored record", got)
	}

	if mem.Len() != 1 {
		t.Errorf("Len = %d, want 1", mem.Len())
	}
}

func TestMemory_GetReturnsCopy(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	rec := models.StoredRecord{
		IdentityKey: "https://example.com/1",
		Fields:      map[string]any{"price": 100.0},
	}

	if err := mem.Put(ctx, rec); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	first, _ := mem.Get(ctx, rec.IdentityKey)
	first.Fields["price"] = 999.0

	second, _ := mem.Get(ctx, rec.IdentityKey)
	if second.Fields["price"] != 100.0 {
		t.Error("Mutating a Get result must not affect the stored record")
	}
}

func TestMemory_PutPreservesFirstSeen(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	t0 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	t1 := t0.Add(48 * time.Hour)

	if err := mem.Put(ctx, models.StoredRecord{
		IdentityKey: "https://example.com/1",
		ContentHash: "v1",
		FirstSeenAt: t0,
		LastSeenAt:  t0,
	}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if err := mem.Put(ctx, models.StoredRecord{
		IdentityKey: "https://example.com/1",
		ContentHash: "v2",
		FirstSeenAt: t1,
		LastSeenAt:  t1,
	}); err != nil {
		t.Fatalf("Second put failed: %v", err)
	}

	got, err := mem.Get(ctx, "https://example.com/1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if !got.FirstSeenAt.Equal(t0) {
		t.Errorf("FirstSeenAt = %v, want original %v preserved across updates", got.FirstSeenAt, t0)
	}

	if got.ContentHash != "v2" {
		t.Errorf("ContentHash = %q, want latest write", got.ContentHash)
	}
}

func TestMemory_Touch(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	t0 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Hour)

	if err := mem.Put(ctx, models.StoredRecord{
		IdentityKey: "https://example.com/1",
		Fields:      map[string]any{"price": 100.0},
		FirstSeenAt: t0,
		LastSeenAt:  t0,
	}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if err := mem.Touch(ctx, "https://example.com/1", t1); err != nil {
		t.Fatalf("Touch failed: %v", err)
	}

	got, err := mem.Get(ctx, "https://example.com/1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if !got.LastSeenAt.Equal(t1) {
		t.Errorf("LastSeenAt = %v, want %v", got.LastSeenAt, t1)
	}

	if got.Fields["price"] != 100.0 {
		t.Error("Touch must not change fields")
	}
}

func TestMemory_TouchMissingKey(t *testing.T) {
	mem := NewMemory()

	if err := mem.Touch(context.Background(), "https://example.com/1", time.Now()); !errors.Is(err, ErrNotFound) {
		t.Errorf("Touch on missing key error = %v, want ErrNotFound", err)
	}
}
