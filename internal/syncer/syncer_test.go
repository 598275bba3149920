package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/marvst/properties-scraper/internal/logger"
	"github.com/marvst/properties-scraper/internal/models"
	"github.com/marvst/properties-scraper/internal/store"
)

func testLogger() *logger.Logger {
	return logger.NewLogger("error")
}

func record(key string, fields map[string]any) models.CanonicalRecord {
	return models.CanonicalRecord{
		IdentityKey: key,
		PrimaryURL:  key,
		Fields:      fields,
		ContentHash: models.ContentHash(fields),
	}
}

func TestSync_InsertUpdateUnchanged(t *testing.T) {
	mem := store.NewMemory()
	s := NewSyncer(mem, testLogger())
	ctx := context.Background()

	first := record("https://example.com/1", map[string]any{"price": 100.0})

	report, err := s.Sync(ctx, []models.CanonicalRecord{first})
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	if report.Inserted != 1 || report.Updated != 0 || report.Unchanged != 0 {
		t.Fatalf("First sync report = %s, want 1 inserted", report)
	}

	changed := record("https://example.com/1", map[string]any{"price": 120.0})

	report, err = s.Sync(ctx, []models.CanonicalRecord{changed})
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	if report.Updated != 1 || report.Inserted != 0 {
		t.Fatalf("Changed sync report = %s, want 1 updated", report)
	}

	report, err = s.Sync(ctx, []models.CanonicalRecord{changed})
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	if report.Unchanged != 1 || report.Updated != 0 || report.Inserted != 0 {
		t.Fatalf("Repeat sync report = %s, want 1 unchanged", report)
	}

	if mem.Len() != 1 {
		t.Errorf("Store has %d rows, want 1", mem.Len())
	}
}

func TestSync_Idempotence(t *testing.T) {
	mem := store.NewMemory()
	s := NewSyncer(mem, testLogger())
	ctx := context.Background()

	batch := []models.CanonicalRecord{
		record("https://example.com/1", map[string]any{"price": 100.0}),
		record("https://example.com/2", map[string]any{"price": 200.0}),
		record("https://example.com/3", map[string]any{"price": 300.0}),
	}

	if _, err := s.Sync(ctx, batch); err != nil {
		t.Fatalf("First sync failed: %v", err)
	}

	report, err := s.Sync(ctx, batch)
	if err != nil {
		t.Fatalf("Second sync failed: %v", err)
	}

	if report.Inserted != 0 || report.Updated != 0 {
		t.Errorf("Second identical run report = %s, want inserted=0 updated=0", report)
	}

	if report.Unchanged != len(batch) {
		t.Errorf("Second identical run unchanged = %d, want %d", report.Unchanged, len(batch))
	}
}

func TestSync_BatchDeduplication(t *testing.T) {
	mem := store.NewMemory()
	s := NewSyncer(mem, testLogger())
	ctx := context.Background()

	batch := []models.CanonicalRecord{
		record("https://example.com/1", map[string]any{"price": 100.0, "note": "first"}),
		record("https://example.com/1", map[string]any{"price": 100.0, "note": "second"}),
	}

	report, err := s.Sync(ctx, batch)
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	if report.Total() != 1 || report.Inserted != 1 {
		t.Fatalf("Report = %s, want exactly 1 inserted", report)
	}

	if mem.Len() != 1 {
		t.Fatalf("Store has %d rows, want 1", mem.Len())
	}

	stored, err := mem.Get(ctx, "https://example.com/1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if stored.Fields["note"] != "second" {
		t.Errorf("Stored note = %v, later record in input order must win", stored.Fields["note"])
	}
}

func TestSync_TouchDoesNotRewriteFields(t *testing.T) {
	mem := store.NewMemory()

	t0 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	t1 := t0.Add(24 * time.Hour)
	clock := t0

	s := NewSyncer(mem, testLogger(), WithClock(func() time.Time { return clock }))
	ctx := context.Background()

	rec := record("https://example.com/1", map[string]any{"price": 100.0})

	if _, err := s.Sync(ctx, []models.CanonicalRecord{rec}); err != nil {
		t.Fatalf("First sync failed: %v", err)
	}

	clock = t1

	report, err := s.Sync(ctx, []models.CanonicalRecord{rec})
	if err != nil {
		t.Fatalf("Second sync failed: %v", err)
	}

	if report.Unchanged != 1 {
		t.Fatalf("Report = %s, want 1 unchanged", report)
	}

	stored, err := mem.Get(ctx, rec.IdentityKey)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if !stored.FirstSeenAt.Equal(t0) {
		t.Errorf("FirstSeenAt = %v, want original %v", stored.FirstSeenAt, t0)
	}

	if !stored.LastSeenAt.Equal(t1) {
		t.Errorf("LastSeenAt = %v, want refreshed %v", stored.LastSeenAt, t1)
	}
}

// failingStore returns ErrUnavailable for every key in fail.
type failingStore struct {
	*store.Memory
	fail map[string]bool
}

func (f *failingStore) Get(ctx context.Context, key string) (*models.StoredRecord, error) {
	if f.fail[key] {
		return nil, fmt.Errorf("%w: injected failure", store.ErrUnavailable)
	}

	return f.Memory.Get(ctx, key)
}

func TestSync_StoreFailureAbortsBatch(t *testing.T) {
	failing := &failingStore{
		Memory: store.NewMemory(),
		fail:   map[string]bool{"https://example.com/2": true},
	}

	// Single worker makes dispatch order deterministic.
	s := NewSyncer(failing, testLogger(), WithWorkers(1))

	batch := []models.CanonicalRecord{
		record("https://example.com/1", map[string]any{"price": 100.0}),
		record("https://example.com/2", map[string]any{"price": 200.0}),
		record("https://example.com/3", map[string]any{"price": 300.0}),
		record("https://example.com/4", map[string]any{"price": 400.0}),
	}

	report, err := s.Sync(context.Background(), batch)
	if !errors.Is(err, store.ErrUnavailable) {
		t.Fatalf("Sync error = %v, want ErrUnavailable", err)
	}

	if report.Inserted != 1 {
		t.Errorf("Report inserted = %d, want progress before the failure preserved", report.Inserted)
	}

	if len(report.Unattempted) == 0 {
		t.Error("Report must list keys that were never attempted")
	}
}

func TestSync_SeenKeys(t *testing.T) {
	mem := store.NewMemory()
	s := NewSyncer(mem, testLogger())

	batch := []models.CanonicalRecord{
		record("https://example.com/1", map[string]any{"price": 100.0}),
		record("https://example.com/2", map[string]any{"price": 200.0}),
	}

	report, err := s.Sync(context.Background(), batch)
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	if len(report.SeenKeys) != 2 {
		t.Errorf("SeenKeys = %v, want both identity keys", report.SeenKeys)
	}
}

func TestSync_ConcurrentSameKeySafety(t *testing.T) {
	mem := store.NewMemory()
	s := NewSyncer(mem, testLogger())
	ctx := context.Background()

	a := record("https://example.com/1", map[string]any{"price": 100.0, "source": "a"})
	b := record("https://example.com/1", map[string]any{"price": 200.0, "source": "b"})

	for i := 0; i < 50; i++ {
		var wg sync.WaitGroup

		wg.Add(2)

		go func() {
			defer wg.Done()

			if _, err := s.Sync(ctx, []models.CanonicalRecord{a}); err != nil {
				t.Errorf("Sync a failed: %v", err)
			}
		}()

		go func() {
			defer wg.Done()

			if _, err := s.Sync(ctx, []models.CanonicalRecord{b}); err != nil {
				t.Errorf("Sync b failed: %v", err)
			}
		}()

		wg.Wait()

		stored, err := mem.Get(ctx, "https://example.com/1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}

		// The final state must match exactly one of the two inputs;
		// a torn mix of both is a lost-update race.
		switch stored.ContentHash {
		case a.ContentHash:
			if stored.Fields["source"] != "a" || stored.Fields["price"] != 100.0 {
				t.Fatalf("Torn write: hash of a with fields %v", stored.Fields)
			}
		case b.ContentHash:
			if stored.Fields["source"] != "b" || stored.Fields["price"] != 200.0 {
				t.Fatalf("Torn write: hash of b with fields %v", stored.Fields)
			}
		default:
			t.Fatalf("Stored hash matches neither input: %v", stored.Fields)
		}
	}
}

func TestReduceBatch(t *testing.T) {
	records := []models.CanonicalRecord{
		record("k1", map[string]any{"v": 1.0}),
		record("k2", map[string]any{"v": 2.0}),
		record("k1", map[string]any{"v": 3.0}),
	}

	unique := reduceBatch(records)

	if len(unique) != 2 {
		t.Fatalf("reduceBatch returned %d records, want 2", len(unique))
	}

	if unique[0].IdentityKey != "k1" || unique[0].Fields["v"] != 3.0 {
		t.Errorf("First slot = %v, want later k1 record in original position", unique[0].Fields)
	}

	if unique[1].IdentityKey != "k2" {
		t.Errorf("Second slot key = %q, want k2", unique[1].IdentityKey)
	}
}
