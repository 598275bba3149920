package store

import (
	"context"
	"sync"
	"time"

	"github.com/marvst/properties-scraper/internal/models"
)

// Memory is an in-process adapter used by tests and dry runs. All
// operations are atomic per key.
type Memory struct {
	mu      sync.RWMutex
	records map[string]models.StoredRecord
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{records: make(map[string]models.StoredRecord)}
}

// Get returns the stored record for key, or ErrNotFound.
func (m *Memory) Get(_ context.Context, key string) (*models.StoredRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[key]
	if !ok {
		return nil, ErrNotFound
	}

	copied := rec
	copied.Fields = copyFields(rec.Fields)

	return &copied, nil
}

// Put upserts the record, preserving FirstSeenAt on existing keys.
func (m *Memory) Put(_ context.Context, rec models.StoredRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := rec
	stored.Fields = copyFields(rec.Fields)

	if existing, ok := m.records[rec.IdentityKey]; ok {
		stored.FirstSeenAt = existing.FirstSeenAt
	}

	m.records[rec.IdentityKey] = stored

	return nil
}

// Touch refreshes the last-seen timestamp of an existing record.
func (m *Memory) Touch(_ context.Context, key string, seenAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[key]
	if !ok {
		return ErrNotFound
	}

	rec.LastSeenAt = seenAt
	m.records[key] = rec

	return nil
}

// Len returns the number of stored records.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.records)
}

func copyFields(fields map[string]any) map[string]any {
	copied := make(map[string]any, len(fields))
	for k, v := range fields {
		copied[k] = v
	}

	return copied
}
