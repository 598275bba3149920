// Package store defines the narrow persistence contract the synchronizer
// depends on, plus the adapters that implement it. The engine never
// prescribes storage format or transaction mechanism; it only requires
// that Get, Put and Touch are atomic per key and that Put with identical
// arguments is idempotent.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/marvst/properties-scraper/internal/models"
)

// Adapter errors.
var (
	// ErrNotFound is returned by Get when no record exists for the key.
	ErrNotFound = errors.New("record not found")

	// ErrUnavailable wraps infrastructure failures. A batch that hits it
	// aborts, since partial success cannot be guessed without adapter
	// confirmation.
	ErrUnavailable = errors.New("store unavailable")
)

// Adapter is the read/write contract for stored listing records, keyed
// by identity key.
type Adapter interface {
	// Get returns the stored record for key, or ErrNotFound.
	Get(ctx context.Context, key string) (*models.StoredRecord, error)

	// Put upserts the record under its identity key.
	Put(ctx context.Context, rec models.StoredRecord) error

	// Touch refreshes the last-seen timestamp without rewriting fields.
	Touch(ctx context.Context, key string, seenAt time.Time) error
}
