// Package models defines the record types flowing through the
// normalization and synchronization pipeline.
package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// RawRecord is one extracted listing as produced by a site extractor:
// a field-name to value mapping with no validity guarantees. Values are
// whatever the JSON decoder produced (string, float64, bool, []any, nil).
type RawRecord map[string]any

// CanonicalRecord is a normalized listing ready for synchronization.
// All URL-bearing fields have been resolved to absolute form and the
// identity key has been derived from the canonical primary URL.
type CanonicalRecord struct {
	IdentityKey string
	PrimaryURL  string
	Fields      map[string]any
	ContentHash string
}

// StoredRecord is the per-key state held by a store adapter.
type StoredRecord struct {
	IdentityKey string
	Fields      map[string]any
	ContentHash string
	FirstSeenAt time.Time
	LastSeenAt  time.Time
}

// RejectReason classifies why a record or field was rejected during
// normalization.
type RejectReason string

// Rejection reasons.
const (
	ReasonMissingURL        RejectReason = "missing_url"
	ReasonUnresolvableURL   RejectReason = "unresolvable_url"
	ReasonInvalidPrimaryURL RejectReason = "invalid_primary_url"
	ReasonIncompleteRecord  RejectReason = "incomplete_record"
)

// Rejection records a raw record that was excluded from synchronization,
// together with the field and reason that caused the exclusion.
type Rejection struct {
	Record RawRecord
	Field  string
	Reason RejectReason
	Err    error
}

// ContentHash computes a deterministic SHA-256 hash over all non-key
// fields of a record. encoding/json sorts map keys, so two field maps
// with equal contents always hash identically regardless of insertion
// order.
func ContentHash(fields map[string]any) string {
	data, err := json.Marshal(fields)
	if err != nil {
		// Fields originate from decoded JSON, so marshaling cannot fail
		// in practice; an empty hash would silently break change
		// detection, so hash the error text instead.
		data = []byte(err.Error())
	}

	sum := sha256.Sum256(data)

	return hex.EncodeToString(sum[:])
}
