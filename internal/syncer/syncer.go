// Package syncer reconciles canonical listing records against a store:
// insert new identities, update changed ones, touch unchanged ones, and
// never duplicate.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/marvst/properties-scraper/internal/logger"
	"github.com/marvst/properties-scraper/internal/models"
	"github.com/marvst/properties-scraper/internal/store"
)

const defaultWorkers = 8

type outcome int

const (
	outcomeInserted outcome = iota
	outcomeUpdated
	outcomeUnchanged
)

// Syncer applies per-key state transitions against a store adapter.
// Distinct keys proceed in parallel; transitions for the same key are
// serialized by a per-key lock, including across concurrent Sync calls
// on the same Syncer.
type Syncer struct {
	store   store.Adapter
	logger  *logger.Logger
	workers int
	now     func() time.Time
	locks   keyLocks
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithWorkers sets the number of concurrent per-key writers. Zero keeps
// the default.
func WithWorkers(n int) Option {
	return func(s *Syncer) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithClock overrides the timestamp source, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(s *Syncer) {
		s.now = now
	}
}

// NewSyncer creates a syncer writing through the given store adapter.
func NewSyncer(st store.Adapter, log *logger.Logger, opts ...Option) *Syncer {
	s := &Syncer{
		store:   st,
		logger:  log,
		workers: defaultWorkers,
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Sync reconciles a batch of canonical records. Duplicate identity keys
// within the batch are reduced in memory first, later records winning,
// so the store never observes a write-then-overwrite for one key in a
// single run. A store failure aborts the batch; the returned report
// still carries the progress made plus the keys never attempted.
func (s *Syncer) Sync(ctx context.Context, records []models.CanonicalRecord) (*Report, error) {
	report := &Report{}
	unique := reduceBatch(records)

	if len(unique) < len(records) {
		s.logger.Debug("reduced duplicate identity keys in batch",
			"records", len(records), "unique", len(unique))
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		sem     = make(chan struct{}, s.workers)
		syncErr error
	)

	for _, rec := range unique {
		// Throttle dispatch, not just execution: once a worker reports a
		// failure, remaining records are never attempted.
		sem <- struct{}{}

		mu.Lock()
		aborted := syncErr != nil
		mu.Unlock()

		if aborted {
			<-sem
			report.Unattempted = append(report.Unattempted, rec.IdentityKey)

			continue
		}

		wg.Add(1)

		go func(rec models.CanonicalRecord) {
			defer wg.Done()
			defer func() { <-sem }()

			result, err := s.apply(ctx, rec)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				if syncErr == nil {
					syncErr = err
				}

				return
			}

			switch result {
			case outcomeInserted:
				report.Inserted++
			case outcomeUpdated:
				report.Updated++
			case outcomeUnchanged:
				report.Unchanged++
			}

			report.SeenKeys = append(report.SeenKeys, rec.IdentityKey)
		}(rec)
	}

	wg.Wait()

	if syncErr != nil {
		return report, syncErr
	}

	return report, nil
}

// apply runs one per-key state transition under the key's lock, so a
// read-then-write for a key never interleaves with another writer.
// Each transition is idempotent: re-applying with the same data
// converges to the same stored state.
func (s *Syncer) apply(ctx context.Context, rec models.CanonicalRecord) (outcome, error) {
	unlock := s.locks.lock(rec.IdentityKey)
	defer unlock()

	existing, err := s.store.Get(ctx, rec.IdentityKey)
	now := s.now()

	switch {
	case errors.Is(err, store.ErrNotFound):
		stored := models.StoredRecord{
			IdentityKey: rec.IdentityKey,
			Fields:      rec.Fields,
			ContentHash: rec.ContentHash,
			FirstSeenAt: now,
			LastSeenAt:  now,
		}

		if err := s.store.Put(ctx, stored); err != nil {
			return 0, fmt.Errorf("insert %q: %w", rec.IdentityKey, err)
		}

		return outcomeInserted, nil

	case err != nil:
		return 0, fmt.Errorf("read %q: %w", rec.IdentityKey, err)

	case existing.ContentHash != rec.ContentHash:
		stored := models.StoredRecord{
			IdentityKey: rec.IdentityKey,
			Fields:      rec.Fields,
			ContentHash: rec.ContentHash,
			FirstSeenAt: existing.FirstSeenAt,
			LastSeenAt:  now,
		}

		if err := s.store.Put(ctx, stored); err != nil {
			return 0, fmt.Errorf("update %q: %w", rec.IdentityKey, err)
		}

		return outcomeUpdated, nil

	default:
		// Same content: refresh last-seen only, never rewrite fields.
		if err := s.store.Touch(ctx, rec.IdentityKey, now); err != nil {
			return 0, fmt.Errorf("touch %q: %w", rec.IdentityKey, err)
		}

		return outcomeUnchanged, nil
	}
}

// reduceBatch collapses records sharing an identity key: the later one
// in input order wins, modeling "last extraction of this page in the
// batch is authoritative". First-occurrence order is preserved.
func reduceBatch(records []models.CanonicalRecord) []models.CanonicalRecord {
	index := make(map[string]int, len(records))
	unique := make([]models.CanonicalRecord, 0, len(records))

	for _, rec := range records {
		if pos, ok := index[rec.IdentityKey]; ok {
			unique[pos] = rec
			continue
		}

		index[rec.IdentityKey] = len(unique)
		unique = append(unique, rec)
	}

	return unique
}

// keyLocks hands out one mutex per identity key. Entries live for the
// Syncer's lifetime; the key space of a crawl run is bounded.
type keyLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyLocks) lock(key string) func() {
	k.mu.Lock()

	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}

	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}

	k.mu.Unlock()

	l.Lock()

	return l.Unlock
}
