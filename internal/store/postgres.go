package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/marvst/properties-scraper/internal/models"
)

// Postgres persists listing records in a single table keyed by identity
// key, with the non-key fields as JSONB. Upserts go through ON CONFLICT
// so Put with identical arguments is idempotent.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to the database and ensures the schema exists.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()

		return nil, fmt.Errorf("%w: postgres: ping: %v", ErrUnavailable, err)
	}

	pg := &Postgres{pool: pool}
	if err := pg.migrate(ctx); err != nil {
		pool.Close()

		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}

	return pg, nil
}

func (pg *Postgres) migrate(ctx context.Context) error {
	_, err := pg.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS listings (
			identity_key  TEXT PRIMARY KEY,
			fields        JSONB NOT NULL,
			content_hash  TEXT NOT NULL,
			first_seen_at TIMESTAMPTZ NOT NULL,
			last_seen_at  TIMESTAMPTZ NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_listings_last_seen ON listings(last_seen_at);
	`)

	return err
}

// Get returns the stored record for key, or ErrNotFound.
func (pg *Postgres) Get(ctx context.Context, key string) (*models.StoredRecord, error) {
	var (
		rec       models.StoredRecord
		rawFields []byte
	)

	row := pg.pool.QueryRow(ctx, `
		SELECT identity_key, fields, content_hash, first_seen_at, last_seen_at
		FROM listings
		WHERE identity_key = $1
	`, key)

	err := row.Scan(&rec.IdentityKey, &rawFields, &rec.ContentHash, &rec.FirstSeenAt, &rec.LastSeenAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("%w: postgres: get %q: %v", ErrUnavailable, key, err)
	}

	if err := json.Unmarshal(rawFields, &rec.Fields); err != nil {
		return nil, fmt.Errorf("postgres: decode fields for %q: %w", key, err)
	}

	return &rec, nil
}

// Put upserts the record, keeping the original first_seen_at on update.
func (pg *Postgres) Put(ctx context.Context, rec models.StoredRecord) error {
	rawFields, err := json.Marshal(rec.Fields)
	if err != nil {
		return fmt.Errorf("postgres: encode fields for %q: %w", rec.IdentityKey, err)
	}

	_, err = pg.pool.Exec(ctx, `
		INSERT INTO listings (identity_key, fields, content_hash, first_seen_at, last_seen_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (identity_key) DO UPDATE SET
			fields       = EXCLUDED.fields,
			content_hash = EXCLUDED.content_hash,
			last_seen_at = EXCLUDED.last_seen_at
	`, rec.IdentityKey, rawFields, rec.ContentHash, rec.FirstSeenAt, rec.LastSeenAt)
	if err != nil {
		return fmt.Errorf("%w: postgres: put %q: %v", ErrUnavailable, rec.IdentityKey, err)
	}

	return nil
}

// Touch refreshes the last-seen timestamp without rewriting fields.
func (pg *Postgres) Touch(ctx context.Context, key string, seenAt time.Time) error {
	tag, err := pg.pool.Exec(ctx, `
		UPDATE listings SET last_seen_at = $2 WHERE identity_key = $1
	`, key, seenAt)
	if err != nil {
		return fmt.Errorf("%w: postgres: touch %q: %v", ErrUnavailable, key, err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// Close releases the connection pool.
func (pg *Postgres) Close() {
	pg.pool.Close()
}
