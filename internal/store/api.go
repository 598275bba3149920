package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/marvst/properties-scraper/internal/logger"
	"github.com/marvst/properties-scraper/internal/models"
)

// ErrAPICredentials is returned when the API adapter is constructed
// without an endpoint or key.
var ErrAPICredentials = errors.New("api endpoint and api key are required")

const (
	apiMaxAttempts  = 3
	apiInitialDelay = time.Second
	apiTimeout      = 2 * time.Minute
)

// API talks to a remote listings service over HTTP JSON with bearer
// authentication. Server errors are retried with exponential backoff;
// client errors are not.
//
// Endpoints:
//
//	GET  {base}/api/listings/{key}        -> 200 record | 404
//	PUT  {base}/api/listings/{key}        -> 200/201
//	POST {base}/api/listings/{key}/touch  -> 200
type API struct {
	endpoint string
	apiKey   string
	client   *http.Client
	logger   *logger.Logger
}

type apiRecord struct {
	IdentityKey string         `json:"identity_key"`
	Fields      map[string]any `json:"fields"`
	ContentHash string         `json:"content_hash"`
	FirstSeenAt time.Time      `json:"first_seen_at"`
	LastSeenAt  time.Time      `json:"last_seen_at"`
}

// NewAPI creates an HTTP API store adapter.
func NewAPI(endpoint, apiKey string, log *logger.Logger) (*API, error) {
	if endpoint == "" || apiKey == "" {
		return nil, ErrAPICredentials
	}

	return &API{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: apiTimeout},
		logger:   log,
	}, nil
}

// Get returns the stored record for key, or ErrNotFound on 404.
func (a *API) Get(ctx context.Context, key string) (*models.StoredRecord, error) {
	body, status, err := a.do(ctx, http.MethodGet, a.recordURL(key), nil)
	if err != nil {
		return nil, err
	}

	if status == http.StatusNotFound {
		return nil, ErrNotFound
	}

	if status != http.StatusOK {
		return nil, fmt.Errorf("%w: api: get %q: status %d", ErrUnavailable, key, status)
	}

	var rec apiRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, fmt.Errorf("api: decode record %q: %w", key, err)
	}

	return &models.StoredRecord{
		IdentityKey: rec.IdentityKey,
		Fields:      rec.Fields,
		ContentHash: rec.ContentHash,
		FirstSeenAt: rec.FirstSeenAt,
		LastSeenAt:  rec.LastSeenAt,
	}, nil
}

// Put upserts the record on the remote service.
func (a *API) Put(ctx context.Context, rec models.StoredRecord) error {
	payload, err := json.Marshal(apiRecord{
		IdentityKey: rec.IdentityKey,
		Fields:      rec.Fields,
		ContentHash: rec.ContentHash,
		FirstSeenAt: rec.FirstSeenAt,
		LastSeenAt:  rec.LastSeenAt,
	})
	if err != nil {
		return fmt.Errorf("api: encode record %q: %w", rec.IdentityKey, err)
	}

	_, status, err := a.do(ctx, http.MethodPut, a.recordURL(rec.IdentityKey), payload)
	if err != nil {
		return err
	}

	if status != http.StatusOK && status != http.StatusCreated {
		return fmt.Errorf("%w: api: put %q: status %d", ErrUnavailable, rec.IdentityKey, status)
	}

	return nil
}

// Touch refreshes the last-seen timestamp on the remote service.
func (a *API) Touch(ctx context.Context, key string, seenAt time.Time) error {
	payload, err := json.Marshal(map[string]any{"last_seen_at": seenAt})
	if err != nil {
		return fmt.Errorf("api: encode touch %q: %w", key, err)
	}

	_, status, err := a.do(ctx, http.MethodPost, a.recordURL(key)+"/touch", payload)
	if err != nil {
		return err
	}

	if status == http.StatusNotFound {
		return ErrNotFound
	}

	if status != http.StatusOK {
		return fmt.Errorf("%w: api: touch %q: status %d", ErrUnavailable, key, status)
	}

	return nil
}

func (a *API) recordURL(key string) string {
	return a.endpoint + "/api/listings/" + url.PathEscape(key)
}

// do issues one request with retry on 5xx and transport errors. 4xx
// responses return immediately since retrying cannot change them.
func (a *API) do(ctx context.Context, method, target string, payload []byte) ([]byte, int, error) {
	delay := apiInitialDelay

	var lastErr error

	for attempt := 1; attempt <= apiMaxAttempts; attempt++ {
		body, status, err := a.once(ctx, method, target, payload)

		switch {
		case err != nil:
			lastErr = err
		case status >= http.StatusInternalServerError:
			lastErr = fmt.Errorf("status %d", status)
		default:
			return body, status, nil
		}

		if attempt < apiMaxAttempts {
			a.logger.Warn("api request failed, retrying",
				"method", method, "attempt", attempt, "error", lastErr)

			select {
			case <-ctx.Done():
				return nil, 0, fmt.Errorf("%w: api: %v", ErrUnavailable, ctx.Err())
			case <-time.After(delay):
			}

			delay *= 2
		}
	}

	return nil, 0, fmt.Errorf("%w: api: %s %s after %d attempts: %v",
		ErrUnavailable, method, target, apiMaxAttempts, lastErr)
}

func (a *API) once(ctx context.Context, method, target string, payload []byte) ([]byte, int, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, 0, err
	}

	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}

	return body, resp.StatusCode, nil
}
