package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by Get when the key is absent or its TTL has elapsed.
var ErrNotFound = errors.New("tokenstore: key not found")

// Store is a key/value store with per-key TTL.
// Implementations must make Get and Put atomic per key.
type Store interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores value under key. A ttl <= 0 stores the value without expiry.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Forget removes key. Removing an absent key is not an error.
	Forget(ctx context.Context, key string) error
}

// record is the envelope used by backends without native expiry support.
type record struct {
	Value     []byte    `json:"value"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

func newRecord(value []byte, ttl time.Duration, now time.Time) record {
	r := record{Value: value}
	if ttl > 0 {
		r.ExpiresAt = now.Add(ttl).UTC()
	}
	return r
}

func (r record) expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

func encodeRecord(r record) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record: %w", err)
	}
	return data, nil
}

func decodeRecord(data []byte) (record, error) {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return record{}, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return r, nil
}
