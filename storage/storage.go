// Package storage is the key/value layer behind the Drafts catalog cache.
// Backends live in storage/memory and storage/redis.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by Get for a missing or expired key.
	ErrNotFound = errors.New("storage: not found")
	// ErrInvalidKey is returned for an empty key.
	ErrInvalidKey = errors.New("storage: invalid key")
)

// Storage holds byte values under a namespace and key. Namespaces group the
// keys of one catalog so they can be purged together.
type Storage interface {
	// Get returns the value under ns/key or ErrNotFound.
	Get(ctx context.Context, ns, key string) ([]byte, error)

	// Set stores value under ns/key. A ttl of zero or less never expires.
	Set(ctx context.Context, ns, key string, value []byte, ttl time.Duration) error

	// Purge drops every key of ns.
	Purge(ctx context.Context, ns string) error

	Close() error
}

// GetOrLoad returns the JSON value cached under ns/key or, on a miss, calls
// load and caches what it returns for ttl. A nil store always loads.
// Backend failures degrade to a plain load; only load errors are returned.
func GetOrLoad[T any](ctx context.Context, s Storage, ns, key string, ttl time.Duration, load func(ctx context.Context) (T, error)) (T, error) {
	if s == nil {
		return load(ctx)
	}
	if b, err := s.Get(ctx, ns, key); err == nil {
		var v T
		if json.Unmarshal(b, &v) == nil {
			return v, nil
		}
	}

	v, err := load(ctx)
	if err != nil {
		return v, err
	}
	if b, err := json.Marshal(v); err == nil {
		_ = s.Set(ctx, ns, key, b, ttl)
	}
	return v, nil
}
