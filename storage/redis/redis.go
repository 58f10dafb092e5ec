// Package redis keeps the catalog cache in Redis so that several server
// processes share it.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ggoodman/drafts-mcp-go/storage"
	"github.com/redis/go-redis/v9"
)

// DefaultPrefix prefixes every key the cache writes.
const DefaultPrefix = "drafts-mcp:cache:"

const scanBatch = 100

// Storage is a storage.Storage backed by a Redis client. Expiry is left to
// Redis.
type Storage struct {
	rdb    *redis.Client
	prefix string
}

// Option configures a Storage.
type Option func(*Storage)

// WithPrefix replaces DefaultPrefix.
func WithPrefix(p string) Option {
	return func(s *Storage) { s.prefix = p }
}

// New wraps rdb. The Storage owns it from then on and closes it in Close.
func New(rdb *redis.Client, opts ...Option) *Storage {
	s := &Storage{rdb: rdb, prefix: DefaultPrefix}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Dial connects to addr and checks that the server answers PING.
func Dial(ctx context.Context, addr string, opts ...Option) (*Storage, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", addr, err)
	}
	return New(rdb, opts...), nil
}

func (s *Storage) nsPrefix(ns string) string { return s.prefix + ns + ":" }

func (s *Storage) Get(ctx context.Context, ns, key string) ([]byte, error) {
	if key == "" {
		return nil, storage.ErrInvalidKey
	}
	b, err := s.rdb.Get(ctx, s.nsPrefix(ns)+key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, storage.ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("redis get %s/%s: %w", ns, key, err)
	}
	return b, nil
}

func (s *Storage) Set(ctx context.Context, ns, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return storage.ErrInvalidKey
	}
	if ttl < 0 {
		ttl = 0
	}
	if err := s.rdb.Set(ctx, s.nsPrefix(ns)+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s/%s: %w", ns, key, err)
	}
	return nil
}

// Purge walks the namespace with SCAN and unlinks what it finds in batches.
func (s *Storage) Purge(ctx context.Context, ns string) error {
	it := s.rdb.Scan(ctx, 0, s.nsPrefix(ns)+"*", scanBatch).Iterator()
	batch := make([]string, 0, scanBatch)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := s.rdb.Unlink(ctx, batch...).Err()
		batch = batch[:0]
		return err
	}
	for it.Next(ctx) {
		batch = append(batch, it.Val())
		if len(batch) == scanBatch {
			if err := flush(); err != nil {
				return fmt.Errorf("redis purge %s: %w", ns, err)
			}
		}
	}
	if err := it.Err(); err != nil {
		return fmt.Errorf("redis purge %s: %w", ns, err)
	}
	if err := flush(); err != nil {
		return fmt.Errorf("redis purge %s: %w", ns, err)
	}
	return nil
}

func (s *Storage) Close() error { return s.rdb.Close() }

var _ storage.Storage = (*Storage)(nil)
