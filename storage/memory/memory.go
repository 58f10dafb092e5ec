// Package memory keeps the catalog cache in process, bounded by an LRU from
// github.com/hashicorp/golang-lru/v2.
package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/ggoodman/drafts-mcp-go/storage"
	lru "github.com/hashicorp/golang-lru/v2"
)

type entry struct {
	value   []byte
	expires time.Time // zero: never
}

func (e entry) live(now time.Time) bool {
	return e.expires.IsZero() || now.Before(e.expires)
}

type nsKey struct{ ns, key string }

// Storage is a storage.Storage held in memory. The least recently used key
// is evicted once capacity is reached; expired keys are dropped when read.
type Storage struct {
	cache *lru.Cache[nsKey, entry]
	now   func() time.Time
}

// New returns a Storage holding at most size keys.
func New(size int) (*Storage, error) {
	c, err := lru.New[nsKey, entry](size)
	if err != nil {
		return nil, fmt.Errorf("memory cache: %w", err)
	}
	return &Storage{cache: c, now: time.Now}, nil
}

func (s *Storage) Get(ctx context.Context, ns, key string) ([]byte, error) {
	if key == "" {
		return nil, storage.ErrInvalidKey
	}
	k := nsKey{ns, key}
	e, ok := s.cache.Get(k)
	if !ok {
		return nil, storage.ErrNotFound
	}
	if !e.live(s.now()) {
		s.cache.Remove(k)
		return nil, storage.ErrNotFound
	}
	return e.value, nil
}

func (s *Storage) Set(ctx context.Context, ns, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return storage.ErrInvalidKey
	}
	e := entry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expires = s.now().Add(ttl)
	}
	s.cache.Add(nsKey{ns, key}, e)
	return nil
}

func (s *Storage) Purge(ctx context.Context, ns string) error {
	for _, k := range s.cache.Keys() {
		if k.ns == ns {
			s.cache.Remove(k)
		}
	}
	return nil
}

// Len reports how many keys are held, expired ones included.
func (s *Storage) Len() int { return s.cache.Len() }

func (s *Storage) Close() error {
	s.cache.Purge()
	return nil
}

var _ storage.Storage = (*Storage)(nil)
