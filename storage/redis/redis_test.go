package redis

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/ggoodman/drafts-mcp-go/storage"
	"github.com/redis/go-redis/v9"
)

// newStorage connects to a local Redis or skips.
func newStorage(t *testing.T) *Storage {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379", DB: 2})
	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		t.Skipf("redis not available: %v", err)
	}
	s := New(rdb, WithPrefix("drafts-mcp-test:"+t.Name()+":"))
	t.Cleanup(func() {
		rdb.FlushDB(ctx)
		_ = s.Close()
	})
	return s
}

func TestSetThenGet(t *testing.T) {
	s := newStorage(t)
	ctx := context.Background()

	if err := s.Set(ctx, "actions", "all", []byte(`["Copy"]`), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := s.Get(ctx, "actions", "all")
	if err != nil || string(got) != `["Copy"]` {
		t.Fatalf("Get: %q %v", got, err)
	}
	if _, err := s.Get(ctx, "actions", "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if err := s.Set(ctx, "actions", "", nil, 0); !errors.Is(err, storage.ErrInvalidKey) {
		t.Fatalf("want ErrInvalidKey, got %v", err)
	}
}

func TestTTLIsHandedToRedis(t *testing.T) {
	s := newStorage(t)
	ctx := context.Background()

	if err := s.Set(ctx, "tags", "all", []byte("x"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	ttl, err := s.rdb.TTL(ctx, s.nsPrefix("tags")+"all").Result()
	if err != nil {
		t.Fatalf("TTL: %v", err)
	}
	if ttl <= 0 || ttl > time.Minute {
		t.Fatalf("want a ttl within a minute, got %v", ttl)
	}
}

func TestPurgeIsScopedToNamespace(t *testing.T) {
	s := newStorage(t)
	ctx := context.Background()

	for i := 0; i < scanBatch+5; i++ {
		_ = s.Set(ctx, "tags", "k"+strconv.Itoa(i), []byte("v"), 0)
	}
	_ = s.Set(ctx, "actions", "all", []byte("keep"), 0)

	if err := s.Purge(ctx, "tags"); err != nil {
		t.Fatalf("Purge: %v", err)
	}
	n, err := s.rdb.Keys(ctx, s.nsPrefix("tags")+"*").Result()
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if len(n) != 0 {
		t.Fatalf("want tags purged, %d keys left", len(n))
	}
	if got, err := s.Get(ctx, "actions", "all"); err != nil || string(got) != "keep" {
		t.Fatalf("purge touched another namespace: %q %v", got, err)
	}
}

func TestDialFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := Dial(ctx, "127.0.0.1:1"); err == nil {
		t.Fatal("want dial error for a closed port")
	}
}
