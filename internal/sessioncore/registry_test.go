package sessioncore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ggoodman/drafts-mcp-go/internal/jsonrpc"
)

type fakeChannel struct {
	id   string
	done chan struct{}
	once sync.Once
}

func newFakeChannel(id string) *fakeChannel {
	return &fakeChannel{id: id, done: make(chan struct{})}
}

func (c *fakeChannel) SessionID() string                           { return c.id }
func (c *fakeChannel) Send(context.Context, jsonrpc.Message) error { return nil }
func (c *fakeChannel) Done() <-chan struct{}                        { return c.done }

func (c *fakeChannel) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func TestRegistryInsertLookupRemove(t *testing.T) {
	r := NewRegistry(KindStreamableHTTP)

	s := NewSession(NewID(), KindStreamableHTTP, nil, newFakeChannel("x"))
	if err := r.Insert(s); err != nil {
		t.Fatalf("Insert() failed: %v", err)
	}

	got, ok := r.Lookup(s.ID)
	if !ok || got != s {
		t.Fatalf("Lookup() = %v, %v; want inserted session", got, ok)
	}
	if want, got := 1, r.Len(); want != got {
		t.Fatalf("Len(): want %d got %d", want, got)
	}

	if !r.Remove(s.ID) {
		t.Fatalf("Remove() reported absent for a registered id")
	}
	if r.Remove(s.ID) {
		t.Fatalf("second Remove() reported present")
	}
	if _, ok := r.Lookup(s.ID); ok {
		t.Fatalf("Lookup() found removed session")
	}
	if _, ok := r.Lookup(""); ok {
		t.Fatalf("Lookup(\"\") must miss")
	}
}

func TestRegistryInsertNeverOverwrites(t *testing.T) {
	r := NewRegistry(KindSSE)
	first := &Session{ID: "dup", Kind: KindSSE}
	second := &Session{ID: "dup", Kind: KindSSE}

	if err := r.Insert(first); err != nil {
		t.Fatalf("Insert() failed: %v", err)
	}
	if err := r.Insert(second); !errors.Is(err, ErrSessionExists) {
		t.Fatalf("want ErrSessionExists, got %v", err)
	}
	got, _ := r.Lookup("dup")
	if got != first {
		t.Fatalf("existing entry was overwritten")
	}
}

func TestRegistryDrainAllSeals(t *testing.T) {
	r := NewRegistry(KindStreamableHTTP)
	for i := 0; i < 5; i++ {
		if err := r.Insert(NewSession(NewID(), KindStreamableHTTP, nil, nil)); err != nil {
			t.Fatalf("Insert() failed: %v", err)
		}
	}

	drained := r.DrainAll()
	if want, got := 5, len(drained); want != got {
		t.Fatalf("DrainAll(): want %d sessions got %d", want, got)
	}
	if want, got := 0, r.Len(); want != got {
		t.Fatalf("Len() after drain: want %d got %d", want, got)
	}
	if again := r.DrainAll(); len(again) != 0 {
		t.Fatalf("second DrainAll() returned %d sessions", len(again))
	}
	if err := r.Insert(NewSession(NewID(), KindStreamableHTTP, nil, nil)); !errors.Is(err, ErrRegistryClosed) {
		t.Fatalf("want ErrRegistryClosed after drain, got %v", err)
	}
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry(KindSSE)
	const n = 64

	ids := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := NewSession(NewID(), KindSSE, nil, nil)
			if err := r.Insert(s); err != nil {
				t.Errorf("Insert() failed: %v", err)
				return
			}
			ids <- s.ID
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool)
	for id := range ids {
		if seen[id] {
			t.Fatalf("duplicate session id %s", id)
		}
		seen[id] = true
	}
	if want, got := n, r.Len(); want != got {
		t.Fatalf("Len(): want %d got %d", want, got)
	}

	// Concurrent removers and a drainer must hand each session out once.
	var removed, drained int
	var mu sync.Mutex
	for id := range seen {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if r.Remove(id) {
				mu.Lock()
				removed++
				mu.Unlock()
			}
		}(id)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		out := r.DrainAll()
		mu.Lock()
		drained += len(out)
		mu.Unlock()
	}()
	wg.Wait()

	if want, got := n, removed+drained; want != got {
		t.Fatalf("sessions handed out: want %d got %d (removed=%d drained=%d)", want, got, removed, drained)
	}
}

func TestBoundCancelsWhenChannelCloses(t *testing.T) {
	ch := newFakeChannel("s")
	ctx, cancel := Bound(context.Background(), ch)
	defer cancel()

	_ = ch.Close()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatalf("bound context not cancelled after channel close")
	}
}

func TestReplyRoundTrip(t *testing.T) {
	if _, ok := ReplyFrom(context.Background()); ok {
		t.Fatalf("unexpected reply func on bare context")
	}
	var got jsonrpc.Message
	ctx := WithReply(context.Background(), func(_ context.Context, msg jsonrpc.Message) error {
		got = msg
		return nil
	})
	fn, ok := ReplyFrom(ctx)
	if !ok {
		t.Fatalf("reply func missing")
	}
	_ = fn(ctx, jsonrpc.Message(`{}`))
	if want, got := `{}`, string(got); want != got {
		t.Fatalf("reply: want %s got %s", want, got)
	}
}
