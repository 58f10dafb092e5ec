package sessioncore

import (
	"context"
	"errors"
	"sync"

	"github.com/eapache/queue"
)

// ErrMailboxClosed is returned by Push after Close.
var ErrMailboxClosed = errors.New("mailbox closed")

// Mailbox is an unbounded FIFO with a single consumer. Producers never block.
type Mailbox[T any] struct {
	mu     sync.Mutex
	q      *queue.Queue
	signal chan struct{}
	closed bool
}

// NewMailbox returns an empty, open mailbox.
func NewMailbox[T any]() *Mailbox[T] {
	return &Mailbox[T]{q: queue.New(), signal: make(chan struct{}, 1)}
}

// Push appends v.
func (m *Mailbox[T]) Push(v T) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrMailboxClosed
	}
	m.q.Add(v)
	m.mu.Unlock()
	m.wake()
	return nil
}

// Len reports the number of queued items.
func (m *Mailbox[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.q.Length()
}

// Close stops accepting items. Items already queued are still delivered by Run.
func (m *Mailbox[T]) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.wake()
}

// Run delivers items to fn one at a time, in arrival order, until the
// mailbox is closed and empty (returning nil) or ctx is done (returning the
// context error). Run must not be called concurrently.
func (m *Mailbox[T]) Run(ctx context.Context, fn func(context.Context, T)) error {
	for {
		m.mu.Lock()
		if m.q.Length() > 0 {
			v, _ := m.q.Remove().(T)
			m.mu.Unlock()
			fn(ctx, v)
			if err := ctx.Err(); err != nil {
				return err
			}
			continue
		}
		closed := m.closed
		m.mu.Unlock()
		if closed {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.signal:
		}
	}
}

func (m *Mailbox[T]) wake() {
	select {
	case m.signal <- struct{}{}:
	default:
	}
}
