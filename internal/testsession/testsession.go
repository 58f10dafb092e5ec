// Package testsession wraps a dispatcher factory so tests can see how each
// session was released.
package testsession

import (
	"sync"
	"sync/atomic"

	"github.com/ggoodman/drafts-mcp-go/internal/sessioncore"
)

// Factory records every dispatcher it hands out, keyed by session id.
type Factory struct {
	inner sessioncore.DispatcherFactory

	mu   sync.Mutex
	byID map[string]*Dispatcher
}

// NewFactory wraps inner.
func NewFactory(inner sessioncore.DispatcherFactory) *Factory {
	return &Factory{inner: inner, byID: make(map[string]*Dispatcher)}
}

// NewDispatcher implements sessioncore.DispatcherFactory.
func (f *Factory) NewDispatcher(sessionID string, kind sessioncore.Kind) sessioncore.Dispatcher {
	d := &Dispatcher{Dispatcher: f.inner.NewDispatcher(sessionID, kind)}
	f.mu.Lock()
	f.byID[sessionID] = d
	f.mu.Unlock()
	return d
}

// Lookup returns the dispatcher created for sessionID.
func (f *Factory) Lookup(sessionID string) (*Dispatcher, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.byID[sessionID]
	return d, ok
}

// Dispatchers returns a snapshot of every dispatcher created so far.
func (f *Factory) Dispatchers() map[string]*Dispatcher {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]*Dispatcher, len(f.byID))
	for id, d := range f.byID {
		out[id] = d
	}
	return out
}

// Dispatcher counts Close calls and remembers the channel it was bound to.
type Dispatcher struct {
	sessioncore.Dispatcher

	closes atomic.Int32

	mu sync.Mutex
	ch sessioncore.Channel
}

func (d *Dispatcher) Bind(ch sessioncore.Channel) error {
	d.mu.Lock()
	d.ch = ch
	d.mu.Unlock()
	return d.Dispatcher.Bind(ch)
}

func (d *Dispatcher) Close() error {
	d.closes.Add(1)
	return d.Dispatcher.Close()
}

// Closes reports how many times Close was called.
func (d *Dispatcher) Closes() int { return int(d.closes.Load()) }

// ChannelClosed reports whether the bound channel is done.
func (d *Dispatcher) ChannelClosed() bool {
	d.mu.Lock()
	ch := d.ch
	d.mu.Unlock()
	if ch == nil {
		return false
	}
	select {
	case <-ch.Done():
		return true
	default:
		return false
	}
}

var _ sessioncore.DispatcherFactory = (*Factory)(nil)
