package mcpservice

import (
	"sync"
)

// ChangeNotifier is an in-process pub-sub for "something changed" signals.
// Containers embed it so listChanged notifications can reach every session.
type ChangeNotifier struct {
	mu     sync.Mutex
	subs   map[int]chan struct{}
	nextID int
	closed bool
}

// ChangeSubscriber is implemented by values that publish change signals.
type ChangeSubscriber interface {
	// Subscribe returns a channel that receives a signal per change and a
	// cancel func that detaches it.
	Subscribe() (<-chan struct{}, func())
}

// Notify signals every subscriber. Sends never block: a subscriber that has
// not consumed the previous signal simply keeps its pending one.
func (cn *ChangeNotifier) Notify() {
	cn.mu.Lock()
	defer cn.mu.Unlock()
	if cn.closed {
		return
	}
	for _, ch := range cn.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Subscribe implements ChangeSubscriber. After Close it returns a closed
// channel.
func (cn *ChangeNotifier) Subscribe() (<-chan struct{}, func()) {
	cn.mu.Lock()
	defer cn.mu.Unlock()

	if cn.closed {
		ch := make(chan struct{})
		close(ch)
		return ch, func() {}
	}
	if cn.subs == nil {
		cn.subs = make(map[int]chan struct{})
	}
	id := cn.nextID
	cn.nextID++
	ch := make(chan struct{}, 1)
	cn.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			cn.mu.Lock()
			defer cn.mu.Unlock()
			if c, ok := cn.subs[id]; ok {
				delete(cn.subs, id)
				close(c)
			}
		})
	}
}

// Len reports the number of live subscriptions.
func (cn *ChangeNotifier) Len() int {
	cn.mu.Lock()
	defer cn.mu.Unlock()
	return len(cn.subs)
}

// Close closes every subscriber channel and makes Notify a no-op.
func (cn *ChangeNotifier) Close() {
	cn.mu.Lock()
	defer cn.mu.Unlock()
	if cn.closed {
		return
	}
	cn.closed = true
	for id, ch := range cn.subs {
		delete(cn.subs, id)
		close(ch)
	}
}
