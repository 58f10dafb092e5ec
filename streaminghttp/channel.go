package streaminghttp

import (
	"context"
	"errors"
	"sync"

	"github.com/ggoodman/drafts-mcp-go/internal/httpwire"
	"github.com/ggoodman/drafts-mcp-go/internal/jsonrpc"
	"github.com/ggoodman/drafts-mcp-go/internal/sessioncore"
)

var (
	// errNoStream is returned by Send while no GET stream is attached.
	errNoStream = errors.New("no standalone stream attached")
	// errStreamAttached is returned by attach when a GET stream is open.
	errStreamAttached = errors.New("standalone stream already attached")
)

// streamChannel is the sessioncore.Channel of a streaming HTTP session.
// Server-initiated messages are written to the standalone GET stream when
// one is attached.
type streamChannel struct {
	id string

	mu     sync.Mutex
	stream *httpwire.EventStream

	done      chan struct{}
	closeOnce sync.Once
	onClose   func(id string)
}

func newStreamChannel(id string, onClose func(id string)) *streamChannel {
	return &streamChannel{id: id, done: make(chan struct{}), onClose: onClose}
}

func (c *streamChannel) SessionID() string { return c.id }

func (c *streamChannel) Done() <-chan struct{} { return c.done }

func (c *streamChannel) Send(ctx context.Context, msg jsonrpc.Message) error {
	select {
	case <-c.done:
		return sessioncore.ErrChannelClosed
	default:
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream == nil {
		return errNoStream
	}
	return c.stream.WriteEvent("message", "", msg)
}

func (c *streamChannel) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.onClose != nil {
			c.onClose(c.id)
		}
	})
	return nil
}

// attach opens and installs the standalone stream. open runs under the
// channel lock, so a client never sees the headers of a stream that is not
// yet attached.
func (c *streamChannel) attach(open func() (*httpwire.EventStream, error)) (*httpwire.EventStream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream != nil {
		return nil, errStreamAttached
	}
	es, err := open()
	if err != nil {
		return nil, err
	}
	c.stream = es
	return es, nil
}

// detach removes es if it is still the attached stream.
func (c *streamChannel) detach(es *httpwire.EventStream) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream == es {
		c.stream = nil
	}
}

var _ sessioncore.Channel = (*streamChannel)(nil)
