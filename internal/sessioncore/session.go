// Package sessioncore holds the transport-neutral pieces of session
// management: the session record, the capability interfaces a transport and
// a dispatcher use to talk to each other, and the per-transport registry.
package sessioncore

import (
	"context"
	"errors"
	"time"

	"github.com/ggoodman/drafts-mcp-go/internal/jsonrpc"
	"github.com/google/uuid"
)

// Kind names the transport binding a session was created on.
type Kind string

const (
	KindStreamableHTTP Kind = "streamable-http"
	KindSSE            Kind = "sse"
	KindStdio          Kind = "stdio"
)

var (
	// ErrChannelClosed is returned by Channel.Send once the channel is closed.
	ErrChannelClosed = errors.New("channel closed")
)

// Channel is the transport side of a session. It delivers server-originated
// messages to the client and signals when the underlying connection is gone.
type Channel interface {
	// SessionID is fixed when the channel is constructed.
	SessionID() string
	// Send delivers one encoded JSON-RPC message to the client.
	Send(ctx context.Context, msg jsonrpc.Message) error
	// Done is closed once the channel is closed, by either side.
	Done() <-chan struct{}
	// Close is idempotent. Only the first call runs the close callback.
	Close() error
}

// Dispatcher is the protocol side of a session. A dispatcher is bound to
// exactly one channel and is never shared between sessions.
type Dispatcher interface {
	// Bind attaches the dispatcher to the channel it pushes
	// server-originated messages through. It must be called before Handle.
	Bind(ch Channel) error
	// Handle processes one inbound request or notification. Notifications
	// yield a nil response.
	Handle(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error)
	// Close releases the dispatcher. It is idempotent.
	Close() error
}

// DispatcherFactory creates a fresh dispatcher for a new session.
type DispatcherFactory interface {
	NewDispatcher(sessionID string, kind Kind) Dispatcher
}

// Session is the registry record binding an id to its dispatcher and
// channel.
type Session struct {
	ID         string
	Kind       Kind
	Dispatcher Dispatcher
	Channel    Channel
	CreatedAt  time.Time
}

// NewSession assembles a record stamped with the current time.
func NewSession(id string, kind Kind, d Dispatcher, ch Channel) *Session {
	return &Session{ID: id, Kind: kind, Dispatcher: d, Channel: ch, CreatedAt: time.Now()}
}

// NewID returns a fresh, unguessable session id.
func NewID() string {
	return uuid.NewString()
}

// Bound derives a context that is also cancelled once ch is done, so that
// closing a session cancels the work running on its behalf.
func Bound(parent context.Context, ch Channel) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		select {
		case <-ch.Done():
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// ReplyFunc writes a message onto the stream serving the current request.
type ReplyFunc func(ctx context.Context, msg jsonrpc.Message) error

type replyKey struct{}

// WithReply attaches a request-scoped reply stream to ctx. Dispatchers use it
// for messages correlated with the request in flight, such as progress.
func WithReply(ctx context.Context, fn ReplyFunc) context.Context {
	if fn == nil {
		return ctx
	}
	return context.WithValue(ctx, replyKey{}, fn)
}

// ReplyFrom returns the request-scoped reply stream, if any.
func ReplyFrom(ctx context.Context) (ReplyFunc, bool) {
	fn, ok := ctx.Value(replyKey{}).(ReplyFunc)
	return fn, ok && fn != nil
}
