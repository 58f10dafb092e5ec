package stdio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/ggoodman/drafts-mcp-go/internal/jsonrpc"
	"github.com/ggoodman/drafts-mcp-go/internal/logctx"
	"github.com/ggoodman/drafts-mcp-go/internal/sessioncore"
)

// ErrAlreadyServing is returned by a second call to Serve.
var ErrAlreadyServing = errors.New("stdio handler already serving")

// Handler is a single-connection stdio transport that reads JSON-RPC messages
// from an io.Reader and writes responses to an io.Writer. By default, it uses
// os.Stdin and os.Stdout.
//
// The handler is transport-only; MCP semantics belong to the dispatcher the
// factory creates.
type Handler struct {
	r io.Reader
	w io.Writer
	l *slog.Logger

	factory sessioncore.DispatcherFactory
	started atomic.Bool
}

// NewHandler constructs a stdio Handler with defaults and applies options.
func NewHandler(factory sessioncore.DispatcherFactory, opts ...Option) *Handler {
	h := &Handler{
		r:       os.Stdin,
		w:       os.Stdout,
		l:       slog.New(slog.DiscardHandler),
		factory: factory,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Serve runs the stdio event loop until EOF on the reader or the context is
// canceled. On EOF, requests already read are answered before Serve returns
// nil. It may be called at most once per Handler.
func (h *Handler) Serve(ctx context.Context) error {
	if !h.started.CompareAndSwap(false, true) {
		return ErrAlreadyServing
	}

	id := sessioncore.NewID()
	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: id, Transport: string(sessioncore.KindStdio)})

	ch := newStdioChannel(id, h.w)
	d := h.factory.NewDispatcher(id, sessioncore.KindStdio)
	if err := d.Bind(ch); err != nil {
		return fmt.Errorf("bind dispatcher: %w", err)
	}
	defer func() {
		_ = ch.Close()
		_ = d.Close()
	}()

	sctx, cancel := sessioncore.Bound(ctx, ch)
	defer cancel()

	inbox := sessioncore.NewMailbox[*jsonrpc.Request]()
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		_ = inbox.Run(sctx, func(ctx context.Context, req *jsonrpc.Request) {
			h.process(ctx, ch, d, req)
		})
	}()

	readDone := make(chan error, 1)
	go func() { readDone <- h.readLoop(sctx, ch, d, inbox) }()

	h.l.InfoContext(ctx, "stdio.serve.start")

	select {
	case err := <-readDone:
		inbox.Close()
		select {
		case <-workerDone:
		case <-ctx.Done():
			return ctx.Err()
		}
		if err != nil {
			h.l.ErrorContext(ctx, "stdio.serve.read.fail", slog.String("err", err.Error()))
			return err
		}
		h.l.InfoContext(ctx, "stdio.serve.eof")
		return nil
	case <-ctx.Done():
		inbox.Close()
		h.l.InfoContext(ctx, "stdio.serve.cancelled")
		return ctx.Err()
	}
}

func (h *Handler) readLoop(ctx context.Context, ch *stdioChannel, d sessioncore.Dispatcher, inbox *sessioncore.Mailbox[*jsonrpc.Request]) error {
	br := bufio.NewReader(h.r)
	for {
		line, err := br.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			h.handleLine(ctx, ch, d, inbox, line)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (h *Handler) handleLine(ctx context.Context, ch *stdioChannel, d sessioncore.Dispatcher, inbox *sessioncore.Mailbox[*jsonrpc.Request], line []byte) {
	msg, err := jsonrpc.ParseMessage(line)
	if err != nil {
		code := jsonrpc.ClassifyParseError(err)
		prefix := "Parse error: "
		if code == jsonrpc.ErrorCodeInvalidRequest {
			prefix = "Invalid Request: "
		}
		if werr := ch.writeLine(jsonrpc.EncodeEnvelope(code, prefix+err.Error())); werr != nil {
			h.l.InfoContext(ctx, "stdio.write.fail", slog.String("err", werr.Error()))
		}
		h.l.InfoContext(ctx, "stdio.parse.fail", slog.String("err", err.Error()))
		return
	}

	req := msg.AsRequest()
	switch {
	case req == nil:
		h.l.DebugContext(ctx, "stdio.response.ignored")
	case req.IsNotification():
		if _, err := d.Handle(ctx, req); err != nil {
			h.l.InfoContext(ctx, "stdio.notification.fail", slog.String("method", req.Method), slog.String("err", err.Error()))
		}
	default:
		if err := inbox.Push(req); err != nil {
			h.l.InfoContext(ctx, "stdio.enqueue.fail", slog.String("err", err.Error()))
		}
	}
}

func (h *Handler) process(ctx context.Context, ch *stdioChannel, d sessioncore.Dispatcher, req *jsonrpc.Request) {
	res, err := d.Handle(ctx, req)
	if err != nil {
		h.l.InfoContext(ctx, "stdio.request.fail", slog.String("method", req.Method), slog.String("err", err.Error()))
		res = jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil)
	}
	if res == nil {
		return
	}
	b, err := json.Marshal(res)
	if err != nil {
		h.l.ErrorContext(ctx, "stdio.response.encode.fail", slog.String("err", err.Error()))
		return
	}
	if err := ch.writeLine(b); err != nil {
		h.l.InfoContext(ctx, "stdio.write.fail", slog.String("err", err.Error()))
	}
}

// stdioChannel writes newline-terminated messages to the output stream.
type stdioChannel struct {
	id string

	mu sync.Mutex
	w  io.Writer

	done      chan struct{}
	closeOnce sync.Once
}

func newStdioChannel(id string, w io.Writer) *stdioChannel {
	return &stdioChannel{id: id, w: w, done: make(chan struct{})}
}

func (c *stdioChannel) SessionID() string { return c.id }

func (c *stdioChannel) Done() <-chan struct{} { return c.done }

func (c *stdioChannel) Send(ctx context.Context, msg jsonrpc.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-c.done:
		return sessioncore.ErrChannelClosed
	default:
	}
	return c.writeLine(msg)
}

// writeLine writes b and a newline as one unit.
func (c *stdioChannel) writeLine(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	buf := make([]byte, 0, len(b)+1)
	buf = append(buf, b...)
	buf = append(buf, '\n')
	if _, err := c.w.Write(buf); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

func (c *stdioChannel) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

var _ sessioncore.Channel = (*stdioChannel)(nil)
