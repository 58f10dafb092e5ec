package ssehttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/ggoodman/drafts-mcp-go/internal/httpwire"
	"github.com/ggoodman/drafts-mcp-go/internal/jsonrpc"
	"github.com/ggoodman/drafts-mcp-go/internal/logctx"
	"github.com/ggoodman/drafts-mcp-go/internal/sessioncore"
)

const (
	// DefaultMessagePath is advertised in the endpoint event.
	DefaultMessagePath = "/messages"

	// DefaultMaxBodyBytes bounds a POSTed message.
	DefaultMaxBodyBytes int64 = 4 << 20

	sessionIDParam = "sessionId"
)

// Handler serves the legacy transport. Mount ServeStream on the stream path
// (GET) and ServeMessage on the message path (POST).
type Handler struct {
	log         *slog.Logger
	factory     sessioncore.DispatcherFactory
	registry    *sessioncore.Registry
	messagePath string
	admit       func() bool
	maxBody     int64
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets a custom logger for the Handler.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.log = l
		}
	}
}

// WithMessagePath sets the path advertised in the endpoint event.
func WithMessagePath(p string) Option {
	return func(h *Handler) {
		if p != "" {
			h.messagePath = p
		}
	}
}

// WithAdmission installs a check consulted before a new session is created.
// When it returns false the stream is refused with 503.
func WithAdmission(admit func() bool) Option {
	return func(h *Handler) {
		if admit != nil {
			h.admit = admit
		}
	}
}

// WithMaxBodyBytes bounds the size of a POSTed message.
func WithMaxBodyBytes(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxBody = n
		}
	}
}

// New builds a Handler creating dispatchers with factory and registering
// sessions in registry.
func New(factory sessioncore.DispatcherFactory, registry *sessioncore.Registry, opts ...Option) *Handler {
	h := &Handler{
		log:         slog.New(slog.DiscardHandler),
		factory:     factory,
		registry:    registry,
		messagePath: DefaultMessagePath,
		admit:       func() bool { return true },
		maxBody:     DefaultMaxBodyBytes,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Registry returns the registry this handler inserts sessions into.
func (h *Handler) Registry() *sessioncore.Registry { return h.registry }

// ServeStream opens a new session and streams its outbound messages until
// the client disconnects or the session is closed.
func (h *Handler) ServeStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	if !httpwire.Accepts(r, httpwire.EventStreamMediaType) {
		httpwire.WriteServerError(w, http.StatusNotAcceptable, fmt.Sprintf(httpwire.MsgNotAcceptable, httpwire.EventStreamMediaType.String()))
		h.log.InfoContext(ctx, "sse.stream.accept.reject", slog.String("accept", r.Header.Get("Accept")))
		return
	}
	if !h.admit() {
		httpwire.WriteServerError(w, http.StatusServiceUnavailable, httpwire.MsgShuttingDown)
		h.log.InfoContext(ctx, "session.create.refused")
		return
	}

	id := sessioncore.NewID()
	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: id, Transport: string(sessioncore.KindSSE)})

	ch := newSSEChannel(id, func(id string) { h.registry.Remove(id) })
	d := h.factory.NewDispatcher(id, sessioncore.KindSSE)
	closeChannel := func() {
		if err := ch.Close(); err != nil {
			h.log.InfoContext(ctx, "sse.channel.close.fail", slog.String("err", err.Error()))
		}
	}
	// abandon releases a session the coordinator cannot reach. Once the
	// session is registered, only whoever removes it from the registry may
	// close its dispatcher.
	abandon := func(registered bool) {
		if registered && !h.registry.Remove(id) {
			return
		}
		closeChannel()
		if err := d.Close(); err != nil {
			h.log.InfoContext(ctx, "sse.dispatcher.close.fail", slog.String("err", err.Error()))
		}
	}

	if err := d.Bind(ch); err != nil {
		abandon(false)
		httpwire.WriteServerError(w, http.StatusInternalServerError, httpwire.MsgInternal)
		h.log.ErrorContext(ctx, "session.create.bind.fail", slog.String("err", err.Error()))
		return
	}
	if err := h.registry.Insert(sessioncore.NewSession(id, sessioncore.KindSSE, d, ch)); err != nil {
		abandon(false)
		if errors.Is(err, sessioncore.ErrRegistryClosed) {
			httpwire.WriteServerError(w, http.StatusServiceUnavailable, httpwire.MsgShuttingDown)
		} else {
			httpwire.WriteServerError(w, http.StatusInternalServerError, httpwire.MsgInternal)
		}
		h.log.ErrorContext(ctx, "session.create.register.fail", slog.String("err", err.Error()))
		return
	}

	es, err := httpwire.StartEventStream(ctx, w)
	if err != nil {
		abandon(true)
		h.log.ErrorContext(ctx, "sse.stream.start.fail", slog.String("err", err.Error()))
		return
	}
	endpoint := h.messagePath + "?" + sessionIDParam + "=" + url.QueryEscape(id)
	if err := es.WriteEvent("endpoint", "", []byte(endpoint)); err != nil {
		abandon(true)
		h.log.InfoContext(ctx, "sse.stream.endpoint.fail", slog.String("err", err.Error()))
		return
	}
	h.log.InfoContext(ctx, "session.create.ok", slog.Duration("dur", time.Since(start)))

	sctx, cancel := sessioncore.Bound(ctx, ch)
	defer cancel()

	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		err := ch.inbox.Run(sctx, func(ctx context.Context, req *jsonrpc.Request) {
			h.process(ctx, ch, d, req)
		})
		h.logWorkerEnd(ctx, "inbox", err)
	}()

	err = ch.outbox.Run(sctx, func(ctx context.Context, msg jsonrpc.Message) {
		if err := es.WriteEvent("message", "", msg); err != nil {
			h.log.InfoContext(ctx, "sse.stream.write.fail", slog.String("err", err.Error()))
			cancel()
		}
	})
	h.logWorkerEnd(ctx, "outbox", err)

	// A disconnect releases the channel only. The dispatcher is closed by the
	// coordinator's drain, and the calls it runs already end with the channel.
	if h.registry.Remove(id) {
		closeChannel()
	}
	<-workerDone
	h.log.InfoContext(ctx, "sse.stream.end", slog.Duration("dur", time.Since(start)))
}

func (h *Handler) logWorkerEnd(ctx context.Context, worker string, err error) {
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	h.log.DebugContext(ctx, "sse.worker.end", slog.String("worker", worker), slog.String("err", err.Error()))
}

// process runs one queued request and pushes the response onto the stream.
func (h *Handler) process(ctx context.Context, ch *sseChannel, d sessioncore.Dispatcher, req *jsonrpc.Request) {
	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: ch.id, Transport: string(sessioncore.KindSSE)})

	res, err := d.Handle(ctx, req)
	if err != nil {
		h.log.InfoContext(ctx, "sse.request.fail", slog.String("method", req.Method), slog.String("err", err.Error()))
		res = jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil)
	}
	if res == nil {
		return
	}
	b, err := json.Marshal(res)
	if err != nil {
		h.log.ErrorContext(ctx, "sse.response.encode.fail", slog.String("err", err.Error()))
		return
	}
	if err := ch.Send(ctx, b); err != nil {
		h.log.InfoContext(ctx, "sse.response.send.fail", slog.String("err", err.Error()))
	}
}

// ServeMessage accepts one client message for the session named by the
// sessionId query parameter.
func (h *Handler) ServeMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sess, ok := h.registry.Lookup(r.URL.Query().Get(sessionIDParam))
	if !ok {
		httpwire.WriteServerError(w, http.StatusBadRequest, httpwire.MsgNoValidSession)
		h.log.InfoContext(ctx, "sse.message.session.unknown")
		return
	}
	ch, ok := sess.Channel.(*sseChannel)
	if !ok {
		httpwire.WriteServerError(w, http.StatusInternalServerError, httpwire.MsgInternal)
		h.log.ErrorContext(ctx, "sse.message.channel.invalid")
		return
	}
	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: sess.ID, Transport: string(sess.Kind)})

	if !httpwire.ContentTypeOK(r) {
		httpwire.WriteServerError(w, http.StatusUnsupportedMediaType, httpwire.MsgUnsupportedMedia)
		h.log.InfoContext(ctx, "sse.message.content_type.reject", slog.String("content_type", r.Header.Get("Content-Type")))
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpwire.WriteServerError(w, http.StatusRequestEntityTooLarge, httpwire.MsgBodyTooLarge)
		} else {
			httpwire.WriteServerError(w, http.StatusBadRequest, "Bad Request: failed to read body")
		}
		h.log.InfoContext(ctx, "sse.message.body.fail", slog.String("err", err.Error()))
		return
	}
	msg, err := jsonrpc.ParseMessage(body)
	if err != nil {
		httpwire.WriteParseError(w, err)
		h.log.InfoContext(ctx, "sse.message.parse.fail", slog.String("err", err.Error()))
		return
	}

	req := msg.AsRequest()
	switch {
	case req == nil:
		h.log.DebugContext(ctx, "sse.message.response.ignored")
	case req.IsNotification():
		// Handled inline so that notifications/cancelled can reach a call
		// that is blocking the inbox.
		if _, err := sess.Dispatcher.Handle(ctx, req); err != nil {
			h.log.InfoContext(ctx, "sse.message.notification.fail", slog.String("err", err.Error()))
		}
	default:
		if err := ch.enqueue(req); err != nil {
			httpwire.WriteServerError(w, http.StatusBadRequest, httpwire.MsgNoValidSession)
			h.log.InfoContext(ctx, "sse.message.enqueue.fail", slog.String("err", err.Error()))
			return
		}
	}
	w.WriteHeader(http.StatusAccepted)
}
