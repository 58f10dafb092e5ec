package streaminghttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/elnormous/contenttype"
	"github.com/ggoodman/drafts-mcp-go/internal/httpwire"
	"github.com/ggoodman/drafts-mcp-go/internal/jsonrpc"
	"github.com/ggoodman/drafts-mcp-go/internal/logctx"
	"github.com/ggoodman/drafts-mcp-go/internal/sessioncore"
	"github.com/ggoodman/drafts-mcp-go/mcp"
)

const (
	mcpSessionIDHeader       = "Mcp-Session-Id"
	mcpProtocolVersionHeader = "Mcp-Protocol-Version"

	// DefaultMaxBodyBytes bounds a POSTed message.
	DefaultMaxBodyBytes int64 = 4 << 20
)

// Handler serves the streaming HTTP transport on a single endpoint.
type Handler struct {
	log          *slog.Logger
	factory      sessioncore.DispatcherFactory
	registry     *sessioncore.Registry
	jsonResponse bool
	admit        func() bool
	maxBody      int64
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

// WithJSONResponse answers requests with a single application/json body
// instead of an event stream.
func WithJSONResponse(enabled bool) Option {
	return func(h *Handler) { h.jsonResponse = enabled }
}

// WithAdmission installs a check consulted before a new session is created.
// When it returns false the initiation is refused with 503.
func WithAdmission(admit func() bool) Option {
	return func(h *Handler) {
		if admit != nil {
			h.admit = admit
		}
	}
}

// WithMaxBodyBytes bounds the size of a POSTed message. Non-positive values
// are ignored.
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
		log:      slog.New(slog.DiscardHandler),
		factory:  factory,
		registry: registry,
		admit:    func() bool { return true },
		maxBody:  DefaultMaxBodyBytes,
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

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handlePost(w, r)
	case http.MethodGet:
		h.handleGet(w, r)
	case http.MethodDelete:
		h.handleDelete(w, r)
	default:
		w.Header().Set("Allow", "GET, POST, DELETE")
		httpwire.WriteServerError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	}
}

func (h *Handler) responseMediaType() contenttype.MediaType {
	if h.jsonResponse {
		return httpwire.JSONMediaType
	}
	return httpwire.EventStreamMediaType
}

func (h *Handler) handlePost(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if !httpwire.ContentTypeOK(r) {
		httpwire.WriteServerError(w, http.StatusUnsupportedMediaType, httpwire.MsgUnsupportedMedia)
		h.log.InfoContext(ctx, "streaminghttp.post.content_type.reject", slog.String("content_type", r.Header.Get("Content-Type")))
		return
	}
	mt := h.responseMediaType()
	if !httpwire.Accepts(r, mt) {
		httpwire.WriteServerError(w, http.StatusNotAcceptable, fmt.Sprintf(httpwire.MsgNotAcceptable, mt.String()))
		h.log.InfoContext(ctx, "streaminghttp.post.accept.reject", slog.String("accept", r.Header.Get("Accept")))
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpwire.WriteServerError(w, http.StatusRequestEntityTooLarge, httpwire.MsgBodyTooLarge)
			h.log.InfoContext(ctx, "streaminghttp.post.body.too_large", slog.Int64("limit", tooLarge.Limit))
			return
		}
		httpwire.WriteServerError(w, http.StatusBadRequest, "Bad Request: failed to read body")
		h.log.InfoContext(ctx, "streaminghttp.post.body.fail", slog.String("err", err.Error()))
		return
	}

	msg, err := jsonrpc.ParseMessage(body)
	if err != nil {
		httpwire.WriteParseError(w, err)
		h.log.InfoContext(ctx, "streaminghttp.post.parse.fail", slog.String("err", err.Error()))
		return
	}

	sessID := r.Header.Get(mcpSessionIDHeader)
	if sessID == "" {
		req := msg.AsRequest()
		if req == nil || req.IsNotification() || req.Method != string(mcp.InitializeMethod) {
			httpwire.WriteServerError(w, http.StatusBadRequest, httpwire.MsgNoValidSession)
			h.log.InfoContext(ctx, "streaminghttp.post.no_session", slog.String("method", msg.Method))
			return
		}
		h.initiate(w, r, req)
		return
	}

	sess, ok := h.registry.Lookup(sessID)
	if !ok {
		httpwire.WriteServerError(w, http.StatusBadRequest, httpwire.MsgNoValidSession)
		h.log.InfoContext(ctx, "streaminghttp.post.session.unknown")
		return
	}
	if v := r.Header.Get(mcpProtocolVersionHeader); v != "" && !slices.Contains(mcp.SupportedProtocolVersions, v) {
		httpwire.WriteServerError(w, http.StatusBadRequest, "Bad Request: Unsupported protocol version: "+v)
		h.log.InfoContext(ctx, "streaminghttp.post.protocol_version.reject", slog.String("version", v))
		return
	}
	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: sess.ID, Transport: string(sess.Kind)})

	req := msg.AsRequest()
	if req == nil {
		// Client responses to server requests have no consumer.
		w.WriteHeader(http.StatusAccepted)
		h.log.DebugContext(ctx, "streaminghttp.post.response.ignored")
		return
	}

	if req.IsNotification() {
		if _, err := sess.Dispatcher.Handle(ctx, req); err != nil {
			h.log.InfoContext(ctx, "streaminghttp.post.notification.fail", slog.String("err", err.Error()))
		}
		w.WriteHeader(http.StatusAccepted)
		return
	}

	h.serveRequest(ctx, w, sess, req)
}

// initiate creates a session around an initialize request. Nothing is
// registered unless the dispatcher answers successfully.
func (h *Handler) initiate(w http.ResponseWriter, r *http.Request, req *jsonrpc.Request) {
	ctx := r.Context()
	start := time.Now()

	if !h.admit() {
		httpwire.WriteServerError(w, http.StatusServiceUnavailable, httpwire.MsgShuttingDown)
		h.log.InfoContext(ctx, "session.create.refused")
		return
	}

	id := sessioncore.NewID()
	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: id, Transport: string(sessioncore.KindStreamableHTTP)})

	ch := newStreamChannel(id, func(id string) { h.registry.Remove(id) })
	d := h.factory.NewDispatcher(id, sessioncore.KindStreamableHTTP)
	discard := func() {
		_ = ch.Close()
		_ = d.Close()
	}

	if err := d.Bind(ch); err != nil {
		discard()
		httpwire.WriteServerError(w, http.StatusInternalServerError, httpwire.MsgInternal)
		h.log.ErrorContext(ctx, "session.create.bind.fail", slog.String("err", err.Error()))
		return
	}

	ps := &postStream{w: w, ctx: ctx}
	res, err := h.handle(ctx, ch, d, req, ps)
	if err == nil && res == nil {
		err = errors.New("initialize produced no response")
	}
	if err != nil || res.Error != nil {
		discard()
		if err != nil {
			httpwire.WriteServerError(w, http.StatusInternalServerError, httpwire.MsgInternal)
			h.log.ErrorContext(ctx, "session.create.initialize.fail", slog.String("err", err.Error()))
			return
		}
		h.writeResponse(ctx, w, ps, res)
		h.log.InfoContext(ctx, "session.create.initialize.rejected")
		return
	}

	// onSessionReady: the id becomes routable only now.
	if err := h.registry.Insert(sessioncore.NewSession(id, sessioncore.KindStreamableHTTP, d, ch)); err != nil {
		discard()
		if errors.Is(err, sessioncore.ErrRegistryClosed) {
			httpwire.WriteServerError(w, http.StatusServiceUnavailable, httpwire.MsgShuttingDown)
		} else {
			httpwire.WriteServerError(w, http.StatusInternalServerError, httpwire.MsgInternal)
		}
		h.log.ErrorContext(ctx, "session.create.register.fail", slog.String("err", err.Error()))
		return
	}

	w.Header().Set(mcpSessionIDHeader, id)
	h.writeResponse(ctx, w, ps, res)
	h.log.InfoContext(ctx, "session.create.ok", slog.Duration("dur", time.Since(start)))
}

func (h *Handler) serveRequest(ctx context.Context, w http.ResponseWriter, sess *sessioncore.Session, req *jsonrpc.Request) {
	start := time.Now()
	ps := &postStream{w: w, ctx: ctx}
	res, err := h.handle(ctx, sess.Channel, sess.Dispatcher, req, ps)
	if err != nil {
		if ps.started() {
			h.log.ErrorContext(ctx, "streaminghttp.post.handle.fail", slog.String("err", err.Error()))
			return
		}
		httpwire.WriteServerError(w, http.StatusInternalServerError, httpwire.MsgInternal)
		h.log.ErrorContext(ctx, "streaminghttp.post.handle.fail", slog.String("err", err.Error()))
		return
	}
	h.writeResponse(ctx, w, ps, res)
	h.log.DebugContext(ctx, "streaminghttp.post.ok", slog.String("method", req.Method), slog.Duration("dur", time.Since(start)))
}

// handle runs req on d with a context that ends with the channel. In stream
// mode request-scoped messages are written to ps ahead of the response.
func (h *Handler) handle(ctx context.Context, ch sessioncore.Channel, d sessioncore.Dispatcher, req *jsonrpc.Request, ps *postStream) (*jsonrpc.Response, error) {
	hctx, cancel := sessioncore.Bound(ctx, ch)
	defer cancel()

	if !h.jsonResponse {
		hctx = sessioncore.WithReply(hctx, ps.send)
	}
	return d.Handle(hctx, req)
}

// writeResponse frames res according to the response mode. In stream mode
// the response is the last event on ps.
func (h *Handler) writeResponse(ctx context.Context, w http.ResponseWriter, ps *postStream, res *jsonrpc.Response) {
	b, err := json.Marshal(res)
	if err != nil {
		h.log.ErrorContext(ctx, "streaminghttp.response.encode.fail", slog.String("err", err.Error()))
		if !ps.started() {
			httpwire.WriteServerError(w, http.StatusInternalServerError, httpwire.MsgInternal)
		}
		return
	}

	if h.jsonResponse {
		w.Header().Set("Content-Type", httpwire.JSONMediaType.String())
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(b); err != nil {
			h.log.InfoContext(ctx, "streaminghttp.response.write.fail", slog.String("err", err.Error()))
		}
		return
	}

	if err := ps.send(ctx, b); err != nil {
		h.log.InfoContext(ctx, "streaminghttp.response.write.fail", slog.String("err", err.Error()))
	}
}

// postStream is the event stream answering one POSTed request. Headers are
// committed on the first message.
type postStream struct {
	w   http.ResponseWriter
	ctx context.Context

	mu sync.Mutex
	es *httpwire.EventStream
}

func (p *postStream) send(_ context.Context, msg jsonrpc.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.es == nil {
		es, err := httpwire.StartEventStream(p.ctx, p.w)
		if err != nil {
			return err
		}
		p.es = es
	}
	return p.es.WriteEvent("message", "", msg)
}

func (p *postStream) started() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.es != nil
}

func (h *Handler) lookupFromHeader(w http.ResponseWriter, r *http.Request) (*sessioncore.Session, bool) {
	sess, ok := h.registry.Lookup(r.Header.Get(mcpSessionIDHeader))
	if !ok {
		httpwire.WriteServerError(w, http.StatusBadRequest, httpwire.MsgNoValidSession)
		h.log.InfoContext(r.Context(), "streaminghttp.session.unknown", slog.String("method", r.Method))
		return nil, false
	}
	return sess, true
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if !httpwire.Accepts(r, httpwire.EventStreamMediaType) {
		httpwire.WriteServerError(w, http.StatusNotAcceptable, fmt.Sprintf(httpwire.MsgNotAcceptable, httpwire.EventStreamMediaType.String()))
		h.log.InfoContext(ctx, "streaminghttp.get.accept.reject", slog.String("accept", r.Header.Get("Accept")))
		return
	}
	sess, ok := h.lookupFromHeader(w, r)
	if !ok {
		return
	}
	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: sess.ID, Transport: string(sess.Kind)})

	ch, ok := sess.Channel.(*streamChannel)
	if !ok {
		httpwire.WriteServerError(w, http.StatusInternalServerError, httpwire.MsgInternal)
		h.log.ErrorContext(ctx, "streaminghttp.get.channel.invalid")
		return
	}
	w.Header().Set(mcpSessionIDHeader, sess.ID)
	es, err := ch.attach(func() (*httpwire.EventStream, error) {
		return httpwire.StartEventStream(ctx, w)
	})
	if errors.Is(err, errStreamAttached) {
		w.Header().Del(mcpSessionIDHeader)
		httpwire.WriteServerError(w, http.StatusConflict, "Conflict: Only one SSE stream is allowed per session")
		h.log.InfoContext(ctx, "streaminghttp.get.conflict")
		return
	}
	if err != nil {
		h.log.ErrorContext(ctx, "streaminghttp.get.start.fail", slog.String("err", err.Error()))
		return
	}
	defer ch.detach(es)

	h.log.InfoContext(ctx, "streaminghttp.get.stream.start")
	select {
	case <-ctx.Done():
	case <-ch.Done():
	}
	h.log.InfoContext(ctx, "streaminghttp.get.stream.end")
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.lookupFromHeader(w, r)
	if !ok {
		return
	}
	ctx := logctx.WithSessionData(r.Context(), &logctx.SessionData{SessionID: sess.ID, Transport: string(sess.Kind)})

	// Only the caller that takes the entry out of the registry closes the
	// session; a concurrent DELETE or drain owns it otherwise.
	if !h.registry.Remove(sess.ID) {
		httpwire.WriteServerError(w, http.StatusBadRequest, httpwire.MsgNoValidSession)
		h.log.InfoContext(ctx, "session.delete.lost")
		return
	}
	if err := sess.Channel.Close(); err != nil {
		h.log.InfoContext(ctx, "session.delete.channel.fail", slog.String("err", err.Error()))
	}
	if err := sess.Dispatcher.Close(); err != nil {
		h.log.InfoContext(ctx, "session.delete.dispatcher.fail", slog.String("err", err.Error()))
	}

	w.WriteHeader(http.StatusNoContent)
	h.log.InfoContext(ctx, "session.delete.ok")
}

var _ http.Handler = (*Handler)(nil)
