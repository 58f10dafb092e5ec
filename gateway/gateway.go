package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/ggoodman/drafts-mcp-go/internal/sessioncore"
	"github.com/ggoodman/drafts-mcp-go/ssehttp"
	"github.com/ggoodman/drafts-mcp-go/streaminghttp"
)

const (
	DefaultAddr              = "127.0.0.1:3000"
	DefaultStreamPath        = "/mcp"
	DefaultSSEPath           = "/sse"
	DefaultMessagePath       = ssehttp.DefaultMessagePath
	DefaultReadHeaderTimeout = 10 * time.Second
)

// State is the lifecycle state of a Gateway.
type State int32

const (
	StateRunning State = iota
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Gateway owns the HTTP server, the router and one session registry per
// network transport.
type Gateway struct {
	log *slog.Logger

	addr              string
	streamPath        string
	ssePath           string
	messagePath       string
	jsonResponse      bool
	readHeaderTimeout time.Duration
	maxBody           int64

	state atomic.Int32

	streamReg *sessioncore.Registry
	sseReg    *sessioncore.Registry
	stream    *streaminghttp.Handler
	legacy    *ssehttp.Handler
	srv       *http.Server
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogger sets a custom logger for the Gateway and its transports.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) {
		if l != nil {
			g.log = l
		}
	}
}

// WithAddr sets the listen address used by ListenAndServe.
func WithAddr(addr string) Option {
	return func(g *Gateway) { g.addr = addr }
}

// WithStreamPath sets the streaming HTTP endpoint path.
func WithStreamPath(p string) Option {
	return func(g *Gateway) { g.streamPath = p }
}

// WithSSEPath sets the legacy stream path.
func WithSSEPath(p string) Option {
	return func(g *Gateway) { g.ssePath = p }
}

// WithMessagePath sets the legacy message path.
func WithMessagePath(p string) Option {
	return func(g *Gateway) { g.messagePath = p }
}

// WithJSONResponse makes the streaming transport answer with JSON bodies
// instead of event streams.
func WithJSONResponse(enabled bool) Option {
	return func(g *Gateway) { g.jsonResponse = enabled }
}

// WithReadHeaderTimeout configures http.Server.ReadHeaderTimeout.
func WithReadHeaderTimeout(d time.Duration) Option {
	return func(g *Gateway) { g.readHeaderTimeout = d }
}

// WithMaxBodyBytes bounds POSTed messages on both transports.
func WithMaxBodyBytes(n int64) Option {
	return func(g *Gateway) { g.maxBody = n }
}

// New builds a running Gateway whose sessions get dispatchers from factory.
func New(factory sessioncore.DispatcherFactory, opts ...Option) *Gateway {
	g := &Gateway{
		log:               slog.New(slog.DiscardHandler),
		addr:              DefaultAddr,
		streamPath:        DefaultStreamPath,
		ssePath:           DefaultSSEPath,
		messagePath:       DefaultMessagePath,
		readHeaderTimeout: DefaultReadHeaderTimeout,
		streamReg:         sessioncore.NewRegistry(sessioncore.KindStreamableHTTP),
		sseReg:            sessioncore.NewRegistry(sessioncore.KindSSE),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}

	g.stream = streaminghttp.New(factory, g.streamReg,
		streaminghttp.WithLogger(g.log),
		streaminghttp.WithJSONResponse(g.jsonResponse),
		streaminghttp.WithAdmission(g.admit),
		streaminghttp.WithMaxBodyBytes(g.maxBody),
	)
	g.legacy = ssehttp.New(factory, g.sseReg,
		ssehttp.WithLogger(g.log),
		ssehttp.WithMessagePath(g.messagePath),
		ssehttp.WithAdmission(g.admit),
		ssehttp.WithMaxBodyBytes(g.maxBody),
	)
	g.srv = &http.Server{
		Addr:              g.addr,
		Handler:           g.Handler(),
		ReadHeaderTimeout: g.readHeaderTimeout,
		ErrorLog:          slog.NewLogLogger(g.log.Handler(), slog.LevelWarn),
	}
	return g
}

// State reports the lifecycle state.
func (g *Gateway) State() State { return State(g.state.Load()) }

func (g *Gateway) admit() bool { return g.State() == StateRunning }

// Sessions reports the number of live streaming and legacy sessions.
func (g *Gateway) Sessions() (streaming, legacy int) {
	return g.streamReg.Len(), g.sseReg.Len()
}

// ListenAndServe listens on the configured address and serves until
// Shutdown. A failure to bind is returned as is; a clean shutdown returns
// nil.
func (g *Gateway) ListenAndServe() error {
	l, err := net.Listen("tcp", g.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", g.addr, err)
	}
	return g.Serve(l)
}

// Serve serves on l until Shutdown.
func (g *Gateway) Serve(l net.Listener) error {
	g.log.Info("gateway.listen.ok",
		slog.String("addr", l.Addr().String()),
		slog.String("stream_path", g.streamPath),
		slog.String("sse_path", g.ssePath),
		slog.String("message_path", g.messagePath),
	)
	if err := g.srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// Shutdown closes every session and then the HTTP server. Only the first
// call does any work; later and concurrent calls return nil immediately.
// Errors closing individual sessions are logged, never returned.
func (g *Gateway) Shutdown(ctx context.Context) error {
	if !g.state.CompareAndSwap(int32(StateRunning), int32(StateClosing)) {
		return nil
	}
	start := time.Now()
	g.log.InfoContext(ctx, "gateway.shutdown.start")

	drained := 0
	for _, reg := range []*sessioncore.Registry{g.streamReg, g.sseReg} {
		for _, s := range reg.DrainAll() {
			drained++
			if err := s.Channel.Close(); err != nil {
				g.log.WarnContext(ctx, "gateway.shutdown.channel.fail", slog.String("session_id", s.ID), slog.String("err", err.Error()))
			}
			if err := s.Dispatcher.Close(); err != nil {
				g.log.WarnContext(ctx, "gateway.shutdown.dispatcher.fail", slog.String("session_id", s.ID), slog.String("err", err.Error()))
			}
		}
	}

	err := g.srv.Shutdown(ctx)
	g.state.Store(int32(StateClosed))
	if err != nil {
		g.log.ErrorContext(ctx, "gateway.shutdown.fail", slog.Int("sessions", drained), slog.String("err", err.Error()))
		return fmt.Errorf("shutdown http server: %w", err)
	}
	g.log.InfoContext(ctx, "gateway.shutdown.ok", slog.Int("sessions", drained), slog.Duration("dur", time.Since(start)))
	return nil
}
