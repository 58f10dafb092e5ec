// Package engine implements the MCP protocol side of a session: one
// Dispatcher per session, created by an Engine shared by every transport.
package engine

import (
	"errors"
	"log/slog"

	"github.com/ggoodman/drafts-mcp-go/internal/sessioncore"
	"github.com/ggoodman/drafts-mcp-go/mcp"
	"github.com/ggoodman/drafts-mcp-go/mcpservice"
)

var (
	// ErrDispatcherClosed is returned by Handle and Bind after Close.
	ErrDispatcherClosed = errors.New("dispatcher closed")
	// ErrAlreadyBound is returned when Bind is called a second time.
	ErrAlreadyBound = errors.New("dispatcher already bound to a channel")
)

// Engine creates dispatchers that answer MCP requests from the configured
// server capabilities. It holds no per-session state.
type Engine struct {
	srv          mcpservice.ServerCapabilities
	log          *slog.Logger
	defaultLevel mcp.LoggingLevel
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets a custom logger for the Engine.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithDefaultLogLevel sets the threshold for notifications/message before a
// client calls logging/setLevel. Defaults to info.
func WithDefaultLogLevel(level mcp.LoggingLevel) EngineOption {
	return func(e *Engine) {
		if mcp.IsValidLoggingLevel(level) {
			e.defaultLevel = level
		}
	}
}

// NewEngine builds an Engine serving srv.
func NewEngine(srv mcpservice.ServerCapabilities, opts ...EngineOption) *Engine {
	e := &Engine{
		srv:          srv,
		log:          slog.New(slog.DiscardHandler),
		defaultLevel: mcp.LoggingLevelInfo,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// NewDispatcher implements sessioncore.DispatcherFactory. Every call yields
// an independent dispatcher.
func (e *Engine) NewDispatcher(sessionID string, kind sessioncore.Kind) sessioncore.Dispatcher {
	return newDispatcher(e, sessionID, kind)
}

var _ sessioncore.DispatcherFactory = (*Engine)(nil)

// Negotiated is implemented by dispatchers that can report the protocol
// version agreed during initialize.
type Negotiated interface {
	ProtocolVersion() string
}

// ProtocolVersionOf returns the negotiated version of d, or "" when unknown.
func ProtocolVersionOf(d sessioncore.Dispatcher) string {
	if n, ok := d.(Negotiated); ok {
		return n.ProtocolVersion()
	}
	return ""
}
