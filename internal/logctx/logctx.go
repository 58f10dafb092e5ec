// Package logctx carries request, session, rpc and tool details on a
// context and adds them to every slog record logged with that context.
package logctx

import (
	"context"
	"log/slog"
)

// Handler adds the context groups to each record before passing it on.
type Handler struct {
	slog.Handler
}

// New wraps l. An already wrapped logger is returned as is and a nil one
// becomes a discarding logger.
func New(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.New(slog.DiscardHandler)
	}
	if _, ok := l.Handler().(Handler); ok {
		return l
	}
	return slog.New(Handler{Handler: l.Handler()})
}

// grouper is implemented by every value stored by this package.
type grouper interface {
	group() slog.Attr
}

type ctxKey int

const (
	keyRequest ctxKey = iota
	keySession
	keyRPC
	keyTool
	numKeys
)

func (h Handler) Handle(ctx context.Context, r slog.Record) error {
	for k := ctxKey(0); k < numKeys; k++ {
		if g, ok := ctx.Value(k).(grouper); ok {
			r.AddAttrs(g.group())
		}
	}
	return h.Handler.Handle(ctx, r)
}

func (h Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return Handler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h Handler) WithGroup(name string) slog.Handler {
	return Handler{Handler: h.Handler.WithGroup(name)}
}

// groupOf builds a group from key/value pairs, leaving out empty values.
func groupOf(name string, kv ...string) slog.Attr {
	attrs := make([]any, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i+1] != "" {
			attrs = append(attrs, slog.String(kv[i], kv[i+1]))
		}
	}
	return slog.Group(name, attrs...)
}

// RequestData describes an inbound HTTP request.
type RequestData struct {
	RequestID  string
	Method     string
	UserAgent  string
	RemoteAddr string
	Path       string
}

func (d *RequestData) group() slog.Attr {
	return groupOf("req", "id", d.RequestID, "method", d.Method, "user_agent", d.UserAgent, "remote_addr", d.RemoteAddr, "path", d.Path)
}

func WithRequestData(ctx context.Context, d *RequestData) context.Context {
	return context.WithValue(ctx, keyRequest, d)
}

// SessionData describes the MCP session a record belongs to.
type SessionData struct {
	SessionID       string
	Transport       string
	ProtocolVersion string
}

func (d *SessionData) group() slog.Attr {
	return groupOf("sess", "id", d.SessionID, "transport", d.Transport, "protocol_version", d.ProtocolVersion)
}

func WithSessionData(ctx context.Context, d *SessionData) context.Context {
	return context.WithValue(ctx, keySession, d)
}

// RPCMessage describes the JSON-RPC message being handled.
type RPCMessage struct {
	Method string
	ID     string
	Type   string
}

func (d *RPCMessage) group() slog.Attr {
	return groupOf("rpc", "method", d.Method, "id", d.ID, "type", d.Type)
}

func WithRPCMessage(ctx context.Context, d *RPCMessage) context.Context {
	return context.WithValue(ctx, keyRPC, d)
}

// ToolCallData names the tool being called.
type ToolCallData struct {
	ToolName string
}

func (d *ToolCallData) group() slog.Attr {
	return groupOf("tool", "name", d.ToolName)
}

func WithToolCallData(ctx context.Context, d *ToolCallData) context.Context {
	return context.WithValue(ctx, keyTool, d)
}
