package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ggoodman/drafts-mcp-go/internal/jsonrpc"
	"github.com/ggoodman/drafts-mcp-go/internal/logctx"
	"github.com/ggoodman/drafts-mcp-go/internal/sessioncore"
	"github.com/ggoodman/drafts-mcp-go/mcp"
	"github.com/ggoodman/drafts-mcp-go/mcpservice"
	"github.com/ggoodman/drafts-mcp-go/sessions"
)

type lifecycle int

const (
	stateNew lifecycle = iota
	stateInitialized
	stateReady
	stateClosed
)

func (s lifecycle) String() string {
	switch s {
	case stateNew:
		return "new"
	case stateInitialized:
		return "initialized"
	case stateReady:
		return "ready"
	default:
		return "closed"
	}
}

// Dispatcher serves one session. Requests are handled one at a time;
// notifications skip the queue so that a cancellation can reach the call it
// targets.
type Dispatcher struct {
	eng  *Engine
	id   string
	kind sessioncore.Kind

	// serial admits one request at a time.
	serial sync.Mutex

	mu              sync.Mutex
	state           lifecycle
	protocolVersion string
	clientInfo      mcp.ImplementationInfo
	logLevel        mcp.LoggingLevel
	ch              sessioncore.Channel
	inflight        map[string]context.CancelCauseFunc

	// life is cancelled by Close; background work hangs off it.
	life       context.Context
	cancelLife context.CancelFunc
}

func newDispatcher(e *Engine, sessionID string, kind sessioncore.Kind) *Dispatcher {
	life, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		eng:        e,
		id:         sessionID,
		kind:       kind,
		logLevel:   e.defaultLevel,
		inflight:   make(map[string]context.CancelCauseFunc),
		life:       life,
		cancelLife: cancel,
	}
}

var (
	_ sessioncore.Dispatcher = (*Dispatcher)(nil)
	_ sessions.Session       = (*Dispatcher)(nil)
)

func (d *Dispatcher) SessionID() string { return d.id }
func (d *Dispatcher) Transport() string { return string(d.kind) }

func (d *Dispatcher) ProtocolVersion() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.protocolVersion
}

func (d *Dispatcher) ClientInfo() mcp.ImplementationInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clientInfo
}

// Bind implements sessioncore.Dispatcher.
func (d *Dispatcher) Bind(ch sessioncore.Channel) error {
	if ch == nil {
		return fmt.Errorf("bind: nil channel")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == stateClosed {
		return ErrDispatcherClosed
	}
	if d.ch != nil {
		return ErrAlreadyBound
	}
	d.ch = ch
	return nil
}

// Close implements sessioncore.Dispatcher. In-flight calls are cancelled.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.state == stateClosed {
		d.mu.Unlock()
		return nil
	}
	d.state = stateClosed
	cancels := make([]context.CancelCauseFunc, 0, len(d.inflight))
	for _, c := range d.inflight {
		cancels = append(cancels, c)
	}
	d.mu.Unlock()

	for _, c := range cancels {
		c(ErrDispatcherClosed)
	}
	d.cancelLife()
	return nil
}

// Handle implements sessioncore.Dispatcher.
func (d *Dispatcher) Handle(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	if req == nil {
		return nil, fmt.Errorf("handle: nil request")
	}
	if d.currentState() == stateClosed {
		return nil, ErrDispatcherClosed
	}

	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{
		SessionID:       d.id,
		Transport:       string(d.kind),
		ProtocolVersion: d.ProtocolVersion(),
	})

	if req.IsNotification() {
		ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{Method: req.Method, Type: "notification"})
		d.handleNotification(ctx, req)
		return nil, nil
	}

	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{Method: req.Method, ID: req.ID.String(), Type: "request"})

	// ping is answered even while another request holds the queue.
	if req.Method == string(mcp.PingMethod) {
		return jsonrpc.NewResultResponse(req.ID, &mcp.EmptyResult{})
	}

	d.serial.Lock()
	defer d.serial.Unlock()

	if d.currentState() == stateClosed {
		return nil, ErrDispatcherClosed
	}

	switch req.Method {
	case string(mcp.InitializeMethod):
		return d.handleInitialize(ctx, req)
	case string(mcp.ToolsListMethod):
		return d.handleToolsList(ctx, req)
	case string(mcp.ToolsCallMethod):
		return d.handleToolCall(ctx, req)
	case string(mcp.LoggingSetLevelMethod):
		return d.handleSetLoggingLevel(ctx, req)
	}

	d.eng.log.InfoContext(ctx, "engine.handle_request.unknown_method")
	return reject(req, jsonrpc.ErrorCodeMethodNotFound, "method not found: "+req.Method)
}

// reject answers req with an error and no data.
func reject(req *jsonrpc.Request, code jsonrpc.ErrorCode, msg string) (*jsonrpc.Response, error) {
	return jsonrpc.NewErrorResponse(req.ID, code, msg, nil), nil
}

func (d *Dispatcher) currentState() lifecycle {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Dispatcher) channel() sessioncore.Channel {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ch
}

func (d *Dispatcher) handleInitialize(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	start := time.Now()
	log := d.eng.log

	var params mcp.InitializeRequest
	if err := json.Unmarshal(req.Params, &params); err != nil {
		log.InfoContext(ctx, "engine.handle_request.invalid", slog.String("err", err.Error()))
		return reject(req, jsonrpc.ErrorCodeInvalidParams, "invalid params")
	}

	d.mu.Lock()
	if d.state != stateNew {
		d.mu.Unlock()
		log.InfoContext(ctx, "engine.handle_request.invalid", slog.String("err", "already initialized"))
		return reject(req, jsonrpc.ErrorCodeInvalidRequest, "session already initialized")
	}
	d.protocolVersion = mcp.NegotiateProtocolVersion(params.ProtocolVersion)
	d.clientInfo = params.ClientInfo
	d.mu.Unlock()

	srv := d.eng.srv
	serverInfo, err := srv.GetServerInfo(ctx, d)
	if err != nil {
		return d.failInitialize(ctx, req, fmt.Errorf("get server info: %w", err))
	}

	res := &mcp.InitializeResult{
		ProtocolVersion: d.ProtocolVersion(),
		Capabilities:    mcp.ServerCapabilities{Logging: &struct{}{}},
		ServerInfo:      serverInfo,
	}

	if instr, ok, err := srv.GetInstructions(ctx, d); err != nil {
		return d.failInitialize(ctx, req, fmt.Errorf("get instructions: %w", err))
	} else if ok {
		res.Instructions = instr
	}

	toolsCap, ok, err := srv.GetToolsCapability(ctx, d)
	if err != nil {
		return d.failInitialize(ctx, req, fmt.Errorf("get tools capability: %w", err))
	}
	if ok && toolsCap != nil {
		res.Capabilities.Tools = &struct {
			ListChanged bool `json:"listChanged"`
		}{}
		lc, ok, err := toolsCap.GetListChangedCapability(ctx, d)
		if err != nil {
			return d.failInitialize(ctx, req, fmt.Errorf("get listChanged capability: %w", err))
		}
		if ok && lc != nil {
			res.Capabilities.Tools.ListChanged = true
			d.registerListChanged(ctx, lc)
		}
	}

	d.mu.Lock()
	if d.state == stateNew {
		d.state = stateInitialized
	}
	d.mu.Unlock()

	log.InfoContext(ctx, "engine.initialize.ok",
		slog.String("protocol_version", res.ProtocolVersion),
		slog.String("client", params.ClientInfo.Name),
		slog.Int64("dur_ms", time.Since(start).Milliseconds()),
	)

	return jsonrpc.NewResultResponse(req.ID, res)
}

// failInitialize rolls the session back to new so a retry is possible.
func (d *Dispatcher) failInitialize(ctx context.Context, req *jsonrpc.Request, err error) (*jsonrpc.Response, error) {
	d.mu.Lock()
	d.protocolVersion = ""
	d.clientInfo = mcp.ImplementationInfo{}
	d.mu.Unlock()
	d.eng.log.ErrorContext(ctx, "engine.initialize.fail", slog.String("err", err.Error()))
	return reject(req, jsonrpc.ErrorCodeInternalError, "internal error")
}

// registerListChanged forwards tool list changes to the bound channel for as
// long as both the dispatcher and the channel are alive.
func (d *Dispatcher) registerListChanged(ctx context.Context, lc mcpservice.ToolListChangedCapability) {
	ch := d.channel()
	if ch == nil {
		return
	}
	// Released by Close through d.life, or earlier when the channel ends.
	regCtx, _ := sessioncore.Bound(d.life, ch)
	regCtx = logctx.WithSessionData(regCtx, &logctx.SessionData{SessionID: d.id, Transport: string(d.kind)})

	if _, err := lc.Register(regCtx, d, func(ctx context.Context, _ sessions.Session) {
		if st := d.currentState(); st != stateInitialized && st != stateReady {
			return
		}
		msg, err := jsonrpc.NewNotification(string(mcp.ToolsListChangedNotificationMethod), nil)
		if err != nil {
			d.eng.log.ErrorContext(ctx, "engine.emitter.encode.fail", slog.String("err", err.Error()))
			return
		}
		if err := d.send(ctx, msg); err != nil {
			d.eng.log.InfoContext(ctx, "engine.emitter.send.fail", slog.String("err", err.Error()))
		}
	}); err != nil {
		d.eng.log.ErrorContext(ctx, "engine.emitter.register.fail", slog.String("err", err.Error()))
	}
}

func (d *Dispatcher) requireInitialized(req *jsonrpc.Request) *jsonrpc.Response {
	switch d.currentState() {
	case stateInitialized, stateReady:
		return nil
	}
	return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidRequest, "session not initialized", nil)
}

func (d *Dispatcher) handleToolsList(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	start := time.Now()
	log := d.eng.log

	if res := d.requireInitialized(req); res != nil {
		return res, nil
	}

	var params mcp.ListToolsRequest
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			log.InfoContext(ctx, "engine.handle_request.invalid", slog.String("err", err.Error()))
			return reject(req, jsonrpc.ErrorCodeInvalidParams, "invalid params")
		}
	}

	toolsCap, ok, err := d.eng.srv.GetToolsCapability(ctx, d)
	if err != nil {
		log.ErrorContext(ctx, "engine.handle_request.fail", slog.String("err", err.Error()))
		return reject(req, jsonrpc.ErrorCodeInternalError, "internal error")
	}
	if !ok || toolsCap == nil {
		log.InfoContext(ctx, "engine.handle_request.unsupported")
		return reject(req, jsonrpc.ErrorCodeMethodNotFound, "tools capability not supported")
	}

	var cursor *string
	if params.Cursor != "" {
		s := params.Cursor
		cursor = &s
	}

	page, err := toolsCap.ListTools(ctx, d, cursor)
	if err != nil {
		log.ErrorContext(ctx, "engine.handle_request.fail", slog.String("err", err.Error()))
		return reject(req, jsonrpc.ErrorCodeInternalError, "internal error")
	}

	result := &mcp.ListToolsResult{Tools: page.Items}
	if result.Tools == nil {
		result.Tools = []mcp.Tool{}
	}
	if page.NextCursor != nil {
		result.NextCursor = *page.NextCursor
	}

	log.InfoContext(ctx, "engine.handle_request.ok", slog.Int64("dur_ms", time.Since(start).Milliseconds()), slog.Int("tool_count", len(page.Items)))

	return jsonrpc.NewResultResponse(req.ID, result)
}

func (d *Dispatcher) handleToolCall(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	start := time.Now()
	log := d.eng.log

	if res := d.requireInitialized(req); res != nil {
		return res, nil
	}

	var params mcp.CallToolRequestReceived
	if err := json.Unmarshal(req.Params, &params); err != nil {
		log.InfoContext(ctx, "engine.handle_request.invalid", slog.String("err", err.Error()))
		return reject(req, jsonrpc.ErrorCodeInvalidParams, "invalid params")
	}
	if params.Name == "" {
		log.InfoContext(ctx, "engine.handle_request.invalid", slog.String("err", "missing tool name"))
		return reject(req, jsonrpc.ErrorCodeInvalidParams, "invalid params")
	}

	ctx = logctx.WithToolCallData(ctx, &logctx.ToolCallData{ToolName: params.Name})

	toolsCap, ok, err := d.eng.srv.GetToolsCapability(ctx, d)
	if err != nil {
		log.ErrorContext(ctx, "engine.handle_request.fail", slog.String("err", err.Error()))
		return reject(req, jsonrpc.ErrorCodeInternalError, "internal error")
	}
	if !ok || toolsCap == nil {
		log.InfoContext(ctx, "engine.handle_request.unsupported")
		return reject(req, jsonrpc.ErrorCodeMethodNotFound, "tools capability not supported")
	}

	key := idKey(req.ID)
	toolCtx, toolCancel := context.WithCancelCause(ctx)
	defer toolCancel(context.Canceled)

	d.mu.Lock()
	if d.state == stateClosed {
		d.mu.Unlock()
		return nil, ErrDispatcherClosed
	}
	d.inflight[key] = toolCancel
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		delete(d.inflight, key)
		d.mu.Unlock()
	}()

	if params.Meta != nil && params.Meta.ProgressToken != nil {
		toolCtx = mcpservice.WithProgressReporter(toolCtx, &progressReporter{d: d, token: params.Meta.ProgressToken})
	}

	res, err := toolsCap.CallTool(toolCtx, d, &params)
	if err != nil {
		switch {
		case errors.Is(err, mcpservice.ErrToolNotFound):
			log.InfoContext(ctx, "engine.handle_request.unknown_tool")
			return reject(req, jsonrpc.ErrorCodeInvalidParams, "unknown tool: "+params.Name)
		case toolCtx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
			log.InfoContext(ctx, "engine.handle_request.cancelled", slog.String("cause", context.Cause(toolCtx).Error()), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
			return reject(req, jsonrpc.ErrorCodeInternalError, "cancelled")
		}
		log.ErrorContext(ctx, "engine.handle_request.fail", slog.String("err", err.Error()), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		if lerr := d.Log(ctx, mcp.LoggingLevelError, "tools", map[string]any{"tool": params.Name, "error": err.Error()}); lerr != nil {
			log.InfoContext(ctx, "engine.log_message.fail", slog.String("err", lerr.Error()))
		}
		return reject(req, jsonrpc.ErrorCodeInternalError, "internal error")
	}
	if res == nil {
		res = &mcp.CallToolResult{}
	}
	if res.Content == nil {
		res.Content = []mcp.ContentBlock{}
	}

	log.InfoContext(ctx, "engine.handle_request.ok", slog.Bool("is_error", res.IsError), slog.Int64("dur_ms", time.Since(start).Milliseconds()))

	return jsonrpc.NewResultResponse(req.ID, res)
}

func (d *Dispatcher) handleSetLoggingLevel(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	log := d.eng.log

	var params mcp.SetLevelRequest
	if err := json.Unmarshal(req.Params, &params); err != nil {
		log.InfoContext(ctx, "engine.handle_request.invalid", slog.String("err", err.Error()))
		return reject(req, jsonrpc.ErrorCodeInvalidParams, "invalid params")
	}
	if !mcp.IsValidLoggingLevel(params.Level) {
		log.InfoContext(ctx, "engine.handle_request.invalid", slog.String("level", string(params.Level)))
		return reject(req, jsonrpc.ErrorCodeInvalidParams, "invalid logging level")
	}

	d.mu.Lock()
	d.logLevel = params.Level
	d.mu.Unlock()

	log.InfoContext(ctx, "engine.set_level.ok", slog.String("level", string(params.Level)))
	return jsonrpc.NewResultResponse(req.ID, &mcp.EmptyResult{})
}

func (d *Dispatcher) handleNotification(ctx context.Context, note *jsonrpc.Request) {
	log := d.eng.log

	switch note.Method {
	case string(mcp.InitializedNotificationMethod):
		d.mu.Lock()
		if d.state == stateInitialized {
			d.state = stateReady
		}
		st := d.state
		d.mu.Unlock()
		log.InfoContext(ctx, "engine.session.initialized", slog.String("state", st.String()))

	case string(mcp.CancelledNotificationMethod):
		var params mcp.CancelledNotification
		if err := json.Unmarshal(note.Params, &params); err != nil || len(params.RequestID) == 0 {
			log.InfoContext(ctx, "engine.handle_notification.invalid")
			return
		}
		var rid jsonrpc.RequestID
		if err := json.Unmarshal(params.RequestID, &rid); err != nil {
			log.InfoContext(ctx, "engine.handle_notification.invalid", slog.String("err", err.Error()))
			return
		}
		reason := params.Reason
		if reason == "" {
			reason = "cancelled"
		}
		found := d.cancelInFlight(idKey(&rid), reason)
		log.InfoContext(ctx, "engine.handle_notification.cancel", slog.String("request_id", rid.String()), slog.Bool("had_cancel", found))

	default:
		log.DebugContext(ctx, "engine.handle_notification.ignored")
	}
}

func (d *Dispatcher) cancelInFlight(key, reason string) bool {
	d.mu.Lock()
	cancel, ok := d.inflight[key]
	d.mu.Unlock()
	if ok {
		cancel(errors.New(reason))
	}
	return ok
}

// Log implements sessions.Session.
func (d *Dispatcher) Log(ctx context.Context, level mcp.LoggingLevel, logger string, data any) error {
	d.mu.Lock()
	threshold := d.logLevel
	closed := d.state == stateClosed
	d.mu.Unlock()

	if closed {
		return sessions.ErrSessionClosed
	}
	if !threshold.Allows(level) {
		return nil
	}
	msg, err := jsonrpc.NewNotification(string(mcp.LoggingMessageNotificationMethod), &mcp.LoggingMessageNotification{
		Level:  level,
		Logger: logger,
		Data:   data,
	})
	if err != nil {
		return err
	}
	return d.send(ctx, msg)
}

// send pushes a server-originated message through the bound channel.
func (d *Dispatcher) send(ctx context.Context, msg jsonrpc.Message) error {
	ch := d.channel()
	if ch == nil {
		return sessions.ErrSessionClosed
	}
	return ch.Send(ctx, msg)
}

// progressReporter emits notifications/progress for one tools/call. Updates
// follow the request's own stream when the transport provides one.
type progressReporter struct {
	d     *Dispatcher
	token mcp.ProgressToken
}

func (p *progressReporter) Report(ctx context.Context, progress, total float64, message string) error {
	msg, err := jsonrpc.NewNotification(string(mcp.ProgressNotificationMethod), &mcp.ProgressNotificationParams{
		ProgressToken: p.token,
		Progress:      progress,
		Total:         total,
		Message:       message,
	})
	if err != nil {
		return err
	}
	if reply, ok := sessioncore.ReplyFrom(ctx); ok {
		return reply(ctx, msg)
	}
	return p.d.send(ctx, msg)
}

// idKey normalizes an id so that 1 and 1.0, or two spellings of one string,
// find the same in-flight call.
func idKey(id *jsonrpc.RequestID) string {
	b, _ := id.MarshalJSON()
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return string(b)
	}
	return fmt.Sprintf("%T:%v", v, v)
}
