package streaminghttp_test

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ggoodman/drafts-mcp-go/internal/engine"
	"github.com/ggoodman/drafts-mcp-go/internal/jsonrpc"
	"github.com/ggoodman/drafts-mcp-go/internal/sessioncore"
	"github.com/ggoodman/drafts-mcp-go/internal/testlog"
	"github.com/ggoodman/drafts-mcp-go/internal/testsession"
	"github.com/ggoodman/drafts-mcp-go/mcp"
	"github.com/ggoodman/drafts-mcp-go/mcpservice"
	"github.com/ggoodman/drafts-mcp-go/sessions"
	"github.com/ggoodman/drafts-mcp-go/streaminghttp"
)

const initializeBody = `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18","capabilities":{},"clientInfo":{"name":"test-client","version":"1.0.0"}}}`

type noArgs struct{}

type testServer struct {
	*httptest.Server
	registry *sessioncore.Registry
	tools    *mcpservice.ToolsContainer
	factory  *testsession.Factory
}

func newTestServer(t *testing.T, opts ...streaminghttp.Option) *testServer {
	t.Helper()
	log := testlog.New(t)

	tools := mcpservice.NewToolsContainer(
		mcpservice.NewTool[noArgs]("progress", func(ctx context.Context, s sessions.Session, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[noArgs]) error {
			_ = w.SendProgress(1, 2, "halfway")
			return w.AppendText("done")
		}),
		mcpservice.NewTool[noArgs]("other", func(ctx context.Context, s sessions.Session, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[noArgs]) error {
			return w.AppendText("other")
		}),
	)
	srv := mcpservice.NewServer(
		mcpservice.WithServerInfo(mcp.ImplementationInfo{Name: "test-server", Version: "0.0.1"}),
		mcpservice.WithToolsCapability(tools),
	)
	reg := sessioncore.NewRegistry(sessioncore.KindStreamableHTTP)
	opts = append([]streaminghttp.Option{streaminghttp.WithLogger(log)}, opts...)
	factory := testsession.NewFactory(engine.NewEngine(srv, engine.WithLogger(log)))
	h := streaminghttp.New(factory, reg, opts...)

	ts := &testServer{Server: httptest.NewServer(h), registry: reg, tools: tools, factory: factory}
	t.Cleanup(func() {
		for _, s := range reg.DrainAll() {
			_ = s.Channel.Close()
			_ = s.Dispatcher.Close()
		}
		ts.Close()
	})
	return ts
}

func doPostMCP(t *testing.T, url, sessID, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	if sessID != "" {
		req.Header.Set("Mcp-Session-Id", sessID)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	return res
}

type sseEvent struct {
	event string
	id    string
	data  string
}

func readOneSSE(t *testing.T, br *bufio.Reader) sseEvent {
	t.Helper()
	ev, err := readSSE(br)
	if err != nil {
		t.Fatalf("read sse: %v", err)
	}
	return ev
}

func readSSE(br *bufio.Reader) (sseEvent, error) {
	var ev sseEvent
	var data []string
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return ev, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if ev.event == "" && len(data) == 0 {
				continue
			}
			ev.data = strings.Join(data, "\n")
			return ev, nil
		}
		switch {
		case strings.HasPrefix(line, "event: "):
			ev.event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "id: "):
			ev.id = strings.TrimPrefix(line, "id: ")
		case strings.HasPrefix(line, "data: "):
			data = append(data, strings.TrimPrefix(line, "data: "))
		}
	}
}

func decodeMessage(t *testing.T, data string) jsonrpc.AnyMessage {
	t.Helper()
	var m jsonrpc.AnyMessage
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		t.Fatalf("decode message %q: %v", data, err)
	}
	return m
}

func decodeEnvelope(t *testing.T, res *http.Response) jsonrpc.Response {
	t.Helper()
	defer res.Body.Close()
	var env jsonrpc.Response
	if err := json.NewDecoder(res.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if env.Error == nil || !env.ID.IsNil() {
		t.Fatalf("expected error envelope with null id, got %+v", env)
	}
	return env
}

// initialize opens a session and completes the handshake.
func initialize(t *testing.T, ts *testServer) string {
	t.Helper()
	res := doPostMCP(t, ts.URL, "", initializeBody)
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(res.Body)
		t.Fatalf("initialize: want 200, got %d: %s", res.StatusCode, b)
	}
	sessID := res.Header.Get("Mcp-Session-Id")
	if sessID == "" {
		t.Fatalf("initialize: missing Mcp-Session-Id header")
	}
	_, _ = io.Copy(io.Discard, res.Body)

	ack := doPostMCP(t, ts.URL, sessID, `{"jsonrpc":"2.0","method":"notifications/initialized"}`)
	ack.Body.Close()
	if ack.StatusCode != http.StatusAccepted {
		t.Fatalf("initialized: want 202, got %d", ack.StatusCode)
	}
	return sessID
}

func TestInitializeCreatesSession(t *testing.T) {
	ts := newTestServer(t)

	res := doPostMCP(t, ts.URL, "", initializeBody)
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		t.Fatalf("want 200, got %d", res.StatusCode)
	}
	if ct := res.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("want event stream, got %q", ct)
	}
	sessID := res.Header.Get("Mcp-Session-Id")
	if sessID == "" {
		t.Fatalf("missing session header")
	}
	if _, ok := ts.registry.Lookup(sessID); !ok {
		t.Fatalf("session %s not registered", sessID)
	}

	ev := readOneSSE(t, bufio.NewReader(res.Body))
	msg := decodeMessage(t, ev.data)
	if ev.event != "message" || msg.Error != nil {
		t.Fatalf("unexpected initialize event: %+v", ev)
	}
	var result mcp.InitializeResult
	if err := json.Unmarshal(msg.Result, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.ServerInfo.Name != "test-server" || result.Capabilities.Tools == nil || !result.Capabilities.Tools.ListChanged {
		t.Fatalf("unexpected initialize result: %+v", result)
	}
}

func TestConcurrentInitializeYieldsDistinctSessions(t *testing.T) {
	ts := newTestServer(t, streaminghttp.WithJSONResponse(true))

	const n = 8
	ids := make(chan string, n)
	for i := 0; i < n; i++ {
		go func() {
			req, _ := http.NewRequest(http.MethodPost, ts.URL, strings.NewReader(initializeBody))
			req.Header.Set("Content-Type", "application/json")
			res, err := http.DefaultClient.Do(req)
			if err != nil {
				ids <- ""
				return
			}
			res.Body.Close()
			ids <- res.Header.Get("Mcp-Session-Id")
		}()
	}
	seen := map[string]bool{}
	for i := 0; i < n; i++ {
		id := <-ids
		if id == "" || seen[id] {
			t.Fatalf("want distinct non-empty ids, got %q (seen=%v)", id, seen)
		}
		seen[id] = true
	}
	if got := ts.registry.Len(); got != n {
		t.Fatalf("want %d registered sessions, got %d", n, got)
	}
}

func TestJSONResponseMode(t *testing.T) {
	ts := newTestServer(t, streaminghttp.WithJSONResponse(true))
	sessID := initialize(t, ts)

	res := doPostMCP(t, ts.URL, sessID, `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("want 200, got %d", res.StatusCode)
	}
	if ct := res.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("want application/json, got %q", ct)
	}
	var out jsonrpc.Response
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	var list mcp.ListToolsResult
	if err := json.Unmarshal(out.Result, &list); err != nil {
		t.Fatalf("decode tools: %v", err)
	}
	if len(list.Tools) != 2 {
		t.Fatalf("want 2 tools, got %+v", list.Tools)
	}
}

func TestUnknownSessionIsRejected(t *testing.T) {
	ts := newTestServer(t)

	for _, method := range []string{http.MethodPost, http.MethodGet, http.MethodDelete} {
		t.Run(method, func(t *testing.T) {
			var res *http.Response
			if method == http.MethodPost {
				res = doPostMCP(t, ts.URL, "does-not-exist", `{"jsonrpc":"2.0","id":1,"method":"ping"}`)
			} else {
				req, _ := http.NewRequest(method, ts.URL, nil)
				req.Header.Set("Accept", "text/event-stream")
				req.Header.Set("Mcp-Session-Id", "does-not-exist")
				var err error
				if res, err = http.DefaultClient.Do(req); err != nil {
					t.Fatalf("do: %v", err)
				}
			}
			if res.StatusCode != http.StatusBadRequest {
				t.Fatalf("want 400, got %d", res.StatusCode)
			}
			env := decodeEnvelope(t, res)
			if env.Error.Code != jsonrpc.ErrorCodeServerError || env.Error.Message != "Bad Request: No valid session ID provided" {
				t.Fatalf("unexpected envelope: %+v", env.Error)
			}
		})
	}
	if n := ts.registry.Len(); n != 0 {
		t.Fatalf("unknown ids must not create sessions, registry has %d", n)
	}
}

func TestRequestWithoutSessionHeader(t *testing.T) {
	ts := newTestServer(t)

	for _, body := range []string{
		`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`,
		`{"jsonrpc":"2.0","method":"initialize"}`,
	} {
		res := doPostMCP(t, ts.URL, "", body)
		if res.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: want 400, got %d", body, res.StatusCode)
		}
		decodeEnvelope(t, res)
	}
	if n := ts.registry.Len(); n != 0 {
		t.Fatalf("want empty registry, got %d", n)
	}
}

func TestParseErrors(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name string
		body string
		want jsonrpc.ErrorCode
	}{
		{"empty", "", jsonrpc.ErrorCodeParseError},
		{"malformed", "{", jsonrpc.ErrorCodeParseError},
		{"batch", `[{"jsonrpc":"2.0","id":1,"method":"initialize"}]`, jsonrpc.ErrorCodeInvalidRequest},
		{"wrong version", `{"jsonrpc":"1.0","id":1,"method":"initialize"}`, jsonrpc.ErrorCodeInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Parse errors win over session lookup.
			res := doPostMCP(t, ts.URL, "does-not-exist", tt.body)
			if res.StatusCode != http.StatusBadRequest {
				t.Fatalf("want 400, got %d", res.StatusCode)
			}
			if env := decodeEnvelope(t, res); env.Error.Code != tt.want {
				t.Fatalf("want code %d, got %d (%s)", tt.want, env.Error.Code, env.Error.Message)
			}
		})
	}
}

func TestMediaTypeChecks(t *testing.T) {
	ts := newTestServer(t)

	req, _ := http.NewRequest(http.MethodPost, ts.URL, strings.NewReader(initializeBody))
	req.Header.Set("Content-Type", "text/plain")
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if res.StatusCode != http.StatusUnsupportedMediaType {
		t.Fatalf("want 415, got %d", res.StatusCode)
	}
	decodeEnvelope(t, res)

	req, _ = http.NewRequest(http.MethodPost, ts.URL, strings.NewReader(initializeBody))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	res, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if res.StatusCode != http.StatusNotAcceptable {
		t.Fatalf("stream mode must require text/event-stream; want 406, got %d", res.StatusCode)
	}
	decodeEnvelope(t, res)
}

func TestMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t)
	req, _ := http.NewRequest(http.MethodPut, ts.URL, nil)
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("want 405, got %d", res.StatusCode)
	}
	if allow := res.Header.Get("Allow"); allow != "GET, POST, DELETE" {
		t.Fatalf("unexpected Allow header %q", allow)
	}
}

func TestBodyTooLarge(t *testing.T) {
	ts := newTestServer(t, streaminghttp.WithMaxBodyBytes(64))
	res := doPostMCP(t, ts.URL, "", initializeBody)
	if res.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("want 413, got %d", res.StatusCode)
	}
	decodeEnvelope(t, res)
}

func TestUnsupportedProtocolVersionHeader(t *testing.T) {
	ts := newTestServer(t)
	sessID := initialize(t, ts)

	req, _ := http.NewRequest(http.MethodPost, ts.URL, strings.NewReader(`{"jsonrpc":"2.0","id":2,"method":"ping"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Mcp-Session-Id", sessID)
	req.Header.Set("Mcp-Protocol-Version", "1999-01-01")
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("want 400, got %d", res.StatusCode)
	}
	decodeEnvelope(t, res)
}

func TestNotificationsAndResponsesAreAccepted(t *testing.T) {
	ts := newTestServer(t)
	sessID := initialize(t, ts)

	for _, body := range []string{
		`{"jsonrpc":"2.0","method":"notifications/cancelled","params":{"requestId":99}}`,
		`{"jsonrpc":"2.0","id":"srv-1","result":{}}`,
	} {
		res := doPostMCP(t, ts.URL, sessID, body)
		b, _ := io.ReadAll(res.Body)
		res.Body.Close()
		if res.StatusCode != http.StatusAccepted || len(b) != 0 {
			t.Fatalf("%s: want 202 with empty body, got %d %q", body, res.StatusCode, b)
		}
	}
}

func TestProgressPrecedesResponse(t *testing.T) {
	ts := newTestServer(t)
	sessID := initialize(t, ts)

	res := doPostMCP(t, ts.URL, sessID, `{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"progress","_meta":{"progressToken":"tok"}}}`)
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("want 200, got %d", res.StatusCode)
	}

	br := bufio.NewReader(res.Body)
	first := decodeMessage(t, readOneSSE(t, br).data)
	if first.Method != string(mcp.ProgressNotificationMethod) {
		t.Fatalf("want progress first, got %+v", first)
	}
	var p mcp.ProgressNotificationParams
	if err := json.Unmarshal(first.Params, &p); err != nil {
		t.Fatalf("decode progress: %v", err)
	}
	if p.ProgressToken != "tok" || p.Progress != 1 || p.Total != 2 {
		t.Fatalf("unexpected progress params: %+v", p)
	}

	second := decodeMessage(t, readOneSSE(t, br).data)
	if second.ID.String() != "3" || second.Result == nil {
		t.Fatalf("want response to id 3, got %+v", second)
	}
}

func startGetStream(t *testing.T, url, sessID string) (*http.Response, *bufio.Reader) {
	t.Helper()
	req, _ := http.NewRequest(http.MethodGet, url, nil)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Mcp-Session-Id", sessID)
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	t.Cleanup(func() { res.Body.Close() })
	return res, bufio.NewReader(res.Body)
}

func TestStandaloneStreamCarriesListChanged(t *testing.T) {
	ts := newTestServer(t)
	sessID := initialize(t, ts)

	res, br := startGetStream(t, ts.URL, sessID)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("want 200, got %d", res.StatusCode)
	}

	// The stream is attached once headers arrive; a second GET conflicts.
	second, _ := startGetStream(t, ts.URL, sessID)
	if second.StatusCode != http.StatusConflict {
		t.Fatalf("want 409 for a second stream, got %d", second.StatusCode)
	}

	ts.tools.Remove("other")

	got := make(chan sseEvent, 1)
	go func() {
		ev, _ := readSSE(br)
		got <- ev
	}()
	select {
	case ev := <-got:
		msg := decodeMessage(t, ev.data)
		if msg.Method != string(mcp.ToolsListChangedNotificationMethod) {
			t.Fatalf("want list_changed, got %+v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for list_changed")
	}
}

func TestDeleteClosesSession(t *testing.T) {
	ts := newTestServer(t)
	sessID := initialize(t, ts)
	_, br := startGetStream(t, ts.URL, sessID)

	req, _ := http.NewRequest(http.MethodDelete, ts.URL, nil)
	req.Header.Set("Mcp-Session-Id", sessID)
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("want 204, got %d", res.StatusCode)
	}
	if _, ok := ts.registry.Lookup(sessID); ok {
		t.Fatalf("session still registered after DELETE")
	}

	// The standalone stream ends with the session.
	ended := make(chan error, 1)
	go func() {
		_, err := io.ReadAll(br)
		ended <- err
	}()
	select {
	case <-ended:
	case <-time.After(2 * time.Second):
		t.Fatalf("standalone stream still open after DELETE")
	}

	again := doPostMCP(t, ts.URL, sessID, `{"jsonrpc":"2.0","id":9,"method":"ping"}`)
	if again.StatusCode != http.StatusBadRequest {
		t.Fatalf("want 400 after DELETE, got %d", again.StatusCode)
	}
	decodeEnvelope(t, again)
}

func deleteSession(url, sessID string) (int, error) {
	req, err := http.NewRequest(http.MethodDelete, url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Mcp-Session-Id", sessID)
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, err
	}
	res.Body.Close()
	return res.StatusCode, nil
}

func TestConcurrentDeleteClosesDispatcherOnce(t *testing.T) {
	ts := newTestServer(t)
	sessID := initialize(t, ts)

	var wg sync.WaitGroup
	statuses := make(chan int, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			status, err := deleteSession(ts.URL, sessID)
			if err != nil {
				t.Errorf("delete: %v", err)
			}
			statuses <- status
		}()
	}
	wg.Wait()
	close(statuses)

	accepted := 0
	for status := range statuses {
		switch status {
		case http.StatusNoContent:
			accepted++
		case http.StatusBadRequest, 0:
		default:
			t.Fatalf("unexpected DELETE status %d", status)
		}
	}
	if accepted != 1 {
		t.Fatalf("want exactly one 204, got %d", accepted)
	}

	d, ok := ts.factory.Lookup(sessID)
	if !ok {
		t.Fatalf("no dispatcher recorded for %s", sessID)
	}
	if got := d.Closes(); got != 1 {
		t.Fatalf("want 1 dispatcher close, got %d", got)
	}
	if !d.ChannelClosed() {
		t.Fatalf("channel still open after DELETE")
	}

	// A drain after the DELETE finds nothing left to close.
	if left := ts.registry.DrainAll(); len(left) != 0 {
		t.Fatalf("want empty registry, got %d sessions", len(left))
	}
	if got := d.Closes(); got != 1 {
		t.Fatalf("want 1 dispatcher close after drain, got %d", got)
	}
}

func TestDeleteLeavesOtherSessionsRunning(t *testing.T) {
	ts := newTestServer(t, streaminghttp.WithJSONResponse(true))
	gone := initialize(t, ts)
	kept := initialize(t, ts)

	if status, err := deleteSession(ts.URL, gone); err != nil || status != http.StatusNoContent {
		t.Fatalf("want 204, got %d (%v)", status, err)
	}
	if _, ok := ts.registry.Lookup(kept); !ok {
		t.Fatalf("session %s removed by another session's DELETE", kept)
	}
	if n := ts.registry.Len(); n != 1 {
		t.Fatalf("want 1 session, got %d", n)
	}

	res := doPostMCP(t, ts.URL, kept, `{"jsonrpc":"2.0","id":5,"method":"ping"}`)
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("want 200, got %d", res.StatusCode)
	}
	var out jsonrpc.Response
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Error != nil || out.ID.String() != "5" {
		t.Fatalf("unexpected ping response: %+v", out)
	}

	d, _ := ts.factory.Lookup(kept)
	if d.Closes() != 0 || d.ChannelClosed() {
		t.Fatalf("surviving session was released: closes=%d channelClosed=%v", d.Closes(), d.ChannelClosed())
	}
}

func TestFailedInitializeRegistersNothing(t *testing.T) {
	ts := newTestServer(t, streaminghttp.WithJSONResponse(true))

	res := doPostMCP(t, ts.URL, "", `{"jsonrpc":"2.0","id":1,"method":"initialize","params":"bogus"}`)
	defer res.Body.Close()
	if res.Header.Get("Mcp-Session-Id") != "" {
		t.Fatalf("failed initialize must not expose a session id")
	}
	var out jsonrpc.Response
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Error == nil || out.Error.Code != jsonrpc.ErrorCodeInvalidParams {
		t.Fatalf("want invalid params error, got %+v", out)
	}
	if n := ts.registry.Len(); n != 0 {
		t.Fatalf("want empty registry, got %d", n)
	}
}

func TestAdmissionRefused(t *testing.T) {
	ts := newTestServer(t, streaminghttp.WithAdmission(func() bool { return false }))

	res := doPostMCP(t, ts.URL, "", initializeBody)
	if res.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("want 503, got %d", res.StatusCode)
	}
	decodeEnvelope(t, res)
	if n := ts.registry.Len(); n != 0 {
		t.Fatalf("want empty registry, got %d", n)
	}
}

func TestSealedRegistryRefusesInitialize(t *testing.T) {
	ts := newTestServer(t)
	ts.registry.DrainAll()

	res := doPostMCP(t, ts.URL, "", initializeBody)
	if res.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("want 503, got %d", res.StatusCode)
	}
	decodeEnvelope(t, res)
}
