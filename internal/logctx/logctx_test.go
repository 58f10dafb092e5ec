package logctx

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestHandlerAddsContextGroups(t *testing.T) {
	var buf bytes.Buffer
	log := New(slog.New(slog.NewJSONHandler(&buf, nil))).With(slog.String("component", "test"))

	ctx := WithRequestData(context.Background(), &RequestData{RequestID: "r1", Method: "POST", Path: "/mcp"})
	ctx = WithSessionData(ctx, &SessionData{SessionID: "s1", Transport: "sse"})
	ctx = WithRPCMessage(ctx, &RPCMessage{Method: "tools/call", ID: "3", Type: "request"})
	ctx = WithToolCallData(ctx, &ToolCallData{ToolName: "search"})

	log.InfoContext(ctx, "engine.handle_request.ok")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if want, got := "test", rec["component"]; want != got {
		t.Fatalf("component attr lost: want %v got %v", want, got)
	}
	req, _ := rec["req"].(map[string]any)
	if want, got := "r1", req["id"]; want != got {
		t.Fatalf("req.id: want %v got %v", want, got)
	}
	sess, _ := rec["sess"].(map[string]any)
	if want, got := "sse", sess["transport"]; want != got {
		t.Fatalf("sess.transport: want %v got %v", want, got)
	}
	rpc, _ := rec["rpc"].(map[string]any)
	if want, got := "tools/call", rpc["method"]; want != got {
		t.Fatalf("rpc.method: want %v got %v", want, got)
	}
	tool, _ := rec["tool"].(map[string]any)
	if want, got := "search", tool["name"]; want != got {
		t.Fatalf("tool.name: want %v got %v", want, got)
	}
}

func TestNewIsIdempotent(t *testing.T) {
	l := New(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	if New(l) != l {
		t.Fatalf("expected New to return an already wrapped logger unchanged")
	}
	if New(nil) == nil {
		t.Fatalf("expected discard logger for nil input")
	}
}

func TestEmptyFieldsAreLeftOut(t *testing.T) {
	var buf bytes.Buffer
	log := New(slog.New(slog.NewJSONHandler(&buf, nil)))

	ctx := WithSessionData(context.Background(), &SessionData{SessionID: "s1"})
	log.InfoContext(ctx, "stdio.serve.start")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	sess, _ := rec["sess"].(map[string]any)
	if len(sess) != 1 || sess["id"] != "s1" {
		t.Fatalf("want only sess.id, got %v", sess)
	}
	if _, ok := rec["req"]; ok {
		t.Fatalf("unexpected req group without request data")
	}
}
