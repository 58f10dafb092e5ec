// Package testlog sends slog output to the test log.
package testlog

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/ggoodman/drafts-mcp-go/internal/logctx"
)

// tbWriter receives one Write per record from the text handler, which
// serializes its writes.
type tbWriter struct {
	t testing.TB
}

func (w tbWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(string(bytes.TrimSuffix(p, []byte("\n"))))
	return len(p), nil
}

// New returns a debug level logger for t that carries the logctx groups.
func New(t testing.TB) *slog.Logger {
	h := slog.NewTextHandler(tbWriter{t: t}, &slog.HandlerOptions{Level: slog.LevelDebug})
	return logctx.New(slog.New(h))
}
