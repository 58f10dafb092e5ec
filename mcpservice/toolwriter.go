package mcpservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/ggoodman/drafts-mcp-go/mcp"
)

// ErrFinalized is returned by writes after Result.
var ErrFinalized = errors.New("result already finalized")

// ToolResponseWriter accumulates the result of one tool call. Handlers may
// write from several goroutines; nothing can be written once Result has
// been taken.
type ToolResponseWriter interface {
	// AppendText adds a text block. Empty text is skipped.
	AppendText(text string) error
	// AppendJSON adds v as a two-space indented JSON text block.
	AppendJSON(v any) error
	// SetError marks the result as a tool-level failure.
	SetError(isError bool)
	// SendProgress reports progress when the caller supplied a progress
	// token and does nothing otherwise.
	SendProgress(progress, total float64, message string) error
	// Result seals the writer and returns what was written. Repeated calls
	// return equal results.
	Result() *mcp.CallToolResult
}

type toolResponseWriter struct {
	ctx context.Context

	mu      sync.Mutex
	sealed  bool
	texts   []string
	isError bool
}

var _ ToolResponseWriter = (*toolResponseWriter)(nil)

func newToolResponseWriter(ctx context.Context) *toolResponseWriter {
	return &toolResponseWriter{ctx: ctx}
}

func (w *toolResponseWriter) AppendText(text string) error {
	if err := w.ctx.Err(); err != nil {
		return err
	}
	if text == "" {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.sealed {
		return ErrFinalized
	}
	w.texts = append(w.texts, text)
	return nil
}

func (w *toolResponseWriter) AppendJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode tool output: %w", err)
	}
	return w.AppendText(string(b))
}

func (w *toolResponseWriter) SetError(isError bool) {
	w.mu.Lock()
	w.isError = isError
	w.mu.Unlock()
}

func (w *toolResponseWriter) SendProgress(progress, total float64, message string) error {
	if err := w.ctx.Err(); err != nil {
		return err
	}
	pr, ok := ProgressFrom(w.ctx)
	if !ok {
		return nil
	}
	return pr.Report(w.ctx, progress, total, message)
}

func (w *toolResponseWriter) Result() *mcp.CallToolResult {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sealed = true
	res := &mcp.CallToolResult{Content: make([]mcp.ContentBlock, len(w.texts)), IsError: w.isError}
	for i, t := range w.texts {
		res.Content[i] = mcp.ContentBlock{Type: "text", Text: t}
	}
	return res
}
