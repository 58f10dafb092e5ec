// Package stdio implements a single-connection MCP transport over
// stdin/stdout. It is how the server runs as a subprocess of a desktop MCP
// client.
//
//	Connection model : 1 process <-> 1 client
//	Sessions         : exactly one, never registered
//	Framing          : newline-delimited JSON-RPC
//
// Requests are queued and answered one at a time in arrival order.
// Notifications are handled as soon as they are read, so
// notifications/cancelled reaches a call that is still running. Output lines
// are never interleaved.
//
// Example:
//
//	eng := engine.NewEngine(srv)
//	h := stdio.NewHandler(eng, stdio.WithLogger(logger))
//	if err := h.Serve(ctx); err != nil { ... }
//
// stdout carries protocol traffic only; log to stderr.
package stdio
