// Package ssehttp implements the legacy HTTP+SSE transport: a long-lived
// GET stream per session and a companion POST endpoint for client messages.
//
// Every GET on the stream path creates a new session. The first event on the
// stream is an "endpoint" event whose data is the message path with the
// session id in the sessionId query parameter. The client POSTs JSON-RPC
// messages there; requests are queued on the session's inbox and answered,
// in arrival order, as "message" events on the GET stream. The POST itself
// is answered with 202 Accepted.
//
// The session ends when the GET connection closes or the session's channel
// is closed by the lifecycle coordinator.
package ssehttp
