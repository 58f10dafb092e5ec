// Package streaminghttp implements the MCP streaming HTTP transport: POST,
// GET and DELETE on a single endpoint, with sessions identified by the
// Mcp-Session-Id header.
//
// # Sessions
//
// A POST carrying an initialize request and no session header creates a
// session: a fresh id, a dispatcher from the DispatcherFactory and a stream
// channel. The session is registered only after the dispatcher answers the
// initialize request successfully; the response then carries the new id in
// the Mcp-Session-Id header. Every later request must echo that header.
// Requests naming an unknown id are rejected with 400 and never create a
// session.
//
// # Framing
//
// In the default stream mode a POSTed request is answered with a
// text/event-stream body carrying any request-scoped notifications (such as
// progress) followed by the response. WithJSONResponse switches to a single
// application/json body per request; request-scoped notifications are then
// routed to the session's standalone stream.
//
// A GET opens the standalone stream that carries server-initiated messages
// such as notifications/tools/list_changed. At most one is open per session.
//
// # Teardown
//
// DELETE closes the session's channel and dispatcher. Closing a channel, by
// DELETE or by the lifecycle coordinator, removes the session from the
// registry; the channel never closes the dispatcher itself.
package streaminghttp
