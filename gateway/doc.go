// Package gateway serves both network transports on one HTTP listener and
// coordinates their shutdown.
//
// The router maps the streaming endpoint (GET, POST and DELETE) to
// streaminghttp, and the legacy stream (GET) and message (POST) paths to
// ssehttp. Unknown paths get 404 and unsupported methods on a known path
// get 405, both as JSON-RPC error envelopes. The router never reads a
// request body.
//
// Shutdown moves the gateway from running to closing exactly once: new
// sessions are refused with 503, every registered session is drained and
// closed, and finally the HTTP server stops accepting connections.
package gateway
