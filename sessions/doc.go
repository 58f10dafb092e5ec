// Package sessions exposes the read-only view of an MCP session that tool
// handlers receive. The view is backed by the session's dispatcher and stays
// valid for the lifetime of the session; calls made after the session closes
// fail with ErrSessionClosed.
package sessions
