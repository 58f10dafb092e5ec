package sessions

import (
	"context"
	"errors"

	"github.com/ggoodman/drafts-mcp-go/mcp"
)

// ErrSessionClosed is returned by session operations after teardown.
var ErrSessionClosed = errors.New("session closed")

// Session represents a negotiated MCP session. Implementations MUST be safe
// for concurrent use.
type Session interface {
	SessionID() string
	// Transport names the binding the session arrived on
	// ("streamable-http", "sse" or "stdio").
	Transport() string
	// ProtocolVersion is the version negotiated during initialize. It is
	// empty until initialize succeeds.
	ProtocolVersion() string
	ClientInfo() mcp.ImplementationInfo

	// Log sends a notifications/message to the client when level passes the
	// threshold the client selected with logging/setLevel. Messages below the
	// threshold are dropped without error.
	Log(ctx context.Context, level mcp.LoggingLevel, logger string, data any) error
}
