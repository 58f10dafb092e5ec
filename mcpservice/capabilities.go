package mcpservice

import (
	"context"

	"github.com/ggoodman/drafts-mcp-go/mcp"
	"github.com/ggoodman/drafts-mcp-go/sessions"
)

// ServerCapabilities is what a dispatcher consults while serving a session.
// Implementations MUST be safe for concurrent use and honor ctx.
type ServerCapabilities interface {
	// GetServerInfo returns the implementation info surfaced in initialize.
	GetServerInfo(ctx context.Context, session sessions.Session) (mcp.ImplementationInfo, error)

	// GetInstructions returns optional human-readable instructions. If ok is
	// false the initialize result omits them.
	GetInstructions(ctx context.Context, session sessions.Session) (instructions string, ok bool, err error)

	// GetToolsCapability returns the tools surface. If ok is false tools are
	// not advertised and tools/* methods answer MethodNotFound.
	GetToolsCapability(ctx context.Context, session sessions.Session) (cap ToolsCapability, ok bool, err error)
}

// ToolsCapability defines the server's tools surface area.
type ToolsCapability interface {
	// ListTools returns a page of tools. A nil cursor requests the first page.
	ListTools(ctx context.Context, session sessions.Session, cursor *string) (Page[mcp.Tool], error)

	// CallTool invokes a named tool. Tool-level failures are reported as a
	// result with IsError set; a non-nil error means the call itself failed.
	CallTool(ctx context.Context, session sessions.Session, req *mcp.CallToolRequestReceived) (*mcp.CallToolResult, error)

	// GetListChangedCapability reports whether the tool set can change at
	// runtime. When ok is true the server advertises tools.listChanged.
	GetListChangedCapability(ctx context.Context, session sessions.Session) (cap ToolListChangedCapability, ok bool, err error)
}

// NotifyToolsListChangedFunc is invoked when the tool list changes. Rapid
// changes may be coalesced into fewer callbacks.
type NotifyToolsListChangedFunc func(ctx context.Context, session sessions.Session)

// ToolListChangedCapability delivers tool list change callbacks until ctx is
// done.
type ToolListChangedCapability interface {
	Register(ctx context.Context, session sessions.Session, fn NotifyToolsListChangedFunc) (ok bool, err error)
}

// Page is one page of a cursor-paginated listing.
type Page[T any] struct {
	Items      []T
	NextCursor *string
}

// PageOption configures a Page.
type PageOption[T any] func(*Page[T])

// WithNextCursor marks the page as having more items after it.
func WithNextCursor[T any](cursor string) PageOption[T] {
	return func(p *Page[T]) { p.NextCursor = &cursor }
}

// NewPage builds a page from items.
func NewPage[T any](items []T, opts ...PageOption[T]) Page[T] {
	p := Page[T]{Items: items}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}
