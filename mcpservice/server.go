package mcpservice

import (
	"context"

	"github.com/ggoodman/drafts-mcp-go/mcp"
	"github.com/ggoodman/drafts-mcp-go/sessions"
)

// ServerOption configures the value returned by NewServer.
type ServerOption func(*server)

// server answers every session with the same info, instructions and tools.
type server struct {
	info         mcp.ImplementationInfo
	instructions string
	tools        ToolsCapability
}

// NewServer returns ServerCapabilities shared by all sessions.
func NewServer(opts ...ServerOption) ServerCapabilities {
	s := &server{}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// WithServerInfo sets the implementation info reported by initialize.
func WithServerInfo(info mcp.ImplementationInfo) ServerOption {
	return func(s *server) { s.info = info }
}

// WithInstructions sets the instructions reported by initialize. Empty
// instructions are omitted.
func WithInstructions(instr string) ServerOption {
	return func(s *server) { s.instructions = instr }
}

// WithToolsCapability advertises tools backed by c.
func WithToolsCapability(c ToolsCapability) ServerOption {
	return func(s *server) { s.tools = c }
}

func (s *server) GetServerInfo(context.Context, sessions.Session) (mcp.ImplementationInfo, error) {
	return s.info, nil
}

func (s *server) GetInstructions(context.Context, sessions.Session) (string, bool, error) {
	return s.instructions, s.instructions != "", nil
}

func (s *server) GetToolsCapability(context.Context, sessions.Session) (ToolsCapability, bool, error) {
	return s.tools, s.tools != nil, nil
}
