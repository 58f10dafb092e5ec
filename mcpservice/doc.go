// Package mcpservice provides the building blocks a dispatcher consults to
// answer MCP requests: server identity, instructions and the tools surface.
//
// Quick start:
//
//	type EchoArgs struct {
//	    Message string `json:"message" jsonschema:"description=Text to echo"`
//	}
//
//	tools := mcpservice.NewToolsContainer(
//	    mcpservice.NewTool("echo", func(ctx context.Context, s sessions.Session, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[EchoArgs]) error {
//	        return w.AppendText("you said: " + r.Args().Message)
//	    }, mcpservice.WithToolDescription("Echo a message back to the caller")),
//	)
//
//	srv := mcpservice.NewServer(
//	    mcpservice.WithServerInfo(mcp.ImplementationInfo{Name: "example", Version: "1.0.0"}),
//	    mcpservice.WithToolsCapability(tools),
//	)
//
// ToolsContainer advertises listChanged: Replace, Add and Remove fan out a
// change signal that dispatchers turn into notifications/tools/list_changed
// for every live session.
package mcpservice
