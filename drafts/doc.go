// Package drafts drives the Drafts app through AppleScript and exposes it as
// a set of MCP tools.
//
// Client turns each operation into a script, runs it through an
// applescript.Runner and parses the delimited output into Draft records.
// Catalog lookups (workspaces, actions, tags) are read through a
// storage.Storage when one is configured.
//
// Tools returns the tool definitions for a mcpservice.ToolsContainer:
//
//	client := drafts.NewClient(applescript.New())
//	tools := mcpservice.NewToolsContainer(drafts.Tools(client)...)
package drafts
