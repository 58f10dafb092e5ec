// Package mcp contains the Model Context Protocol data types and constants
// this server puts on the wire. It is free of transport logic: the HTTP and
// stdio transports and the dispatcher import these types and implement their
// own framing and session handling.
//
// # Method Names
//
// JSON-RPC method and notification names are enumerated as Method constants
// (e.g. ToolsListMethod).
//
// # Tool Results
//
// A tool reports failure inside its result, not as a JSON-RPC error:
//
//	res := &mcp.CallToolResult{
//	    Content: []mcp.ContentBlock{{Type: "text", Text: "Draft not found"}},
//	    IsError: true,
//	}
//
// # Logging Levels
//
// LoggingLevel values mirror syslog severities. LoggingLevel.Allows compares
// two levels by severity.
//
// # Protocol Versions
//
// SupportedProtocolVersions lists the dates the initialize handshake accepts;
// LatestProtocolVersion is offered when the client asks for anything else.
package mcp
