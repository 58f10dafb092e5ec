package httpwire

import (
	"net/http"

	"github.com/ggoodman/drafts-mcp-go/internal/jsonrpc"
)

// Messages carried by transport-level rejections.
const (
	MsgNoValidSession   = "Bad Request: No valid session ID provided"
	MsgShuttingDown     = "Service Unavailable: server is shutting down"
	MsgUnsupportedMedia = "Unsupported Media Type: Content-Type must be application/json"
	MsgNotAcceptable    = "Not Acceptable: client must accept %s"
	MsgBodyTooLarge     = "Request Entity Too Large"
	MsgInternal         = "Internal error"
)

// WriteEnvelope writes the JSON-RPC error envelope used for rejections that
// cannot be attributed to a request id.
func WriteEnvelope(w http.ResponseWriter, status int, code jsonrpc.ErrorCode, msg string) {
	w.Header().Set("Content-Type", JSONMediaType.String())
	w.WriteHeader(status)
	_, _ = w.Write(jsonrpc.EncodeEnvelope(code, msg))
}

// WriteServerError writes an envelope with the -32000 server error code.
func WriteServerError(w http.ResponseWriter, status int, msg string) {
	WriteEnvelope(w, status, jsonrpc.ErrorCodeServerError, msg)
}

// WriteParseError maps a jsonrpc.ParseMessage failure to a 400 envelope.
func WriteParseError(w http.ResponseWriter, err error) {
	code := jsonrpc.ClassifyParseError(err)
	prefix := "Parse error: "
	if code == jsonrpc.ErrorCodeInvalidRequest {
		prefix = "Invalid Request: "
	}
	WriteEnvelope(w, http.StatusBadRequest, code, prefix+err.Error())
}
