package jsonrpc

import "encoding/json"

// ErrorCode is a JSON-RPC 2.0 error code.
type ErrorCode int

const (
	// ErrorCodeParseError indicates invalid JSON was received by the server.
	ErrorCodeParseError ErrorCode = -32700
	// ErrorCodeInvalidRequest indicates the JSON sent is not a valid Request object.
	ErrorCodeInvalidRequest ErrorCode = -32600
	// ErrorCodeMethodNotFound indicates the method does not exist / is not available.
	ErrorCodeMethodNotFound ErrorCode = -32601
	// ErrorCodeInvalidParams indicates invalid method parameters.
	ErrorCodeInvalidParams ErrorCode = -32602
	// ErrorCodeInternalError indicates an internal JSON-RPC error.
	ErrorCodeInternalError ErrorCode = -32603
	// ErrorCodeServerError is the implementation-defined code used for
	// transport and session level rejections.
	ErrorCodeServerError ErrorCode = -32000
)

// NewEnvelope builds the error body returned by the HTTP transports when a
// message cannot be attributed to a request: the id is always null.
func NewEnvelope(code ErrorCode, message string) *Response {
	return NewErrorResponse(nil, code, message, nil)
}

// EncodeEnvelope is NewEnvelope followed by json.Marshal. The envelope has
// no dynamic fields that could fail to encode.
func EncodeEnvelope(code ErrorCode, message string) []byte {
	b, _ := json.Marshal(NewEnvelope(code, message))
	return b
}
