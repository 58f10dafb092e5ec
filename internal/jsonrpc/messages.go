package jsonrpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ProtocolVersion is the only "jsonrpc" member value accepted.
const ProtocolVersion = "2.0"

var (
	// ErrEmptyMessage is returned by ParseMessage for a blank body.
	ErrEmptyMessage = errors.New("empty message")
	// ErrBatchUnsupported is returned by ParseMessage for a JSON array.
	ErrBatchUnsupported = errors.New("batch messages are not supported")
	// ErrInvalidMessage wraps structural problems found by ParseMessage.
	ErrInvalidMessage = errors.New("invalid message")
)

// Message is one encoded JSON-RPC message as it goes over a transport.
type Message []byte

// AnyMessage is the union of request, notification and response members.
type AnyMessage struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	Method         string          `json:"method,omitempty"`
	Params         json.RawMessage `json:"params,omitempty"`
	Result         json.RawMessage `json:"result,omitempty"`
	Error          *Error          `json:"error,omitempty"`
	ID             *RequestID      `json:"id,omitempty"`
}

// Request is a request, or a notification when ID is nil.
type Request struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	Method         string          `json:"method"`
	Params         json.RawMessage `json:"params,omitempty"`
	ID             *RequestID      `json:"id,omitempty"`
}

// IsNotification reports whether no answer is expected.
func (r *Request) IsNotification() bool { return r.ID.IsNil() }

// Response always carries an id member; an unknown id encodes as null.
type Response struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	Result         json.RawMessage `json:"result,omitempty"`
	Error          *Error          `json:"error,omitempty"`
	ID             *RequestID      `json:"id"`
}

// Error is the error member of a response.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Data    any       `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// ParseMessage decodes and checks one inbound message.
func ParseMessage(body []byte) (*AnyMessage, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, ErrEmptyMessage
	}
	if body[0] == '[' {
		return nil, ErrBatchUnsupported
	}
	var m AnyMessage
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, err
	}
	if err := m.check(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidMessage, err)
	}
	return &m, nil
}

func (m *AnyMessage) check() error {
	if m.JSONRPCVersion != ProtocolVersion {
		return fmt.Errorf("jsonrpc must be %q, got %q", ProtocolVersion, m.JSONRPCVersion)
	}
	hasResult, hasError := len(m.Result) > 0, m.Error != nil
	switch {
	case m.Method != "" && (hasResult || hasError):
		return errors.New("a request cannot carry result or error")
	case m.Method == "" && hasResult == hasError:
		return errors.New("a response needs exactly one of result or error")
	}
	return nil
}

// Type returns "request", "notification" or "response".
func (m *AnyMessage) Type() string {
	switch {
	case m.Method == "":
		return "response"
	case m.ID.IsNil():
		return "notification"
	}
	return "request"
}

// AsRequest returns nil for responses.
func (m *AnyMessage) AsRequest() *Request {
	if m.Method == "" {
		return nil
	}
	return &Request{JSONRPCVersion: m.JSONRPCVersion, Method: m.Method, Params: m.Params, ID: m.ID}
}

// NewResultResponse encodes result into a success response for id.
func NewResultResponse(id *RequestID, result any) (*Response, error) {
	b, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return &Response{JSONRPCVersion: ProtocolVersion, Result: b, ID: id}, nil
}

// NewErrorResponse builds an error response for id.
func NewErrorResponse(id *RequestID, code ErrorCode, message string, data any) *Response {
	return &Response{
		JSONRPCVersion: ProtocolVersion,
		Error:          &Error{Code: code, Message: message, Data: data},
		ID:             id,
	}
}

// NewNotification encodes a server-sent notification.
func NewNotification(method string, params any) (Message, error) {
	n := Request{JSONRPCVersion: ProtocolVersion, Method: method}
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("encode %s params: %w", method, err)
		}
		n.Params = b
	}
	return json.Marshal(n)
}

// ClassifyParseError maps a ParseMessage failure to a code. Input that is
// not JSON is a parse error; JSON that is not one valid message is an
// invalid request.
func ClassifyParseError(err error) ErrorCode {
	var syntax *json.SyntaxError
	if errors.Is(err, ErrEmptyMessage) || errors.As(err, &syntax) {
		return ErrorCodeParseError
	}
	return ErrorCodeInvalidRequest
}
