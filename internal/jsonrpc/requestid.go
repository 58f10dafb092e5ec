package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// RequestID is a JSON-RPC id: a string, a number or null. It keeps the
// encoded form it arrived with so that echoing it back is exact.
type RequestID struct {
	raw json.RawMessage
}

// NewRequestID builds an id from a Go string or number. Other values give a
// null id.
func NewRequestID(v any) *RequestID {
	switch v.(type) {
	case string, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		b, err := json.Marshal(v)
		if err != nil {
			return &RequestID{}
		}
		return &RequestID{raw: b}
	}
	return &RequestID{}
}

// IsNil reports whether the id is absent or null.
func (id *RequestID) IsNil() bool {
	return id == nil || len(id.raw) == 0
}

// String returns a string id unquoted and a numeric id as written.
func (id *RequestID) String() string {
	if id.IsNil() {
		return ""
	}
	if id.raw[0] == '"' {
		var s string
		_ = json.Unmarshal(id.raw, &s)
		return s
	}
	return string(id.raw)
}

func (id *RequestID) MarshalJSON() ([]byte, error) {
	if id.IsNil() {
		return []byte("null"), nil
	}
	return id.raw, nil
}

func (id *RequestID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		id.raw = nil
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
	default:
		var n float64
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("id must be a string or number, got %s", data)
		}
	}
	id.raw = append(json.RawMessage(nil), data...)
	return nil
}
