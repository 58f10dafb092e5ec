package mcpservice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/ggoodman/drafts-mcp-go/mcp"
	"github.com/ggoodman/drafts-mcp-go/sessions"
	"github.com/invopop/jsonschema"
)

// ToolHandler answers one tools/call.
type ToolHandler func(ctx context.Context, session sessions.Session, req *mcp.CallToolRequestReceived) (*mcp.CallToolResult, error)

// StaticTool is a tool descriptor and the handler behind it.
type StaticTool struct {
	Descriptor mcp.Tool
	Handler    ToolHandler
}

// ToolRequest carries the decoded arguments of a call.
type ToolRequest[A any] struct {
	name string
	raw  json.RawMessage
	args A
}

func (r *ToolRequest[A]) Name() string                  { return r.name }
func (r *ToolRequest[A]) RawArguments() json.RawMessage { return r.raw }
func (r *ToolRequest[A]) Args() A                       { return r.args }

// ToolOption configures NewTool.
type ToolOption func(*toolConfig)

type toolConfig struct {
	description string
	lenient     bool
}

// WithToolDescription sets the description shown in tools/list.
func WithToolDescription(desc string) ToolOption {
	return func(c *toolConfig) { c.description = desc }
}

// WithToolAllowAdditionalProperties accepts arguments the schema does not
// name. By default they are rejected.
func WithToolAllowAdditionalProperties(allow bool) ToolOption {
	return func(c *toolConfig) { c.lenient = allow }
}

// NewTool defines a tool whose arguments decode into A. The input schema is
// reflected from A. Arguments that do not decode produce an error result,
// not a protocol error; an error returned by fn fails the call.
func NewTool[A any](name string, fn func(ctx context.Context, session sessions.Session, w ToolResponseWriter, r *ToolRequest[A]) error, opts ...ToolOption) StaticTool {
	var cfg toolConfig
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	handler := func(ctx context.Context, session sessions.Session, req *mcp.CallToolRequestReceived) (*mcp.CallToolResult, error) {
		r := &ToolRequest[A]{name: req.Name, raw: req.Arguments}
		if err := decodeArgs(req.Arguments, &r.args, cfg.lenient); err != nil {
			return invalidArguments(err), nil
		}
		w := newToolResponseWriter(ctx)
		if err := fn(ctx, session, w, r); err != nil {
			return nil, err
		}
		return w.Result(), nil
	}

	return StaticTool{
		Descriptor: mcp.Tool{
			Name:        name,
			Description: cfg.description,
			InputSchema: inputSchemaOf[A](cfg.lenient),
		},
		Handler: handler,
	}
}

// decodeArgs fills dst from raw. Absent and null arguments leave dst zero.
func decodeArgs(raw json.RawMessage, dst any, lenient bool) error {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	if !lenient {
		dec.DisallowUnknownFields()
	}
	return dec.Decode(dst)
}

func invalidArguments(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.ContentBlock{{Type: "text", Text: fmt.Sprintf("invalid arguments: %v", err)}},
		IsError: true,
	}
}

// inputSchemaOf reflects A into the flat schema tools/list advertises.
// Anything that is not an object reflects to an empty object schema.
func inputSchemaOf[A any](lenient bool) mcp.ToolInputSchema {
	out := mcp.ToolInputSchema{
		Type:                 "object",
		Properties:           map[string]mcp.SchemaProperty{},
		AdditionalProperties: lenient,
	}
	r := &jsonschema.Reflector{
		DoNotReference:            true,
		ExpandedStruct:            true,
		AllowAdditionalProperties: lenient,
	}
	s := r.Reflect(new(A))
	if s == nil || s.Type != "object" {
		return out
	}
	if s.Properties != nil {
		for p := s.Properties.Oldest(); p != nil; p = p.Next() {
			out.Properties[p.Key] = schemaProperty(p.Value)
		}
	}
	out.Required = append(out.Required, s.Required...)
	return out
}

func schemaProperty(s *jsonschema.Schema) mcp.SchemaProperty {
	if s == nil {
		return mcp.SchemaProperty{}
	}
	p := mcp.SchemaProperty{
		Type:        s.Type,
		Description: s.Description,
		Format:      s.Format,
		Enum:        s.Enum,
	}
	switch s.Type {
	case "array":
		if s.Items != nil {
			item := schemaProperty(s.Items)
			p.Items = &item
		}
	case "object":
		if s.Properties != nil {
			p.Properties = make(map[string]mcp.SchemaProperty, s.Properties.Len())
			for el := s.Properties.Oldest(); el != nil; el = el.Next() {
				p.Properties[el.Key] = schemaProperty(el.Value)
			}
		}
	}
	return p
}
