package mcpservice

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"

	"github.com/ggoodman/drafts-mcp-go/mcp"
	"github.com/ggoodman/drafts-mcp-go/sessions"
)

// ErrToolNotFound is returned by ToolsContainer.Call for an unknown name.
var ErrToolNotFound = errors.New("tool not found")

const defaultPageSize = 50

// ToolsContainer is a mutable tool set. It implements ToolsCapability and
// signals every change, so sessions are told to refetch the list.
type ToolsContainer struct {
	mu       sync.RWMutex
	order    []string
	tools    map[string]StaticTool
	pageSize int

	notifier ChangeNotifier
}

var _ ToolsCapability = (*ToolsContainer)(nil)

// NewToolsContainer returns a container holding defs.
func NewToolsContainer(defs ...StaticTool) *ToolsContainer {
	c := &ToolsContainer{pageSize: defaultPageSize}
	c.set(defs)
	return c
}

// set replaces the contents. A repeated name keeps its first position and
// its last definition. The caller holds the lock or owns c exclusively.
func (c *ToolsContainer) set(defs []StaticTool) {
	c.order = make([]string, 0, len(defs))
	c.tools = make(map[string]StaticTool, len(defs))
	for _, d := range defs {
		name := d.Descriptor.Name
		if _, dup := c.tools[name]; !dup {
			c.order = append(c.order, name)
		}
		c.tools[name] = d
	}
}

// SetPageSize sets how many tools one tools/list page holds. Non-positive
// values are ignored.
func (c *ToolsContainer) SetPageSize(n int) {
	if n <= 0 {
		return
	}
	c.mu.Lock()
	c.pageSize = n
	c.mu.Unlock()
}

// Snapshot returns the current descriptors in order.
func (c *ToolsContainer) Snapshot() []mcp.Tool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]mcp.Tool, len(c.order))
	for i, name := range c.order {
		out[i] = c.tools[name].Descriptor
	}
	return out
}

// Replace swaps in a new tool set.
func (c *ToolsContainer) Replace(defs ...StaticTool) {
	c.mu.Lock()
	c.set(defs)
	c.mu.Unlock()
	c.notifier.Notify()
}

// Add registers def unless its name is taken and reports whether it did.
func (c *ToolsContainer) Add(def StaticTool) bool {
	name := def.Descriptor.Name
	c.mu.Lock()
	if _, taken := c.tools[name]; taken {
		c.mu.Unlock()
		return false
	}
	c.order = append(c.order, name)
	c.tools[name] = def
	c.mu.Unlock()
	c.notifier.Notify()
	return true
}

// Remove drops the named tool and reports whether it existed.
func (c *ToolsContainer) Remove(name string) bool {
	c.mu.Lock()
	if _, ok := c.tools[name]; !ok {
		c.mu.Unlock()
		return false
	}
	delete(c.tools, name)
	c.order = slices.DeleteFunc(c.order, func(n string) bool { return n == name })
	c.mu.Unlock()
	c.notifier.Notify()
	return true
}

// Call runs the named tool.
func (c *ToolsContainer) Call(ctx context.Context, session sessions.Session, req *mcp.CallToolRequestReceived) (*mcp.CallToolResult, error) {
	if req == nil || req.Name == "" {
		return nil, fmt.Errorf("invalid tool request: missing name")
	}
	c.mu.RLock()
	def, ok := c.tools[req.Name]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, req.Name)
	}
	return def.Handler(ctx, session, req)
}

// Subscribe implements ChangeSubscriber.
func (c *ToolsContainer) Subscribe() (<-chan struct{}, func()) {
	return c.notifier.Subscribe()
}

// ListTools pages through the tools. Cursors are decimal offsets; an
// unreadable or stale cursor restarts from the beginning.
func (c *ToolsContainer) ListTools(ctx context.Context, session sessions.Session, cursor *string) (Page[mcp.Tool], error) {
	all := c.Snapshot()
	c.mu.RLock()
	size := c.pageSize
	c.mu.RUnlock()

	start := 0
	if cursor != nil {
		if n, err := strconv.Atoi(*cursor); err == nil && n >= 0 && n <= len(all) {
			start = n
		}
	}
	end := min(start+size, len(all))
	page := all[start:end]
	if end < len(all) {
		return NewPage(page, WithNextCursor[mcp.Tool](strconv.Itoa(end))), nil
	}
	return NewPage(page), nil
}

// CallTool implements ToolsCapability.
func (c *ToolsContainer) CallTool(ctx context.Context, session sessions.Session, req *mcp.CallToolRequestReceived) (*mcp.CallToolResult, error) {
	return c.Call(ctx, session, req)
}

// GetListChangedCapability implements ToolsCapability. A container can
// always change, so listChanged is always advertised.
func (c *ToolsContainer) GetListChangedCapability(ctx context.Context, session sessions.Session) (ToolListChangedCapability, bool, error) {
	return subscriberListChanged{src: c}, true, nil
}
