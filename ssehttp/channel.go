package ssehttp

import (
	"context"
	"sync"

	"github.com/ggoodman/drafts-mcp-go/internal/jsonrpc"
	"github.com/ggoodman/drafts-mcp-go/internal/sessioncore"
)

// sseChannel is the sessioncore.Channel of a legacy session. Outbound
// messages queue on the outbox, drained by the GET handler; inbound
// requests queue on the inbox, drained by the session worker.
type sseChannel struct {
	id     string
	outbox *sessioncore.Mailbox[jsonrpc.Message]
	inbox  *sessioncore.Mailbox[*jsonrpc.Request]

	done      chan struct{}
	closeOnce sync.Once
	onClose   func(id string)
}

func newSSEChannel(id string, onClose func(id string)) *sseChannel {
	return &sseChannel{
		id:      id,
		outbox:  sessioncore.NewMailbox[jsonrpc.Message](),
		inbox:   sessioncore.NewMailbox[*jsonrpc.Request](),
		done:    make(chan struct{}),
		onClose: onClose,
	}
}

func (c *sseChannel) SessionID() string { return c.id }

func (c *sseChannel) Done() <-chan struct{} { return c.done }

func (c *sseChannel) Send(ctx context.Context, msg jsonrpc.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.outbox.Push(msg); err != nil {
		return sessioncore.ErrChannelClosed
	}
	return nil
}

func (c *sseChannel) enqueue(req *jsonrpc.Request) error {
	if err := c.inbox.Push(req); err != nil {
		return sessioncore.ErrChannelClosed
	}
	return nil
}

func (c *sseChannel) Close() error {
	c.closeOnce.Do(func() {
		c.inbox.Close()
		c.outbox.Close()
		close(c.done)
		if c.onClose != nil {
			c.onClose(c.id)
		}
	})
	return nil
}

var _ sessioncore.Channel = (*sseChannel)(nil)
