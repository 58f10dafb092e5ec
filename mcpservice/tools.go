package mcpservice

import (
	"context"

	"github.com/ggoodman/drafts-mcp-go/sessions"
)

// subscriberListChanged turns the signals of a ChangeSubscriber into
// list_changed callbacks for one session.
type subscriberListChanged struct{ src ChangeSubscriber }

// Register subscribes for the lifetime of ctx. Each signal runs fn once;
// signals arriving while fn runs collapse into a single follow-up call.
func (s subscriberListChanged) Register(ctx context.Context, session sessions.Session, fn NotifyToolsListChangedFunc) (bool, error) {
	if s.src == nil || fn == nil {
		return false, nil
	}
	signals, unsubscribe := s.src.Subscribe()
	go func() {
		defer unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case _, open := <-signals:
				if !open {
					return
				}
				fn(ctx, session)
			}
		}
	}()
	return true, nil
}
