package mcpservice

import "context"

// ProgressReporter sends notifications/progress for the call in flight.
// The dispatcher puts one in the tool context when the caller asked for
// progress with a token.
type ProgressReporter interface {
	// Report sends one update. A zero total is left off the notification.
	Report(ctx context.Context, progress, total float64, message string) error
}

type progressCtxKey struct{}

// WithProgressReporter attaches pr to ctx. A nil reporter leaves ctx as is.
func WithProgressReporter(ctx context.Context, pr ProgressReporter) context.Context {
	if pr == nil {
		return ctx
	}
	return context.WithValue(ctx, progressCtxKey{}, pr)
}

// ProgressFrom returns the reporter attached to ctx.
func ProgressFrom(ctx context.Context) (ProgressReporter, bool) {
	pr, ok := ctx.Value(progressCtxKey{}).(ProgressReporter)
	return pr, ok && pr != nil
}
