package models

import (
	"context"
)

type eventContextKey struct{}

// EventContext carries the identifiers of the webhook being handled so
// log lines deep in the reconcilers can be correlated with the request.
type EventContext struct {
	EventId  string
	SourceId string
	Endpoint string
}

// WithEventContext attaches webhook identifiers to a context.
func WithEventContext(ctx context.Context, ec *EventContext) context.Context {
	return context.WithValue(ctx, eventContextKey{}, ec)
}

// GetEventContext retrieves webhook identifiers from context, or nil if absent.
func GetEventContext(ctx context.Context) *EventContext {
	ec, _ := ctx.Value(eventContextKey{}).(*EventContext)
	return ec
}
