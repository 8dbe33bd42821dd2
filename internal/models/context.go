package models

import "context"

type syncContextKey struct{}

// SyncContext carries the identity of the running sync through context so
// downstream sinks can tag what they write without widening their interfaces.
type SyncContext struct {
	RunId        string
	UserId       string
	ConnectionId string
	ItemId       string
	Institution  string
}

// WithSyncContext attaches sync run data to a context.
func WithSyncContext(ctx context.Context, sc *SyncContext) context.Context {
	return context.WithValue(ctx, syncContextKey{}, sc)
}

// GetSyncContext retrieves sync run data from context, or nil if absent.
func GetSyncContext(ctx context.Context) *SyncContext {
	sc, _ := ctx.Value(syncContextKey{}).(*SyncContext)
	return sc
}
