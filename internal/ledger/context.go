package ledger

import "context"

type actorKey struct{}

// WithActor tags ctx with the authenticated account responsible for the
// ledger calls made under it.
func WithActor(ctx context.Context, accountID int) context.Context {
	return context.WithValue(ctx, actorKey{}, accountID)
}

// ActorFromContext returns the acting account, or -1 when none was set.
func ActorFromContext(ctx context.Context) int {
	if id, ok := ctx.Value(actorKey{}).(int); ok {
		return id
	}
	return -1
}
