package chat

import "context"

type identityKey struct{}

// WithIdentity attaches the current user's identity to ctx.
func WithIdentity(ctx context.Context, userID string) context.Context {
	if userID == "" {
		return ctx
	}
	return context.WithValue(ctx, identityKey{}, userID)
}

// IdentityFromContext returns the identity set by WithIdentity, if any.
func IdentityFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(identityKey{}).(string)
	return id, ok && id != ""
}
