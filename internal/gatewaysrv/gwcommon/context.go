package gwcommon

import "context"

type ctxKeyType string

const ctxIdentityKey ctxKeyType = "GatewayIdentity"

// WithIdentity stores the caller identity in the context.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxIdentityKey, id)
}

// GetIdentity retrieves the caller identity from the context. The second
// return value reports whether an identity was set.
func GetIdentity(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxIdentityKey).(Identity)
	return id, ok
}
