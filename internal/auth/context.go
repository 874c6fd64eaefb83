package auth

import "context"

type ownerCtxKey struct{}

// WithOwner returns a copy of ctx carrying the authenticated account id.
func WithOwner(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, ownerCtxKey{}, ownerID)
}

func OwnerFromContext(ctx context.Context) (string, bool) {
	ownerID, ok := ctx.Value(ownerCtxKey{}).(string)
	return ownerID, ok && ownerID != ""
}
