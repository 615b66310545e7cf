package web

import "context"

type userIDKey struct{}

// WithUserID adds the acting user's identity token to the context.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey{}, id)
}

// UserIDFrom retrieves the identity token from the context.
// Returns the token and a boolean indicating whether it was found.
func UserIDFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey{}).(string)
	return id, ok
}
