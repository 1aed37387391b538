// Package identity carries the calling user's identity through request and
// session contexts so outbound backend calls can forward the bearer token.
package identity

import (
	"context"
	"strings"
)

type ctxKey string

const userKey ctxKey = "booking.user"

// User is the authenticated caller as seen by this service.
type User struct {
	Subject string
	Token   string
}

// WithUser stores the user in context.
func WithUser(ctx context.Context, user User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// UserFromContext extracts the user if present.
func UserFromContext(ctx context.Context) (User, bool) {
	user, ok := ctx.Value(userKey).(User)
	return user, ok && (user.Subject != "" || user.Token != "")
}

// TokenFromContext returns the bearer token for outbound calls, or "".
func TokenFromContext(ctx context.Context) string {
	user, ok := UserFromContext(ctx)
	if !ok {
		return ""
	}
	return strings.TrimSpace(user.Token)
}

// Detach copies the user from ctx onto a fresh background context. Sessions
// use it so their work outlives the request that created them.
func Detach(ctx context.Context) context.Context {
	user, ok := UserFromContext(ctx)
	if !ok {
		return context.Background()
	}
	return WithUser(context.Background(), user)
}
