package auth

import (
	"context"
	"errors"
)

type contextKey struct{}

// UserContext is the authenticated caller of a request.
type UserContext struct {
	UserID string
	Email  string
	Roles  []string
}

var ErrNoUser = errors.New("no user in context")

// SetUserInContext stores user in ctx.
func SetUserInContext(ctx context.Context, user *UserContext) context.Context {
	return context.WithValue(ctx, contextKey{}, user)
}

// GetUserFromContext returns the user stored by SetUserInContext.
func GetUserFromContext(ctx context.Context) (*UserContext, error) {
	user, ok := ctx.Value(contextKey{}).(*UserContext)
	if !ok || user == nil {
		return nil, ErrNoUser
	}
	return user, nil
}

// UserIDFromContext returns the caller's id, or "" when unauthenticated.
func UserIDFromContext(ctx context.Context) string {
	if user, err := GetUserFromContext(ctx); err == nil {
		return user.UserID
	}
	return ""
}
