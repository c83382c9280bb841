package auth

import (
	"context"

	apperrors "github.com/heirloom-app/heirloom/pkg/errors"
)

type contextKey string

const userContextKey contextKey = "user_context"

// UserContext is the authenticated caller attached to a request by the auth
// middleware. SpaceID is the space the token was issued for.
type UserContext struct {
	Username string
	SpaceID  string
}

// SetUserInContext attaches the user context to a context
func SetUserInContext(ctx context.Context, user *UserContext) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// GetUserFromContext extracts the user context from a context
func GetUserFromContext(ctx context.Context) (*UserContext, error) {
	user, ok := ctx.Value(userContextKey).(*UserContext)
	if !ok || user == nil {
		return nil, apperrors.NewUnauthorizedError("no authenticated user in context")
	}
	return user, nil
}
