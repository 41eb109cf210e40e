package auth

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type contextKey struct{}

// WithUserID returns a context carrying the authenticated caller's user id.
// The transport layer attaches it after verifying the caller's credentials.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, contextKey{}, userID)
}

// UserIDFromContext returns the authenticated user id, if any.
func UserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(contextKey{}).(string)
	return userID, ok && userID != ""
}

// Authorizer resolves the authenticated caller for a request.
type Authorizer interface {
	// Authorize returns the caller's user id, or an Unauthenticated error
	// if no verified identity is present.
	Authorize(ctx context.Context) (string, error)
}

// ContextAuthorizer trusts the identity the transport layer attached to the
// context.
type ContextAuthorizer struct{}

func NewContextAuthorizer() *ContextAuthorizer {
	return &ContextAuthorizer{}
}

func (a *ContextAuthorizer) Authorize(ctx context.Context) (string, error) {
	userID, ok := UserIDFromContext(ctx)
	if !ok {
		return "", status.Error(codes.Unauthenticated, "authentication required")
	}
	return userID, nil
}
