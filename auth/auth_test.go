package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestContextAuthorizer(t *testing.T) {
	authz := NewContextAuthorizer()

	_, err := authz.Authorize(context.Background())
	require.Equal(t, codes.Unauthenticated, status.Code(err))

	userID, err := authz.Authorize(WithUserID(context.Background(), "u1"))
	require.NoError(t, err)
	require.Equal(t, "u1", userID)

	// An empty id is not an identity.
	_, err = authz.Authorize(WithUserID(context.Background(), ""))
	require.Equal(t, codes.Unauthenticated, status.Code(err))
}
