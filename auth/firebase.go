package auth

import (
	"context"

	fbauth "firebase.google.com/go/v4/auth"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Authenticator verifies a bearer credential and yields the caller's user id.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (string, error)
}

// TokenVerifier is the slice of the Firebase Auth client we depend on.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*fbauth.Token, error)
}

// FirebaseAuthenticator verifies Firebase ID tokens minted by the mobile and
// web clients.
type FirebaseAuthenticator struct {
	verifier TokenVerifier
}

func NewFirebaseAuthenticator(verifier TokenVerifier) *FirebaseAuthenticator {
	return &FirebaseAuthenticator{verifier: verifier}
}

func (a *FirebaseAuthenticator) Authenticate(ctx context.Context, token string) (string, error) {
	decoded, err := a.verifier.VerifyIDToken(ctx, token)
	if err != nil {
		return "", status.Error(codes.Unauthenticated, "invalid auth token")
	}
	return decoded.UID, nil
}
