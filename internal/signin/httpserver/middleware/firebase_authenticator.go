package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	firebaseauth "firebase.google.com/go/v4/auth"
)

// ErrIDTokenExpired lets verifiers other than the Admin SDK report expiry.
var ErrIDTokenExpired = errors.New("id token expired")

// IDTokenVerifier is the subset of *firebaseauth.Client the guard needs.
type IDTokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error)
	VerifyIDTokenAndCheckRevoked(ctx context.Context, idToken string) (*firebaseauth.Token, error)
}

// FirebaseOption tunes a FirebaseAuthenticator.
type FirebaseOption func(*FirebaseAuthenticator)

// WithRevocationCheck rejects tokens whose refresh tokens were revoked, at the
// cost of one Admin API round trip per request.
func WithRevocationCheck() FirebaseOption {
	return func(f *FirebaseAuthenticator) { f.checkRevoked = true }
}

// FirebaseAuthenticator accepts Firebase ID tokens minted for the project the
// authorization server federates Google and GitHub through.
type FirebaseAuthenticator struct {
	verifier     IDTokenVerifier
	checkRevoked bool
}

// NewFirebaseAuthenticator panics when verifier is nil.
func NewFirebaseAuthenticator(verifier IDTokenVerifier, opts ...FirebaseOption) *FirebaseAuthenticator {
	if verifier == nil {
		panic("middleware: firebase id token verifier is required")
	}
	f := &FirebaseAuthenticator{verifier: verifier}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Authenticate implements Authenticator.
func (f *FirebaseAuthenticator) Authenticate(r *http.Request, token string) (*User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, NewAuthError(ReasonMissingToken, ErrUnauthorized)
	}

	verify := f.verifier.VerifyIDToken
	if f.checkRevoked {
		verify = f.verifier.VerifyIDTokenAndCheckRevoked
	}

	idToken, err := verify(r.Context(), token)
	if err != nil {
		return nil, NewAuthError(firebaseReason(err), err)
	}

	user := &User{UID: idToken.UID, Token: token}
	if email, ok := idToken.Claims["email"].(string); ok {
		user.Email = strings.TrimSpace(email)
	}
	user.Provider = idToken.Firebase.SignInProvider
	return user, nil
}

func firebaseReason(err error) string {
	if firebaseauth.IsIDTokenExpired(err) || errors.Is(err, ErrIDTokenExpired) {
		return ReasonTokenExpired
	}
	return ReasonTokenInvalid
}
