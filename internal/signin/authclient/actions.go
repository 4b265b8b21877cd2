// Package authclient wraps the external authentication service. Credential
// checks, OAuth handshakes and token issuance all happen on the other side;
// this package only shapes the calls and normalises their failures.
package authclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Method selects how a sign-in is performed.
type Method string

const (
	MethodPassword Method = "password"
	MethodGoogle   Method = "google"
	MethodGitHub   Method = "github"
)

// Flow is the requested sign-in mode.
type Flow string

const (
	FlowSignIn Flow = "signIn"
	FlowSignUp Flow = "signUp"
)

var (
	// ErrInvalidCredentials is returned when the service rejects an email/password pair.
	ErrInvalidCredentials = errors.New("authclient: invalid credentials")
	// ErrUnsupportedMethod is returned for sign-in methods the client cannot serve.
	ErrUnsupportedMethod = errors.New("authclient: unsupported method")
	// ErrUnsupportedFlow is returned when the service has no endpoint for the requested flow.
	ErrUnsupportedFlow = errors.New("authclient: unsupported flow")
	// ErrProviderDenied is returned when a provider callback carries an error or no code.
	ErrProviderDenied = errors.New("authclient: provider denied sign-in")
	// ErrInvalidState is returned when a provider callback does not match the pending handshake.
	ErrInvalidState = errors.New("authclient: invalid oauth state")
)

// PasswordParams is the payload of a password sign-in.
type PasswordParams struct {
	Email    string
	Password string
	Flow     Flow
}

// Result is what a settled sign-in returns. Password sign-ins fill Token;
// provider sign-ins fill Redirect, State and Verifier and are finished later
// through CompleteSignIn.
type Result struct {
	Token        string
	RefreshToken string
	Redirect     string
	State        string
	Verifier     string
}

// Callback carries the query of a provider redirect back to this service.
type Callback struct {
	Code     string
	State    string
	Error    string
	Verifier string
}

// Actions is the sign-in/sign-out capability exposed by the auth service.
type Actions interface {
	SignIn(ctx context.Context, method Method, params *PasswordParams) (*Result, error)
	SignOut(ctx context.Context, token string) error
}

// ProviderCompleter finishes provider sign-ins after the browser returns from the provider.
type ProviderCompleter interface {
	CompleteSignIn(ctx context.Context, method Method, cb Callback) (*Result, error)
}

// IsProvider reports whether the method is an OAuth provider.
func (m Method) IsProvider() bool {
	return m == MethodGoogle || m == MethodGitHub
}

// ParseProvider resolves a provider name from a URL or form value.
func ParseProvider(raw string) (Method, error) {
	m := Method(strings.ToLower(strings.TrimSpace(raw)))
	if !m.IsProvider() {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedMethod, raw)
	}
	return m, nil
}

// ParseFlow resolves a flow value, accepting either the camelCase or lowercase form.
func ParseFlow(raw string) (Flow, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "signin":
		return FlowSignIn, true
	case "signup":
		return FlowSignUp, true
	default:
		return "", false
	}
}
