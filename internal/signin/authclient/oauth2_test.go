package authclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeAuthServer struct {
	*httptest.Server
	revoked    atomic.Value
	registered atomic.Value
	verifier   atomic.Value
}

func newFakeAuthServer(t *testing.T) *fakeAuthServer {
	t.Helper()

	fake := &fakeAuthServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		switch r.PostForm.Get("grant_type") {
		case "password":
			if r.PostForm.Get("username") != "a@b.com" || r.PostForm.Get("password") != "secret" {
				writeTokenError(w, "invalid_grant")
				return
			}
			writeToken(w, map[string]any{
				"access_token":  "access-1",
				"token_type":    "bearer",
				"refresh_token": "refresh-1",
				"id_token":      "id-1",
			})
		case "authorization_code":
			fake.verifier.Store(r.PostForm.Get("code_verifier"))
			if r.PostForm.Get("code") != "good-code" {
				writeTokenError(w, "invalid_grant")
				return
			}
			writeToken(w, map[string]any{
				"access_token": "access-2",
				"token_type":   "bearer",
			})
		default:
			writeTokenError(w, "unsupported_grant_type")
		}
	})
	mux.HandleFunc("/revoke", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		fake.revoked.Store(r.PostForm.Get("token"))
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/register", func(w http.ResponseWriter, r *http.Request) {
		var payload registrationRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		fake.registered.Store(payload.Email)
		w.WriteHeader(http.StatusCreated)
	})

	fake.Server = httptest.NewServer(mux)
	t.Cleanup(fake.Close)
	return fake
}

func writeToken(w http.ResponseWriter, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

func writeTokenError(w http.ResponseWriter, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code})
}

func newTestOAuth2Client(t *testing.T, srv *fakeAuthServer, mutate ...func(*OAuth2Config)) *OAuth2Client {
	t.Helper()

	cfg := OAuth2Config{
		ClientID:      "signin",
		ClientSecret:  "shh",
		AuthURL:       srv.URL + "/authorize",
		TokenURL:      srv.URL + "/token",
		RedirectURL:   "http://localhost:8080/auth/callback",
		Scopes:        []string{"openid", "email"},
		RevocationURL: srv.URL + "/revoke",
		HTTPClient:    srv.Client(),
	}
	for _, fn := range mutate {
		fn(&cfg)
	}
	client, err := NewOAuth2Client(cfg)
	require.NoError(t, err)
	return client
}

func TestOAuth2ClientPasswordSignIn(t *testing.T) {
	srv := newFakeAuthServer(t)
	client := newTestOAuth2Client(t, srv)

	t.Run("valid credentials prefer the id token", func(t *testing.T) {
		res, err := client.SignIn(context.Background(), MethodPassword, &PasswordParams{
			Email:    "a@b.com",
			Password: "secret",
			Flow:     FlowSignIn,
		})
		require.NoError(t, err)
		require.Equal(t, "id-1", res.Token)
		require.Equal(t, "refresh-1", res.RefreshToken)
	})

	t.Run("invalid grant maps to invalid credentials", func(t *testing.T) {
		_, err := client.SignIn(context.Background(), MethodPassword, &PasswordParams{
			Email:    "a@b.com",
			Password: "wrong",
			Flow:     FlowSignIn,
		})
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("missing params", func(t *testing.T) {
		_, err := client.SignIn(context.Background(), MethodPassword, nil)
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("sign up without registration endpoint", func(t *testing.T) {
		_, err := client.SignIn(context.Background(), MethodPassword, &PasswordParams{
			Email:    "new@b.com",
			Password: "secret",
			Flow:     FlowSignUp,
		})
		require.ErrorIs(t, err, ErrUnsupportedFlow)
	})
}

func TestOAuth2ClientSignUpRegistersFirst(t *testing.T) {
	srv := newFakeAuthServer(t)
	client := newTestOAuth2Client(t, srv, func(cfg *OAuth2Config) {
		cfg.RegistrationURL = srv.URL + "/register"
	})

	res, err := client.SignIn(context.Background(), MethodPassword, &PasswordParams{
		Email:    "a@b.com",
		Password: "secret",
		Flow:     FlowSignUp,
	})
	require.NoError(t, err)
	require.Equal(t, "id-1", res.Token)
	require.Equal(t, "a@b.com", srv.registered.Load())
}

func TestOAuth2ClientProviderSignIn(t *testing.T) {
	srv := newFakeAuthServer(t)
	client := newTestOAuth2Client(t, srv)
	client.newState = func() string { return "state-123" }

	res, err := client.SignIn(context.Background(), MethodGitHub, nil)
	require.NoError(t, err)
	require.Equal(t, "state-123", res.State)
	require.NotEmpty(t, res.Verifier)
	require.Empty(t, res.Token)

	parsed, err := url.Parse(res.Redirect)
	require.NoError(t, err)
	q := parsed.Query()
	require.Equal(t, "/authorize", parsed.Path)
	require.Equal(t, "github", q.Get("provider"))
	require.Equal(t, "state-123", q.Get("state"))
	require.Equal(t, "S256", q.Get("code_challenge_method"))
	require.NotEmpty(t, q.Get("code_challenge"))
	require.Equal(t, "signin", q.Get("client_id"))

	done, err := client.CompleteSignIn(context.Background(), MethodGitHub, Callback{
		Code:     "good-code",
		State:    "state-123",
		Verifier: res.Verifier,
	})
	require.NoError(t, err)
	require.Equal(t, "access-2", done.Token)
	require.Equal(t, res.Verifier, srv.verifier.Load())
}

func TestOAuth2ClientCompleteSignInErrors(t *testing.T) {
	srv := newFakeAuthServer(t)
	client := newTestOAuth2Client(t, srv)

	_, err := client.CompleteSignIn(context.Background(), MethodGoogle, Callback{Error: "access_denied"})
	require.ErrorIs(t, err, ErrProviderDenied)

	_, err = client.CompleteSignIn(context.Background(), MethodPassword, Callback{Code: "x"})
	require.ErrorIs(t, err, ErrUnsupportedMethod)

	_, err = client.CompleteSignIn(context.Background(), MethodGoogle, Callback{Code: "bad-code"})
	require.Error(t, err)
}

func TestOAuth2ClientSignOut(t *testing.T) {
	srv := newFakeAuthServer(t)
	client := newTestOAuth2Client(t, srv)

	require.NoError(t, client.SignOut(context.Background(), "id-1"))
	require.Equal(t, "id-1", srv.revoked.Load())

	noRevoke := newTestOAuth2Client(t, srv, func(cfg *OAuth2Config) {
		cfg.RevocationURL = ""
	})
	require.NoError(t, noRevoke.SignOut(context.Background(), "id-1"))
}

func TestOAuth2ClientSignOutFailure(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(failing.Close)

	srv := newFakeAuthServer(t)
	client := newTestOAuth2Client(t, srv, func(cfg *OAuth2Config) {
		cfg.RevocationURL = failing.URL
	})
	require.Error(t, client.SignOut(context.Background(), "id-1"))
}

func TestOAuth2ClientRejectsUnknownMethod(t *testing.T) {
	srv := newFakeAuthServer(t)
	client := newTestOAuth2Client(t, srv)

	_, err := client.SignIn(context.Background(), Method("saml"), nil)
	require.True(t, errors.Is(err, ErrUnsupportedMethod))
}

func TestNewOAuth2ClientValidation(t *testing.T) {
	_, err := NewOAuth2Client(OAuth2Config{})
	require.Error(t, err)

	_, err = NewOAuth2Client(OAuth2Config{ClientID: "x", AuthURL: "http://a", TokenURL: "http://t"})
	require.Error(t, err, "redirect url is required")
}
