package testutil

import (
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"go.uber.org/zap"

	"finitefield.org/hanko-signin/internal/signin/authclient"
	"finitefield.org/hanko-signin/internal/signin/httpserver"
	"finitefield.org/hanko-signin/internal/signin/httpserver/middleware"
	"finitefield.org/hanko-signin/internal/signin/session"
)

// DevEmail and DevPassword are the account known to the default test server.
const (
	DevEmail    = "ada@example.com"
	DevPassword = "correct-horse"
)

// ServerOption customises the HTTP server configuration for tests.
type ServerOption func(*httpserver.Config)

// WithActions overrides the auth capability.
func WithActions(actions authclient.Actions) ServerOption {
	return func(cfg *httpserver.Config) {
		cfg.Actions = actions
	}
}

// WithAuthenticator overrides the route guard's token verifier.
func WithAuthenticator(auth middleware.Authenticator) ServerOption {
	return func(cfg *httpserver.Config) {
		cfg.Authenticator = auth
	}
}

// WithClearErrorOnRetry enables clearing the card error on each attempt.
func WithClearErrorOnRetry() ServerOption {
	return func(cfg *httpserver.Config) {
		cfg.ClearErrorOnRetry = true
	}
}

// WithLogger captures server logs.
func WithLogger(logger *zap.Logger) ServerOption {
	return func(cfg *httpserver.Config) {
		cfg.Logger = logger
	}
}

// NewServer constructs an httptest server running the sign-in HTTP stack
// backed by an in-memory auth service.
func NewServer(t testing.TB, opts ...ServerOption) *httptest.Server {
	t.Helper()

	sessions, err := session.NewManager(session.WithEphemeralKeys(session.Config{}))
	if err != nil {
		t.Fatalf("session manager: %v", err)
	}

	cfg := httpserver.Config{
		Address:        ":0",
		Actions:        authclient.NewStatic(map[string]string{DevEmail: DevPassword}, ""),
		Authenticator:  middleware.DefaultAuthenticator(),
		Sessions:       sessions,
		CSRFCookieName: "csrf_token",
		CSRFHeaderName: "X-CSRF-Token",
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	srv := httpserver.New(cfg)
	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(ts.Close)
	return ts
}

// Browser is a cookie-keeping client that does not follow redirects.
type Browser struct {
	t      testing.TB
	base   string
	Client *http.Client
}

// NewBrowser returns a Browser bound to ts.
func NewBrowser(t testing.TB, ts *httptest.Server) *Browser {
	t.Helper()

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return &Browser{
		t:    t,
		base: ts.URL,
		Client: &http.Client{
			Jar: jar,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Get issues a GET and returns the response with its body read.
func (b *Browser) Get(path string, headers ...string) (*http.Response, []byte) {
	b.t.Helper()
	req, err := http.NewRequest(http.MethodGet, b.base+path, nil)
	if err != nil {
		b.t.Fatalf("new request: %v", err)
	}
	return b.do(req, headers)
}

// PostForm submits form values, adding the CSRF token from the cookie jar.
func (b *Browser) PostForm(path string, form url.Values, headers ...string) (*http.Response, []byte) {
	b.t.Helper()
	if form == nil {
		form = url.Values{}
	}
	if form.Get(middleware.CSRFFormField) == "" {
		form.Set(middleware.CSRFFormField, b.Cookie("csrf_token"))
	}
	req, err := http.NewRequest(http.MethodPost, b.base+path, strings.NewReader(form.Encode()))
	if err != nil {
		b.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return b.do(req, headers)
}

// Cookie returns the named cookie value currently held for the server.
func (b *Browser) Cookie(name string) string {
	u, err := url.Parse(b.base)
	if err != nil {
		b.t.Fatalf("parse base url: %v", err)
	}
	for _, c := range b.Client.Jar.Cookies(u) {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

// DropCookie removes the named cookie from the jar, as a user clearing it would.
func (b *Browser) DropCookie(name string) {
	b.t.Helper()
	u, err := url.Parse(b.base)
	if err != nil {
		b.t.Fatalf("parse base url: %v", err)
	}
	b.Client.Jar.SetCookies(u, []*http.Cookie{{Name: name, Path: "/", MaxAge: -1}})
}

// headers are name/value pairs.
func (b *Browser) do(req *http.Request, headers []string) (*http.Response, []byte) {
	b.t.Helper()
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := b.Client.Do(req)
	if err != nil {
		b.t.Fatalf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		b.t.Fatalf("read body: %v", err)
	}
	return resp, body
}
