package httpserver_test

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"finitefield.org/hanko-signin/internal/signin/authclient"
	"finitefield.org/hanko-signin/internal/signin/httpserver/middleware"
	"finitefield.org/hanko-signin/internal/signin/testutil"
)

func TestHomeRedirectsWithoutAuth(t *testing.T) {
	t.Parallel()

	ts := testutil.NewServer(t)
	b := testutil.NewBrowser(t, ts)

	resp, _ := b.Get("/")
	require.Equal(t, http.StatusFound, resp.StatusCode)
	require.Equal(t, "/auth", resp.Header.Get("Location"))
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	ts := testutil.NewServer(t)
	resp, body := testutil.NewBrowser(t, ts).Get("/healthz")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ok", string(body))
}

func TestAuthScreenRendersSignInCard(t *testing.T) {
	t.Parallel()

	ts := testutil.NewServer(t)
	b := testutil.NewBrowser(t, ts)

	resp, body := b.Get("/auth?reason=expired")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "no-store", resp.Header.Get("Cache-Control"))

	doc := testutil.ParseHTML(t, body)
	require.Equal(t, "signIn", doc.Find("#auth-card").AttrOr("data-card", ""))
	require.Equal(t, "Login to continue", strings.TrimSpace(doc.Find(".card-title").Text()))
	require.NotEmpty(t, doc.Find(`input[name="card_id"]`).First().AttrOr("value", ""))
	require.Contains(t, doc.Find("[data-card-message]").Text(), "expired")
	require.Equal(t, 0, doc.Find("[data-card-error]").Length())
	require.NotEmpty(t, b.Cookie("csrf_token"))
}

func TestPasswordSignInFailureShowsFixedError(t *testing.T) {
	t.Parallel()

	ts := testutil.NewServer(t)
	b := testutil.NewBrowser(t, ts)
	cardID := mountCard(t, b)

	resp, body := b.PostForm("/auth/password", url.Values{
		"card_id":  {cardID},
		"email":    {"a@b.com"},
		"password": {"wrong"},
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	doc := testutil.ParseHTML(t, body)
	require.Equal(t, "Invalid email or password", strings.TrimSpace(doc.Find("[data-card-error] p").Text()))
	require.Equal(t, "a@b.com", doc.Find(`input[name="email"]`).AttrOr("value", ""))
	_, echoed := doc.Find(`input[name="password"]`).Attr("value")
	require.False(t, echoed)
	doc.Find(`input[name="email"], input[name="password"], button[data-provider]`).Each(func(_ int, s *goquery.Selection) {
		_, disabled := s.Attr("disabled")
		require.False(t, disabled, "pending is cleared once the call settles")
	})
	require.Empty(t, b.Cookie(middleware.AuthCookieName))
}

func TestCardErrorPersistsUntilRemount(t *testing.T) {
	t.Parallel()

	ts := testutil.NewServer(t, testutil.WithActions(&failingProviders{Static: newStatic()}))
	b := testutil.NewBrowser(t, ts)
	cardID := mountCard(t, b)

	_, _ = b.PostForm("/auth/password", url.Values{
		"card_id":  {cardID},
		"email":    {"a@b.com"},
		"password": {"wrong"},
	})

	resp, body := b.PostForm("/auth/provider/github", url.Values{"card_id": {cardID}}, "HX-Request", "true")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	doc := testutil.ParseHTML(t, body)
	require.Equal(t, "Invalid email or password", strings.TrimSpace(doc.Find("[data-card-error] p").Text()),
		"a provider attempt leaves the earlier error in place")
	require.Equal(t, "a@b.com", doc.Find(`input[name="email"]`).AttrOr("value", ""))

	freshID := mountCard(t, b)
	require.NotEqual(t, cardID, freshID)
	_, body = b.PostForm("/auth/provider/github", url.Values{"card_id": {freshID}}, "HX-Request", "true")
	doc = testutil.ParseHTML(t, body)
	require.Equal(t, 0, doc.Find("[data-card-error]").Length(), "provider failures are never shown")
}

func TestPasswordRetryKeepsErrorUnlessConfigured(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name string
		opts []testutil.ServerOption
		// pending snapshots without an error across both attempts
		wantClean int
	}{
		{name: "default", wantClean: 1},
		{name: "clear on retry", opts: []testutil.ServerOption{testutil.WithClearErrorOnRetry()}, wantClean: 2},
	} {
		t.Run(tc.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.DebugLevel)
			opts := append([]testutil.ServerOption{testutil.WithLogger(zap.New(core))}, tc.opts...)
			ts := testutil.NewServer(t, opts...)
			b := testutil.NewBrowser(t, ts)
			cardID := mountCard(t, b)

			for i := 0; i < 2; i++ {
				resp, _ := b.PostForm("/auth/password", url.Values{"card_id": {cardID}, "email": {"a@b.com"}, "password": {"wrong"}})
				require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			}

			clean := 0
			for _, entry := range logs.FilterMessage("card state").All() {
				fields := entry.ContextMap()
				if fields["pending"] == true && fields["error"] == false {
					clean++
				}
			}
			require.Equal(t, tc.wantClean, clean)
		})
	}
}

func TestPasswordSignInSuccess(t *testing.T) {
	t.Parallel()

	ts := testutil.NewServer(t)
	b := testutil.NewBrowser(t, ts)
	cardID := mountCard(t, b)

	resp, _ := b.PostForm("/auth/password", url.Values{
		"card_id":  {cardID},
		"email":    {testutil.DevEmail},
		"password": {testutil.DevPassword},
		"next":     {"/?tab=profile"},
	})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/?tab=profile", resp.Header.Get("Location"))
	require.Equal(t, "dev:"+testutil.DevEmail, b.Cookie(middleware.AuthCookieName))

	resp, body := b.Get("/")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	doc := testutil.ParseHTML(t, body)
	require.True(t, strings.HasPrefix(strings.TrimSpace(doc.Find("[data-home]").Text()), "Logged in"))
	require.Equal(t, testutil.DevEmail, doc.Find("[data-home-email]").Text())

	resp, _ = b.Get("/auth")
	require.Equal(t, http.StatusSeeOther, resp.StatusCode, "signed-in users skip the auth screen")
	require.Equal(t, "/", resp.Header.Get("Location"))
}

func TestSignedInAuthScreenHTMXRedirect(t *testing.T) {
	t.Parallel()

	ts := testutil.NewServer(t)
	b := testutil.NewBrowser(t, ts)
	signIn(t, b)

	resp, body := b.Get("/auth?next=/settings", "HX-Request", "true")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, "/settings", resp.Header.Get("HX-Redirect"))
	require.Empty(t, body)
}

func TestMissingAuthCookieFallsBackToSignIn(t *testing.T) {
	t.Parallel()

	ts := testutil.NewServer(t)

	t.Run("home first", func(t *testing.T) {
		b := testutil.NewBrowser(t, ts)
		signIn(t, b)
		b.DropCookie(middleware.AuthCookieName)
		require.Empty(t, b.Cookie(middleware.AuthCookieName))

		resp, _ := b.Get("/")
		require.Equal(t, http.StatusFound, resp.StatusCode)
		require.Equal(t, "/auth", resp.Header.Get("Location"))

		mountCard(t, b)
	})

	t.Run("auth screen first", func(t *testing.T) {
		b := testutil.NewBrowser(t, ts)
		signIn(t, b)
		b.DropCookie(middleware.AuthCookieName)

		mountCard(t, b)

		resp, _ := b.Get("/")
		require.Equal(t, http.StatusFound, resp.StatusCode)
		mountCard(t, b)
	})
}

func TestPasswordSignInHTMXRedirect(t *testing.T) {
	t.Parallel()

	ts := testutil.NewServer(t)
	b := testutil.NewBrowser(t, ts)
	cardID := mountCard(t, b)

	resp, _ := b.PostForm("/auth/password", url.Values{
		"card_id":  {cardID},
		"email":    {testutil.DevEmail},
		"password": {testutil.DevPassword},
		"next":     {"https://evil.example.com/"},
	}, "HX-Request", "true")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, "/", resp.Header.Get("HX-Redirect"))
}

func TestPasswordFailureHTMXReturnsFragment(t *testing.T) {
	t.Parallel()

	ts := testutil.NewServer(t)
	b := testutil.NewBrowser(t, ts)
	cardID := mountCard(t, b)

	resp, body := b.PostForm("/auth/password", url.Values{
		"card_id":  {cardID},
		"email":    {"a@b.com"},
		"password": {"wrong"},
	}, "HX-Request", "true")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotContains(t, string(body), "<html")
	doc := testutil.ParseHTML(t, body)
	require.Equal(t, "Invalid email or password", strings.TrimSpace(doc.Find("[data-card-error] p").Text()))
}

func TestSwitchToSignUpAndRegister(t *testing.T) {
	t.Parallel()

	ts := testutil.NewServer(t)
	b := testutil.NewBrowser(t, ts)
	mountCard(t, b)

	resp, body := b.PostForm("/auth/flow/signUp", nil, "HX-Request", "true")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	doc := testutil.ParseHTML(t, body)
	require.Equal(t, "signUp", doc.Find("#auth-card").AttrOr("data-card", ""))
	cardID := doc.Find(`input[name="card_id"]`).First().AttrOr("value", "")
	require.NotEmpty(t, cardID)

	_, body = b.Get("/auth")
	require.Equal(t, "signUp", testutil.ParseHTML(t, body).Find("#auth-card").AttrOr("data-card", ""), "flow is remembered")

	resp, body = b.PostForm("/auth/password", url.Values{
		"card_id":          {cardID},
		"flow":             {"signUp"},
		"email":            {"new@example.com"},
		"password":         {"pw-1"},
		"confirm_password": {"pw-2"},
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "Passwords do not match", strings.TrimSpace(testutil.ParseHTML(t, body).Find("[data-card-error] p").Text()))

	resp, _ = b.PostForm("/auth/password", url.Values{
		"card_id":          {cardID},
		"flow":             {"signUp"},
		"email":            {"new@example.com"},
		"password":         {"pw-1"},
		"confirm_password": {"pw-1"},
	})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "dev:new@example.com", b.Cookie(middleware.AuthCookieName))

	resp, _ = b.PostForm("/auth/flow/signIn", nil)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/auth", resp.Header.Get("Location"))
}

func TestProviderSignInRoundTrip(t *testing.T) {
	t.Parallel()

	ts := testutil.NewServer(t)
	b := testutil.NewBrowser(t, ts)
	cardID := mountCard(t, b)

	resp, _ := b.PostForm("/auth/provider/google", url.Values{"card_id": {cardID}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	location := resp.Header.Get("Location")
	require.True(t, strings.HasPrefix(location, "/auth/callback?"), location)

	resp, _ = b.Get(location)
	require.Equal(t, http.StatusFound, resp.StatusCode)
	require.Equal(t, "/", resp.Header.Get("Location"))
	require.Equal(t, "dev:google-user", b.Cookie(middleware.AuthCookieName))

	resp, _ = b.Get(location)
	require.Equal(t, http.StatusFound, resp.StatusCode)
	require.Equal(t, "/auth", resp.Header.Get("Location"), "handshakes are single use")
}

func TestProviderCallbackRejectsForeignState(t *testing.T) {
	t.Parallel()

	ts := testutil.NewServer(t)
	b := testutil.NewBrowser(t, ts)
	cardID := mountCard(t, b)

	resp, _ := b.PostForm("/auth/provider/github", url.Values{"card_id": {cardID}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	resp, _ = b.Get("/auth/callback?code=github-user&state=forged")
	require.Equal(t, http.StatusFound, resp.StatusCode)
	require.Equal(t, "/auth", resp.Header.Get("Location"))
	require.Empty(t, b.Cookie(middleware.AuthCookieName))
}

func TestUnknownProviderIsNotFound(t *testing.T) {
	t.Parallel()

	ts := testutil.NewServer(t)
	b := testutil.NewBrowser(t, ts)
	mountCard(t, b)

	resp, _ := b.PostForm("/auth/provider/gitlab", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSignOutClearsSessionEvenWhenServiceFails(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.WarnLevel)
	actions := &failingSignOut{Static: newStatic()}
	ts := testutil.NewServer(t, testutil.WithActions(actions), testutil.WithLogger(zap.New(core)))
	b := testutil.NewBrowser(t, ts)
	signIn(t, b)

	resp, _ := b.PostForm("/signout", nil)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/auth?status=signed_out", resp.Header.Get("Location"))
	require.Empty(t, b.Cookie(middleware.AuthCookieName))
	require.Equal(t, []string{"dev:" + testutil.DevEmail}, actions.tokens)
	require.Equal(t, 1, logs.FilterMessage("sign-out failed").Len())

	resp, _ = b.Get("/")
	require.Equal(t, http.StatusFound, resp.StatusCode)

	_, body := b.Get("/auth?status=signed_out")
	require.Contains(t, testutil.ParseHTML(t, body).Find("[data-card-message]").Text(), "signed out")
}

func TestSignOutRequiresCSRFToken(t *testing.T) {
	t.Parallel()

	ts := testutil.NewServer(t)
	b := testutil.NewBrowser(t, ts)
	signIn(t, b)

	resp, _ := b.PostForm("/signout", url.Values{middleware.CSRFFormField: {"forged"}})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.NotEmpty(t, b.Cookie(middleware.AuthCookieName))
}

func mountCard(t *testing.T, b *testutil.Browser) string {
	t.Helper()
	resp, body := b.Get("/auth")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	id := testutil.ParseHTML(t, body).Find(`input[name="card_id"]`).First().AttrOr("value", "")
	require.NotEmpty(t, id)
	return id
}

func signIn(t *testing.T, b *testutil.Browser) {
	t.Helper()
	cardID := mountCard(t, b)
	resp, _ := b.PostForm("/auth/password", url.Values{
		"card_id":  {cardID},
		"email":    {testutil.DevEmail},
		"password": {testutil.DevPassword},
	})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
}

func newStatic() *authclient.Static {
	return authclient.NewStatic(map[string]string{testutil.DevEmail: testutil.DevPassword}, "")
}

type failingProviders struct {
	*authclient.Static
}

func (f *failingProviders) SignIn(ctx context.Context, method authclient.Method, params *authclient.PasswordParams) (*authclient.Result, error) {
	if method.IsProvider() {
		return nil, authclient.ErrProviderDenied
	}
	return f.Static.SignIn(ctx, method, params)
}

type failingSignOut struct {
	*authclient.Static
	tokens []string
}

func (f *failingSignOut) SignOut(_ context.Context, token string) error {
	f.tokens = append(f.tokens, token)
	return errors.New("revocation endpoint unavailable")
}
