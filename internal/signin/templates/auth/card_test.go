package auth

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/a-h/templ"
	"github.com/stretchr/testify/require"

	"finitefield.org/hanko-signin/internal/signin/authclient"
	"finitefield.org/hanko-signin/internal/signin/httpserver/middleware"
)

func buildCSRFContext(t *testing.T) context.Context {
	t.Helper()

	var ctx context.Context
	handler := middleware.CSRF(middleware.CSRFConfig{})(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		ctx = r.Context()
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/auth", nil))

	require.NotNil(t, ctx, "middleware stack must provide context")
	return ctx
}

func render(t *testing.T, ctx context.Context, c templ.Component) *goquery.Document {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, c.Render(ctx, &buf), "component must render without error")

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err, "html must parse")
	return doc
}

func TestSignInCardRendersControls(t *testing.T) {
	t.Parallel()

	ctx := buildCSRFContext(t)
	doc := render(t, ctx, SignInCard(CardData{CardID: "card-1", Email: "a@b.com", Next: "/settings"}))

	card := doc.Find("#" + CardElementID)
	require.Equal(t, 1, card.Length())
	require.Equal(t, "signIn", card.AttrOr("data-card", ""))
	require.Equal(t, "Login to continue", strings.TrimSpace(doc.Find(".card-title").Text()))
	require.Equal(t, "Use your email or another service to continue", strings.TrimSpace(doc.Find(".card-description").Text()))
	require.Equal(t, 0, doc.Find("[data-card-error]").Length(), "no error banner without an error")

	form := doc.Find("form[data-form=password]")
	require.Equal(t, PasswordPath, form.AttrOr("action", ""))
	require.Equal(t, PasswordPath, form.AttrOr("hx-post", ""))
	require.Equal(t, "card-1", form.Find(`input[name="card_id"]`).AttrOr("value", ""))
	require.Equal(t, "/settings", form.Find(`input[name="next"]`).AttrOr("value", ""))
	require.Equal(t, middleware.CSRFTokenFromContext(ctx), form.Find(`input[name="_csrf"]`).AttrOr("value", ""))

	email := form.Find(`input[name="email"]`)
	require.Equal(t, "email", email.AttrOr("type", ""))
	require.Equal(t, "a@b.com", email.AttrOr("value", ""))
	_, required := email.Attr("required")
	require.True(t, required)

	password := form.Find(`input[name="password"]`)
	_, hasValue := password.Attr("value")
	require.False(t, hasValue, "password must never be echoed")

	require.Equal(t, "Continue", strings.TrimSpace(form.Find("button[type=submit]").Text()))

	var labels []string
	doc.Find("button[data-provider]").Each(func(_ int, s *goquery.Selection) {
		labels = append(labels, strings.TrimSpace(s.Text()))
	})
	require.Equal(t, []string{"Continue with Google", "Continue with GitHub"}, labels)
	require.Equal(t, ProviderPath+"github", doc.Find("form[data-form=provider]").Last().AttrOr("action", ""))

	switcher := doc.Find("button[data-switch-flow]")
	require.Equal(t, "Sign up", strings.TrimSpace(switcher.Text()))
	require.Equal(t, FlowPath+"signUp", doc.Find("form[data-form=switch]").AttrOr("action", ""))
	require.Contains(t, doc.Find(".card-switch").Text(), "Don't have an account?")

	doc.Find("input:not([type=hidden]), button").Each(func(_ int, s *goquery.Selection) {
		_, disabled := s.Attr("disabled")
		require.False(t, disabled, "controls are enabled while idle")
	})
}

func TestSignInCardShowsError(t *testing.T) {
	t.Parallel()

	doc := render(t, context.Background(), SignInCard(CardData{Error: "Invalid email or password"}))
	banner := doc.Find("[data-card-error]")
	require.Equal(t, 1, banner.Length())
	require.Equal(t, "alert", banner.AttrOr("role", ""))
	require.Equal(t, "Invalid email or password", strings.TrimSpace(banner.Find("p").Text()))
}

func TestSignInCardDisablesControlsWhilePending(t *testing.T) {
	t.Parallel()

	doc := render(t, context.Background(), SignInCard(CardData{Pending: true}))

	controls := doc.Find(`input[name="email"], input[name="password"], form[data-form=password] button, button[data-provider]`)
	require.Equal(t, 5, controls.Length())
	controls.Each(func(_ int, s *goquery.Selection) {
		_, disabled := s.Attr("disabled")
		require.True(t, disabled, "control %s must be disabled while pending", goquery.NodeName(s))
	})
	require.Equal(t, "true", doc.Find("#"+CardElementID).AttrOr("aria-busy", ""))
}

func TestSignUpCard(t *testing.T) {
	t.Parallel()

	doc := render(t, context.Background(), SignUpCard(CardData{CardID: "card-2", Error: "Passwords do not match"}))

	require.Equal(t, "signUp", doc.Find("#"+CardElementID).AttrOr("data-card", ""))
	require.Equal(t, "signUp", doc.Find(`input[name="flow"]`).AttrOr("value", ""))
	require.Equal(t, 1, doc.Find(`input[name="confirm_password"]`).Length())
	require.Equal(t, "Passwords do not match", strings.TrimSpace(doc.Find("[data-card-error] p").Text()))
	require.Equal(t, "Sign in", strings.TrimSpace(doc.Find("button[data-switch-flow]").Text()))
	require.Equal(t, FlowPath+"signIn", doc.Find("form[data-form=switch]").AttrOr("action", ""))
}

func TestScreenSelectsCardAndWrapsLayout(t *testing.T) {
	t.Parallel()

	ctx := buildCSRFContext(t)

	doc := render(t, ctx, Screen(ScreenData{Flow: authclient.FlowSignUp}))
	require.Equal(t, "signUp", doc.Find("#"+CardElementID).AttrOr("data-card", ""))
	require.Equal(t, "Sign in", strings.TrimSpace(doc.Find("title").Text()))
	require.Contains(t, doc.Find("body").AttrOr("hx-headers", ""), middleware.CSRFTokenFromContext(ctx))

	doc = render(t, ctx, Card(ScreenData{}))
	require.Equal(t, "signIn", doc.Find("#"+CardElementID).AttrOr("data-card", ""))
	require.Equal(t, 0, doc.Find("html head title").Length(), "fragment must not include the layout")
}
