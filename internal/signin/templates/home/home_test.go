package home

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"

	"finitefield.org/hanko-signin/internal/signin/httpserver/middleware"
)

func TestPageRendersSignOutForm(t *testing.T) {
	t.Parallel()

	var ctx context.Context
	middleware.CSRF(middleware.CSRFConfig{})(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		ctx = r.Context()
	})).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NotNil(t, ctx)

	var buf bytes.Buffer
	require.NoError(t, Page(PageData{Email: "ada@example.com"}).Render(ctx, &buf))
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)

	home := doc.Find("[data-home]")
	require.Equal(t, 1, home.Length())
	require.True(t, strings.HasPrefix(strings.TrimSpace(home.Text()), "Logged in"))
	require.Equal(t, "ada@example.com", doc.Find("[data-home-email]").Text())

	form := doc.Find("form[data-signout-form]")
	require.Equal(t, SignOutPath, form.AttrOr("action", ""))
	require.Equal(t, "post", form.AttrOr("method", ""))
	require.Equal(t, middleware.CSRFTokenFromContext(ctx), form.Find(`input[name="_csrf"]`).AttrOr("value", ""))
	require.Equal(t, "Sign out", strings.TrimSpace(form.Find("button").Text()))
}
