package httpserver

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeNext(t *testing.T) {
	cases := map[string]string{
		"":                      "",
		"/":                     "/",
		"/settings?tab=1":       "/settings?tab=1",
		"/a/../b":               "/b",
		"relative":              "/relative",
		"https://evil.example":  "",
		"//evil.example/path":   "",
		"/\\evil.example":       "",
		"/auth":                 "",
		"/auth/callback?code=x": "",
		"/authors":              "/authors",
		"javascript:alert(1)":   "",
		"/%2e%2e/%2e%2e/etc":    "/etc",
		"/profile#section-keys": "/profile#section-keys",
	}
	for raw, want := range cases {
		require.Equal(t, want, normalizeNext(raw), "input %q", raw)
	}
}

func TestRedirectTargetDefaultsToHome(t *testing.T) {
	require.Equal(t, "/", redirectTarget("https://evil.example"))
	require.Equal(t, "/settings", redirectTarget("/settings"))
}

func TestLoginURLWithParams(t *testing.T) {
	require.Equal(t, "/auth", loginURLWithParams(map[string]string{"next": ""}))
	require.Equal(t, "/auth?status=signed_out", loginURLWithParams(map[string]string{"status": "signed_out"}))
}
