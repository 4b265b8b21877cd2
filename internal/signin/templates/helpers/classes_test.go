package helpers

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProviderLabel(t *testing.T) {
	t.Parallel()

	require.Equal(t, "Google", ProviderLabel("google"))
	require.Equal(t, "GitHub", ProviderLabel("github"))
	require.Equal(t, "apple", ProviderLabel("apple"))
}

func TestButtonClass(t *testing.T) {
	t.Parallel()

	require.Contains(t, ButtonClass("primary"), "btn-primary")
	require.Contains(t, ButtonClass(""), "btn-primary")
	require.Contains(t, ButtonClass("outline"), "btn-outline")
	require.Equal(t, "btn-link", ButtonClass("link"))
}
