package auth

import "finitefield.org/hanko-signin/internal/signin/authclient"

// Routes used by the card forms.
const (
	PasswordPath = "/auth/password"
	ProviderPath = "/auth/provider/"
	FlowPath     = "/auth/flow/"

	// CardElementID is the swap target for htmx card responses.
	CardElementID = "auth-card"
)

// Providers lists the OAuth buttons in render order.
var Providers = []authclient.Method{authclient.MethodGoogle, authclient.MethodGitHub}

// CardData encapsulates rendering state for one card view instance.
type CardData struct {
	CardID  string
	Email   string
	Error   string
	Message string
	Pending bool
	Next    string
}

// ScreenData is the auth screen: the selected flow and its card.
type ScreenData struct {
	Flow authclient.Flow
	Card CardData
}
