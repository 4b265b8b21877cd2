package httpserver

import (
	"net/http"

	"github.com/a-h/templ"
	"go.uber.org/zap"

	"finitefield.org/hanko-signin/internal/signin/authclient"
	custommw "finitefield.org/hanko-signin/internal/signin/httpserver/middleware"
	"finitefield.org/hanko-signin/internal/signin/observability"
	"finitefield.org/hanko-signin/internal/signin/templates/home"
)

type homeHandlers struct {
	actions authclient.Actions
	cookies authCookies
}

func newHomeHandlers(actions authclient.Actions, cookies authCookies) *homeHandlers {
	if actions == nil {
		panic("home: actions are required")
	}
	return &homeHandlers{actions: actions, cookies: cookies}
}

// Show renders the landing page. The route guard has already authenticated the caller.
func (h *homeHandlers) Show(w http.ResponseWriter, r *http.Request) {
	data := home.PageData{}
	if user, ok := custommw.UserFromContext(r.Context()); ok {
		data.Email = user.Email
	}
	templ.Handler(home.Page(data)).ServeHTTP(w, r)
}

// SignOut revokes the token with the auth service and always clears the
// local session, even when revocation fails.
func (h *homeHandlers) SignOut(w http.ResponseWriter, r *http.Request) {
	logger := observability.FromContext(r.Context())

	if token := custommw.TokenFromRequest(r); token != "" {
		if err := h.actions.SignOut(r.Context(), token); err != nil {
			logger.Warn("sign-out failed", zap.Error(err))
		}
	}

	if sess, ok := custommw.SessionFromContext(r.Context()); ok {
		sess.Destroy()
	}
	h.cookies.clear(w)

	custommw.Redirect(w, r, loginURLWithParams(map[string]string{"status": "signed_out"}))
}
