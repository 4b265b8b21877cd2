package httpserver

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"finitefield.org/hanko-signin/internal/signin/authclient"
	"finitefield.org/hanko-signin/internal/signin/card"
	custommw "finitefield.org/hanko-signin/internal/signin/httpserver/middleware"
	"finitefield.org/hanko-signin/internal/signin/observability"
	appsession "finitefield.org/hanko-signin/internal/signin/session"
	"finitefield.org/hanko-signin/internal/signin/templates/auth"
)

const (
	messageExpired   = "Your session has expired. Please sign in again."
	messageSignedOut = "You have been signed out."
)

type authHandlers struct {
	actions           authclient.Actions
	completer         authclient.ProviderCompleter
	cookies           authCookies
	clearErrorOnRetry bool
}

func newAuthHandlers(actions authclient.Actions, completer authclient.ProviderCompleter, cookies authCookies, clearErrorOnRetry bool) *authHandlers {
	if actions == nil {
		panic("auth: actions are required")
	}
	return &authHandlers{
		actions:           actions,
		completer:         completer,
		cookies:           cookies,
		clearErrorOnRetry: clearErrorOnRetry,
	}
}

// Screen mounts a fresh card for the session's flow.
func (h *authHandlers) Screen(w http.ResponseWriter, r *http.Request) {
	sess := mustSession(r)
	q := r.URL.Query()

	if isAuthenticated(r, sess) {
		custommw.Redirect(w, r, redirectTarget(q.Get("next")))
		return
	}

	data := h.mount(sess, normalizeNext(q.Get("next")))
	data.Card.Message = messageForQuery(q)
	h.render(w, r, data, http.StatusOK)
}

// Password submits the password form of either card.
func (h *authHandlers) Password(w http.ResponseWriter, r *http.Request) {
	logger := observability.FromContext(r.Context())
	sess := mustSession(r)

	if err := r.ParseForm(); err != nil {
		logger.Info("password form parse failed", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	flow := flowFromForm(r)
	cardID, restored := h.restore(sess, r.PostFormValue("card_id"))
	opts := h.cardOptions(r.Context(), restored)

	var (
		res   *authclient.Result
		err   error
		state card.State
	)
	switch flow {
	case authclient.FlowSignUp:
		c := card.NewSignUp(h.actions, opts...)
		c.SetEmail(strings.TrimSpace(r.PostFormValue("email")))
		c.SetPassword(r.PostFormValue("password"))
		c.SetConfirmPassword(r.PostFormValue("confirm_password"))
		res, err = c.SubmitPassword(r.Context())
		state = c.State()
	default:
		c := card.NewSignIn(h.actions, opts...)
		c.SetEmail(strings.TrimSpace(r.PostFormValue("email")))
		c.SetPassword(r.PostFormValue("password"))
		res, err = c.SubmitPassword(r.Context())
		state = c.State()
	}

	sess.SaveCard(appsession.CardState{ID: cardID, Email: state.Email, Error: state.Error})
	next := normalizeNext(r.PostFormValue("next"))

	if err != nil {
		status := http.StatusUnauthorized
		if errors.Is(err, card.ErrPasswordMismatch) {
			status = http.StatusBadRequest
		}
		logger.Info("password sign-in failed",
			zap.String("flow", string(flow)),
			zap.Error(err),
		)
		h.render(w, r, screenData(flow, cardID, state, next), status)
		return
	}
	if res == nil || strings.TrimSpace(res.Token) == "" {
		logger.Error("password sign-in returned no token", zap.String("flow", string(flow)))
		h.render(w, r, screenData(flow, cardID, state, next), http.StatusBadGateway)
		return
	}

	h.signedIn(w, r, sess, res)
	logger.Info("password sign-in succeeded", zap.String("flow", string(flow)))
	custommw.Redirect(w, r, redirectTarget(next))
}

// Provider starts a Google or GitHub sign-in and sends the browser to the
// provider. Failures are logged and never shown on the card.
func (h *authHandlers) Provider(w http.ResponseWriter, r *http.Request) {
	logger := observability.FromContext(r.Context())
	sess := mustSession(r)

	method, err := authclient.ParseProvider(chi.URLParam(r, "provider"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	flow := flowFromForm(r)
	cardID, restored := h.restore(sess, r.PostFormValue("card_id"))
	next := normalizeNext(r.PostFormValue("next"))
	opts := h.cardOptions(r.Context(), restored)

	var (
		res   *authclient.Result
		state card.State
	)
	if flow == authclient.FlowSignUp {
		c := card.NewSignUp(h.actions, opts...)
		res, err = c.SignInWithProvider(r.Context(), method)
		state = c.State()
	} else {
		c := card.NewSignIn(h.actions, opts...)
		res, err = c.SignInWithProvider(r.Context(), method)
		state = c.State()
	}

	if err == nil && (res == nil || res.Redirect == "") {
		err = errors.New("auth service returned no provider redirect")
	}
	if err != nil {
		logger.Warn("provider sign-in failed",
			zap.String("provider", string(method)),
			zap.Error(err),
		)
		h.render(w, r, screenData(flow, cardID, state, next), http.StatusBadGateway)
		return
	}

	sess.BeginHandshake(appsession.Handshake{
		Provider: string(method),
		State:    res.State,
		Verifier: res.Verifier,
		Next:     next,
	})
	logger.Debug("provider sign-in started", zap.String("provider", string(method)))
	custommw.Redirect(w, r, res.Redirect)
}

// Callback finishes a provider sign-in once the browser returns.
func (h *authHandlers) Callback(w http.ResponseWriter, r *http.Request) {
	logger := observability.FromContext(r.Context())
	sess := mustSession(r)
	q := r.URL.Query()

	handshake, ok := sess.TakeHandshake()
	if !ok || handshake.State == "" || handshake.State != q.Get("state") {
		logger.Warn("provider callback rejected", zap.Error(authclient.ErrInvalidState), zap.Bool("handshake", ok))
		http.Redirect(w, r, loginPath, http.StatusFound)
		return
	}
	if h.completer == nil {
		logger.Error("provider callback without a completer", zap.String("provider", handshake.Provider))
		http.Redirect(w, r, loginPath, http.StatusFound)
		return
	}

	res, err := h.completer.CompleteSignIn(r.Context(), authclient.Method(handshake.Provider), authclient.Callback{
		Code:     q.Get("code"),
		State:    q.Get("state"),
		Error:    q.Get("error"),
		Verifier: handshake.Verifier,
	})
	if err == nil && (res == nil || strings.TrimSpace(res.Token) == "") {
		err = errors.New("auth service returned no token")
	}
	if err != nil {
		logger.Warn("provider sign-in failed",
			zap.String("provider", handshake.Provider),
			zap.Error(err),
		)
		http.Redirect(w, r, loginPath, http.StatusFound)
		return
	}

	h.signedIn(w, r, sess, res)
	logger.Info("provider sign-in succeeded", zap.String("provider", handshake.Provider))
	http.Redirect(w, r, redirectTarget(handshake.Next), http.StatusFound)
}

// SwitchFlow hands the flow selection to the screen and mounts a fresh card.
func (h *authHandlers) SwitchFlow(w http.ResponseWriter, r *http.Request) {
	sess := mustSession(r)

	target, ok := authclient.ParseFlow(chi.URLParam(r, "flow"))
	if !ok {
		http.NotFound(w, r)
		return
	}

	setFlow := card.WithFlowSetter(func(f authclient.Flow) { sess.SetFlow(string(f)) })
	if target == authclient.FlowSignUp {
		card.NewSignIn(h.actions, setFlow).SwitchToSignUp()
	} else {
		card.NewSignUp(h.actions, setFlow).SwitchToSignIn()
	}

	next := normalizeNext(r.PostFormValue("next"))
	if !custommw.IsHTMXRequest(r.Context()) {
		params := map[string]string{"next": next}
		http.Redirect(w, r, loginURLWithParams(params), http.StatusSeeOther)
		return
	}
	h.render(w, r, h.mount(sess, next), http.StatusOK)
}

func (h *authHandlers) mount(sess *appsession.Session, next string) auth.ScreenData {
	id := uuid.NewString()
	sess.MountCard(id)
	return auth.ScreenData{
		Flow: currentFlow(sess),
		Card: auth.CardData{CardID: id, Next: next},
	}
}

// restore returns the state of the submitted card instance. Unknown ids
// start a fresh instance.
func (h *authHandlers) restore(sess *appsession.Session, cardID string) (string, appsession.CardState) {
	if state, ok := sess.Card(cardID); ok {
		return cardID, state
	}
	id := uuid.NewString()
	sess.MountCard(id)
	return id, appsession.CardState{ID: id}
}

func (h *authHandlers) cardOptions(ctx context.Context, restored appsession.CardState) []card.Option {
	logger := observability.FromContext(ctx)
	return []card.Option{
		card.WithRestoredState(restored.Email, restored.Error),
		card.WithClearErrorOnSubmit(h.clearErrorOnRetry),
		card.WithObserver(func(s card.State) {
			logger.Debug("card state", zap.Bool("pending", s.Pending), zap.Bool("error", s.Error != ""))
		}),
	}
}

func (h *authHandlers) signedIn(w http.ResponseWriter, r *http.Request, sess *appsession.Session, res *authclient.Result) {
	if res.RefreshToken != "" {
		sess.SetRefreshToken(res.RefreshToken)
	}
	sess.SetFlow(string(authclient.FlowSignIn))
	h.cookies.set(w, r, res.Token)
}

// render answers htmx with the card fragment and full page loads with the
// whole screen. htmx only swaps 2xx responses, so fragments are always 200.
func (h *authHandlers) render(w http.ResponseWriter, r *http.Request, data auth.ScreenData, status int) {
	if custommw.IsHTMXRequest(r.Context()) {
		templ.Handler(auth.Card(data)).ServeHTTP(w, r)
		return
	}
	templ.Handler(auth.Screen(data), templ.WithStatus(status)).ServeHTTP(w, r)
}

func screenData(flow authclient.Flow, cardID string, state card.State, next string) auth.ScreenData {
	return auth.ScreenData{
		Flow: flow,
		Card: auth.CardData{
			CardID:  cardID,
			Email:   state.Email,
			Error:   state.Error,
			Pending: state.ControlsDisabled(),
			Next:    next,
		},
	}
}

func flowFromForm(r *http.Request) authclient.Flow {
	if flow, ok := authclient.ParseFlow(r.PostFormValue("flow")); ok {
		return flow
	}
	return authclient.FlowSignIn
}

func currentFlow(sess *appsession.Session) authclient.Flow {
	if flow, ok := authclient.ParseFlow(sess.Flow()); ok {
		return flow
	}
	return authclient.FlowSignIn
}

// isAuthenticated requires both a session user and the auth cookie. A user
// left behind without a token is forgotten so the card can mount.
func isAuthenticated(r *http.Request, sess *appsession.Session) bool {
	user := sess.User()
	if user == nil || strings.TrimSpace(user.UID) == "" {
		return false
	}
	if custommw.TokenFromRequest(r) == "" {
		sess.SetUser(nil)
		return false
	}
	return true
}

func messageForQuery(q url.Values) string {
	if q.Get("status") == "signed_out" {
		return messageSignedOut
	}
	switch q.Get("reason") {
	case "expired", custommw.ReasonTokenExpired:
		return messageExpired
	default:
		return ""
	}
}

func mustSession(r *http.Request) *appsession.Session {
	sess, ok := custommw.SessionFromContext(r.Context())
	if !ok {
		panic("httpserver: session middleware is not installed")
	}
	return sess
}
