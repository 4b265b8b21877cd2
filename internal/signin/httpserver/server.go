package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"finitefield.org/hanko-signin/internal/signin/authclient"
	custommw "finitefield.org/hanko-signin/internal/signin/httpserver/middleware"
	"finitefield.org/hanko-signin/internal/signin/observability"
	"finitefield.org/hanko-signin/public"
)

const (
	loginPath    = "/auth"
	callbackPath = "/auth/callback"
)

// Config holds runtime options for the sign-in HTTP server.
type Config struct {
	Address string
	Logger  *zap.Logger

	// Actions is the auth capability. When it also implements
	// authclient.ProviderCompleter and Completer is nil it finishes provider
	// sign-ins as well.
	Actions       authclient.Actions
	Completer     authclient.ProviderCompleter
	Authenticator custommw.Authenticator
	Sessions      custommw.SessionStore

	CSRFCookieName   string
	CSRFCookieSecure bool
	CSRFHeaderName   string
	AuthCookieSecure bool

	ClearErrorOnRetry bool
	RequestTimeout    time.Duration
}

// New constructs the HTTP server with middleware stack and embedded assets.
func New(cfg Config) *http.Server {
	if cfg.Actions == nil {
		panic("httpserver: auth actions are required")
	}
	if cfg.Sessions == nil {
		panic("httpserver: session store is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = observability.NoopLogger()
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	router := chi.NewRouter()
	router.Use(chimw.RequestID)
	router.Use(chimw.RealIP)
	router.Use(observability.InjectLogger(logger))
	router.Use(observability.RequestLogger())
	router.Use(observability.Recovery())
	router.Use(chimw.Timeout(timeout))

	staticContent, err := public.StaticFS()
	if err != nil {
		logger.Fatal("embed static", zap.Error(err))
	}
	router.Handle("/public/static/*", http.StripPrefix("/public/static/", http.FileServer(http.FS(staticContent))))
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})

	completer := cfg.Completer
	if completer == nil {
		completer, _ = cfg.Actions.(authclient.ProviderCompleter)
	}
	authenticator := cfg.Authenticator
	if authenticator == nil {
		authenticator = custommw.DefaultAuthenticator()
	}

	cookies := authCookies{secure: cfg.AuthCookieSecure}
	authH := newAuthHandlers(cfg.Actions, completer, cookies, cfg.ClearErrorOnRetry)
	homeH := newHomeHandlers(cfg.Actions, cookies)

	router.Group(func(r chi.Router) {
		r.Use(custommw.HTMX())
		r.Use(custommw.NoStore())
		r.Use(custommw.Session(cfg.Sessions))
		r.Use(custommw.CSRF(custommw.CSRFConfig{
			CookieName: cfg.CSRFCookieName,
			HeaderName: cfg.CSRFHeaderName,
			Secure:     cfg.CSRFCookieSecure,
		}))

		r.With(custommw.Auth(authenticator, loginPath)).Get("/", homeH.Show)
		r.Post("/signout", homeH.SignOut)

		r.Get(loginPath, authH.Screen)
		r.Post("/auth/password", authH.Password)
		r.Post("/auth/provider/{provider}", authH.Provider)
		r.Get(callbackPath, authH.Callback)
		r.Post("/auth/flow/{flow}", authH.SwitchFlow)
	})

	return &http.Server{
		Addr:              cfg.Address,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      timeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
		ErrorLog:          zap.NewStdLog(logger),
	}
}
