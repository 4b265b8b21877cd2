package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	firebase "firebase.google.com/go/v4"
	"go.uber.org/zap"

	"finitefield.org/hanko-signin/internal/signin/authclient"
	"finitefield.org/hanko-signin/internal/signin/config"
	"finitefield.org/hanko-signin/internal/signin/httpserver"
	"finitefield.org/hanko-signin/internal/signin/httpserver/middleware"
	"finitefield.org/hanko-signin/internal/signin/observability"
	"finitefield.org/hanko-signin/internal/signin/session"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "signin: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := observability.NewLogger(observability.LoggerConfig{
		Level:   cfg.Server.LogLevel,
		Console: !cfg.Server.IsProduction() && cfg.Server.LogFormat == "console",
		Service: "signin",
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	actions, err := buildActions(cfg.Auth, logger)
	if err != nil {
		return err
	}
	sessions, err := buildSessions(cfg, logger)
	if err != nil {
		return err
	}
	authenticator, err := buildAuthenticator(ctx, cfg.Verifier, logger, newFirebaseVerifier)
	if err != nil {
		return err
	}
	if authenticator == nil && cfg.Server.IsProduction() {
		return errors.New("a token verifier is required in production")
	}

	srv := httpserver.New(httpserver.Config{
		Address:           cfg.Server.Address,
		Logger:            logger,
		Actions:           actions,
		Authenticator:     authenticator,
		Sessions:          sessions,
		CSRFCookieName:    cfg.CSRF.CookieName,
		CSRFHeaderName:    cfg.CSRF.HeaderName,
		CSRFCookieSecure:  cfg.CSRF.Secure,
		AuthCookieSecure:  cfg.Session.Secure,
		ClearErrorOnRetry: cfg.Card.ClearErrorOnRetry,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	logger.Info("signin server listening",
		zap.String("addr", cfg.Server.Address),
		zap.String("env", cfg.Server.Environment),
		zap.Bool("dev_auth", cfg.Auth.UsesDevAuth()),
	)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	logger.Info("signin server stopped")
	return nil
}

func buildActions(cfg config.AuthConfig, logger *zap.Logger) (authclient.Actions, error) {
	if cfg.UsesDevAuth() {
		accounts := authclient.ParseAccounts(cfg.DevAccounts)
		logger.Warn("no authorization server configured; using in-memory accounts", zap.Int("accounts", len(accounts)))
		return authclient.NewStatic(accounts, ""), nil
	}

	client, err := authclient.NewOAuth2Client(authclient.OAuth2Config{
		ClientID:        cfg.ClientID,
		ClientSecret:    cfg.ClientSecret,
		AuthURL:         cfg.AuthURL,
		TokenURL:        cfg.TokenURL,
		RedirectURL:     cfg.RedirectURL,
		Scopes:          cfg.Scopes,
		RevocationURL:   cfg.RevocationURL,
		RegistrationURL: cfg.RegistrationURL,
		ProviderParam:   cfg.ProviderParam,
	})
	if err != nil {
		return nil, fmt.Errorf("init auth client: %w", err)
	}
	logger.Info("authorization server configured", zap.String("token_url", cfg.TokenURL))
	return client, nil
}

func buildSessions(cfg config.Config, logger *zap.Logger) (*session.Manager, error) {
	sessCfg := session.Config{
		CookieName:   cfg.Session.CookieName,
		HashKey:      []byte(cfg.Session.HashKey),
		BlockKey:     []byte(cfg.Session.BlockKey),
		CookieSecure: cfg.Session.Secure,
		IdleTimeout:  cfg.Session.IdleTimeout,
		Lifetime:     cfg.Session.Lifetime,
		HandshakeTTL: cfg.Session.HandshakeTTL,
	}
	if cfg.Session.HashKey == "" {
		logger.Warn("SIGNIN_SESSION_HASH_KEY not set; sessions will not survive a restart")
		sessCfg = session.WithEphemeralKeys(sessCfg)
	}
	manager, err := session.NewManager(sessCfg)
	if err != nil {
		return nil, fmt.Errorf("init session manager: %w", err)
	}
	return manager, nil
}

// firebaseVerifierFunc builds the Admin SDK auth client; tests swap it out.
type firebaseVerifierFunc func(ctx context.Context, projectID string) (middleware.IDTokenVerifier, error)

func newFirebaseVerifier(ctx context.Context, projectID string) (middleware.IDTokenVerifier, error) {
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID})
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("init firebase auth client: %w", err)
	}
	return client, nil
}

// buildAuthenticator returns nil only when no verifier is configured, which
// the server turns into the development passthrough. A configured verifier
// that cannot start is an error.
func buildAuthenticator(ctx context.Context, cfg config.VerifierConfig, logger *zap.Logger, newVerifier firebaseVerifierFunc) (middleware.Authenticator, error) {
	if cfg.JWTSecret != "" {
		logger.Info("JWT authenticator enabled", zap.String("issuer", cfg.JWTIssuer))
		return middleware.NewJWTAuthenticator(middleware.JWTConfig{
			Secret:   []byte(cfg.JWTSecret),
			Issuer:   cfg.JWTIssuer,
			Audience: cfg.JWTAudience,
		}), nil
	}

	if cfg.FirebaseProjectID == "" {
		logger.Warn("no token verifier configured; using passthrough authenticator")
		return nil, nil
	}

	verifier, err := newVerifier(ctx, cfg.FirebaseProjectID)
	if err != nil {
		return nil, fmt.Errorf("firebase authenticator: %w", err)
	}

	var opts []middleware.FirebaseOption
	if cfg.FirebaseCheckRevoked {
		opts = append(opts, middleware.WithRevocationCheck())
	}
	logger.Info("Firebase authenticator enabled",
		zap.String("project", cfg.FirebaseProjectID),
		zap.Bool("check_revoked", cfg.FirebaseCheckRevoked),
	)
	return middleware.NewFirebaseAuthenticator(verifier, opts...), nil
}
