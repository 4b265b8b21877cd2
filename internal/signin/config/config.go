package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server   ServerConfig   `envPrefix:"SIGNIN_"`
	Session  SessionConfig  `envPrefix:"SIGNIN_SESSION_"`
	CSRF     CSRFConfig     `envPrefix:"SIGNIN_CSRF_"`
	Auth     AuthConfig     `envPrefix:"SIGNIN_AUTH_"`
	Verifier VerifierConfig `envPrefix:"SIGNIN_"`
	Card     CardConfig     `envPrefix:"SIGNIN_"`
}

// ServerConfig configures the HTTP listener and logging.
type ServerConfig struct {
	Address         string        `env:"HTTP_ADDR" envDefault:":8080"`
	Environment     string        `env:"ENV" envDefault:"development"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat       string        `env:"LOG_FORMAT" envDefault:"json"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// SessionConfig controls the session cookie.
type SessionConfig struct {
	CookieName   string        `env:"COOKIE_NAME" envDefault:"signin_session"`
	HashKey      string        `env:"HASH_KEY"`
	BlockKey     string        `env:"BLOCK_KEY"`
	Secure       bool          `env:"SECURE"`
	Lifetime     time.Duration `env:"LIFETIME" envDefault:"12h"`
	IdleTimeout  time.Duration `env:"IDLE_TIMEOUT" envDefault:"30m"`
	HandshakeTTL time.Duration `env:"HANDSHAKE_TTL" envDefault:"10m"`
}

// CSRFConfig controls the double-submit cookie.
type CSRFConfig struct {
	CookieName string `env:"COOKIE_NAME" envDefault:"signin_csrf"`
	HeaderName string `env:"HEADER_NAME" envDefault:"X-CSRF-Token"`
	Secure     bool   `env:"SECURE"`
}

// AuthConfig describes the external authorization server. When Issuer-side
// endpoints are absent the in-process development client is used.
type AuthConfig struct {
	ClientID        string   `env:"CLIENT_ID"`
	ClientSecret    string   `env:"CLIENT_SECRET"`
	AuthURL         string   `env:"AUTH_URL"`
	TokenURL        string   `env:"TOKEN_URL"`
	RevocationURL   string   `env:"REVOCATION_URL"`
	RegistrationURL string   `env:"REGISTRATION_URL"`
	RedirectURL     string   `env:"REDIRECT_URL" envDefault:"http://localhost:8080/auth/callback"`
	Scopes          []string `env:"SCOPES" envSeparator:"," envDefault:"openid,email,profile"`
	ProviderParam   string   `env:"PROVIDER_PARAM" envDefault:"provider"`
	DevAccounts     []string `env:"DEV_ACCOUNTS" envSeparator:","`
}

// VerifierConfig selects how the home page guard verifies tokens.
type VerifierConfig struct {
	FirebaseProjectID    string `env:"FIREBASE_PROJECT_ID"`
	FirebaseCheckRevoked bool   `env:"FIREBASE_CHECK_REVOKED"`
	JWTSecret            string `env:"JWT_SECRET"`
	JWTIssuer            string `env:"JWT_ISSUER"`
	JWTAudience          string `env:"JWT_AUDIENCE"`
}

// CardConfig toggles sign-in card behaviour.
type CardConfig struct {
	ClearErrorOnRetry bool `env:"CLEAR_ERROR_ON_RETRY"`
}

// UsesDevAuth reports whether no external authorization server is configured.
func (c AuthConfig) UsesDevAuth() bool {
	return strings.TrimSpace(c.AuthURL) == "" && strings.TrimSpace(c.TokenURL) == ""
}

// IsProduction reports whether the deployment environment is production.
func (c ServerConfig) IsProduction() bool {
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case "prod", "production":
		return true
	default:
		return false
	}
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	return LoadFrom(nil)
}

// LoadFrom parses the provided environment map (nil means the process
// environment) and validates the result.
func LoadFrom(environ map[string]string) (Config, error) {
	var cfg Config
	opts := env.Options{}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("config: invalid")

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	var errs []error

	if c.Server.IsProduction() && len(c.Session.HashKey) < 32 {
		errs = append(errs, fmt.Errorf("%w: SIGNIN_SESSION_HASH_KEY must be at least 32 bytes in production", ErrInvalid))
	}
	switch len(c.Session.BlockKey) {
	case 0, 16, 24, 32:
	default:
		errs = append(errs, fmt.Errorf("%w: SIGNIN_SESSION_BLOCK_KEY must be 16, 24 or 32 bytes", ErrInvalid))
	}

	if !c.Auth.UsesDevAuth() {
		if strings.TrimSpace(c.Auth.AuthURL) == "" || strings.TrimSpace(c.Auth.TokenURL) == "" {
			errs = append(errs, fmt.Errorf("%w: SIGNIN_AUTH_AUTH_URL and SIGNIN_AUTH_TOKEN_URL must be set together", ErrInvalid))
		}
		if strings.TrimSpace(c.Auth.ClientID) == "" {
			errs = append(errs, fmt.Errorf("%w: SIGNIN_AUTH_CLIENT_ID is required", ErrInvalid))
		}
	} else if c.Server.IsProduction() {
		errs = append(errs, fmt.Errorf("%w: an authorization server must be configured in production", ErrInvalid))
	}

	if c.Server.IsProduction() && c.Verifier.JWTSecret == "" && c.Verifier.FirebaseProjectID == "" {
		errs = append(errs, fmt.Errorf("%w: SIGNIN_JWT_SECRET or SIGNIN_FIREBASE_PROJECT_ID is required in production", ErrInvalid))
	}

	return errors.Join(errs...)
}
