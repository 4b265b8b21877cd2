package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTConfig configures verification of HS256 tokens issued by the
// authorization server.
type JWTConfig struct {
	Secret   []byte
	Issuer   string
	Audience string
	Now      func() time.Time
}

// JWTAuthenticator validates signed JWTs and maps their claims onto a User.
type JWTAuthenticator struct {
	cfg JWTConfig
}

type accessClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

// NewJWTAuthenticator constructs an Authenticator for HS256 tokens.
func NewJWTAuthenticator(cfg JWTConfig) *JWTAuthenticator {
	if len(cfg.Secret) == 0 {
		panic("jwt secret is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &JWTAuthenticator{cfg: cfg}
}

// Authenticate parses and verifies token.
func (a *JWTAuthenticator) Authenticate(_ *http.Request, token string) (*User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, NewAuthError(ReasonMissingToken, ErrUnauthorized)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.cfg.Now),
		jwt.WithExpirationRequired(),
	}
	if a.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.cfg.Issuer))
	}
	if a.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(a.cfg.Audience))
	}

	var claims accessClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return a.cfg.Secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, NewAuthError(ReasonTokenExpired, err)
		}
		return nil, NewAuthError(ReasonTokenInvalid, err)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, NewAuthError(ReasonTokenInvalid, errors.New("jwt subject is required"))
	}

	return &User{
		UID:   claims.Subject,
		Email: strings.TrimSpace(claims.Email),
		Token: token,
	}, nil
}
