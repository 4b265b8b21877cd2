package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

const defaultProviderParam = "provider"

// OAuth2Config describes the external authorization server.
type OAuth2Config struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	RedirectURL  string
	Scopes       []string

	// RevocationURL is the RFC 7009 endpoint used on sign-out. Optional.
	RevocationURL string
	// RegistrationURL accepts {email, password} JSON for the signUp flow. Optional.
	RegistrationURL string
	// ProviderParam is the authorization request parameter naming the upstream provider.
	ProviderParam string

	HTTPClient *http.Client
}

// OAuth2Client implements Actions against an OAuth2 authorization server that
// federates Google and GitHub.
type OAuth2Client struct {
	oauth           *oauth2.Config
	revocationURL   string
	registrationURL string
	providerParam   string
	httpClient      *http.Client
	newState        func() string
}

// NewOAuth2Client validates the configuration and builds the client.
func NewOAuth2Client(cfg OAuth2Config) (*OAuth2Client, error) {
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, errors.New("authclient: client id is required")
	}
	if strings.TrimSpace(cfg.AuthURL) == "" || strings.TrimSpace(cfg.TokenURL) == "" {
		return nil, errors.New("authclient: auth and token urls are required")
	}
	if strings.TrimSpace(cfg.RedirectURL) == "" {
		return nil, errors.New("authclient: redirect url is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	param := strings.TrimSpace(cfg.ProviderParam)
	if param == "" {
		param = defaultProviderParam
	}

	return &OAuth2Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
			RedirectURL: cfg.RedirectURL,
			Scopes:      append([]string(nil), cfg.Scopes...),
		},
		revocationURL:   strings.TrimSpace(cfg.RevocationURL),
		registrationURL: strings.TrimSpace(cfg.RegistrationURL),
		providerParam:   param,
		httpClient:      httpClient,
		newState:        uuid.NewString,
	}, nil
}

// SignIn starts a sign-in. Password sign-ins settle immediately; provider
// sign-ins return the authorization URL the browser must visit.
func (c *OAuth2Client) SignIn(ctx context.Context, method Method, params *PasswordParams) (*Result, error) {
	switch {
	case method == MethodPassword:
		return c.passwordSignIn(ctx, params)
	case method.IsProvider():
		return c.providerSignIn(method), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMethod, method)
	}
}

// CompleteSignIn exchanges the authorization code returned by the provider.
func (c *OAuth2Client) CompleteSignIn(ctx context.Context, method Method, cb Callback) (*Result, error) {
	if !method.IsProvider() {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMethod, method)
	}
	if cb.Error != "" || strings.TrimSpace(cb.Code) == "" {
		return nil, fmt.Errorf("%w: %s", ErrProviderDenied, cb.Error)
	}

	var opts []oauth2.AuthCodeOption
	if cb.Verifier != "" {
		opts = append(opts, oauth2.VerifierOption(cb.Verifier))
	}
	tok, err := c.oauth.Exchange(c.withHTTPClient(ctx), cb.Code, opts...)
	if err != nil {
		return nil, fmt.Errorf("authclient: exchange code: %w", err)
	}
	return resultFromToken(tok), nil
}

// SignOut revokes the token when the server advertises a revocation endpoint.
func (c *OAuth2Client) SignOut(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if c.revocationURL == "" || token == "" {
		return nil
	}

	form := url.Values{}
	form.Set("token", token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.revocationURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("authclient: build revocation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(url.QueryEscape(c.oauth.ClientID), url.QueryEscape(c.oauth.ClientSecret))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("authclient: revoke token: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("authclient: revoke token: unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (c *OAuth2Client) passwordSignIn(ctx context.Context, params *PasswordParams) (*Result, error) {
	if params == nil {
		return nil, fmt.Errorf("%w: missing password params", ErrInvalidCredentials)
	}

	switch params.Flow {
	case FlowSignIn, "":
	case FlowSignUp:
		if err := c.register(ctx, params); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFlow, params.Flow)
	}

	tok, err := c.oauth.PasswordCredentialsToken(c.withHTTPClient(ctx), params.Email, params.Password)
	if err != nil {
		return nil, classifyTokenError(err)
	}
	return resultFromToken(tok), nil
}

func (c *OAuth2Client) providerSignIn(method Method) *Result {
	verifier := oauth2.GenerateVerifier()
	state := c.newState()
	redirect := c.oauth.AuthCodeURL(state,
		oauth2.S256ChallengeOption(verifier),
		oauth2.SetAuthURLParam(c.providerParam, string(method)),
	)
	return &Result{
		Redirect: redirect,
		State:    state,
		Verifier: verifier,
	}
}

type registrationRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (c *OAuth2Client) register(ctx context.Context, params *PasswordParams) error {
	if c.registrationURL == "" {
		return fmt.Errorf("%w: %q", ErrUnsupportedFlow, FlowSignUp)
	}

	body, err := json.Marshal(registrationRequest{Email: params.Email, Password: params.Password})
	if err != nil {
		return fmt.Errorf("authclient: encode registration: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.registrationURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("authclient: build registration request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(url.QueryEscape(c.oauth.ClientID), url.QueryEscape(c.oauth.ClientSecret))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("authclient: register: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("authclient: register: unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (c *OAuth2Client) withHTTPClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

func classifyTokenError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		if retrieveErr.ErrorCode == "invalid_grant" {
			return fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
		}
		if resp := retrieveErr.Response; resp != nil &&
			(resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized) {
			return fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
		}
	}
	return fmt.Errorf("authclient: token request: %w", err)
}

func resultFromToken(tok *oauth2.Token) *Result {
	if tok == nil {
		return &Result{}
	}
	token := tok.AccessToken
	if idToken, ok := tok.Extra("id_token").(string); ok && idToken != "" {
		token = idToken
	}
	return &Result{
		Token:        token,
		RefreshToken: tok.RefreshToken,
	}
}
