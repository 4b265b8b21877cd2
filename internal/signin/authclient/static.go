package authclient

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"
)

const staticTokenPrefix = "dev:"

// Static is an in-process stand-in for the auth service, intended for local
// development and tests. Accounts live in memory; provider sign-ins bounce
// straight back to the callback with a synthetic code.
type Static struct {
	mu          sync.RWMutex
	accounts    map[string]string
	callbackURL string
	newState    func() string
}

// NewStatic builds a Static client. accounts maps email to password;
// callbackURL is where provider sign-ins are redirected.
func NewStatic(accounts map[string]string, callbackURL string) *Static {
	copied := make(map[string]string, len(accounts))
	for email, password := range accounts {
		copied[normalizeEmail(email)] = password
	}
	if strings.TrimSpace(callbackURL) == "" {
		callbackURL = "/auth/callback"
	}
	return &Static{
		accounts:    copied,
		callbackURL: callbackURL,
		newState:    uuid.NewString,
	}
}

// ParseAccounts reads "email:password" pairs as configured in the environment.
func ParseAccounts(pairs []string) map[string]string {
	accounts := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		email, password, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok || strings.TrimSpace(email) == "" || password == "" {
			continue
		}
		accounts[normalizeEmail(email)] = password
	}
	return accounts
}

// SignIn implements Actions.
func (s *Static) SignIn(ctx context.Context, method Method, params *PasswordParams) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch {
	case method == MethodPassword:
		return s.passwordSignIn(params)
	case method.IsProvider():
		state := s.newState()
		q := url.Values{}
		q.Set("code", string(method)+"-user")
		q.Set("state", state)
		return &Result{
			Redirect: s.callbackURL + "?" + q.Encode(),
			State:    state,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMethod, method)
	}
}

// CompleteSignIn implements ProviderCompleter.
func (s *Static) CompleteSignIn(ctx context.Context, method Method, cb Callback) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !method.IsProvider() {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMethod, method)
	}
	if cb.Error != "" || strings.TrimSpace(cb.Code) == "" {
		return nil, fmt.Errorf("%w: %s", ErrProviderDenied, cb.Error)
	}
	return &Result{Token: staticTokenPrefix + cb.Code}, nil
}

// SignOut implements Actions. Static tokens are not tracked, so there is nothing to revoke.
func (s *Static) SignOut(ctx context.Context, _ string) error {
	return ctx.Err()
}

func (s *Static) passwordSignIn(params *PasswordParams) (*Result, error) {
	if params == nil {
		return nil, fmt.Errorf("%w: missing password params", ErrInvalidCredentials)
	}
	email := normalizeEmail(params.Email)

	switch params.Flow {
	case FlowSignIn, "":
		s.mu.RLock()
		stored, ok := s.accounts[email]
		s.mu.RUnlock()
		if !ok || email == "" || stored != params.Password {
			return nil, ErrInvalidCredentials
		}
	case FlowSignUp:
		if email == "" || params.Password == "" {
			return nil, fmt.Errorf("%w: email and password are required", ErrInvalidCredentials)
		}
		s.mu.Lock()
		if _, exists := s.accounts[email]; exists {
			s.mu.Unlock()
			return nil, fmt.Errorf("authclient: account %s already exists", email)
		}
		s.accounts[email] = params.Password
		s.mu.Unlock()
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFlow, params.Flow)
	}

	return &Result{Token: staticTokenPrefix + email}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
