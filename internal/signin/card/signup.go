package card

import (
	"context"
	"errors"

	"finitefield.org/hanko-signin/internal/signin/authclient"
)

const (
	// PasswordMismatchMessage is shown when the confirmation differs from the password.
	PasswordMismatchMessage = "Passwords do not match"
	// SignUpFailedMessage is shown for every failed password sign-up.
	SignUpFailedMessage = "Something went wrong"
)

// ErrPasswordMismatch is returned when the confirmation differs from the password.
var ErrPasswordMismatch = errors.New("card: passwords do not match")

// SignUp is the sign-up card.
type SignUp struct {
	base
	confirm string
}

// NewSignUp builds a sign-up card over the auth capability.
func NewSignUp(actions authclient.Actions, opts ...Option) *SignUp {
	return &SignUp{base: newBase(actions, opts)}
}

// SetConfirmPassword updates the confirmation field.
func (c *SignUp) SetConfirmPassword(v string) {
	c.confirm = v
	c.notify()
}

// SubmitPassword registers with the current email and password.
func (c *SignUp) SubmitPassword(ctx context.Context) (*authclient.Result, error) {
	if c.password != c.confirm {
		c.setError(PasswordMismatchMessage)
		return nil, ErrPasswordMismatch
	}

	c.beginAttempt()
	defer c.setPending(false)

	res, err := c.actions.SignIn(ctx, authclient.MethodPassword, &authclient.PasswordParams{
		Email:    c.email,
		Password: c.password,
		Flow:     authclient.FlowSignUp,
	})
	if err != nil {
		c.setError(SignUpFailedMessage)
		return nil, err
	}
	return res, nil
}

// SignInWithProvider starts a Google or GitHub sign-up.
func (c *SignUp) SignInWithProvider(ctx context.Context, provider authclient.Method) (*authclient.Result, error) {
	return c.signInWithProvider(ctx, provider)
}

// SwitchToSignIn asks the parent view to show the sign-in card.
func (c *SignUp) SwitchToSignIn() {
	c.switchFlow(authclient.FlowSignIn)
}
