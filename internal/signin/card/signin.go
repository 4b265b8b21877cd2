package card

import (
	"context"

	"finitefield.org/hanko-signin/internal/signin/authclient"
)

// InvalidCredentialsMessage is shown for every failed password sign-in.
const InvalidCredentialsMessage = "Invalid email or password"

// SignIn is the sign-in card.
type SignIn struct {
	base
}

// NewSignIn builds a sign-in card over the auth capability.
func NewSignIn(actions authclient.Actions, opts ...Option) *SignIn {
	return &SignIn{base: newBase(actions, opts)}
}

// SubmitPassword signs in with the current email and password. Any failure
// sets the fixed error text; the pending flag is cleared only after the call
// settles.
func (c *SignIn) SubmitPassword(ctx context.Context) (*authclient.Result, error) {
	c.beginAttempt()
	defer c.setPending(false)

	res, err := c.actions.SignIn(ctx, authclient.MethodPassword, &authclient.PasswordParams{
		Email:    c.email,
		Password: c.password,
		Flow:     authclient.FlowSignIn,
	})
	if err != nil {
		c.setError(InvalidCredentialsMessage)
		return nil, err
	}
	return res, nil
}

// SignInWithProvider starts a Google or GitHub sign-in.
func (c *SignIn) SignInWithProvider(ctx context.Context, provider authclient.Method) (*authclient.Result, error) {
	return c.signInWithProvider(ctx, provider)
}

// SwitchToSignUp asks the parent view to show the sign-up card.
func (c *SignIn) SwitchToSignUp() {
	c.switchFlow(authclient.FlowSignUp)
}
