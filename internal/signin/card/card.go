// Package card holds the client-side state of the sign-in and sign-up cards:
// form values, the pending flag and the error text shown above the form.
//
// A card belongs to one view instance and one request goroutine at a time; it
// is not safe for concurrent use.
package card

import (
	"context"
	"fmt"

	"finitefield.org/hanko-signin/internal/signin/authclient"
)

// State is a snapshot of the card as the view renders it.
type State struct {
	Email   string
	Pending bool
	Error   string
}

// ControlsDisabled reports whether inputs and buttons must render disabled.
func (s State) ControlsDisabled() bool {
	return s.Pending
}

// FlowSetter hands the flow selection back to the parent view.
type FlowSetter func(authclient.Flow)

// Option configures a card.
type Option func(*base)

// WithFlowSetter installs the parent's flow callback.
func WithFlowSetter(fn FlowSetter) Option {
	return func(b *base) { b.setFlow = fn }
}

// WithObserver is called with a fresh snapshot on every state change.
func WithObserver(fn func(State)) Option {
	return func(b *base) { b.observe = fn }
}

// WithRestoredState seeds the card from a previously rendered instance.
func WithRestoredState(email, errText string) Option {
	return func(b *base) {
		b.email = email
		b.err = errText
	}
}

// WithClearErrorOnSubmit makes every new attempt start from an empty error.
func WithClearErrorOnSubmit(clear bool) Option {
	return func(b *base) { b.clearErrorOnSubmit = clear }
}

type base struct {
	actions authclient.Actions
	setFlow FlowSetter
	observe func(State)

	email    string
	password string
	pending  bool
	err      string

	clearErrorOnSubmit bool
}

func newBase(actions authclient.Actions, opts []Option) base {
	if actions == nil {
		panic("card: auth actions are required")
	}
	b := base{actions: actions}
	for _, opt := range opts {
		if opt != nil {
			opt(&b)
		}
	}
	return b
}

// SetEmail updates the email field.
func (b *base) SetEmail(v string) {
	b.email = v
	b.notify()
}

// SetPassword updates the password field.
func (b *base) SetPassword(v string) {
	b.password = v
	b.notify()
}

// State returns the current snapshot.
func (b *base) State() State {
	return State{Email: b.email, Pending: b.pending, Error: b.err}
}

func (b *base) setPending(v bool) {
	b.pending = v
	b.notify()
}

func (b *base) setError(v string) {
	b.err = v
	b.notify()
}

func (b *base) notify() {
	if b.observe != nil {
		b.observe(b.State())
	}
}

func (b *base) beginAttempt() {
	b.setPending(true)
	if b.clearErrorOnSubmit && b.err != "" {
		b.setError("")
	}
}

// signInWithProvider never touches the error text, whatever the outcome.
func (b *base) signInWithProvider(ctx context.Context, provider authclient.Method) (*authclient.Result, error) {
	if !provider.IsProvider() {
		return nil, fmt.Errorf("%w: %q", authclient.ErrUnsupportedMethod, provider)
	}

	b.setPending(true)
	defer b.setPending(false)

	return b.actions.SignIn(ctx, provider, nil)
}

func (b *base) switchFlow(flow authclient.Flow) {
	if b.setFlow != nil {
		b.setFlow(flow)
	}
}
