package session

import (
	"strings"
	"time"
)

// ID returns the stable session identifier.
func (s *Session) ID() string {
	return s.data.ID
}

// CreatedAt returns the session creation timestamp.
func (s *Session) CreatedAt() time.Time {
	return s.data.CreatedAt
}

// ExpiresAt returns the absolute expiry timestamp for the session.
func (s *Session) ExpiresAt() time.Time {
	return s.data.ExpiresAt
}

// User returns the persisted user profile, if present.
func (s *Session) User() *User {
	return s.data.User
}

// SetUser updates the session user profile.
func (s *Session) SetUser(user *User) {
	if user == nil {
		s.data.User = nil
	} else {
		copied := *user
		s.data.User = &copied
	}
}

// RefreshToken returns the stored refresh token (if any).
func (s *Session) RefreshToken() string {
	return s.data.RefreshToken
}

// SetRefreshToken updates the stored refresh token.
func (s *Session) SetRefreshToken(token string) {
	s.data.RefreshToken = token
}

// Flow returns the flow selected on the auth screen, empty when never chosen.
func (s *Session) Flow() string {
	return s.data.Flow
}

// SetFlow records the flow selected on the auth screen.
func (s *Session) SetFlow(flow string) {
	s.data.Flow = flow
}

// MountCard replaces any previous card with a fresh instance.
func (s *Session) MountCard(id string) {
	s.data.Card = &CardState{ID: id}
}

// Card returns the mounted card when its id matches, so stale forms start fresh.
func (s *Session) Card(id string) (CardState, bool) {
	if s.data.Card == nil || strings.TrimSpace(id) == "" || s.data.Card.ID != id {
		return CardState{}, false
	}
	return *s.data.Card, true
}

// SaveCard stores the state of the mounted card.
func (s *Session) SaveCard(state CardState) {
	copied := state
	s.data.Card = &copied
}

// BeginHandshake records a provider sign-in awaiting its callback.
func (s *Session) BeginHandshake(h Handshake) {
	if h.StartedAt.IsZero() {
		h.StartedAt = s.clock().UTC()
	}
	s.data.Handshake = &h
}

// TakeHandshake returns and clears the pending handshake. Handshakes older
// than the configured TTL are discarded.
func (s *Session) TakeHandshake() (Handshake, bool) {
	h := s.data.Handshake
	if h == nil {
		return Handshake{}, false
	}
	s.data.Handshake = nil

	ttl := defaultHandshakeTTL
	if s.cfg != nil && s.cfg.HandshakeTTL > 0 {
		ttl = s.cfg.HandshakeTTL
	}
	if s.clock().UTC().Sub(h.StartedAt) > ttl {
		return Handshake{}, false
	}
	return *h, true
}

// Destroy marks the session for deletion at the end of the request.
func (s *Session) Destroy() {
	s.destroyed = true
}

// Touch updates the last active timestamp.
func (s *Session) Touch(now time.Time) {
	now = now.UTC()
	if now.After(s.data.LastActive) {
		s.data.LastActive = now
	}
}

func (s *Session) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}
