package session

import "context"

const (
	// IdentityKey holds the authenticated identity of the session.
	IdentityKey = "username"
)

type (
	// Session is the per-request view of the client's session. It is owned by
	// the request handling it and must not be shared across requests.
	Session struct {
		state    State
		loaded   bool
		modified bool
		rejected error
	}

	key byte
)

var (
	sessionKey = key(1)
)

// New wraps an already decoded state. A nil state means the client presented
// no (valid) session.
func New(state State) *Session {
	s := &Session{state: State{}}
	if state != nil {
		s.state = state.Clone()
		s.loaded = true
	}
	return s
}

// Rejected wraps the error that made the client's token unusable.
func Rejected(err error) *Session {
	return &Session{state: State{}, rejected: err}
}

func NewContext(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// FromContext returns the session attached to ctx. Without one, an empty
// detached session is returned so handlers never deal with nil.
func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(sessionKey).(*Session)
	if s == nil {
		return New(nil)
	}
	return s
}

func (s *Session) Get(key string) (string, bool) {
	v, ok := s.state[key]
	return v, ok
}

func (s *Session) Set(key, value string) {
	s.state[key] = value
	s.modified = true
}

func (s *Session) Remove(key string) {
	if _, ok := s.state[key]; !ok {
		return
	}
	delete(s.state, key)
	s.modified = true
}

// Identity returns the authenticated identity, if any.
func (s *Session) Identity() (string, bool) {
	v, ok := s.state[IdentityKey]
	return v, ok && v != ""
}

// Rejected returns the decoding failure of the token presented by the
// client, nil when the client sent a valid token or none at all.
func (s *Session) Rejected() error {
	return s.rejected
}

// State returns a copy of the current session content.
func (s *Session) State() State {
	return s.state.Clone()
}

// touched sessions are re-issued with a fresh expiration
func (s *Session) touched() bool {
	return s.loaded || s.modified
}
