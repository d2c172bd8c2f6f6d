// Package session implements the gateway's client-held session.
//
// A session is a flat map of string keys to string values. It travels as an
// HS256-signed token (a JWT whose only private claim is the map) stamped with
// an absolute expiration. Nothing is kept server side: every request rebuilds
// the session from the token the client presents and every change produces a
// new token.
package session

import (
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/golang-jwt/jwt/v5"
)

type (
	// State is the decoded content of a session token.
	State map[string]string

	// Codec turns a State into an opaque signed token and back.
	Codec struct {
		key []byte
		ttl time.Duration
		now func() time.Time
	}

	// MalformedToken is returned for tokens that are not valid tokens signed
	// by this gateway (corruption, tampering or a rotated key).
	MalformedToken struct {
		cause error
	}

	// InvalidState is returned by Encode for keys or values that are not
	// valid UTF-8, they would not survive the token encoding unchanged.
	InvalidState struct {
		Key string
	}

	claims struct {
		State State `json:"st"`
		jwt.RegisteredClaims
	}
)

var (
	signingMethod = jwt.SigningMethodHS256
)

func (m MalformedToken) Error() string {
	return fmt.Sprintf("malformed session token, cause %v", m.cause)
}

func (m MalformedToken) Unwrap() error {
	return m.cause
}

func (i InvalidState) Error() string {
	return fmt.Sprintf("session entry %q is not valid utf-8", i.Key)
}

func (MalformedToken) Is(target error) bool {
	_, ok := target.(MalformedToken)
	return ok
}

// NewCodec returns a codec signing with key. Every token it encodes
// expires ttl after the moment it was encoded.
func NewCodec(key []byte, ttl time.Duration) *Codec {
	return &Codec{
		key: append([]byte(nil), key...),
		ttl: ttl,
		now: time.Now,
	}
}

// WithClock returns a copy of c that reads the current time from now.
func (c *Codec) WithClock(now func() time.Time) *Codec {
	cp := *c
	cp.now = now
	return &cp
}

// TTL is the lifetime given to every encoded token.
func (c *Codec) TTL() time.Duration {
	return c.ttl
}

// Encode signs state into a new token that expires at now + TTL.
func (c *Codec) Encode(state State) (string, error) {
	now := c.now()
	if state == nil {
		state = State{}
	}
	for k, v := range state {
		if !utf8.ValidString(k) || !utf8.ValidString(v) {
			return "", InvalidState{Key: k}
		}
	}
	token := jwt.NewWithClaims(signingMethod, claims{
		State: state,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	})
	signed, err := token.SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("unable to sign session token, cause %w", err)
	}
	return signed, nil
}

// Decode verifies token and returns its state.
//
// An authentic token past its expiration decodes to (nil, nil): no session.
// Anything else that fails verification returns MalformedToken.
func (c *Codec) Decode(token string) (State, error) {
	var cl claims
	_, err := jwt.ParseWithClaims(token, &cl, c.keyFunc,
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding())
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired) && !errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return nil, nil
	default:
		return nil, MalformedToken{cause: err}
	}
	if cl.State == nil {
		cl.State = State{}
	}
	return cl.State, nil
}

func (c *Codec) keyFunc(*jwt.Token) (interface{}, error) {
	return c.key, nil
}

// Clone returns a copy of s that can be changed independently.
func (s State) Clone() State {
	out := make(State, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}
