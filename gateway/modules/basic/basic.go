// Package basic implements login with HTTP Basic credentials checked against
// the local credential store.
package basic

import (
	"context"
	"errors"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/andrebq/portcullis/gateway"
	"github.com/andrebq/portcullis/internal/logutil"
	"github.com/andrebq/portcullis/internal/metrics"
	"github.com/andrebq/portcullis/ledger"
	"github.com/andrebq/portcullis/session"
)

const (
	Name    = "BasicAuth"
	Subpath = "/basic"

	DefaultDisplayName = "External users"
	Challenge          = `Basic realm="portcullis"`
)

type (
	CredentialStore interface {
		// PasswordHash returns the encoded hash of username or
		// ledger.UserNotFound.
		PasswordHash(ctx context.Context, username string) (string, error)
	}

	PasswordVerifier interface {
		Verify(password, encoded string) (bool, error)
	}

	Options struct {
		DisplayName string
		// AttemptsPerMinute limits attempts per source address, zero
		// disables throttling.
		AttemptsPerMinute int
	}

	Module struct {
		display     string
		credentials CredentialStore
		audit       gateway.LoginRecorder
		verifier    PasswordVerifier
		throttle    *throttle
		now         func() time.Time
	}
)

func New(credentials CredentialStore, audit gateway.LoginRecorder, verifier PasswordVerifier, opts Options) *Module {
	if opts.DisplayName == "" {
		opts.DisplayName = DefaultDisplayName
	}
	return &Module{
		display:     opts.DisplayName,
		credentials: credentials,
		audit:       audit,
		verifier:    verifier,
		throttle:    newThrottle(opts.AttemptsPerMinute),
		now:         time.Now,
	}
}

func (m *Module) Name() string        { return Name }
func (m *Module) Subpath() string     { return Subpath }
func (m *Module) DisplayName() string { return m.display }

func (m *Module) RegisterRoutes(routes *gateway.Routes) {
	routes.HandleFunc("GET", "/", m.login)
}

func (m *Module) login(w http.ResponseWriter, r *http.Request) {
	identity, err := m.authenticate(r)
	if err != nil {
		gateway.WriteError(w, r, err)
		return
	}
	session.FromContext(r.Context()).Set(session.IdentityKey, identity)
	if redirect := r.URL.Query().Get("redirect"); redirect != "" {
		http.Redirect(w, r, redirect, http.StatusTemporaryRedirect)
		return
	}
	gateway.LoggedIn(w, identity)
}

func (m *Module) authenticate(r *http.Request) (string, error) {
	ctx := r.Context()
	log := logutil.GetOrDefault(ctx)

	username, password, ok := r.BasicAuth()
	if !ok {
		log.Debug().Msg("No basic credentials provided")
		return "", gateway.NotAuthenticated{Challenge: Challenge}
	}
	if !utf8.ValidString(username) {
		log.Warn().Msg("Username is not valid utf-8")
		return "", gateway.NotAuthenticated{Challenge: Challenge}
	}
	if password == "" {
		log.Warn().Str("username", username).Msg("No password provided")
		return "", gateway.NotAuthenticated{Challenge: Challenge}
	}

	source := gateway.ClientAddress(r)
	if !m.throttle.allow(source, m.now()) {
		metrics.LoginAttempts.WithLabelValues(Name, "throttled").Inc()
		return "", gateway.TooManyAttempts{}
	}

	encoded, err := m.credentials.PasswordHash(ctx, username)
	var notFound ledger.UserNotFound
	if errors.As(err, &notFound) {
		log.Warn().Str("username", username).Msg("Login attempt for unknown user")
		gateway.RecordLogin(ctx, m.audit, Name, username, false, source)
		return "", gateway.NotAuthenticated{Challenge: Challenge}
	} else if err != nil {
		metrics.LoginAttempts.WithLabelValues(Name, "error").Inc()
		return "", gateway.Internal{Cause: err}
	}

	valid, err := m.verifier.Verify(password, encoded)
	if err != nil {
		metrics.LoginAttempts.WithLabelValues(Name, "error").Inc()
		return "", gateway.Internal{Cause: err}
	}
	if !valid {
		log.Warn().Str("username", username).Msg("Invalid password")
		gateway.RecordLogin(ctx, m.audit, Name, username, false, source)
		return "", gateway.NotAuthenticated{Challenge: Challenge}
	}

	log.Info().Str("username", username).Msg("User logged in")
	gateway.RecordLogin(ctx, m.audit, Name, username, true, source)
	return username, nil
}
