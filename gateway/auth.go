package gateway

import (
	"fmt"
	"net/http"

	"github.com/andrebq/portcullis/internal/logutil"
	"github.com/andrebq/portcullis/internal/metrics"
	"github.com/andrebq/portcullis/session"
)

type (
	// IdentityHandler serves requests that already carry an identity.
	IdentityHandler func(w http.ResponseWriter, r *http.Request, identity string)

	// Realm guards handlers that require an authenticated session.
	Realm struct {
		audit       AuditStore
		storeAccess bool
	}
)

func NewRealm(audit AuditStore, storeAccess bool) *Realm {
	return &Realm{audit: audit, storeAccess: storeAccess}
}

// Protect calls sensitive only when the session carries an identity.
// Accesses are recorded when the realm was configured to do so.
func (s *Realm) Protect(sensitive IdentityHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := s.checkSession(r)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		metrics.Accesses.Inc()
		if s.storeAccess {
			if err := s.audit.RecordAccess(r.Context(), identity); err != nil {
				log := logutil.GetOrDefault(r.Context())
				log.Error().Err(err).Str("username", identity).Msg("Unable to store access entry")
			}
		}
		sensitive(w, r, identity)
	})
}

func (s *Realm) checkSession(r *http.Request) (string, error) {
	sess := session.FromContext(r.Context())
	if err := sess.Rejected(); err != nil {
		return "", MalformedSession{Cause: err}
	}
	identity, ok := sess.Identity()
	if !ok {
		return "", NotAuthenticated{}
	}
	return identity, nil
}

// LoggedIn is the confirmation body shared by every endpoint that reports
// the authenticated identity.
func LoggedIn(w http.ResponseWriter, identity string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "Logged in as '%v'", identity)
}

func confirmIdentity(w http.ResponseWriter, _ *http.Request, identity string) {
	LoggedIn(w, identity)
}
