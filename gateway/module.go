package gateway

import (
	"context"
	"net/http"

	"github.com/andrebq/portcullis/internal/logutil"
	"github.com/andrebq/portcullis/internal/metrics"
	"github.com/julienschmidt/httprouter"
)

type (
	// LoginModule is one authentication method. It owns every route under
	// /login<Subpath>/ and never assumes anything about sibling modules.
	LoginModule interface {
		// Name is a unique human readable key.
		Name() string
		// Subpath must start with '/' and must not end with '/'.
		Subpath() string
		DisplayName() string
		RegisterRoutes(routes *Routes)
	}

	// Routes registers handlers relative to the root of one module.
	Routes struct {
		router *httprouter.Router
		prefix string
	}

	// LoginRecorder appends login attempts to the audit trail.
	LoginRecorder interface {
		RecordLogin(ctx context.Context, username string, success bool, source string) error
	}

	// AuditStore is the full audit trail consumed by the gateway.
	AuditStore interface {
		LoginRecorder
		RecordAccess(ctx context.Context, username string) error
	}
)

// Handle registers h for method at path, path is relative to the module root
// and must start with '/'.
func (r *Routes) Handle(method, path string, h http.Handler) {
	r.router.Handler(method, r.prefix+path, h)
}

func (r *Routes) HandleFunc(method, path string, h http.HandlerFunc) {
	r.Handle(method, path, h)
}

// RecordLogin writes a login attempt on behalf of module. Audit is best
// effort: failures are logged and never change the authentication outcome.
func RecordLogin(ctx context.Context, audit LoginRecorder, module string, username string, success bool, source string) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	metrics.LoginAttempts.WithLabelValues(module, outcome).Inc()
	if err := audit.RecordLogin(ctx, username, success, source); err != nil {
		log := logutil.GetOrDefault(ctx)
		log.Error().Err(err).Str("module", module).Str("username", username).Bool("success", success).
			Msg("Unable to store login attempt")
	}
}
