package gateway

import (
	"net/http"
	"strings"

	"github.com/andrebq/portcullis/internal/logutil"
	"github.com/andrebq/portcullis/internal/metrics"
	"github.com/andrebq/portcullis/session"
)

type (
	Options struct {
		Registry *Registry
		Audit    AuditStore
		Sessions *session.Middleware

		// StoreAccessEntries records every successful /auth/ call.
		StoreAccessEntries bool
		// Metrics exposes GET /metrics.
		Metrics bool
		// BasePath serves the whole surface under the given prefix.
		BasePath string
	}
)

// NewRouter composes the public surface of the gateway:
//
//	GET /login/                 landing page
//	*   /login/<subpath>/...    login modules
//	GET /auth/                  identity confirmation
//	GET /metrics                prometheus metrics (optional)
func NewRouter(opts Options) (http.Handler, error) {
	surface, err := opts.Registry.Build()
	if err != nil {
		return nil, err
	}
	router := surface.Router
	router.HandlerFunc("GET", LoginPrefix+"/", landing(surface.Listing))
	router.Handler("GET", "/auth/", NewRealm(opts.Audit, opts.StoreAccessEntries).Protect(confirmIdentity))
	if opts.Metrics {
		router.Handler("GET", "/metrics", metrics.Handler())
	}

	var handler http.Handler = opts.Sessions.Wrap(router)
	if base := strings.TrimSuffix(opts.BasePath, "/"); base != "" {
		handler = http.StripPrefix(base, handler)
	}
	return logutil.Middleware(handler), nil
}
