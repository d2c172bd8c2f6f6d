// Package server assembles the gateway from its settings.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/andrebq/portcullis/config"
	"github.com/andrebq/portcullis/gateway"
	"github.com/andrebq/portcullis/gateway/modules/basic"
	"github.com/andrebq/portcullis/gateway/modules/delegated"
	"github.com/andrebq/portcullis/internal/passwd"
	"github.com/andrebq/portcullis/ledger"
	"github.com/andrebq/portcullis/session"
	"github.com/rs/zerolog/log"
)

type (
	// Server is a gateway ready to be served.
	Server struct {
		Handler http.Handler

		ledger   *ledger.Control
		verifier *passwd.Verifier
	}
)

// New opens the ledger named by cfg and builds the gateway handler with
// every enabled login module.
func New(ctx context.Context, cfg *config.Settings) (*Server, error) {
	ctl, err := ledger.Load(ctx, cfg.Database.File, true)
	if err != nil {
		return nil, err
	}
	s, err := NewWithLedger(ctx, cfg, ctl)
	if err != nil {
		ctl.Close()
		return nil, err
	}
	return s, nil
}

// NewWithLedger is like New but uses an already opened ledger, which is then
// owned by the server.
func NewWithLedger(ctx context.Context, cfg *config.Settings, ctl *ledger.Control) (*Server, error) {
	sameSite, err := cfg.Session.SameSiteMode()
	if err != nil {
		return nil, err
	}
	s := &Server{ledger: ctl}
	registry := gateway.NewRegistry()

	if cfg.Modules.Basic.Enabled {
		s.verifier, err = passwd.NewVerifier(ctx, cfg.Modules.Basic.CacheTTL, cfg.Key())
		if err != nil {
			return nil, fmt.Errorf("unable to create password verifier, cause %w", err)
		}
		err = registry.Register(basic.New(ctl, ctl, s.verifier, basic.Options{
			DisplayName:       cfg.Modules.Basic.DisplayName,
			AttemptsPerMinute: cfg.Modules.Basic.AttemptsPerMinute,
		}))
		if err != nil {
			s.verifier.Close()
			return nil, err
		}
	}
	if cfg.Modules.Delegated.Active() {
		err = registry.Register(delegated.New(cfg.Modules.Delegated.Upstream(), ctl, delegated.Options{
			DisplayName: cfg.Modules.Delegated.DisplayName,
			Timeout:     cfg.Modules.Delegated.Timeout,
		}))
		if err != nil {
			s.closeVerifier()
			return nil, err
		}
	}
	for _, m := range registry.Modules() {
		log.Info().Str("module", m.Name()).Str("path", gateway.LoginPrefix+m.Subpath()+"/").Msg("Login module enabled")
	}

	codec := session.NewCodec(cfg.Key(), cfg.Session.TTL)
	s.Handler, err = gateway.NewRouter(gateway.Options{
		Registry: registry,
		Audit:    ctl,
		Sessions: session.NewMiddleware(codec, session.CookieConfig{
			Name:     cfg.Session.CookieName,
			Path:     cfg.HTTP.Path,
			Secure:   cfg.Session.Secure,
			SameSite: sameSite,
		}),
		StoreAccessEntries: cfg.StoreAccessEntries,
		Metrics:            cfg.Metrics.Enabled,
		BasePath:           cfg.HTTP.Path,
	})
	if err != nil {
		s.closeVerifier()
		return nil, err
	}
	return s, nil
}

func (s *Server) closeVerifier() {
	if s.verifier != nil {
		s.verifier.Close()
	}
}

// Close releases the ledger and the credential cache.
func (s *Server) Close() error {
	s.closeVerifier()
	return s.ledger.Close()
}
