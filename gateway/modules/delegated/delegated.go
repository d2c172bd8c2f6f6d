// Package delegated relays a two step login handshake to an external
// identity provider. The provider authenticates the user; the gateway only
// carries the provider's correlation cookie inside its own session between
// the start and consume steps.
package delegated

import (
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/andrebq/portcullis/gateway"
	"github.com/andrebq/portcullis/internal/logutil"
	"github.com/andrebq/portcullis/internal/metrics"
	"github.com/andrebq/portcullis/session"
)

const (
	Name    = "SAMLAuth"
	Subpath = "/saml"

	DefaultDisplayName = "Institutional login"
	DefaultTimeout     = 10 * time.Second

	// RelayCookieKey holds the upstream correlation cookie while a login is
	// in flight.
	RelayCookieKey = "relay-cookie"
	// Identity is stored in the session after a delegated login. The real
	// upstream identity is not extracted.
	Identity = "[DELEGATED-USER]"

	maxDrain = 64 << 10
)

type (
	Options struct {
		DisplayName string
		Timeout     time.Duration
		// Transport used for upstream calls, nil uses http.DefaultTransport.
		Transport http.RoundTripper
	}

	Module struct {
		display  string
		upstream *url.URL
		client   *http.Client
		audit    gateway.LoginRecorder
	}
)

func New(upstream *url.URL, audit gateway.LoginRecorder, opts Options) *Module {
	if opts.DisplayName == "" {
		opts.DisplayName = DefaultDisplayName
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Module{
		display:  opts.DisplayName,
		upstream: upstream,
		audit:    audit,
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: opts.Transport,
			// upstream redirects are relayed to the browser, never followed
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (m *Module) Name() string        { return Name }
func (m *Module) Subpath() string     { return Subpath }
func (m *Module) DisplayName() string { return m.display }

func (m *Module) RegisterRoutes(routes *gateway.Routes) {
	routes.HandleFunc("GET", "/", m.start)
	routes.HandleFunc("POST", "/consume/", m.consume)
}

func (m *Module) endpoint(step string) *url.URL {
	return m.upstream.JoinPath(step)
}

// start asks the upstream to begin a login and sends the browser to the
// location it returned, keeping the upstream cookie in the session.
func (m *Module) start(w http.ResponseWriter, r *http.Request) {
	target := m.endpoint("start")
	if redirect := r.URL.Query().Get("redirect"); redirect != "" {
		q := target.Query()
		q.Set("redirect", redirect)
		target.RawQuery = q.Encode()
	}
	req, err := http.NewRequestWithContext(r.Context(), "GET", target.String(), nil)
	if err != nil {
		gateway.WriteError(w, r, gateway.Internal{Cause: err})
		return
	}
	res, err := m.do(req, "start")
	if err != nil {
		gateway.WriteError(w, r, err)
		return
	}
	location := res.Header.Get("Location")
	if location == "" {
		gateway.WriteError(w, r, gateway.UnknownUpstream{Reason: "start redirect without location"})
		return
	}
	cookie, err := correlationCookie(res)
	if err != nil {
		gateway.WriteError(w, r, gateway.UnknownUpstream{Reason: "start did not issue a usable cookie", Cause: err})
		return
	}
	// a newer start replaces any flow already in flight
	session.FromContext(r.Context()).Set(RelayCookieKey, cookie)
	w.Header().Set("Location", location)
	w.WriteHeader(http.StatusTemporaryRedirect)
}

// consume forwards the provider's assertion together with the stored
// cookie. A redirect from the upstream completes the login.
func (m *Module) consume(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logutil.GetOrDefault(ctx)
	sess := session.FromContext(ctx)

	relay, ok := sess.Get(RelayCookieKey)
	if !ok || relay == "" {
		log.Warn().Msg("Consume without a delegated login in flight")
		gateway.WriteError(w, r, gateway.NotAuthenticated{})
		return
	}
	// the stored cookie is single use, failures require a new start
	sess.Remove(RelayCookieKey)

	if err := r.ParseForm(); err != nil {
		gateway.WriteError(w, r, gateway.BadRequest{Reason: "unable to parse form"})
		return
	}
	assertion := r.PostForm.Get("SAMLResponse")
	if assertion == "" {
		gateway.WriteError(w, r, gateway.BadRequest{Reason: "missing SAMLResponse"})
		return
	}
	form := url.Values{
		"SAMLResponse": {assertion},
		"RelayState":   {r.PostForm.Get("RelayState")},
	}
	req, err := http.NewRequestWithContext(ctx, "POST", m.endpoint("consume").String(), strings.NewReader(form.Encode()))
	if err != nil {
		gateway.WriteError(w, r, gateway.Internal{Cause: err})
		return
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Cookie", relay)

	res, err := m.do(req, "consume")
	if err != nil {
		gateway.WriteError(w, r, err)
		return
	}
	target, err := localTarget(res.Header.Get("Location"))
	if err != nil {
		gateway.WriteError(w, r, err)
		return
	}
	if cookie, err := correlationCookie(res); err == nil {
		sess.Set(RelayCookieKey, cookie)
	} else {
		log.Warn().Err(err).Msg("Consume did not refresh the upstream cookie")
	}
	sess.Set(session.IdentityKey, Identity)
	log.Info().Str("username", Identity).Msg("Delegated login completed")
	gateway.RecordLogin(ctx, m.audit, Name, Identity, true, gateway.ClientAddress(r))

	w.Header().Set("Location", target)
	w.WriteHeader(http.StatusSeeOther)
}

// do sends req upstream and accepts only redirect responses. The body is
// drained and closed before returning.
func (m *Module) do(req *http.Request, step string) (*http.Response, error) {
	log := logutil.GetOrDefault(req.Context())
	start := time.Now()
	res, err := m.client.Do(req)
	metrics.UpstreamLatency.WithLabelValues(step).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues(step, "error").Inc()
		return nil, gateway.UnknownUpstream{Reason: step + " request failed", Cause: err}
	}
	io.Copy(io.Discard, io.LimitReader(res.Body, maxDrain))
	res.Body.Close()
	if res.StatusCode < 300 || res.StatusCode > 399 {
		metrics.UpstreamRequests.WithLabelValues(step, "unexpected_status").Inc()
		log.Warn().Int("upstream.status", res.StatusCode).Str("step", step).Msg("Upstream did not redirect")
		return nil, gateway.UnknownUpstream{Reason: step + " returned status " + res.Status}
	}
	metrics.UpstreamRequests.WithLabelValues(step, "redirect").Inc()
	return res, nil
}

// localTarget keeps only the path and query of the upstream location so the
// browser stays on the gateway's host.
func localTarget(location string) (string, error) {
	if location == "" {
		return "", gateway.UnknownUpstream{Reason: "consume redirect without location"}
	}
	u, err := url.Parse(location)
	if err != nil {
		return "", gateway.UnknownUpstream{Reason: "consume redirect with invalid location", Cause: err}
	}
	// a leading "//" or "/\" would be read by browsers as another host
	target := "/" + strings.TrimLeft(u.EscapedPath(), "/\\")
	if u.RawQuery != "" {
		target += "?" + u.RawQuery
	}
	return target, nil
}
