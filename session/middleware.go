package session

import (
	"net/http"
	"time"

	"github.com/andrebq/portcullis/internal/logutil"
	"github.com/andrebq/portcullis/internal/metrics"
)

type (
	CookieConfig struct {
		Name     string
		Path     string
		Secure   bool
		SameSite http.SameSite
	}

	// Middleware loads the session from the request cookie before calling
	// the next handler and re-issues the cookie when the session was touched.
	Middleware struct {
		codec  *Codec
		cookie CookieConfig
	}

	sessionWriter struct {
		http.ResponseWriter
		r         *http.Request
		m         *Middleware
		sess      *Session
		committed bool
	}
)

func NewMiddleware(codec *Codec, cookie CookieConfig) *Middleware {
	if cookie.Path == "" {
		cookie.Path = "/"
	}
	return &Middleware{codec: codec, cookie: cookie}
}

func (m *Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := m.load(r)
		sw := &sessionWriter{ResponseWriter: w, r: r, m: m, sess: sess}
		next.ServeHTTP(sw, r.WithContext(NewContext(r.Context(), sess)))
		// handlers that never write still get their cookie
		sw.commit()
	})
}

func (m *Middleware) load(r *http.Request) *Session {
	c, err := r.Cookie(m.cookie.Name)
	if err != nil || c.Value == "" {
		return New(nil)
	}
	state, err := m.codec.Decode(c.Value)
	if err != nil {
		log := logutil.GetOrDefault(r.Context())
		log.Warn().Err(err).Msg("session token rejected")
		metrics.SessionRejected.WithLabelValues("malformed").Inc()
		return Rejected(err)
	}
	if state == nil {
		metrics.SessionRejected.WithLabelValues("expired").Inc()
	}
	return New(state)
}

func (m *Middleware) cookieFor(token string, now time.Time) *http.Cookie {
	ttl := m.codec.TTL()
	return &http.Cookie{
		Name:     m.cookie.Name,
		Value:    token,
		Path:     m.cookie.Path,
		Expires:  now.Add(ttl),
		MaxAge:   int(ttl / time.Second),
		Secure:   m.cookie.Secure,
		HttpOnly: true,
		SameSite: m.cookie.SameSite,
	}
}

func (w *sessionWriter) WriteHeader(status int) {
	w.commit()
	w.ResponseWriter.WriteHeader(status)
}

func (w *sessionWriter) Write(buf []byte) (int, error) {
	w.commit()
	return w.ResponseWriter.Write(buf)
}

func (w *sessionWriter) commit() {
	if w.committed {
		return
	}
	w.committed = true
	if !w.sess.touched() {
		return
	}
	token, err := w.m.codec.Encode(w.sess.state)
	if err != nil {
		log := logutil.GetOrDefault(w.r.Context())
		log.Error().Err(err).Msg("Unable to encode session, client keeps its previous token")
		return
	}
	http.SetCookie(w.ResponseWriter, w.m.cookieFor(token, w.m.codec.now()))
}
