package logutil

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

const (
	RequestIDHeader = "X-Request-Id"
)

type (
	statusWriter struct {
		http.ResponseWriter
		status int
	}
)

// Middleware attaches a request scoped logger to every request and logs the
// outcome once the request is done.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := r.Header.Get(RequestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, reqID)
		log := GetOrDefault(r.Context()).With().
			Str("req.id", reqID).
			Str("req.method", r.Method).
			Str("req.path", r.URL.Path).
			Logger()
		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r.WithContext(WithLogger(r.Context(), log)))
		if sw.status == 0 {
			sw.status = http.StatusOK
		}
		log.Info().Int("res.status", sw.status).Dur("res.duration", time.Since(start)).Msg("Request completed")
	})
}

func (s *statusWriter) WriteHeader(status int) {
	if s.status == 0 {
		s.status = status
	}
	s.ResponseWriter.WriteHeader(status)
}

func (s *statusWriter) Write(buf []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(buf)
}
