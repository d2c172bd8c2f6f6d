package logutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareLogsRequest(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, SetupWriter(&buf, "debug", "json"))
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := GetOrDefault(r.Context())
		log.Debug().Msg("inside")
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/login/", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	handler.ServeHTTP(rec, req)
	require.Equal(t, "req-1", rec.Header().Get(RequestIDHeader))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	for _, l := range lines {
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(l), &entry))
		require.Equal(t, "req-1", entry["req.id"])
		require.Equal(t, "/login/", entry["req.path"])
	}
	var last map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &last))
	require.Equal(t, float64(http.StatusTeapot), last["res.status"])

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	require.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}

func TestSetupRejectsUnknownSettings(t *testing.T) {
	var buf bytes.Buffer
	require.Error(t, SetupWriter(&buf, "loud", "json"))
	require.Error(t, SetupWriter(&buf, "info", "xml"))
	require.NoError(t, SetupWriter(&buf, "", "console"))
}
