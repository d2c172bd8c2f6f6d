package gateway

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/andrebq/portcullis/ledger"
	"github.com/stretchr/testify/require"
)

func TestWriteError(t *testing.T) {
	cause := errors.New("boom")
	for _, tc := range []struct {
		err    error
		status int
		body   string
	}{
		{NotAuthenticated{}, http.StatusUnauthorized, `{"message":"User not authenticated"}`},
		{MalformedSession{Cause: cause}, http.StatusUnauthorized, `{"message":"User not authenticated"}`},
		{UnknownUpstream{Reason: "no location", Cause: cause}, http.StatusBadGateway, `{"message":"An unknown upstream error has occurred"}`},
		{TooManyAttempts{}, http.StatusTooManyRequests, `{"message":"Too many login attempts"}`},
		{BadRequest{Reason: "missing SAMLResponse"}, http.StatusBadRequest, `{"message":"missing SAMLResponse"}`},
		{Internal{Cause: cause}, http.StatusInternalServerError, `{"message":"Internal error"}`},
		{cause, http.StatusInternalServerError, `{"message":"Internal error"}`},
	} {
		rec := httptest.NewRecorder()
		WriteError(rec, httptest.NewRequest("GET", "/", nil), tc.err)
		require.Equal(t, tc.status, rec.Code, tc.err.Error())
		require.JSONEq(t, tc.body, rec.Body.String())
		require.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
		require.Empty(t, rec.Header().Get("WWW-Authenticate"))
	}

	rec := httptest.NewRecorder()
	WriteError(rec, httptest.NewRequest("GET", "/", nil), NotAuthenticated{Challenge: `Basic realm="test"`})
	require.Equal(t, `Basic realm="test"`, rec.Header().Get("WWW-Authenticate"))

	require.ErrorIs(t, Internal{Cause: cause}, cause)
	require.ErrorIs(t, UnknownUpstream{Cause: cause}, cause)
}

func TestClientAddress(t *testing.T) {
	for _, tc := range []struct {
		remote  string
		headers map[string]string
		expect  string
	}{
		{"10.0.0.1:1234", nil, "10.0.0.1"},
		{"10.0.0.1:1234", map[string]string{"X-Forwarded-For": "203.0.113.9, 10.0.0.1"}, "203.0.113.9"},
		{"10.0.0.1:1234", map[string]string{"X-Real-Ip": "198.51.100.7"}, "198.51.100.7"},
		{"10.0.0.1:1234", map[string]string{"X-Forwarded-For": " ", "X-Real-Ip": "198.51.100.7"}, "198.51.100.7"},
		{"[::1]:80", nil, "::1"},
		{"pipe", nil, "pipe"},
		{"", nil, ledger.Unavailable},
	} {
		req := httptest.NewRequest("GET", "/", nil)
		req.RemoteAddr = tc.remote
		for k, v := range tc.headers {
			req.Header.Set(k, v)
		}
		require.Equal(t, tc.expect, ClientAddress(req))
	}
}
