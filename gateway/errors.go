package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/andrebq/portcullis/internal/logutil"
)

type (
	// NotAuthenticated is returned when the request carries no acceptable
	// identity. Challenge, when set, is sent as WWW-Authenticate.
	NotAuthenticated struct {
		Challenge string
	}

	Internal struct {
		Cause error
	}

	// UnknownUpstream means the delegated identity provider did not follow
	// the expected handshake.
	UnknownUpstream struct {
		Reason string
		Cause  error
	}

	// MalformedSession means the client presented a session token that
	// could not be authenticated.
	MalformedSession struct {
		Cause error
	}

	TooManyAttempts struct{}

	BadRequest struct {
		Reason string
	}

	InvalidModule struct {
		Module string
		Reason string
	}

	DuplicateModule struct {
		Field string
		Value string
	}

	// APIError is the body of every error response.
	APIError struct {
		Message string `json:"message"`
	}
)

func (n NotAuthenticated) Error() string {
	return "user not authenticated"
}

func (i Internal) Error() string {
	return fmt.Sprintf("internal error, cause %v", i.Cause)
}

func (i Internal) Unwrap() error { return i.Cause }

func (u UnknownUpstream) Error() string {
	if u.Cause != nil {
		return fmt.Sprintf("unknown upstream error: %v, cause %v", u.Reason, u.Cause)
	}
	return fmt.Sprintf("unknown upstream error: %v", u.Reason)
}

func (u UnknownUpstream) Unwrap() error { return u.Cause }

func (m MalformedSession) Error() string {
	return fmt.Sprintf("malformed session, cause %v", m.Cause)
}

func (m MalformedSession) Unwrap() error { return m.Cause }

func (TooManyAttempts) Error() string {
	return "too many login attempts"
}

func (b BadRequest) Error() string {
	return fmt.Sprintf("bad request: %v", b.Reason)
}

func (i InvalidModule) Error() string {
	if i.Module == "" {
		return fmt.Sprintf("invalid login module: %v", i.Reason)
	}
	return fmt.Sprintf("invalid login module %v: %v", i.Module, i.Reason)
}

func (d DuplicateModule) Error() string {
	return fmt.Sprintf("login module %v %q registered more than once", d.Field, d.Value)
}

// WriteError sends err to the client using the JSON error envelope. Details
// of internal and upstream failures are only logged.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	log := logutil.GetOrDefault(r.Context())
	status, msg := http.StatusInternalServerError, "Internal error"

	var (
		notAuth   NotAuthenticated
		malformed MalformedSession
		upstream  UnknownUpstream
		throttled TooManyAttempts
		badReq    BadRequest
	)
	switch {
	case errors.As(err, &notAuth):
		status, msg = http.StatusUnauthorized, "User not authenticated"
		if notAuth.Challenge != "" {
			w.Header().Set("WWW-Authenticate", notAuth.Challenge)
		}
		log.Debug().Msg("Request not authenticated")
	case errors.As(err, &malformed):
		status, msg = http.StatusUnauthorized, "User not authenticated"
		log.Warn().Err(malformed.Cause).Msg("session token rejected")
	case errors.As(err, &upstream):
		status, msg = http.StatusBadGateway, "An unknown upstream error has occurred"
		log.Error().Err(err).Msg("Delegated identity upstream failed")
	case errors.As(err, &throttled):
		status, msg = http.StatusTooManyRequests, "Too many login attempts"
		log.Warn().Msg("Login attempt throttled")
	case errors.As(err, &badReq):
		status, msg = http.StatusBadRequest, badReq.Reason
		log.Warn().Err(err).Msg("Bad request")
	default:
		log.Error().Err(err).Msg("Internal error")
	}

	buf, _ := json.Marshal(APIError{Message: msg})
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(buf)
}
