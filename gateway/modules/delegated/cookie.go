package delegated

import (
	"errors"
	"net/http"
	"strings"
)

var (
	errMissingCookie     = errors.New("upstream response has no Set-Cookie header")
	errUnparseableCookie = errors.New("upstream Set-Cookie header could not be parsed")
)

// correlationCookie renders the cookies set by the upstream as a Cookie
// request header value, ready to be sent back on the next step.
func correlationCookie(res *http.Response) (string, error) {
	if len(res.Header.Values("Set-Cookie")) == 0 {
		return "", errMissingCookie
	}
	cookies := res.Cookies()
	if len(cookies) == 0 {
		return "", errUnparseableCookie
	}
	pairs := make([]string, 0, len(cookies))
	for _, c := range cookies {
		pairs = append(pairs, c.Name+"="+c.Value)
	}
	return strings.Join(pairs, "; "), nil
}
