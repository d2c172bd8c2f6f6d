package basic

import (
	"context"
	"crypto/rand"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/andrebq/portcullis/gateway"
	"github.com/andrebq/portcullis/internal/passwd"
	"github.com/andrebq/portcullis/internal/testutil"
	"github.com/andrebq/portcullis/ledger"
	"github.com/andrebq/portcullis/session"
	"github.com/steinfletcher/apitest"
	"github.com/stretchr/testify/require"
)

const (
	testCookie = "test-session"
	testSource = "203.0.113.5"
)

var (
	testKey    = []byte("0123456789abcdef0123456789abcdef")
	testParams = passwd.Params{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLen: 32, SaltLen: 16}
)

type (
	failingAudit struct{}

	verifyFunc func(password, encoded string) (bool, error)
)

func (failingAudit) RecordLogin(context.Context, string, bool, string) error {
	return errors.New("disk full")
}

func (failingAudit) RecordAccess(context.Context, string) error {
	return errors.New("disk full")
}

func (f verifyFunc) Verify(password, encoded string) (bool, error) {
	return f(password, encoded)
}

func provisionAlice(ctx context.Context, ctl *ledger.Control) error {
	hash, err := passwd.Hash("pw", testParams, rand.Reader)
	if err != nil {
		return err
	}
	_, err = ctl.AddUser(ctx, "alice", hash)
	return err
}

func testHandler(t *testing.T, m *Module, audit gateway.AuditStore) (http.Handler, *session.Codec) {
	codec := session.NewCodec(testKey, time.Hour)
	reg := gateway.NewRegistry()
	reg.MustRegister(m)
	handler, err := gateway.NewRouter(gateway.Options{
		Registry: reg,
		Audit:    audit,
		Sessions: session.NewMiddleware(codec, session.CookieConfig{Name: testCookie}),
	})
	require.NoError(t, err)
	return handler, codec
}

func identityOf(t *testing.T, codec *session.Codec, res *http.Response) string {
	for _, c := range res.Cookies() {
		if c.Name != testCookie {
			continue
		}
		state, err := codec.Decode(c.Value)
		require.NoError(t, err)
		return state[session.IdentityKey]
	}
	return ""
}

func TestBasicLogin(t *testing.T) {
	ctx := context.Background()
	ctl, cleanup := testutil.AcquireLedger(ctx, t, "basic-login", provisionAlice)
	defer cleanup()
	handler, codec := testHandler(t, New(ctl, ctl, verifyFunc(passwd.Verify), Options{}), ctl)

	res := apitest.New().
		Handler(handler).
		Get("/login/basic/").
		BasicAuth("alice", "pw").
		Header("X-Forwarded-For", testSource).
		Expect(t).
		Body(`Logged in as 'alice'`).
		Status(http.StatusOK).
		End()
	require.Equal(t, "alice", identityOf(t, codec, res.Response))

	apitest.New().
		Handler(handler).
		Get("/login/basic/").
		BasicAuth("alice", "wrong").
		Header("X-Forwarded-For", testSource).
		Expect(t).
		Header("WWW-Authenticate", Challenge).
		Body(`{"message":"User not authenticated"}`).
		Status(http.StatusUnauthorized).
		End()

	apitest.New().
		Handler(handler).
		Get("/login/basic/").
		BasicAuth("bob", "anything").
		Header("X-Forwarded-For", testSource).
		Expect(t).
		Header("WWW-Authenticate", Challenge).
		Status(http.StatusUnauthorized).
		End()

	logins, err := ctl.ListLogins(ctx, 0)
	require.NoError(t, err)
	require.Len(t, logins, 3)
	// newest first
	require.Equal(t, "bob", logins[0].Username)
	require.False(t, logins[0].Success)
	require.Equal(t, "alice", logins[1].Username)
	require.False(t, logins[1].Success)
	require.Equal(t, "alice", logins[2].Username)
	require.True(t, logins[2].Success)
	for _, l := range logins {
		require.Equal(t, testSource, l.SourceAddress)
	}
}

func TestBasicLoginRedirect(t *testing.T) {
	ctx := context.Background()
	ctl, cleanup := testutil.AcquireLedger(ctx, t, "basic-redirect", provisionAlice)
	defer cleanup()
	handler, codec := testHandler(t, New(ctl, ctl, verifyFunc(passwd.Verify), Options{}), ctl)

	res := apitest.New().
		Handler(handler).
		Get("/login/basic/").
		Query("redirect", "/app/home").
		BasicAuth("alice", "pw").
		Expect(t).
		Header("Location", "/app/home").
		Status(http.StatusTemporaryRedirect).
		End()
	require.Equal(t, "alice", identityOf(t, codec, res.Response))

	logins, err := ctl.ListLogins(ctx, 0)
	require.NoError(t, err)
	require.Len(t, logins, 1)
	require.True(t, logins[0].Success)
}

func TestBasicMissingCredentials(t *testing.T) {
	ctx := context.Background()
	ctl, cleanup := testutil.AcquireLedger(ctx, t, "basic-missing", provisionAlice)
	defer cleanup()
	handler, _ := testHandler(t, New(ctl, ctl, verifyFunc(passwd.Verify), Options{}), ctl)

	apitest.New().
		Handler(handler).
		Get("/login/basic/").
		Expect(t).
		Header("WWW-Authenticate", Challenge).
		CookieNotPresent(testCookie).
		Status(http.StatusUnauthorized).
		End()

	apitest.New().
		Handler(handler).
		Get("/login/basic/").
		BasicAuth("al\xffice", "pw").
		Expect(t).
		Header("WWW-Authenticate", Challenge).
		CookieNotPresent(testCookie).
		Status(http.StatusUnauthorized).
		End()

	apitest.New().
		Handler(handler).
		Get("/login/basic/").
		BasicAuth("alice", "").
		Expect(t).
		Header("WWW-Authenticate", Challenge).
		Status(http.StatusUnauthorized).
		End()

	logins, err := ctl.ListLogins(ctx, 0)
	require.NoError(t, err)
	require.Empty(t, logins)
}

func TestBasicCorruptHash(t *testing.T) {
	ctx := context.Background()
	ctl, cleanup := testutil.AcquireLedger(ctx, t, "basic-corrupt", func(ctx context.Context, ctl *ledger.Control) error {
		_, err := ctl.AddUser(ctx, "alice", "not-a-hash")
		return err
	})
	defer cleanup()
	handler, _ := testHandler(t, New(ctl, ctl, verifyFunc(passwd.Verify), Options{}), ctl)

	apitest.New().
		Handler(handler).
		Get("/login/basic/").
		BasicAuth("alice", "pw").
		Expect(t).
		Body(`{"message":"Internal error"}`).
		Status(http.StatusInternalServerError).
		End()

	logins, err := ctl.ListLogins(ctx, 0)
	require.NoError(t, err)
	require.Empty(t, logins)
}

func TestBasicAuditFailureKeepsDecision(t *testing.T) {
	ctx := context.Background()
	ctl, cleanup := testutil.AcquireLedger(ctx, t, "basic-audit", provisionAlice)
	defer cleanup()
	handler, codec := testHandler(t, New(ctl, failingAudit{}, verifyFunc(passwd.Verify), Options{}), failingAudit{})

	res := apitest.New().
		Handler(handler).
		Get("/login/basic/").
		BasicAuth("alice", "pw").
		Expect(t).
		Body(`Logged in as 'alice'`).
		Status(http.StatusOK).
		End()
	require.Equal(t, "alice", identityOf(t, codec, res.Response))

	apitest.New().
		Handler(handler).
		Get("/login/basic/").
		BasicAuth("alice", "wrong").
		Expect(t).
		Status(http.StatusUnauthorized).
		End()
}

func TestBasicThrottle(t *testing.T) {
	ctx := context.Background()
	ctl, cleanup := testutil.AcquireLedger(ctx, t, "basic-throttle", provisionAlice)
	defer cleanup()
	var calls int
	verifier := verifyFunc(func(password, encoded string) (bool, error) {
		calls++
		return passwd.Verify(password, encoded)
	})
	m := New(ctl, ctl, verifier, Options{AttemptsPerMinute: 2})
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	handler, _ := testHandler(t, m, ctl)

	for i := 0; i < 2; i++ {
		apitest.New().
			Handler(handler).
			Get("/login/basic/").
			BasicAuth("alice", "wrong").
			Header("X-Forwarded-For", testSource).
			Expect(t).
			Status(http.StatusUnauthorized).
			End()
	}
	apitest.New().
		Handler(handler).
		Get("/login/basic/").
		BasicAuth("alice", "pw").
		Header("X-Forwarded-For", testSource).
		Expect(t).
		Body(`{"message":"Too many login attempts"}`).
		Status(http.StatusTooManyRequests).
		End()

	// other sources are not affected
	apitest.New().
		Handler(handler).
		Get("/login/basic/").
		BasicAuth("alice", "pw").
		Header("X-Forwarded-For", "198.51.100.1").
		Expect(t).
		Status(http.StatusOK).
		End()

	now = now.Add(time.Minute)
	apitest.New().
		Handler(handler).
		Get("/login/basic/").
		BasicAuth("alice", "pw").
		Header("X-Forwarded-For", testSource).
		Expect(t).
		Status(http.StatusOK).
		End()

	require.Equal(t, 4, calls)
	logins, err := ctl.ListLogins(ctx, 0)
	require.NoError(t, err)
	require.Len(t, logins, 4)
}

func TestThrottleSweep(t *testing.T) {
	require.Nil(t, newThrottle(0))
	require.True(t, (*throttle)(nil).allow("any", time.Now()))

	th := newThrottle(1)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.True(t, th.allow("a", now))
	require.False(t, th.allow("a", now))
	require.Len(t, th.limiters, 1)

	now = now.Add(staleLimiter)
	require.True(t, th.allow("b", now))
	require.Len(t, th.limiters, 1)
	require.Contains(t, th.limiters, "b")
}
