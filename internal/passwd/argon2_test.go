package passwd

import (
	"context"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var testParams = Params{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLen: 32, SaltLen: 16}

func TestHashAndVerify(t *testing.T) {
	encoded, err := Hash("pw", testParams, rand.Reader)
	require.NoError(t, err)
	require.Regexp(t, `^\$argon2id\$v=19\$m=8192,t=1,p=1\$[A-Za-z0-9+/]+\$[A-Za-z0-9+/]+$`, encoded)

	ok, err := Verify("pw", encoded)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = Verify("wrong", encoded)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMalformedHash(t *testing.T) {
	for _, encoded := range []string{
		"",
		"plaintext",
		"$argon2d$v=19$m=8192,t=1,p=1$c2FsdHNhbHQ$a2V5",
		"$argon2id$v=16$m=8192,t=1,p=1$c2FsdHNhbHQ$a2V5",
		"$argon2id$v=19$m=8192$c2FsdHNhbHQ$a2V5",
		"$argon2id$v=19$m=8192,t=1,p=1$!!!$a2V5",
		"$argon2id$v=19$m=8192,t=1,p=1$c2FsdHNhbHQ$",
	} {
		_, err := Verify("pw", encoded)
		if !errors.Is(err, ErrMalformedHash) {
			t.Errorf("Verify with hash %q should fail with ErrMalformedHash, got %v", encoded, err)
		}
	}
}

func TestVerifierCache(t *testing.T) {
	ctx := context.Background()
	v, err := NewVerifier(ctx, time.Minute, []byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	defer v.Close()

	encoded, err := Hash("pw", testParams, rand.Reader)
	require.NoError(t, err)

	ok, err := v.Verify("pw", encoded)
	require.NoError(t, err)
	require.True(t, ok)

	// served from the cache, the wrong password must still fail
	ok, err = v.Verify("pw", encoded)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = v.Verify("wrong", encoded)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestVerifierWithoutCache(t *testing.T) {
	v, err := NewVerifier(context.Background(), 0, nil)
	require.NoError(t, err)
	encoded, err := Hash("pw", testParams, rand.Reader)
	require.NoError(t, err)
	ok, err := v.Verify("pw", encoded)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, v.Close())
}
