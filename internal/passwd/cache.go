package passwd

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
	"strconv"
	"time"

	"github.com/allegro/bigcache/v3"
	"github.com/cespare/xxhash/v2"
)

type (
	// Verifier checks passwords against stored hashes, optionally remembering
	// successful verifications so repeated requests skip argon2.
	Verifier struct {
		cache *bigcache.BigCache
		key   []byte
	}
)

// NewVerifier returns a Verifier. A non-positive ttl disables memoisation.
// key is used to MAC cached entries, so plain passwords never sit in memory
// longer than a request.
func NewVerifier(ctx context.Context, ttl time.Duration, key []byte) (*Verifier, error) {
	if ttl <= 0 {
		return &Verifier{}, nil
	}
	cfg := bigcache.DefaultConfig(ttl)
	cfg.CleanWindow = ttl
	cfg.Verbose = false
	cache, err := bigcache.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("passwd: unable to create verification cache, cause %w", err)
	}
	return &Verifier{cache: cache, key: append([]byte(nil), key...)}, nil
}

// Verify has the same contract as the package level Verify.
func (v *Verifier) Verify(password, encoded string) (bool, error) {
	if v.cache == nil {
		return Verify(password, encoded)
	}
	entry := v.entryKey(encoded)
	mac := v.mac(password)
	if cached, err := v.cache.Get(entry); err == nil && hmac.Equal(cached, mac) {
		return true, nil
	}
	ok, err := Verify(password, encoded)
	if err != nil || !ok {
		return ok, err
	}
	// a failed Set only costs a future argon2 run
	_ = v.cache.Set(entry, mac)
	return true, nil
}

// Close releases the cache.
func (v *Verifier) Close() error {
	if v.cache == nil {
		return nil
	}
	return v.cache.Close()
}

// entryKey changes whenever the stored hash changes (every hash carries its own salt)
func (v *Verifier) entryKey(encoded string) string {
	return strconv.FormatUint(xxhash.Sum64String(encoded), 16)
}

func (v *Verifier) mac(password string) []byte {
	h := hmac.New(sha256.New, v.key)
	h.Write([]byte(password))
	return h.Sum(nil)
}
