// Package passwd verifies and produces argon2 password hashes in the PHC
// string format ($argon2id$v=19$m=65536,t=3,p=4$salt$hash), the format
// written by the usual provisioning tools.
//
// The gateway never stores passwords, only these encoded hashes.
package passwd

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
)

type (
	Params struct {
		Time    uint32
		Memory  uint32
		Threads uint8
		KeyLen  uint32
		SaltLen int
	}

	encodedHash struct {
		variant string
		params  Params
		salt    []byte
		key     []byte
	}
)

var (
	// ErrMalformedHash is returned when a stored hash cannot be parsed, it
	// indicates a provisioning problem rather than a wrong password.
	ErrMalformedHash = errors.New("passwd: malformed argon2 hash")

	// DefaultParams match the argon2-cffi defaults.
	DefaultParams = Params{Time: 3, Memory: 64 * 1024, Threads: 4, KeyLen: 32, SaltLen: 16}
)

var b64 = base64.RawStdEncoding

// Verify reports whether password matches the encoded hash.
func Verify(password, encoded string) (bool, error) {
	h, err := decode(encoded)
	if err != nil {
		return false, err
	}
	var key []byte
	switch h.variant {
	case "argon2id":
		key = argon2.IDKey([]byte(password), h.salt, h.params.Time, h.params.Memory, h.params.Threads, uint32(len(h.key)))
	case "argon2i":
		key = argon2.Key([]byte(password), h.salt, h.params.Time, h.params.Memory, h.params.Threads, uint32(len(h.key)))
	}
	return subtle.ConstantTimeCompare(key, h.key) == 1, nil
}

// Hash encodes password as an argon2id hash using a salt read from rand.
func Hash(password string, params Params, rand io.Reader) (string, error) {
	salt := make([]byte, params.SaltLen)
	_, err := io.ReadFull(rand, salt)
	if err != nil {
		return "", fmt.Errorf("passwd: unable to generate salt, cause %w", err)
	}
	key := argon2.IDKey([]byte(password), salt, params.Time, params.Memory, params.Threads, params.KeyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%v$%v",
		argon2.Version, params.Memory, params.Time, params.Threads,
		b64.EncodeToString(salt), b64.EncodeToString(key)), nil
}

func decode(encoded string) (*encodedHash, error) {
	// "", variant, version, params, salt, key
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return nil, ErrMalformedHash
	}
	h := encodedHash{variant: parts[1]}
	switch h.variant {
	case "argon2id", "argon2i":
	default:
		return nil, fmt.Errorf("%w: unsupported variant %q", ErrMalformedHash, h.variant)
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedHash, err)
	} else if version != argon2.Version {
		return nil, fmt.Errorf("%w: unsupported version %v", ErrMalformedHash, version)
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &h.params.Memory, &h.params.Time, &h.params.Threads); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedHash, err)
	}
	if h.params.Time == 0 || h.params.Threads == 0 {
		return nil, fmt.Errorf("%w: invalid cost parameters", ErrMalformedHash)
	}
	var err error
	h.salt, err = b64.DecodeString(parts[4])
	if err != nil {
		return nil, fmt.Errorf("%w: salt %v", ErrMalformedHash, err)
	}
	h.key, err = b64.DecodeString(parts[5])
	if err != nil || len(h.key) == 0 {
		return nil, fmt.Errorf("%w: key %v", ErrMalformedHash, err)
	}
	return &h, nil
}
