// Package config loads the gateway settings.
//
// Loading order:
//  1. Built-in defaults
//  2. TOML file
//  3. Environment variables (PORTCULLIS_*)
//  4. Validation
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joeshaw/envdecode"
)

const (
	MinSecretKeyLen = 32
)

type (
	Settings struct {
		Database           Database `toml:"database"`
		HTTP               HTTP     `toml:"http"`
		SecretKey          string   `toml:"secret_key" env:"PORTCULLIS_SECRET_KEY"`
		StoreAccessEntries bool     `toml:"store_access_entries" env:"PORTCULLIS_STORE_ACCESS_ENTRIES"`
		Session            Session  `toml:"session"`
		Log                Log      `toml:"log"`
		Metrics            Metrics  `toml:"metrics"`
		Modules            Modules  `toml:"modules"`

		secretKey []byte
	}

	Database struct {
		File string `toml:"file" env:"PORTCULLIS_DATABASE_FILE"`
	}

	HTTP struct {
		Address string `toml:"address" env:"PORTCULLIS_HTTP_ADDRESS"`
		// Path mounts the whole gateway under a prefix (eg.: /sso)
		Path string `toml:"path" env:"PORTCULLIS_HTTP_PATH"`
	}

	Session struct {
		CookieName string        `toml:"cookie_name" env:"PORTCULLIS_SESSION_COOKIE_NAME"`
		TTL        time.Duration `toml:"ttl" env:"PORTCULLIS_SESSION_TTL"`
		Secure     bool          `toml:"secure" env:"PORTCULLIS_SESSION_SECURE"`
		SameSite   string        `toml:"same_site" env:"PORTCULLIS_SESSION_SAME_SITE"`
	}

	Log struct {
		Level  string `toml:"level" env:"PORTCULLIS_LOG_LEVEL"`
		Format string `toml:"format" env:"PORTCULLIS_LOG_FORMAT"`
	}

	Metrics struct {
		Enabled bool `toml:"enabled" env:"PORTCULLIS_METRICS_ENABLED"`
	}

	Modules struct {
		Basic     Basic     `toml:"basic"`
		Delegated Delegated `toml:"delegated"`
	}

	Basic struct {
		Enabled           bool          `toml:"enabled" env:"PORTCULLIS_BASIC_ENABLED"`
		DisplayName       string        `toml:"display_name" env:"PORTCULLIS_BASIC_DISPLAY_NAME"`
		AttemptsPerMinute int           `toml:"attempts_per_minute" env:"PORTCULLIS_BASIC_ATTEMPTS_PER_MINUTE"`
		CacheTTL          time.Duration `toml:"cache_ttl" env:"PORTCULLIS_BASIC_CACHE_TTL"`
	}

	Delegated struct {
		Enabled     bool          `toml:"enabled" env:"PORTCULLIS_DELEGATED_ENABLED"`
		DisplayName string        `toml:"display_name" env:"PORTCULLIS_DELEGATED_DISPLAY_NAME"`
		UpstreamURL string        `toml:"upstream_url" env:"PORTCULLIS_DELEGATED_UPSTREAM_URL"`
		Timeout     time.Duration `toml:"timeout" env:"PORTCULLIS_DELEGATED_TIMEOUT"`
	}
)

// Defaults returns the settings used for anything the file and the
// environment leave out.
func Defaults() Settings {
	return Settings{
		Database: Database{File: "portcullis.db"},
		HTTP:     HTTP{Address: "127.0.0.1:8080"},
		Session: Session{
			CookieName: "portcullis-session",
			TTL:        24 * time.Hour,
			Secure:     true,
			SameSite:   "lax",
		},
		Log:     Log{Level: "info", Format: "json"},
		Metrics: Metrics{Enabled: true},
		Modules: Modules{
			Basic: Basic{
				Enabled:     true,
				DisplayName: "External users",
			},
			Delegated: Delegated{
				Enabled:     true,
				DisplayName: "Institutional login",
				Timeout:     10 * time.Second,
			},
		},
	}
}

// Load reads the TOML file at path (skipped when empty), applies environment
// overrides and validates the result.
func Load(path string) (*Settings, error) {
	cfg := Defaults()
	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return nil, fmt.Errorf("unable to load config file %v, cause %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("unknown keys in config file %v: %v", path, undecoded)
		}
	}
	err := envdecode.Decode(&cfg)
	if err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("unable to read environment overrides, cause %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration, cause %w", err)
	}
	return &cfg, nil
}

// Validate checks the settings and decodes derived values.
func (s *Settings) Validate() error {
	key, err := hex.DecodeString(strings.TrimSpace(s.SecretKey))
	if err != nil {
		return fmt.Errorf("secret_key must be hex encoded, cause %w", err)
	}
	if len(key) < MinSecretKeyLen {
		return fmt.Errorf("secret_key must be at least %v bytes long, got %v", MinSecretKeyLen, len(key))
	}
	s.secretKey = key
	if s.Database.File == "" {
		return errors.New("database.file cannot be empty")
	}
	if s.HTTP.Address == "" {
		return errors.New("http.address cannot be empty")
	}
	if p := s.HTTP.Path; p != "" && (!strings.HasPrefix(p, "/") || strings.HasSuffix(p, "/")) {
		return fmt.Errorf("http.path %q must start with '/' and must not end with '/'", p)
	}
	if s.Session.CookieName == "" {
		return errors.New("session.cookie_name cannot be empty")
	}
	if s.Session.TTL <= 0 {
		return fmt.Errorf("session.ttl must be positive, got %v", s.Session.TTL)
	}
	if _, err := s.Session.SameSiteMode(); err != nil {
		return err
	}
	if s.Modules.Basic.AttemptsPerMinute < 0 {
		return errors.New("modules.basic.attempts_per_minute cannot be negative")
	}
	if s.Modules.Delegated.Active() {
		u, err := url.Parse(s.Modules.Delegated.UpstreamURL)
		if err != nil {
			return fmt.Errorf("modules.delegated.upstream_url is invalid, cause %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
			return fmt.Errorf("modules.delegated.upstream_url %q must be an absolute http(s) url", s.Modules.Delegated.UpstreamURL)
		}
		if s.Modules.Delegated.Timeout <= 0 {
			return fmt.Errorf("modules.delegated.timeout must be positive, got %v", s.Modules.Delegated.Timeout)
		}
	}
	return nil
}

// Key returns the decoded secret key, only valid after Validate.
func (s *Settings) Key() []byte {
	return s.secretKey
}

func (s Session) SameSiteMode() (http.SameSite, error) {
	switch strings.ToLower(s.SameSite) {
	case "", "lax":
		return http.SameSiteLaxMode, nil
	case "strict":
		return http.SameSiteStrictMode, nil
	case "none":
		if !s.Secure {
			return 0, errors.New("session.same_site none requires session.secure")
		}
		return http.SameSiteNoneMode, nil
	default:
		return 0, fmt.Errorf("session.same_site %q must be one of lax, strict or none", s.SameSite)
	}
}

// Active reports whether the delegated module should be registered.
func (d Delegated) Active() bool {
	return d.Enabled && d.UpstreamURL != ""
}

// Upstream returns the parsed upstream url, only valid after Validate.
func (d Delegated) Upstream() *url.URL {
	u, _ := url.Parse(d.UpstreamURL)
	return u
}
