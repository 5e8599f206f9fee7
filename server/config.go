package server

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Hardcoded session defaults.
const (
	DefaultSessionTTL  = 12 * time.Hour
	DefaultKeyRotation = 24 * time.Hour
)

// Config captures the full application configuration loaded from YAML and
// environment variables.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	Sessions  SessionsConfig  `yaml:"sessions"`
	Providers ProvidersConfig `yaml:"providers"`
	Admins    []AdminConfig   `yaml:"admins"`
}

// ServerConfig controls listener, TLS, and HTTP concerns.
type ServerConfig struct {
	PublicURL       string    `yaml:"public_url"`
	DevListenAddr   string    `yaml:"dev_listen_addr"`
	HTTPListenAddr  string    `yaml:"http_listen_addr"`
	HTTPSListenAddr string    `yaml:"https_listen_addr"`
	DevMode         bool      `yaml:"dev_mode"`
	CookieDomain    string    `yaml:"cookie_domain"`
	SecretsPath     string    `yaml:"secrets_path"`
	TLS             TLSConfig `yaml:"tls"`
}

// TLSConfig defines autocert behaviour for production serving.
type TLSConfig struct {
	Domains []string `yaml:"domains"`
	Email   string   `yaml:"email"`
}

// StoreConfig locates the consumer registry database.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// SessionsConfig controls admin session lifetime and key rotation.
// Durations are Go duration strings ("12h", "30m").
type SessionsConfig struct {
	TTL        string `yaml:"ttl"`
	RotateKeys string `yaml:"rotate_keys"`
}

// TTLDuration returns the parsed session lifetime.
func (s SessionsConfig) TTLDuration() time.Duration {
	return parseDuration(s.TTL, DefaultSessionTTL)
}

// RotateKeysDuration returns the parsed key rotation interval.
func (s SessionsConfig) RotateKeysDuration() time.Duration {
	return parseDuration(s.RotateKeys, DefaultKeyRotation)
}

// ProvidersConfig groups upstream OIDC providers used for admin sign-in.
type ProvidersConfig struct {
	Default  string                      `yaml:"default"`
	Upstream map[string]UpstreamProvider `yaml:"upstream"`
}

// UpstreamProvider encapsulates issuer and credentials for an upstream IdP.
type UpstreamProvider struct {
	Issuer       string `yaml:"issuer"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// AdminConfig grants capabilities to an administrator identified by the
// email asserted by the upstream provider.
type AdminConfig struct {
	Email        string   `yaml:"email"`
	Capabilities []string `yaml:"capabilities"`
}

// LoadConfig reads the YAML config file and merges environment overrides.
func LoadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}

		decoder := yaml.NewDecoder(bytes.NewReader(b))
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil {
			slog.Error("failed to parse configuration", "error", err, "file", path)
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		slog.Error("configuration validation failed", "error", err)
		return Config{}, err
	}

	return cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			PublicURL:       "http://127.0.0.1:8080",
			DevListenAddr:   "127.0.0.1:8080",
			HTTPListenAddr:  ":80",
			HTTPSListenAddr: ":443",
			DevMode:         true,
			SecretsPath:     ".secrets",
		},
		Store: StoreConfig{
			Path: "consumerd.db",
		},
	}
}

// DefaultConfig returns the default configuration template.
func DefaultConfig() Config {
	return defaultConfig()
}

// KeysPath is the location of the persisted session signing keys.
func (c Config) KeysPath() string {
	return filepath.Join(c.Server.SecretsPath, "session-keys.json")
}

func applyEnvOverrides(cfg *Config) {
	overrides := map[string]func(string){
		"CONSUMERD_SERVER_PUBLIC_URL":        func(v string) { cfg.Server.PublicURL = v },
		"CONSUMERD_SERVER_DEV_LISTEN_ADDR":   func(v string) { cfg.Server.DevListenAddr = v },
		"CONSUMERD_SERVER_HTTP_LISTEN_ADDR":  func(v string) { cfg.Server.HTTPListenAddr = v },
		"CONSUMERD_SERVER_HTTPS_LISTEN_ADDR": func(v string) { cfg.Server.HTTPSListenAddr = v },
		"CONSUMERD_SERVER_DEV_MODE":          func(v string) { cfg.Server.DevMode = parseBool(v, cfg.Server.DevMode) },
		"CONSUMERD_SERVER_TLS_DOMAINS":       func(v string) { cfg.Server.TLS.Domains = splitAndTrim(v) },
		"CONSUMERD_SERVER_TLS_EMAIL":         func(v string) { cfg.Server.TLS.Email = v },
		"CONSUMERD_SERVER_SECRETS_PATH":      func(v string) { cfg.Server.SecretsPath = v },
		"CONSUMERD_STORE_PATH":               func(v string) { cfg.Store.Path = v },
	}

	for key, fn := range overrides {
		if val, ok := os.LookupEnv(key); ok {
			fn(val)
		}
	}
}

func parseDuration(val string, fallback time.Duration) time.Duration {
	if val == "" {
		return fallback
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return d
}

func parseBool(val string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return fallback
	}
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate performs sanity checks on the config.
func (c Config) Validate() error {
	if c.Server.PublicURL == "" {
		return errors.New("server.public_url is required")
	}
	if !strings.HasPrefix(c.Server.PublicURL, "http://") && !strings.HasPrefix(c.Server.PublicURL, "https://") {
		return fmt.Errorf("server.public_url must start with http:// or https://, got: %s", c.Server.PublicURL)
	}

	if c.Store.Path == "" {
		return errors.New("store.path is required")
	}

	if !c.Server.DevMode {
		if len(c.Server.TLS.Domains) == 0 {
			return errors.New("server.tls.domains must be provided in production")
		}
		if c.Providers.Default == "" {
			return errors.New("providers.default is required in production mode")
		}
	}

	if c.Providers.Default != "" {
		upstream, ok := c.Providers.Upstream[c.Providers.Default]
		if !ok {
			return fmt.Errorf("providers.default %q is not configured under providers.upstream", c.Providers.Default)
		}
		if upstream.Issuer == "" {
			return fmt.Errorf("providers.upstream.%s.issuer is required", c.Providers.Default)
		}
		if upstream.ClientID == "" {
			return fmt.Errorf("providers.upstream.%s.client_id is required", c.Providers.Default)
		}
	}

	for i, admin := range c.Admins {
		if admin.Email == "" {
			return fmt.Errorf("admins[%d]: email is required", i)
		}
		if len(admin.Capabilities) == 0 {
			return fmt.Errorf("admins[%d] (%s): at least one capability is required", i, admin.Email)
		}
		for _, capability := range admin.Capabilities {
			if !slices.Contains(AllCapabilities, capability) {
				return fmt.Errorf("admins[%d] (%s): unknown capability %q", i, admin.Email, capability)
			}
		}
	}

	if c.Server.CookieDomain != "" {
		host := strings.TrimPrefix(c.Server.PublicURL, "http://")
		host = strings.TrimPrefix(host, "https://")
		if idx := strings.IndexAny(host, ":/"); idx != -1 {
			host = host[:idx]
		}
		domain := strings.TrimPrefix(c.Server.CookieDomain, ".")
		if !strings.HasSuffix(host, domain) {
			return fmt.Errorf("server.cookie_domain %q does not match server.public_url host %q", c.Server.CookieDomain, host)
		}
	}

	return nil
}

// CapabilitiesFor returns the configured capabilities for an email, with
// a case-insensitive match on the address.
func (c Config) CapabilitiesFor(email string) []string {
	for _, admin := range c.Admins {
		if strings.EqualFold(admin.Email, email) {
			return admin.Capabilities
		}
	}
	return nil
}
