package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.Server.DevMode {
		t.Fatal("dev mode should default to true")
	}
	if cfg.Server.PublicURL != "http://127.0.0.1:8080" {
		t.Fatalf("unexpected public URL %q", cfg.Server.PublicURL)
	}
	if cfg.Store.Path != "consumerd.db" {
		t.Fatalf("unexpected store path %q", cfg.Store.Path)
	}
	if cfg.Sessions.TTLDuration() != DefaultSessionTTL {
		t.Fatalf("unexpected session TTL %v", cfg.Sessions.TTLDuration())
	}
	if cfg.KeysPath() != filepath.Join(".secrets", "session-keys.json") {
		t.Fatalf("unexpected keys path %q", cfg.KeysPath())
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	path := writeConfigFile(t, `
server:
  public_url: https://admin.example.com
  dev_mode: true
store:
  path: /var/lib/consumerd/registry.db
sessions:
  ttl: 30m
providers:
  default: acme
  upstream:
    acme:
      issuer: https://idp.example.com
      client_id: consumerd
admins:
  - email: root@example.com
    capabilities: [apps.list, apps.create, apps.edit]
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.PublicURL != "https://admin.example.com" {
		t.Fatalf("unexpected public URL %q", cfg.Server.PublicURL)
	}
	if cfg.Sessions.TTLDuration() != 30*time.Minute {
		t.Fatalf("unexpected TTL %v", cfg.Sessions.TTLDuration())
	}
	if cfg.Providers.Default != "acme" {
		t.Fatalf("unexpected default provider %q", cfg.Providers.Default)
	}
	caps := cfg.CapabilitiesFor("ROOT@example.com")
	if len(caps) != 3 {
		t.Fatalf("case-insensitive lookup failed: %v", caps)
	}
}

func TestLoadConfigRejectsUnknownFields(t *testing.T) {
	path := writeConfigFile(t, "server:\n  listen: \"127.0.0.1:9999\"\n")
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("CONSUMERD_STORE_PATH", "/tmp/override.db")
	t.Setenv("CONSUMERD_SERVER_PUBLIC_URL", "http://localhost:9999")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Store.Path != "/tmp/override.db" {
		t.Fatalf("store path override ignored: %q", cfg.Store.Path)
	}
	if cfg.Server.PublicURL != "http://localhost:9999" {
		t.Fatalf("public URL override ignored: %q", cfg.Server.PublicURL)
	}
}

func TestValidateProductionRequirements(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.DevMode = false
	if err := cfg.Validate(); err == nil {
		t.Fatal("production config without TLS domains accepted")
	}

	cfg.Server.TLS.Domains = []string{"admin.example.com"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("production config without default provider accepted")
	}

	cfg.Providers.Default = "acme"
	cfg.Providers.Upstream = map[string]UpstreamProvider{
		"acme": {Issuer: "https://idp.example.com", ClientID: "consumerd"},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("complete production config rejected: %v", err)
	}
}

func TestValidateAdminCapabilities(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Admins = []AdminConfig{{Email: "root@example.com", Capabilities: []string{"apps.destroy"}}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("unknown capability accepted")
	}

	cfg.Admins[0].Capabilities = nil
	if err := cfg.Validate(); err == nil {
		t.Fatal("admin without capabilities accepted")
	}

	cfg.Admins[0].Capabilities = []string{CapListApps}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid admin rejected: %v", err)
	}
}

func TestValidateCookieDomain(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.PublicURL = "https://admin.example.com"
	cfg.Server.CookieDomain = ".example.com"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("matching cookie domain rejected: %v", err)
	}

	cfg.Server.CookieDomain = ".other.net"
	if err := cfg.Validate(); err == nil {
		t.Fatal("mismatched cookie domain accepted")
	}
}

func TestValidateDefaultProviderMustBeConfigured(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Providers.Default = "ghost"
	if err := cfg.Validate(); err == nil {
		t.Fatal("unconfigured default provider accepted")
	}
}
