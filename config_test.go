package ledgerAuth

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func containsCode(codes []string, code string) bool {
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "relative base url", mutate: func(c *Config) { c.Backend.BaseURL = "api.example.com" }},
		{name: "ftp base url", mutate: func(c *Config) { c.Backend.BaseURL = "ftp://api.example.com" }},
		{name: "zero timeout", mutate: func(c *Config) { c.Backend.Timeout = 0 }},
		{name: "negative rps", mutate: func(c *Config) { c.Backend.RequestsPerSecond = -1 }},
		{name: "rps without burst", mutate: func(c *Config) { c.Backend.Burst = 0 }},
		{name: "unknown driver", mutate: func(c *Config) { c.Store.Driver = "etcd" }},
		{name: "sqlite without path", mutate: func(c *Config) { c.Store.Driver = StoreSQLite; c.Store.SQLitePath = "" }},
		{name: "redis without addr", mutate: func(c *Config) { c.Store.Driver = StoreRedis; c.Store.RedisAddr = "" }},
		{name: "short code", mutate: func(c *Config) { c.Policy.CodeDigits = 3 }},
		{name: "zero min length", mutate: func(c *Config) { c.Policy.MinPasswordLength = 0 }},
		{name: "relative route", mutate: func(c *Config) { c.Routes.Dashboard = "dashboard" }},
		{name: "negative delay", mutate: func(c *Config) { c.Routes.ResetRedirectDelay = -time.Second }},
		{name: "audit without buffer", mutate: func(c *Config) { c.Audit.Enabled = true; c.Audit.BufferSize = 0 }},
		{name: "bad log level", mutate: func(c *Config) { c.Log.Level = "loud" }},
		{name: "bad log format", mutate: func(c *Config) { c.Log.Format = "xml" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestLintDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	codes := cfg.Lint().Codes()

	if containsCode(codes, "backend_plain_http") {
		t.Error("plain http to localhost should not warn")
	}
	if containsCode(codes, "rate_limit_disabled") {
		t.Error("default config throttles outbound requests")
	}
	if !containsCode(codes, "memory_store_not_persistent") {
		t.Error("expected memory store warning")
	}
	if !containsCode(codes, "audit_disabled") {
		t.Error("expected audit warning")
	}
}

func TestLintWarnings(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend.BaseURL = "http://api.ledger.example"
	cfg.Backend.RequestsPerSecond = 0
	cfg.Backend.Timeout = 2 * time.Minute
	cfg.Policy.MinPasswordLength = 6
	cfg.Log.Level = "debug"

	codes := cfg.Lint().Codes()
	for _, want := range []string{"backend_plain_http", "rate_limit_disabled", "timeout_long", "password_min_short", "debug_logging"} {
		if !containsCode(codes, want) {
			t.Errorf("expected warning %q in %v", want, codes)
		}
	}
}

func TestLintHardenedConfigQuiet(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend.BaseURL = "https://api.ledger.example"
	cfg.Store.Driver = StoreSQLite
	cfg.Audit.Enabled = true

	if ws := cfg.Lint(); len(ws) != 0 {
		t.Fatalf("expected no warnings, got %v", ws.Codes())
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadConfigTOML(t *testing.T) {
	path := writeFile(t, "ledgerauth.toml", `
[backend]
base_url = "https://api.ledger.example"
timeout = "5s"
requests_per_second = 2.5

[store]
driver = "sqlite"
sqlite_path = "/var/lib/ledgerauth/session.db"

[routes]
admin_roles = ["ROLE_ADMIN", "ROLE_AUDITOR"]
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Backend.BaseURL != "https://api.ledger.example" || cfg.Backend.Timeout != 5*time.Second {
		t.Fatalf("unexpected backend config: %+v", cfg.Backend)
	}
	if cfg.Backend.RequestsPerSecond != 2.5 {
		t.Fatalf("unexpected rps %v", cfg.Backend.RequestsPerSecond)
	}
	if cfg.Store.Driver != StoreSQLite || len(cfg.Routes.AdminRoles) != 2 {
		t.Fatalf("unexpected store/routes: %+v %+v", cfg.Store, cfg.Routes)
	}
	if cfg.Policy.CodeDigits != 6 || cfg.Routes.Login != "/login" {
		t.Fatal("absent keys must keep their defaults")
	}
}

func TestLoadConfigYAML(t *testing.T) {
	path := writeFile(t, "ledgerauth.yaml", `
backend:
  base_url: https://api.ledger.example
  timeout: 7s
policy:
  min_password_length: 12
log:
  level: warn
  format: json
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Backend.Timeout != 7*time.Second || cfg.Policy.MinPasswordLength != 12 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.Log.Level != "warn" || cfg.Log.Format != "json" {
		t.Fatalf("unexpected log config: %+v", cfg.Log)
	}
	if !cfg.Policy.RequireDigit {
		t.Fatal("absent keys must keep their defaults")
	}
}

func TestLoadConfigErrors(t *testing.T) {
	if _, err := LoadConfig(writeFile(t, "ledgerauth.json", `{}`)); err == nil {
		t.Fatal("expected unsupported extension error")
	}
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatal("expected missing file error")
	}
	if _, err := LoadConfig(writeFile(t, "bad.toml", "[store]\ndriver = \"etcd\"\n")); err == nil {
		t.Fatal("expected invalid config to be rejected")
	}
}

func TestApplyEnv(t *testing.T) {
	envFile := writeFile(t, ".env", "LEDGERAUTH_BACKEND_URL=https://from-file.example\nLEDGERAUTH_STORE_DRIVER=redis\nLEDGERAUTH_REDIS_DB=3\n")
	t.Setenv("LEDGERAUTH_BACKEND_URL", "https://from-env.example")
	t.Setenv("LEDGERAUTH_BACKEND_TIMEOUT", "9s")
	t.Setenv("LEDGERAUTH_LOG_LEVEL", "error")

	cfg := DefaultConfig()
	if err := ApplyEnv(&cfg, envFile); err != nil {
		t.Fatalf("ApplyEnv failed: %v", err)
	}
	if cfg.Backend.BaseURL != "https://from-env.example" {
		t.Fatalf("process env must win over the file, got %q", cfg.Backend.BaseURL)
	}
	if cfg.Backend.Timeout != 9*time.Second || cfg.Log.Level != "error" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.Store.Driver != StoreRedis || cfg.Store.RedisDB != 3 {
		t.Fatalf("expected file values, got %+v", cfg.Store)
	}
}

func TestApplyEnvMissingFileIgnored(t *testing.T) {
	cfg := DefaultConfig()
	if err := ApplyEnv(&cfg, filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("missing env file must be ignored: %v", err)
	}
}

func TestApplyEnvBadValue(t *testing.T) {
	t.Setenv("LEDGERAUTH_BACKEND_TIMEOUT", "soon")
	cfg := DefaultConfig()
	if err := ApplyEnv(&cfg, filepath.Join(t.TempDir(), "absent.env")); err == nil {
		t.Fatal("expected bad duration to be rejected")
	}
}

func TestWithConfigIsCloned(t *testing.T) {
	cfg := DefaultConfig()
	c, _ := newTestClient(t, func(b *Builder) { b.WithConfig(cfg) })
	cfg.Routes.AdminRoles[0] = "ROLE_NOBODY"
	if got := c.Config().Routes.AdminRoles[0]; got != "ROLE_ADMIN" {
		t.Fatalf("client config changed through caller's slice: %q", got)
	}
}
