package ledgerAuth

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/MrEthical07/ledgerAuth/roles"
)

// Store drivers accepted by [StoreConfig].
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
	StoreSQLite = "sqlite"
)

// Config is the complete client configuration. Build clones it, so later
// changes to a Config value do not affect a built [Client].
type Config struct {
	Backend BackendConfig `toml:"backend" yaml:"backend"`
	Store   StoreConfig   `toml:"store" yaml:"store"`
	Policy  PolicyConfig  `toml:"policy" yaml:"policy"`
	Routes  RoutesConfig  `toml:"routes" yaml:"routes"`
	Audit   AuditConfig   `toml:"audit" yaml:"audit"`
	Metrics MetricsConfig `toml:"metrics" yaml:"metrics"`
	Log     LogConfig     `toml:"log" yaml:"log"`
}

// BackendConfig describes the backing REST service.
type BackendConfig struct {
	BaseURL   string        `toml:"base_url" yaml:"base_url"`
	Timeout   time.Duration `toml:"timeout" yaml:"timeout"`
	UserAgent string        `toml:"user_agent" yaml:"user_agent"`

	// RequestsPerSecond throttles outbound calls. Zero disables the limiter.
	RequestsPerSecond float64 `toml:"requests_per_second" yaml:"requests_per_second"`
	Burst             int     `toml:"burst" yaml:"burst"`

	// UnverifiedMarkers are matched case-insensitively against a rejected
	// login's message to recognise an unconfirmed email address.
	UnverifiedMarkers []string `toml:"unverified_markers" yaml:"unverified_markers"`
}

// StoreConfig selects where session state is persisted.
type StoreConfig struct {
	Driver string `toml:"driver" yaml:"driver"`

	SQLitePath string `toml:"sqlite_path" yaml:"sqlite_path"`

	RedisAddr     string `toml:"redis_addr" yaml:"redis_addr"`
	RedisPassword string `toml:"redis_password" yaml:"redis_password"`
	RedisDB       int    `toml:"redis_db" yaml:"redis_db"`
	RedisPrefix   string `toml:"redis_prefix" yaml:"redis_prefix"`
}

// PolicyConfig holds the local form rules.
type PolicyConfig struct {
	MinPasswordLength int  `toml:"min_password_length" yaml:"min_password_length"`
	RequireLetter     bool `toml:"require_letter" yaml:"require_letter"`
	RequireDigit      bool `toml:"require_digit" yaml:"require_digit"`
	CodeDigits        int  `toml:"code_digits" yaml:"code_digits"`
}

// RoutesConfig names the screens flows point the user to.
type RoutesConfig struct {
	Login      string   `toml:"login" yaml:"login"`
	Signup     string   `toml:"signup" yaml:"signup"`
	CheckEmail string   `toml:"check_email" yaml:"check_email"`
	Dashboard  string   `toml:"dashboard" yaml:"dashboard"`
	Admin      string   `toml:"admin" yaml:"admin"`
	AdminRoles []string `toml:"admin_roles" yaml:"admin_roles"`

	SignupRedirectDelay time.Duration `toml:"signup_redirect_delay" yaml:"signup_redirect_delay"`
	VerifyRedirectDelay time.Duration `toml:"verify_redirect_delay" yaml:"verify_redirect_delay"`
	ResetRedirectDelay  time.Duration `toml:"reset_redirect_delay" yaml:"reset_redirect_delay"`
}

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool `toml:"enabled" yaml:"enabled"`
	BufferSize int  `toml:"buffer_size" yaml:"buffer_size"`
	DropIfFull bool `toml:"drop_if_full" yaml:"drop_if_full"`
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool `toml:"enabled" yaml:"enabled"`
	EnableLatencyHistograms bool `toml:"enable_latency_histograms" yaml:"enable_latency_histograms"`
}

// LogConfig configures the default logger. Format is "json" or "console".
type LogConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
}

// DefaultConfig returns a configuration suitable for local development
// against a backend on localhost:8080.
func DefaultConfig() Config {
	return Config{
		Backend: BackendConfig{
			BaseURL:           "http://localhost:8080",
			Timeout:           15 * time.Second,
			UserAgent:         "ledgerauth",
			RequestsPerSecond: 5,
			Burst:             3,
			UnverifiedMarkers: []string{"verify your email"},
		},
		Store: StoreConfig{
			Driver:      StoreMemory,
			SQLitePath:  "ledgerauth/session.db",
			RedisAddr:   "localhost:6379",
			RedisPrefix: "ledgerauth",
		},
		Policy: PolicyConfig{
			MinPasswordLength: 8,
			RequireLetter:     true,
			RequireDigit:      true,
			CodeDigits:        6,
		},
		Routes: RoutesConfig{
			Login:               "/login",
			Signup:              "/signup",
			CheckEmail:          "/check-email",
			Dashboard:           roles.DefaultDashboardRoute,
			Admin:               roles.DefaultAdminRoute,
			AdminRoles:          []string{roles.DefaultAdminRole},
			SignupRedirectDelay: 2 * time.Second,
			VerifyRedirectDelay: 2 * time.Second,
			ResetRedirectDelay:  3 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Backend.UnverifiedMarkers = cloneStrings(cfg.Backend.UnverifiedMarkers)
	out.Routes.AdminRoles = cloneStrings(cfg.Routes.AdminRoles)
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

// Validate reports the first setting that would make the client misbehave.
// BaseURL may be empty when a backend is injected with [Builder.WithBackend].
func (c *Config) Validate() error {
	// Backend
	if c.Backend.BaseURL != "" {
		u, err := url.Parse(c.Backend.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return errors.New("Backend BaseURL must be an absolute http or https URL")
		}
	}
	if c.Backend.Timeout <= 0 {
		return errors.New("Backend Timeout must be > 0")
	}
	if c.Backend.RequestsPerSecond < 0 {
		return errors.New("Backend RequestsPerSecond must be >= 0")
	}
	if c.Backend.RequestsPerSecond > 0 && c.Backend.Burst <= 0 {
		return errors.New("Backend Burst must be > 0 when RequestsPerSecond is set")
	}

	// Store
	switch c.Store.Driver {
	case StoreMemory:
	case StoreSQLite:
		if strings.TrimSpace(c.Store.SQLitePath) == "" {
			return errors.New("Store SQLitePath required for the sqlite driver")
		}
	case StoreRedis:
		if strings.TrimSpace(c.Store.RedisAddr) == "" {
			return errors.New("Store RedisAddr required for the redis driver")
		}
		if c.Store.RedisDB < 0 {
			return errors.New("Store RedisDB must be >= 0")
		}
	default:
		return fmt.Errorf("unsupported Store Driver %q", c.Store.Driver)
	}

	// Policy
	if c.Policy.MinPasswordLength < 1 {
		return errors.New("Policy MinPasswordLength must be >= 1")
	}
	if c.Policy.CodeDigits < 4 || c.Policy.CodeDigits > 10 {
		return errors.New("Policy CodeDigits must be between 4 and 10")
	}

	// Routes
	for name, route := range map[string]string{
		"Login":      c.Routes.Login,
		"Signup":     c.Routes.Signup,
		"CheckEmail": c.Routes.CheckEmail,
		"Dashboard":  c.Routes.Dashboard,
		"Admin":      c.Routes.Admin,
	} {
		if !strings.HasPrefix(route, "/") {
			return fmt.Errorf("Routes %s must start with /", name)
		}
	}
	if c.Routes.SignupRedirectDelay < 0 || c.Routes.VerifyRedirectDelay < 0 || c.Routes.ResetRedirectDelay < 0 {
		return errors.New("Routes redirect delays must be >= 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	// Log
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("unsupported Log Format %q", c.Log.Format)
	}

	return nil
}

/*
====================================
LINT
====================================
*/

// LintWarning is a configuration that is valid but probably unintended.
type LintWarning struct {
	Code    string
	Message string
}

// LintWarnings is the result of [Config.Lint].
type LintWarnings []LintWarning

// Codes returns the warning codes in order.
func (ws LintWarnings) Codes() []string {
	out := make([]string, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.Code)
	}
	return out
}

// Lint reports settings that pass Validate but deserve a second look.
func (c *Config) Lint() LintWarnings {
	var ws LintWarnings
	add := func(code, msg string) {
		ws = append(ws, LintWarning{Code: code, Message: msg})
	}

	if u, err := url.Parse(c.Backend.BaseURL); err == nil && u.Scheme == "http" && !isLoopbackHost(u.Hostname()) {
		add("backend_plain_http", "credentials would be sent over plain http to a non-local host")
	}
	if c.Backend.RequestsPerSecond == 0 {
		add("rate_limit_disabled", "outbound requests are not throttled")
	}
	if c.Backend.Timeout > time.Minute {
		add("timeout_long", "backend timeout above one minute keeps flows busy for a long time")
	}
	if c.Policy.MinPasswordLength < 8 {
		add("password_min_short", "minimum password length below 8")
	}
	if !c.Audit.Enabled {
		add("audit_disabled", "authentication events are not audited")
	}
	if c.Store.Driver == StoreMemory {
		add("memory_store_not_persistent", "sessions are lost when the process exits")
	}
	if strings.EqualFold(c.Log.Level, "debug") || strings.EqualFold(c.Log.Level, "trace") {
		add("debug_logging", "verbose logging enabled")
	}
	return ws
}

func isLoopbackHost(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
