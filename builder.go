package ledgerAuth

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/ledgerAuth/backend"
	internalaudit "github.com/MrEthical07/ledgerAuth/internal/audit"
	"github.com/MrEthical07/ledgerAuth/internal/forms"
	"github.com/MrEthical07/ledgerAuth/roles"
	"github.com/MrEthical07/ledgerAuth/session"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Builder assembles a [Client]. A Builder can be used once.
type Builder struct {
	config Config

	api            backend.API
	sessionBackend session.Backend
	redis          redis.UniversalClient
	logger         *zerolog.Logger
	auditSink      AuditSink

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the configuration. Defaults come from [DefaultConfig].
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithBackend replaces the HTTP client built from Config.Backend.
func (b *Builder) WithBackend(api backend.API) *Builder {
	b.api = api
	return b
}

// WithSessionBackend overrides Config.Store. The client closes it on
// [Client.Close].
func (b *Builder) WithSessionBackend(sb session.Backend) *Builder {
	b.sessionBackend = sb
	return b
}

// WithRedis persists sessions in an existing Redis client under
// Config.Store.RedisPrefix. The client is not closed by [Client.Close].
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithLogger sets the logger. Without one, Build derives it from Config.Log.
func (b *Builder) WithLogger(logger zerolog.Logger) *Builder {
	b.logger = &logger
	return b
}

// WithAuditSink sets the audit destination and enables auditing.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	if sink != nil {
		b.config.Audit.Enabled = true
	}
	return b
}

// WithMetricsEnabled turns the in-process counters on or off.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms records backend call latency. It has no effect while
// metrics are disabled.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration, opens the session backend and loads
// any persisted session.
func (b *Builder) Build() (*Client, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := NewLogger(cfg.Log, nil)
	if b.logger != nil {
		logger = *b.logger
	}

	metrics := NewMetrics(cfg.Metrics)

	// -------- BACKEND --------
	api := b.api
	if api == nil {
		if cfg.Backend.BaseURL == "" {
			return nil, errors.New("Backend BaseURL required when no backend is injected")
		}
		hc, err := backend.NewHTTPClient(backend.Config{
			BaseURL:           cfg.Backend.BaseURL,
			Timeout:           cfg.Backend.Timeout,
			UserAgent:         cfg.Backend.UserAgent,
			RequestsPerSecond: cfg.Backend.RequestsPerSecond,
			Burst:             cfg.Backend.Burst,
			RequestID:         RequestIDFromContext,
		})
		if err != nil {
			return nil, err
		}
		api = hc
	}
	if metrics.LatencyEnabled() {
		api = &instrumentedAPI{next: api, metrics: metrics}
	}

	// -------- SESSION STORE --------
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Backend.Timeout)
	defer cancel()

	sb, err := b.openSessionBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	store := session.NewStore(sb, logger)
	if err := store.Load(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("load session: %w", err)
	}

	sink := b.auditSink
	if sink == nil {
		sink = NewLogSink(logger)
	}

	c := &Client{
		config:  cfg,
		api:     api,
		store:   store,
		router:  roles.NewRouter(cfg.Routes.AdminRoles, cfg.Routes.Admin, cfg.Routes.Dashboard),
		policy:  forms.Policy{MinLength: cfg.Policy.MinPasswordLength, RequireLetter: cfg.Policy.RequireLetter, RequireDigit: cfg.Policy.RequireDigit},
		logger:  logger,
		metrics: metrics,
		audit: internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, sink),
	}

	b.built = true
	return c, nil
}

func (b *Builder) openSessionBackend(ctx context.Context, cfg Config) (session.Backend, error) {
	switch {
	case b.sessionBackend != nil:
		return b.sessionBackend, nil
	case b.redis != nil:
		return session.NewRedisBackend(b.redis, cfg.Store.RedisPrefix), nil
	}

	switch cfg.Store.Driver {
	case StoreSQLite:
		return session.OpenSQLite(ctx, cfg.Store.SQLitePath)
	case StoreRedis:
		return session.DialRedis(ctx, cfg.Store.RedisAddr, cfg.Store.RedisPassword, cfg.Store.RedisDB, cfg.Store.RedisPrefix)
	default:
		return session.NewMemoryBackend(), nil
	}
}
