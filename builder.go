package goQrLogin

import (
	"errors"
	"time"

	internalaudit "github.com/MrEthical07/goQrLogin/internal/audit"
	"github.com/MrEthical07/goQrLogin/internal/rate"
	"github.com/MrEthical07/goQrLogin/qrcrypto"
	"github.com/MrEthical07/goQrLogin/session"
	"github.com/MrEthical07/goQrLogin/ticket"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an [Engine]. Builders are configured during
// initialization and discarded after Build.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	issuer   TicketIssuer
	resolver RoleResolver
	sink     EventSink

	built bool
}

// New returns a Builder seeded with the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the builder's configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client backing the session store and rate limiter.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithTicketIssuer injects a custom ticket issuer. When unset, Build
// constructs the JWT-backed default from Config.Ticket.
func (b *Builder) WithTicketIssuer(issuer TicketIssuer) *Builder {
	b.issuer = issuer
	return b
}

// WithRoleResolver injects the role resolver consulted at approval.
func (b *Builder) WithRoleResolver(resolver RoleResolver) *Builder {
	b.resolver = resolver
	return b
}

// WithEventSink sets the destination for security and audit events and
// enables the dispatcher.
func (b *Builder) WithEventSink(sink EventSink) *Builder {
	b.sink = sink
	b.config.Audit.Enabled = true
	return b
}

// WithMetricsEnabled toggles the in-process metrics collector.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles poll latency histogram collection.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration, wires the collaborators, and returns a
// ready engine. A builder can only build once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.resolver == nil {
		return nil, errors.New("role resolver required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	codec, err := qrcrypto.New(qrcrypto.Config{
		Secret:        cfg.Crypto.Secret,
		SigningSecret: cfg.Crypto.SigningSecret,
	})
	if err != nil {
		return nil, err
	}

	issuer := b.issuer
	if issuer == nil {
		defaultIssuer, err := ticket.NewIssuer(ticket.Config{
			TTL:           cfg.Ticket.TTL,
			RefreshTTL:    cfg.Ticket.RefreshTTL,
			SigningMethod: ticket.SigningMethod(cfg.Ticket.SigningMethod),
			PrivateKey:    cloneBytes(cfg.Ticket.PrivateKey),
			PublicKey:     cloneBytes(cfg.Ticket.PublicKey),
			Issuer:        cfg.Ticket.Issuer,
			Audience:      cfg.Ticket.Audience,
		})
		if err != nil {
			return nil, err
		}
		issuer = defaultIssuer
	}

	engine := &Engine{
		config:       cfg,
		sessionStore: session.NewStore(b.redis, cfg.Session.RedisPrefix),
		codec:        codec,
		issuer:       issuer,
		resolver:     b.resolver,
		metrics:      NewMetrics(cfg.Metrics),
		now:          time.Now,
	}

	if cfg.RateLimit.Enabled {
		engine.rateLimiter = rate.New(b.redis, rate.Config{
			Enabled:     true,
			Window:      cfg.RateLimit.Window,
			MaxRequests: cfg.RateLimit.MaxRequests,
		})
	}

	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.sink)

	b.built = true

	return engine, nil
}
