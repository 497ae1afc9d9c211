package goQrLogin

import (
	"errors"
	"time"
)

// Config defines the engine configuration. Instances are cloned at build
// time and treated as immutable afterwards.
type Config struct {
	Session   SessionConfig
	Crypto    CryptoConfig
	Roles     RoleConfig
	RateLimit RateLimitConfig
	Risk      RiskConfig
	Ticket    TicketConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig tunes session lifetime and protocol pacing.
type SessionConfig struct {
	RedisPrefix string
	// Timeout is the active lifetime of a session from init.
	Timeout time.Duration
	// ClockSkew is the tolerance applied to QR payload freshness checks.
	ClockSkew time.Duration
	// MaxAttempts closes a session after this many failed nonce validations.
	MaxAttempts int
	// PollInterval is the recommended delay hint returned to pollers.
	PollInterval time.Duration
	// RetentionTTL keeps terminal sessions readable past expiry so late
	// pollers observe the terminal state instead of a not-found.
	RetentionTTL time.Duration
	// CollaboratorTimeout bounds role resolver and ticket issuer calls.
	CollaboratorTimeout time.Duration
	// MaxPayloadBytes caps the accepted QR payload size.
	MaxPayloadBytes int
	// MaxFieldLength caps free-form request strings.
	MaxFieldLength int
}

/*
====================================
CRYPTO CONFIG
====================================
*/

// CryptoConfig carries the two independent codec secrets.
type CryptoConfig struct {
	// Secret feeds the AEAD key derivation for QR envelopes.
	Secret []byte
	// SigningSecret keys the detached session signature.
	SigningSecret []byte
}

/*
====================================
ROLE CONFIG
====================================
*/

// RoleConfig defines the role whitelist and resolution policy.
type RoleConfig struct {
	// Allowed is the whitelist a session may be initialized for.
	Allowed []string
	// FallbackOrder is tried in order when the principal lacks the
	// requested role.
	FallbackOrder []string
	// GenericRole grants any requested role when present in the resolved
	// set.
	GenericRole string
	// GuestRole is delivered when approval opts into guest mode.
	GuestRole string
	// RedirectMap maps a delivered role to its post-login destination.
	RedirectMap map[string]string
	// DefaultRedirect is used when RedirectMap has no entry for the role.
	DefaultRedirect string
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig tunes the per-client sliding window.
type RateLimitConfig struct {
	Enabled     bool
	Window      time.Duration
	MaxRequests int
}

/*
====================================
RISK CONFIG
====================================
*/

// RiskConfig holds the additive risk penalties. The relative ordering
// (poll IP mismatch above scan device mismatch above missing headers) is
// the contract; the magnitudes are tunable.
type RiskConfig struct {
	MissingIP          int
	MissingUserAgent   int
	PollIPMismatch     int
	ScanDeviceMismatch int
	// SuspiciousThreshold flags the session once the cumulative score
	// reaches it. The flag never clears.
	SuspiciousThreshold int
}

/*
====================================
TICKET CONFIG
====================================
*/

// TicketConfig configures the built-in JWT issuer. Ignored when a custom
// [TicketIssuer] is injected.
type TicketConfig struct {
	TTL           time.Duration
	RefreshTTL    time.Duration
	SigningMethod string // "ed25519" (default), "hs256" optional
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
}

// AuditConfig controls the async event dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the in-process metrics collector.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the recommended starting configuration. Secrets and
// ticket key material must still be supplied before Build.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Session: SessionConfig{
			RedisPrefix:         "qrl:s",
			Timeout:             90 * time.Second,
			ClockSkew:           30 * time.Second,
			MaxAttempts:         3,
			PollInterval:        2 * time.Second,
			RetentionTTL:        24 * time.Hour,
			CollaboratorTimeout: 5 * time.Second,
			MaxPayloadBytes:     1 << 20,
			MaxFieldLength:      256,
		},
		Roles: RoleConfig{
			Allowed:         []string{"admin", "social_worker", "volunteer", "parent", "guest", "multi"},
			FallbackOrder:   []string{"social_worker", "volunteer", "parent", "guest"},
			GenericRole:     "multi",
			GuestRole:       "guest",
			DefaultRedirect: "/dashboard",
		},
		RateLimit: RateLimitConfig{
			Enabled:     true,
			Window:      60 * time.Second,
			MaxRequests: 10,
		},
		Risk: RiskConfig{
			MissingIP:           20,
			MissingUserAgent:    10,
			PollIPMismatch:      50,
			ScanDeviceMismatch:  30,
			SuspiciousThreshold: 50,
		},
		Ticket: TicketConfig{
			TTL:           2 * time.Hour,
			RefreshTTL:    30 * 24 * time.Hour,
			SigningMethod: "ed25519",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Crypto.Secret = cloneBytes(cfg.Crypto.Secret)
	out.Crypto.SigningSecret = cloneBytes(cfg.Crypto.SigningSecret)
	out.Ticket.PrivateKey = cloneBytes(cfg.Ticket.PrivateKey)
	out.Ticket.PublicKey = cloneBytes(cfg.Ticket.PublicKey)
	out.Roles.Allowed = cloneStrings(cfg.Roles.Allowed)
	out.Roles.FallbackOrder = cloneStrings(cfg.Roles.FallbackOrder)
	if cfg.Roles.RedirectMap != nil {
		out.Roles.RedirectMap = make(map[string]string, len(cfg.Roles.RedirectMap))
		for k, v := range cfg.Roles.RedirectMap {
			out.Roles.RedirectMap[k] = v
		}
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func cloneStrings(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	// Session
	if c.Session.Timeout <= 0 {
		return errors.New("Session Timeout must be > 0")
	}
	if c.Session.ClockSkew < 0 {
		return errors.New("Session ClockSkew must be >= 0")
	}
	if c.Session.MaxAttempts <= 0 {
		return errors.New("Session MaxAttempts must be > 0")
	}
	if c.Session.PollInterval <= 0 {
		return errors.New("Session PollInterval must be > 0")
	}
	if c.Session.RetentionTTL < 0 {
		return errors.New("Session RetentionTTL must be >= 0")
	}
	if c.Session.CollaboratorTimeout <= 0 {
		return errors.New("Session CollaboratorTimeout must be > 0")
	}
	if c.Session.MaxPayloadBytes <= 0 {
		return errors.New("Session MaxPayloadBytes must be > 0")
	}
	if c.Session.MaxFieldLength <= 0 {
		return errors.New("Session MaxFieldLength must be > 0")
	}

	// Crypto
	if len(c.Crypto.Secret) == 0 {
		return errors.New("Crypto Secret is required")
	}
	if len(c.Crypto.SigningSecret) == 0 {
		return errors.New("Crypto SigningSecret is required")
	}

	// Roles
	if len(c.Roles.Allowed) == 0 {
		return errors.New("Roles Allowed must not be empty")
	}
	allowed := make(map[string]struct{}, len(c.Roles.Allowed))
	for _, role := range c.Roles.Allowed {
		if role == "" {
			return errors.New("Roles Allowed contains an empty role")
		}
		allowed[role] = struct{}{}
	}
	for _, role := range c.Roles.FallbackOrder {
		if _, ok := allowed[role]; !ok {
			return errors.New("Roles FallbackOrder contains a role outside the whitelist")
		}
	}
	if c.Roles.GuestRole != "" {
		if _, ok := allowed[c.Roles.GuestRole]; !ok {
			return errors.New("Roles GuestRole must be whitelisted")
		}
	}

	// Rate limit
	if c.RateLimit.Enabled {
		if c.RateLimit.Window <= 0 {
			return errors.New("RateLimit Window must be > 0 when enabled")
		}
		if c.RateLimit.MaxRequests <= 0 {
			return errors.New("RateLimit MaxRequests must be > 0 when enabled")
		}
	}

	// Risk
	if c.Risk.MissingIP < 0 || c.Risk.MissingUserAgent < 0 ||
		c.Risk.PollIPMismatch < 0 || c.Risk.ScanDeviceMismatch < 0 {
		return errors.New("Risk penalties must be >= 0")
	}
	if c.Risk.SuspiciousThreshold <= 0 || c.Risk.SuspiciousThreshold > 100 {
		return errors.New("Risk SuspiciousThreshold must be in (0, 100]")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}
