package goQrLogin

import (
	"testing"
	"time"
)

func validTestConfig() Config {
	cfg := defaultConfig()
	cfg.Crypto.Secret = []byte("secret")
	cfg.Crypto.SigningSecret = []byte("signing")
	return cfg
}

func TestConfigValidateDefaults(t *testing.T) {
	cfg := validTestConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestConfigValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero timeout", func(c *Config) { c.Session.Timeout = 0 }},
		{"negative skew", func(c *Config) { c.Session.ClockSkew = -time.Second }},
		{"zero max attempts", func(c *Config) { c.Session.MaxAttempts = 0 }},
		{"zero poll interval", func(c *Config) { c.Session.PollInterval = 0 }},
		{"missing secret", func(c *Config) { c.Crypto.Secret = nil }},
		{"missing signing secret", func(c *Config) { c.Crypto.SigningSecret = nil }},
		{"empty role whitelist", func(c *Config) { c.Roles.Allowed = nil }},
		{"fallback outside whitelist", func(c *Config) { c.Roles.FallbackOrder = []string{"root"} }},
		{"guest role outside whitelist", func(c *Config) { c.Roles.GuestRole = "visitor" }},
		{"rate limit zero window", func(c *Config) { c.RateLimit.Window = 0 }},
		{"negative risk penalty", func(c *Config) { c.Risk.MissingIP = -1 }},
		{"threshold over 100", func(c *Config) { c.Risk.SuspiciousThreshold = 101 }},
		{"audit zero buffer", func(c *Config) {
			c.Audit.Enabled = true
			c.Audit.BufferSize = 0
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validTestConfig()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestCloneConfigIsolation(t *testing.T) {
	cfg := validTestConfig()
	cfg.Roles.RedirectMap = map[string]string{"admin": "/admin"}

	cloned := cloneConfig(cfg)

	cfg.Crypto.Secret[0] = 'X'
	cfg.Roles.Allowed[0] = "mutated"
	cfg.Roles.RedirectMap["admin"] = "/mutated"

	if cloned.Crypto.Secret[0] == 'X' {
		t.Fatal("expected secret bytes to be copied")
	}
	if cloned.Roles.Allowed[0] == "mutated" {
		t.Fatal("expected role slice to be copied")
	}
	if cloned.Roles.RedirectMap["admin"] == "/mutated" {
		t.Fatal("expected redirect map to be copied")
	}
}

func TestBuilderRequiresCollaborators(t *testing.T) {
	if _, err := New().WithConfig(validTestConfig()).Build(); err == nil {
		t.Fatal("expected error without redis client")
	}

	mr, rdb := newTestRedis(t)
	defer mr.Close()

	if _, err := New().WithConfig(validTestConfig()).WithRedis(rdb).Build(); err == nil {
		t.Fatal("expected error without role resolver")
	}
}

func TestBuilderSingleUse(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	builder := New().
		WithConfig(qrTestConfig()).
		WithRedis(rdb).
		WithRoleResolver(defaultTestResolver())

	engine, err := builder.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	if _, err := builder.Build(); err == nil {
		t.Fatal("expected second Build to fail")
	}
}
