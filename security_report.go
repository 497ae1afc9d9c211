package goQrLogin

import "time"

// SecurityReport is a static summary of the engine's security posture,
// derived from configuration at call time. Useful for startup logging and
// compliance checks.
type SecurityReport struct {
	PayloadEncrypted       bool
	SignatureEnforced      bool
	TicketSigningAlgorithm string
	SessionTimeout         time.Duration
	ClockSkewTolerance     time.Duration
	MaxAttempts            int
	NonceRotationEnabled   bool
	ReplayDetectionEnabled bool
	RateLimitingActive     bool
	RateLimitWindow        time.Duration
	RateLimitMaxRequests   int
	SuspiciousThreshold    int
	RetentionTTL           time.Duration
	AuditEnabled           bool
}

func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	return SecurityReport{
		PayloadEncrypted:       len(e.config.Crypto.Secret) > 0,
		SignatureEnforced:      len(e.config.Crypto.SigningSecret) > 0,
		TicketSigningAlgorithm: e.config.Ticket.SigningMethod,
		SessionTimeout:         e.config.Session.Timeout,
		ClockSkewTolerance:     e.config.Session.ClockSkew,
		MaxAttempts:            e.config.Session.MaxAttempts,
		NonceRotationEnabled:   true,
		ReplayDetectionEnabled: true,
		RateLimitingActive:     e.config.RateLimit.Enabled,
		RateLimitWindow:        e.config.RateLimit.Window,
		RateLimitMaxRequests:   e.config.RateLimit.MaxRequests,
		SuspiciousThreshold:    e.config.Risk.SuspiciousThreshold,
		RetentionTTL:           e.config.Session.RetentionTTL,
		AuditEnabled:           e.config.Audit.Enabled,
	}
}
