package goQrLogin

import (
	"context"
	"time"
)

// SessionInfo is the safe introspection view for a session. It intentionally
// excludes nonce hashes, the ticket, and the refresh token.
type SessionInfo struct {
	SessionID    string
	Status       string
	Role         string
	Source       string
	CreatedAt    int64
	ExpiresAt    int64
	ScannedAt    int64
	ScanCount    int
	AttemptCount int
	RiskScore    int
	RiskLevel    string
	Suspicious   bool
	ApprovedBy   string
	ApprovedAt   int64
	ConsumedAt   int64
	CancelledAt  int64
	CancelReason string
}

// HealthStatus is an on-demand backend health result.
type HealthStatus struct {
	RedisAvailable bool
	RedisLatency   time.Duration
}

// GetSessionInfo returns the introspection view of a session without mutating
// any state. Intended for operator dashboards and support tooling; it never
// exposes credential material.
func (e *Engine) GetSessionInfo(ctx context.Context, sessionID string) (*SessionInfo, error) {
	if e == nil || e.sessionStore == nil {
		return nil, ErrEngineNotReady
	}

	sid, err := validateSessionID(sessionID)
	if err != nil {
		return nil, err
	}

	sess, err := e.sessionStore.Get(ctx, sid)
	if err != nil {
		return nil, mapStoreErr(err)
	}

	info := &SessionInfo{
		SessionID:    sess.SessionID,
		Status:       sess.Status,
		Role:         sess.Role,
		Source:       sess.Source,
		CreatedAt:    sess.CreatedAt,
		ExpiresAt:    sess.ExpiresAt,
		ScannedAt:    sess.ScannedAt,
		ScanCount:    sess.ScanCount,
		AttemptCount: sess.AttemptCount,
		RiskScore:    sess.RiskScore,
		RiskLevel:    riskLevel(sess.RiskScore),
		Suspicious:   sess.Suspicious,
		ApprovedBy:   sess.ApprovedBy,
		ApprovedAt:   sess.ApprovedAt,
		ConsumedAt:   sess.ConsumedAt,
		CancelledAt:  sess.CancelledAt,
		CancelReason: sess.CancelReason,
	}
	if !sess.Terminal() && sess.ExpiredBy(e.nowMillis()) {
		info.Status = "expired"
	}
	return info, nil
}

// Health reports session store availability and round-trip latency.
func (e *Engine) Health(ctx context.Context) HealthStatus {
	if e == nil || e.sessionStore == nil {
		return HealthStatus{}
	}

	latency, err := e.sessionStore.Ping(ctx)
	return HealthStatus{
		RedisAvailable: err == nil,
		RedisLatency:   latency,
	}
}
