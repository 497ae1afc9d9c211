package goQrLogin

import (
	"context"
	"encoding/json"

	"github.com/MrEthical07/goQrLogin/internal"
	"github.com/MrEthical07/goQrLogin/session"
)

// qrContents is the plaintext sealed into the QR envelope. Everything here
// is duplicated into the session record; the envelope exists so the scanning
// device learns the session identity without a server round trip.
type qrContents struct {
	SessionID string `json:"sid"`
	Role      string `json:"role"`
	IssuedAt  int64  `json:"ts"`
	ExpiresAt int64  `json:"exp"`
	Signature string `json:"sig"`
}

// Init creates a pending login session for an unauthenticated web client and
// returns the encrypted QR payload, its detached signature, and the first
// poll nonce.
func (e *Engine) Init(ctx context.Context, req InitRequest) (*InitResult, error) {
	if e == nil || e.sessionStore == nil {
		return nil, ErrEngineNotReady
	}

	ip := clientIPFromContext(ctx)
	userAgent := userAgentFromContext(ctx)

	if err := e.checkRate(ctx, "init", ip); err != nil {
		e.metricInc(MetricInitFailure)
		return nil, err
	}

	if err := e.validateRole(req.Role); err != nil {
		e.metricInc(MetricInitFailure)
		e.emitSecurity(EventValidationFailed, "", "", ip, false, err.Error(), func() map[string]string {
			return map[string]string{
				"operation": "init",
				"role":      req.Role,
			}
		})
		return nil, err
	}

	sid, err := internal.NewSessionID()
	if err != nil {
		e.metricInc(MetricInitFailure)
		return nil, err
	}
	sessionID := sid.String()

	pollNonce, err := internal.NewNonce()
	if err != nil {
		e.metricInc(MetricInitFailure)
		return nil, err
	}

	now := e.now()
	nowMs := now.UnixMilli()
	expiresAt := nowMs + e.config.Session.Timeout.Milliseconds()

	risk := internal.ScoreRisk(ip, userAgent, internal.RiskWeights{
		MissingIP:        e.config.Risk.MissingIP,
		MissingUserAgent: e.config.Risk.MissingUserAgent,
	})
	suspicious := risk >= e.config.Risk.SuspiciousThreshold

	device := sanitizeDevice(req.Device, e.config.Session.MaxFieldLength)

	// A fingerprint is bound only when the creator actually described its
	// device; scans are compared against it when present.
	creatorFingerprint := ""
	if device != nil {
		creatorFingerprint = deviceFingerprint(device, userAgent)
	}

	// The signature rides inside the sealed plaintext so a bare QR payload is
	// self-authenticating; the detached copy exists for transports that carry
	// it separately.
	signature := e.codec.Sign(sessionID, nowMs)

	plaintext, err := json.Marshal(qrContents{
		SessionID: sessionID,
		Role:      req.Role,
		IssuedAt:  nowMs,
		ExpiresAt: expiresAt,
		Signature: signature,
	})
	if err != nil {
		e.metricInc(MetricInitFailure)
		return nil, err
	}

	payload, err := e.codec.Encrypt(plaintext, nowMs)
	if err != nil {
		e.metricInc(MetricInitFailure)
		return nil, err
	}

	sess := &session.Session{
		SessionID:          sessionID,
		Status:             session.StatusPending,
		Role:               req.Role,
		Source:             sanitizeField(req.Source, e.config.Session.MaxFieldLength),
		CreatedAt:          nowMs,
		ExpiresAt:          expiresAt,
		LastAccessAt:       nowMs,
		PollNonceHash:      internal.HashNonce(pollNonce),
		NonceIssuedAt:      nowMs,
		CreatorIP:          ip,
		CreatorUserAgent:   sanitizeField(userAgent, e.config.Session.MaxFieldLength),
		CreatorFingerprint: creatorFingerprint,
		CreatorDevice:      device,
		RiskScore:          risk,
		Suspicious:         suspicious,
	}

	ttl := e.config.Session.Timeout + e.config.Session.RetentionTTL
	if err := e.sessionStore.Save(ctx, sess, ttl); err != nil {
		e.metricInc(MetricInitFailure)
		return nil, mapStoreErr(err)
	}

	e.metricInc(MetricSessionCreated)
	e.metricInc(MetricInitSuccess)
	e.emitAudit(EventSessionInit, sessionID, "", ip, true, func() map[string]string {
		return map[string]string{
			"role":   req.Role,
			"source": sess.Source,
		}
	})
	if suspicious {
		e.emitSecurity(EventSuspiciousSession, sessionID, "", ip, false, "", func() map[string]string {
			return map[string]string{
				"stage":      "init",
				"risk_score": itoa(risk),
			}
		})
	}

	return &InitResult{
		SessionID:       sessionID,
		QRPayload:       payload,
		Signature:       signature,
		PollNonce:       pollNonce,
		IssuedAt:        nowMs,
		ExpiresAt:       expiresAt,
		ExpiresInSec:    expiresInSec(nowMs, expiresAt),
		PollIntervalSec: int(e.config.Session.PollInterval.Seconds()),
		RiskScore:       risk,
	}, nil
}
