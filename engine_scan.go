package goQrLogin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/MrEthical07/goQrLogin/internal"
	"github.com/MrEthical07/goQrLogin/qrcrypto"
	"github.com/MrEthical07/goQrLogin/session"
)

// Scan decrypts and verifies a QR payload on the authenticated mobile device,
// records the scan on the session, and mints the single-use approve nonce.
// Re-scanning is allowed while the session is pending; a re-scan from a
// different device raises the risk score.
func (e *Engine) Scan(ctx context.Context, req ScanRequest) (*ScanResult, error) {
	if e == nil || e.sessionStore == nil {
		return nil, ErrEngineNotReady
	}

	ip := clientIPFromContext(ctx)
	userAgent := userAgentFromContext(ctx)

	if err := e.checkRate(ctx, "scan", ip); err != nil {
		e.metricInc(MetricScanFailure)
		return nil, err
	}

	if err := e.validatePayload(req.QRPayload); err != nil {
		e.metricInc(MetricScanFailure)
		return nil, err
	}

	plaintext, issuedAt, err := e.codec.Decrypt(req.QRPayload)
	if err != nil {
		e.metricInc(MetricScanFailure)
		if errors.Is(err, qrcrypto.ErrUnsupportedVersion) {
			return nil, ErrUnsupportedVersion
		}
		e.emitSecurity(EventQRDecryptFailed, "", "", ip, false, err.Error(), nil)
		return nil, ErrInvalidQRCode
	}

	var contents qrContents
	if err := json.Unmarshal(plaintext, &contents); err != nil || contents.SessionID == "" {
		e.metricInc(MetricScanFailure)
		e.emitSecurity(EventQRDecryptFailed, "", "", ip, false, "malformed contents", nil)
		return nil, ErrInvalidQRCode
	}

	nowMs := e.nowMillis()

	// Freshness is judged on the envelope mint time, not the session record,
	// so a captured QR image goes stale even if the session is kept alive.
	// The window is asymmetric: a payload may lag by the session timeout but
	// lead by no more than the clock skew tolerance.
	age := nowMs - issuedAt
	if age > e.config.Session.Timeout.Milliseconds() || age < -e.config.Session.ClockSkew.Milliseconds() {
		e.metricInc(MetricScanFailure)
		e.emitSecurity(EventQRExpired, contents.SessionID, "", ip, false, "", func() map[string]string {
			return map[string]string{
				"age_ms": strconv.FormatInt(age, 10),
			}
		})
		return nil, ErrQRExpired
	}

	// A detached signature, when supplied, takes precedence over the one
	// sealed in the envelope.
	signature := req.Signature
	if signature == "" {
		signature = contents.Signature
	}
	if !e.codec.Verify(contents.SessionID, issuedAt, signature) {
		e.metricInc(MetricScanFailure)
		e.emitSecurity(EventSignatureMismatch, contents.SessionID, "", ip, false, "", nil)
		return nil, ErrInvalidSignature
	}

	sess, err := e.sessionStore.Get(ctx, contents.SessionID)
	if err != nil {
		e.metricInc(MetricScanFailure)
		return nil, mapStoreErr(err)
	}
	if !sess.Terminal() && sess.ExpiredBy(nowMs) {
		e.metricInc(MetricScanFailure)
		e.markExpiredLazily(ctx, sess.SessionID)
		return nil, ErrQRExpired
	}
	if sess.Status != session.StatusPending {
		e.metricInc(MetricScanFailure)
		return nil, fmt.Errorf("%w: %s", ErrInvalidSessionStatus, sess.Status)
	}

	device := sanitizeDevice(req.Device, e.config.Session.MaxFieldLength)
	scanFingerprint := deviceFingerprint(device, userAgent)

	penalty := internal.ScoreRisk(ip, userAgent, internal.RiskWeights{
		MissingIP:        e.config.Risk.MissingIP,
		MissingUserAgent: e.config.Risk.MissingUserAgent,
	})
	// A scanner whose fingerprint differs from the creator's bound one, or
	// from an earlier scan's, is flagged outright. The scan itself proceeds.
	deviceChanged := (sess.CreatorFingerprint != "" && sess.CreatorFingerprint != scanFingerprint) ||
		(sess.ScanFingerprint != "" && sess.ScanFingerprint != scanFingerprint)
	if deviceChanged {
		penalty += e.config.Risk.ScanDeviceMismatch
	}

	score := internal.ClampRisk(sess.RiskScore + penalty)
	suspicious := deviceChanged || score >= e.config.Risk.SuspiciousThreshold

	approveNonce, err := internal.NewNonce()
	if err != nil {
		e.metricInc(MetricScanFailure)
		return nil, err
	}

	updated, err := e.sessionStore.RecordScan(ctx, sess.SessionID,
		internal.HashNonce(approveNonce), scanFingerprint, ip, score, suspicious, nowMs)
	if err != nil {
		e.metricInc(MetricScanFailure)
		switch {
		case errors.Is(err, session.ErrSessionExpired):
			e.metricInc(MetricSessionExpired)
			e.emitAudit(EventSessionExpired, sess.SessionID, "", ip, true, nil)
			return nil, ErrQRExpired
		case errors.Is(err, session.ErrWrongStatus):
			return nil, fmt.Errorf("%w: %v", ErrInvalidSessionStatus, err)
		default:
			return nil, mapStoreErr(err)
		}
	}

	if deviceChanged {
		e.emitSecurity(EventDeviceMismatch, sess.SessionID, "", ip, false, "", func() map[string]string {
			return map[string]string{
				"scan_count": itoa(updated.ScanCount),
			}
		})
	}
	if suspicious && !sess.Suspicious {
		e.emitSecurity(EventSuspiciousSession, sess.SessionID, "", ip, false, "", func() map[string]string {
			return map[string]string{
				"stage":      "scan",
				"risk_score": itoa(score),
			}
		})
	}

	e.metricInc(MetricScanSuccess)
	e.emitAudit(EventQRScanned, sess.SessionID, "", ip, true, func() map[string]string {
		return map[string]string{
			"scan_count": itoa(updated.ScanCount),
		}
	})

	return &ScanResult{
		SessionID:    updated.SessionID,
		Role:         updated.Role,
		ApproveNonce: approveNonce,
		ExpiresAt:    updated.ExpiresAt,
		ExpiresInSec: expiresInSec(nowMs, updated.ExpiresAt),
		ScanCount:    updated.ScanCount,
		RiskScore:    updated.RiskScore,
		RiskLevel:    riskLevel(updated.RiskScore),
		Suspicious:   updated.Suspicious,
		WebDevice:    updated.CreatorDevice,
		Source:       updated.Source,
	}, nil
}
