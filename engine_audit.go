package goQrLogin

import (
	"context"

	internalaudit "github.com/MrEthical07/goQrLogin/internal/audit"
)

/*
====================================
EVENT TYPES
====================================
*/

// Audit event types record the normal protocol lifecycle.
const (
	EventSessionInit      = "session_init"
	EventQRScanned        = "qr_scanned"
	EventSessionApproved  = "session_approved"
	EventTicketDelivered  = "ticket_delivered"
	EventSessionCancelled = "session_cancelled"
	EventSessionExpired   = "session_expired"
)

// Security event types record anomalies and abuse signals.
const (
	EventRateLimitExceeded  = "rate_limit_exceeded"
	EventValidationFailed   = "validation_failed"
	EventQRDecryptFailed    = "qr_decrypt_failed"
	EventQRExpired          = "qr_expired"
	EventSignatureMismatch  = "signature_mismatch"
	EventNonceReplayAttempt = "nonce_replay_attempt"
	EventApproveNonceReuse  = "approve_nonce_reuse"
	EventSessionHijack      = "session_hijack_attempt"
	EventDeviceMismatch     = "device_mismatch"
	EventApproveDeviceDrift = "approve_device_drift"
	EventTooManyAttempts    = "too_many_attempts"
	EventUnauthorizedCancel = "unauthorized_cancel"
	EventSuspiciousSession  = "suspicious_session"
	EventLimiterUnavailable = "limiter_unavailable"
)

/*
====================================
EMIT HELPERS
====================================
*/

// emitSecurity queues a security event. The metadata builder runs only when
// the dispatcher is active, so hot paths pay nothing when audit is off.
func (e *Engine) emitSecurity(eventType, sessionID, principalID, ip string, success bool, errMsg string, metadata func() map[string]string) {
	e.emit(internalaudit.KindSecurity, eventType, sessionID, principalID, ip, success, errMsg, metadata)
}

// emitAudit queues a lifecycle audit event.
func (e *Engine) emitAudit(eventType, sessionID, principalID, ip string, success bool, metadata func() map[string]string) {
	e.emit(internalaudit.KindAudit, eventType, sessionID, principalID, ip, success, "", metadata)
}

func (e *Engine) emit(kind, eventType, sessionID, principalID, ip string, success bool, errMsg string, metadata func() map[string]string) {
	if e.audit == nil {
		return
	}

	var meta map[string]string
	if metadata != nil {
		meta = metadata()
	}

	e.audit.Emit(context.Background(), internalaudit.Event{
		Kind:        kind,
		EventType:   eventType,
		SessionID:   sessionID,
		PrincipalID: principalID,
		IP:          ip,
		Success:     success,
		Error:       errMsg,
		Metadata:    meta,
	})
}
