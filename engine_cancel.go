package goQrLogin

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/goQrLogin/session"
)

const defaultCancelReason = "user_cancelled"

// Cancel aborts a pending session. Only the creating client may cancel: a
// request from another IP is refused unless the session is already flagged
// suspicious, in which case any party shutting it down is welcome.
func (e *Engine) Cancel(ctx context.Context, req CancelRequest) (*CancelResult, error) {
	if e == nil || e.sessionStore == nil {
		return nil, ErrEngineNotReady
	}

	ip := clientIPFromContext(ctx)

	if err := e.checkRate(ctx, "cancel", ip); err != nil {
		e.metricInc(MetricCancelFailure)
		return nil, err
	}

	sessionID, err := validateSessionID(req.SessionID)
	if err != nil {
		e.metricInc(MetricCancelFailure)
		return nil, err
	}

	reason := sanitizeField(req.Reason, e.config.Session.MaxFieldLength)
	if reason == "" {
		reason = defaultCancelReason
	}

	nowMs := e.nowMillis()

	sess, err := e.sessionStore.Get(ctx, sessionID)
	if err != nil {
		e.metricInc(MetricCancelFailure)
		return nil, mapStoreErr(err)
	}
	if !sess.Terminal() && sess.ExpiredBy(nowMs) {
		e.metricInc(MetricCancelFailure)
		e.markExpiredLazily(ctx, sessionID)
		return nil, ErrSessionExpired
	}

	if sess.CreatorIP != "" && ip != "" && ip != sess.CreatorIP && !sess.Suspicious {
		e.metricInc(MetricCancelFailure)
		e.emitSecurity(EventUnauthorizedCancel, sessionID, "", ip, false, "", func() map[string]string {
			return map[string]string{
				"creator_ip": sess.CreatorIP,
			}
		})
		return nil, ErrUnauthorized
	}

	updated, err := e.sessionStore.Cancel(ctx, sessionID, reason, nowMs)
	if err != nil {
		e.metricInc(MetricCancelFailure)
		if errors.Is(err, session.ErrWrongStatus) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSessionStatus, err)
		}
		return nil, mapStoreErr(err)
	}

	e.metricInc(MetricCancelSuccess)
	e.emitAudit(EventSessionCancelled, sessionID, "", ip, true, func() map[string]string {
		return map[string]string{
			"reason": reason,
		}
	})

	return &CancelResult{
		SessionID:   updated.SessionID,
		Status:      updated.Status,
		Reason:      updated.CancelReason,
		CancelledAt: updated.CancelledAt,
	}, nil
}
