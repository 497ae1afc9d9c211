package goQrLogin

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goQrLogin/internal"
	"github.com/MrEthical07/goQrLogin/session"
)

// Poll checks session progress from the web client. The poll nonce is
// optional: when supplied against a pending session it is validated and
// rotated, and the next one is returned; a nonce-less poll reads the state
// without rotating. The single winning poll of an approved session observes
// status "confirmed" and receives the ticket; every later poll observes
// "consumed". Terminal states come back as informational results, not errors.
func (e *Engine) Poll(ctx context.Context, req PollRequest) (*PollResult, error) {
	if e == nil || e.sessionStore == nil {
		return nil, ErrEngineNotReady
	}
	if e.metrics != nil && e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() {
			e.metrics.Observe(MetricPollLatency, time.Since(start))
		}()
	}

	ip := clientIPFromContext(ctx)

	if err := e.checkRate(ctx, "poll", ip); err != nil {
		e.metricInc(MetricPollFailure)
		return nil, err
	}

	sessionID, err := validateSessionID(req.SessionID)
	if err != nil {
		e.metricInc(MetricPollFailure)
		return nil, err
	}
	if req.PollNonce != "" {
		if err := validateNonce(req.PollNonce); err != nil {
			e.metricInc(MetricPollFailure)
			return nil, err
		}
	}

	nowMs := e.nowMillis()

	sess, err := e.sessionStore.Get(ctx, sessionID)
	if err != nil {
		e.metricInc(MetricPollFailure)
		return nil, mapStoreErr(err)
	}

	if !sess.Terminal() && sess.ExpiredBy(nowMs) {
		e.markExpiredLazily(ctx, sessionID)
		sess.Status = session.StatusExpired
		sess.ExpiredAt = nowMs
	}

	// A session that burned through its attempt budget is closed to polling
	// for good, even once the cancellation has been persisted.
	if e.config.Session.MaxAttempts > 0 && sess.AttemptCount >= e.config.Session.MaxAttempts &&
		sess.Status != session.StatusExpired {
		if sess.Status == session.StatusPending {
			if cancelled, cErr := e.sessionStore.Cancel(ctx, sessionID, "too_many_attempts", nowMs); cErr == nil {
				sess = cancelled
				e.noteAttemptCancel(sess, sessionID, ip)
			}
		}
		e.metricInc(MetricPollFailure)
		return nil, ErrTooManyAttempts
	}

	// Poll IP guard: a poll from an address other than the session creator's
	// is the hijack signature of a relayed QR. The session keeps serving so
	// the legitimate client is not denied by NAT churn, but the flag sticks
	// and the penalty lands once, on the poll that first trips the guard.
	if sess.CreatorIP != "" && ip != "" && ip != sess.CreatorIP && !sess.Suspicious {
		updated, err := e.sessionStore.RaiseRisk(ctx, sessionID, e.config.Risk.PollIPMismatch, true, nowMs)
		if err != nil {
			e.metricInc(MetricPollFailure)
			return nil, mapStoreErr(err)
		}
		sess = updated
		e.metricInc(MetricHijackSuspected)
		e.emitSecurity(EventSessionHijack, sessionID, "", ip, false, "", func() map[string]string {
			return map[string]string{
				"creator_ip": sess.CreatorIP,
				"risk_score": itoa(sess.RiskScore),
			}
		})
	}

	switch sess.Status {
	case session.StatusPending:
		return e.pollPending(ctx, sess, req.PollNonce, ip, nowMs)
	case session.StatusApproved:
		return e.pollApproved(ctx, sess, req.PollNonce, ip, nowMs)
	default:
		return terminalPollResult(sess), nil
	}
}

func (e *Engine) pollPending(ctx context.Context, sess *session.Session, pollNonce, ip string, nowMs int64) (*PollResult, error) {
	sessionID := sess.SessionID

	// A nonce-less poll is a plain status read: no rotation, no attempt
	// bookkeeping, and no fresh nonce in the result.
	if pollNonce == "" {
		e.metricInc(MetricPollPending)
		return &PollResult{
			SessionID:  sess.SessionID,
			Status:     session.StatusPending,
			Scanned:    sess.ScanCount > 0,
			ExpiresAt:  sess.ExpiresAt,
			RiskScore:  sess.RiskScore,
			Suspicious: sess.Suspicious,
		}, nil
	}

	nextNonce, err := internal.NewNonce()
	if err != nil {
		e.metricInc(MetricPollFailure)
		return nil, err
	}

	updated, err := e.sessionStore.RotatePollNonce(ctx, sessionID,
		internal.HashNonce(pollNonce), internal.HashNonce(nextNonce),
		nowMs, e.config.Session.MaxAttempts)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrNonceReplayed):
			e.metricInc(MetricPollFailure)
			e.metricInc(MetricReplayDetected)
			attempts := 0
			if updated != nil {
				attempts = updated.AttemptCount
			}
			e.emitSecurity(EventNonceReplayAttempt, sessionID, "", ip, false, "", func() map[string]string {
				return map[string]string{
					"attempt_count": itoa(attempts),
				}
			})
			e.noteAttemptCancel(updated, sessionID, ip)
			return nil, ErrInvalidNonce
		case errors.Is(err, session.ErrNonceMismatch):
			e.metricInc(MetricPollFailure)
			e.emitSecurity(EventValidationFailed, sessionID, "", ip, false, "poll nonce mismatch", nil)
			e.noteAttemptCancel(updated, sessionID, ip)
			return nil, ErrInvalidNonce
		case errors.Is(err, session.ErrSessionExpired):
			e.metricInc(MetricSessionExpired)
			e.emitAudit(EventSessionExpired, sessionID, "", ip, true, nil)
			return terminalPollResult(updated), nil
		case errors.Is(err, session.ErrWrongStatus):
			// The session moved on between the read and the rotation. Re-read
			// and serve the new state.
			fresh, getErr := e.sessionStore.Get(ctx, sessionID)
			if getErr != nil {
				e.metricInc(MetricPollFailure)
				return nil, mapStoreErr(getErr)
			}
			if fresh.Status == session.StatusApproved {
				return e.pollApproved(ctx, fresh, pollNonce, ip, nowMs)
			}
			return terminalPollResult(fresh), nil
		default:
			e.metricInc(MetricPollFailure)
			return nil, mapStoreErr(err)
		}
	}

	e.metricInc(MetricPollPending)

	return &PollResult{
		SessionID:  updated.SessionID,
		Status:     session.StatusPending,
		Nonce:      nextNonce,
		Scanned:    updated.ScanCount > 0,
		ExpiresAt:  updated.ExpiresAt,
		RiskScore:  updated.RiskScore,
		Suspicious: updated.Suspicious,
	}, nil
}

func (e *Engine) pollApproved(ctx context.Context, sess *session.Session, pollNonce, ip string, nowMs int64) (*PollResult, error) {
	if pollNonce != "" && !internal.VerifyNonceHash(pollNonce, sess.PollNonceHash) {
		e.metricInc(MetricPollFailure)
		e.emitSecurity(EventValidationFailed, sess.SessionID, "", ip, false, "poll nonce mismatch", nil)
		updated, err := e.sessionStore.IncrementAttempts(ctx, sess.SessionID, nowMs, e.config.Session.MaxAttempts)
		if err == nil {
			e.noteAttemptCancel(updated, sess.SessionID, ip)
		}
		return nil, ErrInvalidNonce
	}

	consumed, err := e.sessionStore.ConsumeTicket(ctx, sess.SessionID, nowMs)
	if err != nil {
		if errors.Is(err, session.ErrWrongStatus) {
			// Lost the delivery race. The winner already took the ticket.
			fresh, getErr := e.sessionStore.Get(ctx, sess.SessionID)
			if getErr != nil {
				e.metricInc(MetricPollFailure)
				return nil, mapStoreErr(getErr)
			}
			return terminalPollResult(fresh), nil
		}
		e.metricInc(MetricPollFailure)
		return nil, mapStoreErr(err)
	}

	e.metricInc(MetricPollDelivered)
	e.emitAudit(EventTicketDelivered, consumed.SessionID, consumed.ApprovedBy, ip, true, func() map[string]string {
		return map[string]string{
			"role": consumed.Role,
		}
	})

	return &PollResult{
		SessionID:    consumed.SessionID,
		Status:       "confirmed",
		Scanned:      true,
		Ticket:       consumed.Ticket,
		RefreshToken: consumed.RefreshToken,
		Role:         consumed.Role,
		User:         consumed.User,
		RedirectTo:   e.redirectFor(consumed.Role),
		ConsumedAt:   consumed.ConsumedAt,
		ExpiresAt:    consumed.ExpiresAt,
		RiskScore:    consumed.RiskScore,
		Suspicious:   consumed.Suspicious,
	}, nil
}

func (e *Engine) redirectFor(role string) string {
	if dest, ok := e.config.Roles.RedirectMap[role]; ok && dest != "" {
		return dest
	}
	return e.config.Roles.DefaultRedirect
}

// terminalPollResult shapes an informational result for a session that can no
// longer be confirmed. Late pollers see what happened, never the ticket.
func terminalPollResult(sess *session.Session) *PollResult {
	res := &PollResult{
		SessionID:   sess.SessionID,
		Status:      sess.Status,
		Scanned:     sess.ScanCount > 0,
		ExpiresAt:   sess.ExpiresAt,
		ConsumedAt:  sess.ConsumedAt,
		CancelledAt: sess.CancelledAt,
		RiskScore:   sess.RiskScore,
		Suspicious:  sess.Suspicious,
	}
	switch sess.Status {
	case session.StatusCancelled:
		res.Reason = sess.CancelReason
	case session.StatusExpired:
		res.Reason = "expired"
	}
	return res
}
