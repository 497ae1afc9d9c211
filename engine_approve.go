package goQrLogin

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/goQrLogin/internal"
	"github.com/MrEthical07/goQrLogin/session"
	"github.com/MrEthical07/goQrLogin/ticket"
)

// Approve authorizes a pending session from the authenticated mobile device.
// The approve nonce minted at scan time is burned atomically, the principal's
// roles are resolved, and the ticket is attached to the session record. The
// result is an acknowledgement only: the ticket is delivered exclusively to
// the winning poller.
func (e *Engine) Approve(ctx context.Context, req ApproveRequest) (*ApproveResult, error) {
	if e == nil || e.sessionStore == nil {
		return nil, ErrEngineNotReady
	}

	ip := clientIPFromContext(ctx)
	userAgent := userAgentFromContext(ctx)

	if err := e.checkRate(ctx, "approve", ip); err != nil {
		e.metricInc(MetricApproveFailure)
		return nil, err
	}

	sessionID, err := validateSessionID(req.SessionID)
	if err != nil {
		e.metricInc(MetricApproveFailure)
		return nil, err
	}
	if err := validateNonce(req.ApproveNonce); err != nil {
		e.metricInc(MetricApproveFailure)
		return nil, err
	}
	if req.PrincipalID == "" {
		e.metricInc(MetricApproveFailure)
		return nil, fmt.Errorf("%w: principal ID is required", ErrInvalidInput)
	}

	nowMs := e.nowMillis()

	sess, err := e.sessionStore.Get(ctx, sessionID)
	if err != nil {
		e.metricInc(MetricApproveFailure)
		return nil, mapStoreErr(err)
	}
	if !sess.Terminal() && sess.ExpiredBy(nowMs) {
		e.metricInc(MetricApproveFailure)
		e.markExpiredLazily(ctx, sessionID)
		return nil, ErrSessionExpired
	}

	// Burn the single-use approve nonce before any collaborator call so a
	// duplicated request cannot race two approvals.
	updated, err := e.sessionStore.ConsumeApproveNonce(ctx, sessionID,
		internal.HashNonce(req.ApproveNonce), nowMs, e.config.Session.MaxAttempts)
	if err != nil {
		e.metricInc(MetricApproveFailure)
		switch {
		case errors.Is(err, session.ErrApproveNonceUsed):
			e.metricInc(MetricReplayDetected)
			e.emitSecurity(EventApproveNonceReuse, sessionID, req.PrincipalID, ip, false, "", nil)
			e.noteAttemptCancel(updated, sessionID, ip)
			return nil, ErrInvalidApproveNonce
		case errors.Is(err, session.ErrNonceMismatch):
			e.emitSecurity(EventValidationFailed, sessionID, req.PrincipalID, ip, false, "approve nonce mismatch", nil)
			e.noteAttemptCancel(updated, sessionID, ip)
			return nil, ErrInvalidApproveNonce
		case errors.Is(err, session.ErrSessionExpired):
			e.metricInc(MetricSessionExpired)
			e.emitAudit(EventSessionExpired, sessionID, "", ip, true, nil)
			return nil, ErrSessionExpired
		case errors.Is(err, session.ErrWrongStatus):
			return nil, fmt.Errorf("%w: %v", ErrInvalidSessionStatus, err)
		default:
			return nil, mapStoreErr(err)
		}
	}

	device := sanitizeDevice(req.Device, e.config.Session.MaxFieldLength)
	approveFingerprint := deviceFingerprint(device, userAgent)
	if updated.ScanFingerprint != "" && approveFingerprint != updated.ScanFingerprint && !updated.Suspicious {
		// The approving device differs from the scanning one. Recorded but
		// not fatal: the approve nonce was still valid, and the score is
		// left alone so scan and poll anomalies keep their weight.
		e.emitSecurity(EventApproveDeviceDrift, sessionID, req.PrincipalID, ip, false, "", nil)
	}

	cctx, cancel := e.collaboratorCtx(ctx)
	defer cancel()

	roles, err := e.resolver.Resolve(cctx, req.PrincipalID)
	if err != nil {
		e.metricInc(MetricApproveFailure)
		return nil, fmt.Errorf("%w: %v", ErrRoleResolverUnavailable, err)
	}

	grantedRole, err := e.resolveGrantedRole(updated.Role, roles, req.GuestMode)
	if err != nil {
		e.metricInc(MetricApproveFailure)
		e.emitSecurity(EventValidationFailed, sessionID, req.PrincipalID, ip, false, "insufficient permissions", func() map[string]string {
			return map[string]string{
				"requested_role": updated.Role,
			}
		})
		return nil, err
	}

	displayName := ""
	if req.User != nil {
		displayName = req.User.DisplayName
	}
	tkt, refreshToken, err := e.issuer.Issue(cctx, req.PrincipalID, grantedRole, displayName)
	if err != nil {
		e.metricInc(MetricApproveFailure)
		if errors.Is(err, ticket.ErrMisconfigured) {
			return nil, ErrTicketIssuerMisconfigured
		}
		return nil, err
	}

	patch := session.ApprovePatch{
		ApprovedBy:         req.PrincipalID,
		Role:               grantedRole,
		User:               req.User,
		Ticket:             tkt,
		RefreshToken:       refreshToken,
		ApproveFingerprint: approveFingerprint,
	}
	final, err := e.sessionStore.Approve(ctx, sessionID, patch, nowMs)
	if err != nil {
		e.metricInc(MetricApproveFailure)
		switch {
		case errors.Is(err, session.ErrSessionExpired):
			e.metricInc(MetricSessionExpired)
			e.emitAudit(EventSessionExpired, sessionID, "", ip, true, nil)
			return nil, ErrSessionExpired
		case errors.Is(err, session.ErrWrongStatus):
			return nil, fmt.Errorf("%w: %v", ErrInvalidSessionStatus, err)
		default:
			return nil, mapStoreErr(err)
		}
	}

	e.metricInc(MetricApproveSuccess)
	e.emitAudit(EventSessionApproved, sessionID, req.PrincipalID, ip, true, func() map[string]string {
		return map[string]string{
			"role": grantedRole,
		}
	})

	return &ApproveResult{
		SessionID:  final.SessionID,
		Status:     final.Status,
		Role:       final.Role,
		ApprovedAt: final.ApprovedAt,
	}, nil
}

// resolveGrantedRole picks the role delivered to the web client. Guest mode
// short-circuits to the configured guest role. A session initialized for the
// generic role gets the first fallback role the principal actually holds.
func (e *Engine) resolveGrantedRole(requestedRole string, resolved []string, guestMode bool) (string, error) {
	if guestMode {
		if e.config.Roles.GuestRole == "" {
			return "", ErrInsufficientPermissions
		}
		return e.config.Roles.GuestRole, nil
	}

	generic := e.config.Roles.GenericRole

	if requestedRole != generic {
		if containsRole(resolved, requestedRole) {
			return requestedRole, nil
		}
		if generic != "" && containsRole(resolved, generic) {
			return requestedRole, nil
		}
		return "", ErrInsufficientPermissions
	}

	for _, role := range e.config.Roles.FallbackOrder {
		if containsRole(resolved, role) {
			return role, nil
		}
	}
	return "", ErrInsufficientPermissions
}

// noteAttemptCancel emits the closure events when a failed validation just
// pushed the session over the attempt threshold.
func (e *Engine) noteAttemptCancel(sess *session.Session, sessionID, ip string) {
	if sess == nil || sess.Status != session.StatusCancelled {
		return
	}
	e.metricInc(MetricAttemptsExceeded)
	e.emitSecurity(EventTooManyAttempts, sessionID, "", ip, false, "", func() map[string]string {
		return map[string]string{
			"attempt_count": itoa(sess.AttemptCount),
		}
	})
}

func containsRole(roles []string, role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
