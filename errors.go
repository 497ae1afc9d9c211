package goQrLogin

import "errors"

var (
	// ErrInvalidInput reports a request that failed validation before any
	// side effect.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidRole reports a role outside the configured whitelist.
	ErrInvalidRole = errors.New("invalid role")
	// ErrRateLimited reports a client over its sliding-window budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrSessionNotFound reports an unknown or already purged session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrQRExpired reports a QR payload older than the freshness window.
	ErrQRExpired = errors.New("qr code expired")
	// ErrUnsupportedVersion reports a QR payload from another protocol version.
	ErrUnsupportedVersion = errors.New("unsupported payload version")
	// ErrInvalidSignature reports a session signature mismatch.
	ErrInvalidSignature = errors.New("invalid signature")
	// ErrInvalidQRCode reports a payload that failed to decrypt or parse.
	ErrInvalidQRCode = errors.New("invalid qr code")
	// ErrInvalidNonce reports a poll nonce that is stale, replayed, or wrong.
	ErrInvalidNonce = errors.New("invalid nonce")
	// ErrInvalidApproveNonce reports a wrong or already consumed approve nonce.
	ErrInvalidApproveNonce = errors.New("invalid approve nonce")
	// ErrInvalidSessionStatus reports an operation against a session in the
	// wrong state for it.
	ErrInvalidSessionStatus = errors.New("invalid session status")
	// ErrSessionExpired reports a session past its deadline.
	ErrSessionExpired = errors.New("session expired")
	// ErrTooManyAttempts reports a session closed by the attempt threshold.
	ErrTooManyAttempts = errors.New("too many attempts")
	// ErrInsufficientPermissions reports a principal without the session's
	// requested role.
	ErrInsufficientPermissions = errors.New("insufficient permissions")
	// ErrUnauthorized reports a caller that may not act on this session.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrTicketIssuerMisconfigured reports a permanent ticket issuer failure.
	ErrTicketIssuerMisconfigured = errors.New("ticket issuer misconfigured")
	// ErrRoleResolverUnavailable reports a role resolver failure.
	ErrRoleResolverUnavailable = errors.New("role resolver unavailable")
	// ErrStoreUnavailable wraps session store transport failures.
	ErrStoreUnavailable = errors.New("session store unavailable")
	// ErrEngineNotReady reports use of an unbuilt or closed engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// ErrorCode maps an engine error to its stable wire code for callers that
// expose the structured {code, message} response shape.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidRole):
		return "INVALID_ROLE"
	case errors.Is(err, ErrInvalidInput):
		return "INVALID_INPUT"
	case errors.Is(err, ErrRateLimited):
		return "RATE_LIMITED"
	case errors.Is(err, ErrSessionNotFound):
		return "SESSION_NOT_FOUND"
	case errors.Is(err, ErrQRExpired):
		return "QR_CODE_EXPIRED"
	case errors.Is(err, ErrUnsupportedVersion):
		return "UNSUPPORTED_VERSION"
	case errors.Is(err, ErrInvalidSignature):
		return "INVALID_SIGNATURE"
	case errors.Is(err, ErrInvalidQRCode):
		return "INVALID_QR_CODE"
	case errors.Is(err, ErrInvalidNonce):
		return "INVALID_NONCE"
	case errors.Is(err, ErrInvalidApproveNonce):
		return "INVALID_APPROVE_NONCE"
	case errors.Is(err, ErrInvalidSessionStatus):
		return "INVALID_SESSION_STATUS"
	case errors.Is(err, ErrSessionExpired):
		return "SESSION_EXPIRED"
	case errors.Is(err, ErrTooManyAttempts):
		return "TOO_MANY_ATTEMPTS"
	case errors.Is(err, ErrInsufficientPermissions):
		return "INSUFFICIENT_PERMISSIONS"
	case errors.Is(err, ErrUnauthorized):
		return "UNAUTHORIZED"
	case errors.Is(err, ErrTicketIssuerMisconfigured):
		return "TICKET_ISSUER_MISCONFIGURED"
	case errors.Is(err, ErrRoleResolverUnavailable):
		return "ROLE_RESOLVER_UNAVAILABLE"
	case errors.Is(err, ErrStoreUnavailable):
		return "STORE_UNAVAILABLE"
	default:
		return "INTERNAL_ERROR"
	}
}
