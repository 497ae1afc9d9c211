package session

// Session status values. Transitions are one-way: pending is the only state
// with outgoing edges, and consumed, cancelled, and expired are terminal.
const (
	StatusPending   = "pending"
	StatusApproved  = "approved"
	StatusConsumed  = "consumed"
	StatusCancelled = "cancelled"
	StatusExpired   = "expired"
)

// Device is the sanitized description of the device that created or scanned
// a session. Free-form fields are length-capped before they get here.
type Device struct {
	Name       string `json:"name,omitempty"`
	Platform   string `json:"platform,omitempty"`
	OSVersion  string `json:"osVersion,omitempty"`
	Model      string `json:"model,omitempty"`
	AppVersion string `json:"appVersion,omitempty"`
}

// ApprovedUser is the display payload attached at approval and delivered to
// the winning poller. Never contains credentials.
type ApprovedUser struct {
	PrincipalID string `json:"principalId"`
	DisplayName string `json:"displayName,omitempty"`
	Email       string `json:"email,omitempty"`
}

// Session is the persisted protocol record. Serialized as JSON so the store's
// Lua scripts can decode, patch, and re-encode it server-side. Timestamps are
// unix milliseconds.
//
// Nonces are never stored; only their SHA-256 hex digests are. The set of
// used poll-nonce hashes lives in a companion Redis set, not in this blob.
type Session struct {
	SessionID string `json:"sid"`
	Status    string `json:"status"`
	Role      string `json:"role"`
	Source    string `json:"source,omitempty"`

	CreatedAt    int64 `json:"createdAt"`
	ExpiresAt    int64 `json:"expiresAt"`
	LastAccessAt int64 `json:"lastAccessAt,omitempty"`

	PollNonceHash string `json:"pollNonceHash"`
	NonceIssuedAt int64  `json:"nonceIssuedAt,omitempty"`

	ApproveNonceHash string `json:"approveNonceHash,omitempty"`
	ApproveNonceUsed bool   `json:"approveNonceUsed,omitempty"`

	CreatorIP          string  `json:"creatorIp,omitempty"`
	CreatorUserAgent   string  `json:"creatorUa,omitempty"`
	CreatorFingerprint string  `json:"creatorFp,omitempty"`
	CreatorDevice      *Device `json:"creatorDevice,omitempty"`

	ScanFingerprint string `json:"scanFp,omitempty"`
	ScanIP          string `json:"scanIp,omitempty"`
	ScannedAt       int64  `json:"scannedAt,omitempty"`
	ScanCount       int    `json:"scanCount,omitempty"`

	AttemptCount int  `json:"attemptCount,omitempty"`
	RiskScore    int  `json:"riskScore,omitempty"`
	Suspicious   bool `json:"suspicious,omitempty"`

	ApprovedBy   string        `json:"approvedBy,omitempty"`
	ApprovedAt   int64         `json:"approvedAt,omitempty"`
	User         *ApprovedUser `json:"user,omitempty"`
	Ticket       string        `json:"ticket,omitempty"`
	RefreshToken string        `json:"refreshToken,omitempty"`

	ConsumedAt   int64  `json:"consumedAt,omitempty"`
	CancelledAt  int64  `json:"cancelledAt,omitempty"`
	CancelReason string `json:"cancelReason,omitempty"`
	ExpiredAt    int64  `json:"expiredAt,omitempty"`
}

// Terminal reports whether the session can never change state again.
func (s *Session) Terminal() bool {
	switch s.Status {
	case StatusConsumed, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// ExpiredBy reports whether the session's deadline has passed at nowMillis.
// Callers still need MarkExpired to persist the transition.
func (s *Session) ExpiredBy(nowMillis int64) bool {
	return nowMillis >= s.ExpiresAt
}
