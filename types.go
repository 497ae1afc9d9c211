package goQrLogin

import (
	"context"
	"io"

	internalaudit "github.com/MrEthical07/goQrLogin/internal/audit"
	"github.com/MrEthical07/goQrLogin/session"
)

// Device is the sanitized description of a participating device.
type Device = session.Device

// ApprovedUser is the display payload attached at approval and delivered to
// the winning poller.
type ApprovedUser = session.ApprovedUser

// TicketIssuer mints the login credential delivered to the winning poller.
// Implementations must be safe for concurrent use. The [ticket] package
// provides a JWT-backed default.
type TicketIssuer interface {
	Issue(ctx context.Context, principalID, role, displayName string) (ticket, refreshToken string, err error)
}

// RoleResolver reports the roles granted to an authenticated principal.
// The engine treats role policy as external: it only matches the resolved
// set against the session's requested role.
type RoleResolver interface {
	Resolve(ctx context.Context, principalID string) ([]string, error)
}

// InitRequest creates a new login session on behalf of an unauthenticated
// web client.
type InitRequest struct {
	// Role the web client wants to sign in as. Must be whitelisted.
	Role string
	// Device optionally describes the initiating client.
	Device *Device
	// Source is a free-form origin tag recorded for audit ("web", "kiosk").
	Source string
}

// InitResult is returned by [Engine.Init].
type InitResult struct {
	SessionID string
	// QRPayload is the encrypted envelope to render as a QR code.
	QRPayload string
	// Signature is the detached session signature travelling next to the
	// payload.
	Signature string
	// PollNonce is the first single-use poll credential.
	PollNonce    string
	IssuedAt     int64
	ExpiresAt    int64
	ExpiresInSec int
	// PollIntervalSec is the recommended delay between polls.
	PollIntervalSec int
	RiskScore       int
}

// ScanRequest parses a QR payload on the authenticated mobile device.
type ScanRequest struct {
	QRPayload string
	Signature string
	Device    *Device
}

// ScanResult is returned by [Engine.Scan].
type ScanResult struct {
	SessionID string
	// Role the web client requested.
	Role string
	// ApproveNonce is the single-use credential the device must present to
	// approve.
	ApproveNonce string
	ExpiresAt    int64
	ExpiresInSec int
	ScanCount    int
	RiskScore    int
	// RiskLevel is the banded score: low, medium, or high.
	RiskLevel  string
	Suspicious bool
	// WebDevice echoes the initiating client's sanitized device info so the
	// approver can recognize it.
	WebDevice *Device
	Source    string
}

// ApproveRequest authorizes a pending session from the mobile device.
type ApproveRequest struct {
	SessionID    string
	ApproveNonce string
	// PrincipalID identifies the approving account.
	PrincipalID string
	// User is the display payload delivered to the winning poller.
	User *ApprovedUser
	// Device optionally describes the approving device.
	Device *Device
	// GuestMode requests the configured guest role instead of role matching.
	GuestMode bool
}

// ApproveResult is the acknowledgement returned by [Engine.Approve]. The
// ticket itself is only ever delivered to the winning poller.
type ApproveResult struct {
	SessionID  string
	Status     string
	Role       string
	ApprovedAt int64
}

// PollRequest checks session progress from the web client.
type PollRequest struct {
	SessionID string
	PollNonce string
}

// PollResult is returned by [Engine.Poll]. Status is the wire status: the
// single winning poll of an approved session observes "confirmed" and
// carries the ticket; every later poll observes "consumed" without one.
type PollResult struct {
	SessionID string
	Status    string
	// Nonce is the next poll credential. Set only while pending.
	Nonce string
	// Scanned reports that a device has scanned but not yet decided.
	Scanned bool

	Ticket       string
	RefreshToken string
	Role         string
	User         *ApprovedUser
	// RedirectTo is the post-login destination for the delivered role.
	RedirectTo string

	Reason      string
	ExpiresAt   int64
	ConsumedAt  int64
	CancelledAt int64

	RiskScore  int
	Suspicious bool
}

// CancelRequest aborts a pending session.
type CancelRequest struct {
	SessionID string
	// Reason is recorded on the session; defaults to "user_cancelled".
	Reason string
}

// CancelResult is returned by [Engine.Cancel].
type CancelResult struct {
	SessionID   string
	Status      string
	Reason      string
	CancelledAt int64
}

// Event is a structured security or audit record emitted by the engine.
type Event = internalaudit.Event

// EventSink receives [Event] values from the engine's async dispatcher.
type EventSink = internalaudit.Sink

// NoOpSink is an [EventSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [EventSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [EventSink] that writes JSON-encoded events to an
// [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}
