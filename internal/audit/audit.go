package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Event kinds. Security events record anomalies and denials; audit events
// record successful protocol outcomes.
const (
	KindSecurity = "security"
	KindAudit    = "audit"
)

// Severity levels assigned by SeverityFor.
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// Event is the canonical event model used by internal dispatching and root APIs.
type Event struct {
	EventID     string            `json:"event_id"`
	Timestamp   time.Time         `json:"timestamp"`
	Kind        string            `json:"kind"`
	EventType   string            `json:"event_type"`
	Severity    string            `json:"severity,omitempty"`
	SessionID   string            `json:"session_id,omitempty"`
	PrincipalID string            `json:"principal_id,omitempty"`
	IP          string            `json:"ip,omitempty"`
	Success     bool              `json:"success"`
	Error       string            `json:"error,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

var highSeverity = map[string]struct{}{
	"session_hijack_attempt":   {},
	"nonce_replay_attempt":     {},
	"approve_nonce_reuse":      {},
	"device_mismatch":          {},
	"rate_limit_exceeded":      {},
	"signature_mismatch":       {},
	"unauthorized_cancel":      {},
	"suspicious_session":       {},
}

var mediumSeverity = map[string]struct{}{
	"validation_failed":     {},
	"too_many_attempts":     {},
	"qr_decrypt_failed":     {},
	"qr_expired":            {},
	"approve_device_drift":  {},
	"limiter_unavailable":   {},
}

// SeverityFor maps an event type to its severity band. Unknown types are low.
func SeverityFor(eventType string) string {
	if _, ok := highSeverity[eventType]; ok {
		return SeverityHigh
	}
	if _, ok := mediumSeverity[eventType]; ok {
		return SeverityMedium
	}
	return SeverityLow
}

// Sink receives emitted events.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink drops events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink writes events into a buffered channel.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan Event, buffer),
	}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Emit(ctx context.Context, event Event) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}
