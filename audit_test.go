package goQrLogin

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, Event) {
	s.count.Add(1)
}

func newAuditTestEngine(t *testing.T, sink EventSink) (*Engine, func()) {
	t.Helper()

	mr, rdb := newTestRedis(t)
	engine, err := New().
		WithConfig(qrTestConfig()).
		WithRedis(rdb).
		WithRoleResolver(defaultTestResolver()).
		WithEventSink(sink).
		Build()
	if err != nil {
		mr.Close()
		t.Fatalf("Build failed: %v", err)
	}

	clock := newTestClock()
	engine.now = clock.Now

	return engine, func() {
		engine.Close()
		mr.Close()
	}
}

func waitForEvent(t *testing.T, sink *ChannelSink, eventType string) Event {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case event := <-sink.Events():
			if event.EventType == eventType {
				return event
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event %s", eventType)
		}
	}
}

func TestAuditLifecycleEvents(t *testing.T) {
	sink := NewChannelSink(64)
	engine, done := newAuditTestEngine(t, sink)
	defer done()

	init := mustInit(t, engine, "admin")

	event := waitForEvent(t, sink, EventSessionInit)
	if event.Kind != "audit" {
		t.Fatalf("expected audit kind, got %s", event.Kind)
	}
	if event.SessionID != init.SessionID {
		t.Fatalf("expected session %s, got %s", init.SessionID, event.SessionID)
	}
	if !event.Success {
		t.Fatal("expected success flag")
	}
	if event.EventID == "" || event.Timestamp.IsZero() {
		t.Fatal("expected event id and timestamp to be populated")
	}

	scan := mustScan(t, engine, init)
	waitForEvent(t, sink, EventQRScanned)

	mustApprove(t, engine, scan, "user-1")
	waitForEvent(t, sink, EventSessionApproved)

	if _, err := engine.Poll(webCtx(), PollRequest{SessionID: init.SessionID, PollNonce: init.PollNonce}); err != nil {
		t.Fatalf("poll failed: %v", err)
	}
	delivered := waitForEvent(t, sink, EventTicketDelivered)
	if delivered.PrincipalID != "user-1" {
		t.Fatalf("expected principal user-1, got %s", delivered.PrincipalID)
	}
}

func TestAuditReplayEventSeverity(t *testing.T) {
	sink := NewChannelSink(64)
	engine, done := newAuditTestEngine(t, sink)
	defer done()

	init := mustInit(t, engine, "admin")

	if _, err := engine.Poll(webCtx(), PollRequest{SessionID: init.SessionID, PollNonce: init.PollNonce}); err != nil {
		t.Fatalf("poll failed: %v", err)
	}
	_, err := engine.Poll(webCtx(), PollRequest{SessionID: init.SessionID, PollNonce: init.PollNonce})
	assertErrIs(t, err, ErrInvalidNonce)

	event := waitForEvent(t, sink, EventNonceReplayAttempt)
	if event.Kind != "security" {
		t.Fatalf("expected security kind, got %s", event.Kind)
	}
	if event.Severity != "high" {
		t.Fatalf("expected high severity, got %s", event.Severity)
	}
}

func TestAuditDisabledNoSinkCalls(t *testing.T) {
	sink := &countingSink{}

	mr, rdb := newTestRedis(t)
	defer mr.Close()

	cfg := qrTestConfig()
	cfg.Audit.Enabled = false

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithRoleResolver(defaultTestResolver()).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	mustInit(t, engine, "admin")
	time.Sleep(30 * time.Millisecond)

	if sink.count.Load() != 0 {
		t.Fatalf("expected no sink calls when audit disabled, got %d", sink.count.Load())
	}
	if engine.AuditDropped() != 0 {
		t.Fatal("expected zero dropped events")
	}
}
