package goQrLogin

import (
	"testing"
	"time"
)

func TestCancelPendingSession(t *testing.T) {
	engine, _, done := newQrTestEngine(t, qrTestConfig(), nil)
	defer done()

	init := mustInit(t, engine, "admin")

	res, err := engine.Cancel(webCtx(), CancelRequest{SessionID: init.SessionID})
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if res.Status != "cancelled" {
		t.Fatalf("expected cancelled, got %s", res.Status)
	}
	if res.Reason != "user_cancelled" {
		t.Fatalf("expected default reason, got %s", res.Reason)
	}
	if res.CancelledAt == 0 {
		t.Fatal("expected cancellation timestamp")
	}
}

func TestCancelFromForeignIPUnauthorized(t *testing.T) {
	engine, _, done := newQrTestEngine(t, qrTestConfig(), nil)
	defer done()

	init := mustInit(t, engine, "admin")

	foreign := WithClientIP(webCtx(), "192.0.2.200")
	_, err := engine.Cancel(foreign, CancelRequest{SessionID: init.SessionID})
	assertErrIs(t, err, ErrUnauthorized)

	// The session is untouched.
	info, err := engine.GetSessionInfo(webCtx(), init.SessionID)
	if err != nil {
		t.Fatalf("GetSessionInfo failed: %v", err)
	}
	if info.Status != "pending" {
		t.Fatalf("expected still pending, got %s", info.Status)
	}
}

func TestCancelApprovedSessionRejected(t *testing.T) {
	engine, _, done := newQrTestEngine(t, qrTestConfig(), nil)
	defer done()

	init := mustInit(t, engine, "admin")
	scan := mustScan(t, engine, init)
	mustApprove(t, engine, scan, "user-1")

	_, err := engine.Cancel(webCtx(), CancelRequest{SessionID: init.SessionID})
	assertErrIs(t, err, ErrInvalidSessionStatus)
}

func TestCancelExpiredSession(t *testing.T) {
	engine, clock, done := newQrTestEngine(t, qrTestConfig(), nil)
	defer done()

	init := mustInit(t, engine, "admin")
	clock.Advance(2 * time.Minute)

	_, err := engine.Cancel(webCtx(), CancelRequest{SessionID: init.SessionID})
	assertErrIs(t, err, ErrSessionExpired)
}

func TestCancelUnknownSession(t *testing.T) {
	engine, _, done := newQrTestEngine(t, qrTestConfig(), nil)
	defer done()

	_, err := engine.Cancel(webCtx(), CancelRequest{SessionID: "AAAAAAAAAAAAAAAAAAAAAA"})
	assertErrIs(t, err, ErrSessionNotFound)
}
