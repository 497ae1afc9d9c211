package goQrLogin

import (
	"context"
	"errors"
	"testing"
)

func TestApproveHappyPath(t *testing.T) {
	engine, _, done := newQrTestEngine(t, qrTestConfig(), nil)
	defer done()

	init := mustInit(t, engine, "admin")
	scan := mustScan(t, engine, init)
	res := mustApprove(t, engine, scan, "user-1")

	if res.Status != "approved" {
		t.Fatalf("expected approved, got %s", res.Status)
	}
	if res.Role != "admin" {
		t.Fatalf("expected role admin, got %s", res.Role)
	}
	if res.ApprovedAt == 0 {
		t.Fatal("expected approval timestamp")
	}

	info, err := engine.GetSessionInfo(context.Background(), init.SessionID)
	if err != nil {
		t.Fatalf("GetSessionInfo failed: %v", err)
	}
	if info.ApprovedBy != "user-1" {
		t.Fatalf("expected approver user-1, got %s", info.ApprovedBy)
	}
}

func TestApproveFromDriftedDeviceKeepsRiskScore(t *testing.T) {
	engine, _, done := newQrTestEngine(t, qrTestConfig(), nil)
	defer done()

	init := mustInit(t, engine, "admin")
	scan := mustScan(t, engine, init)

	// Approval arrives from a device other than the scanning one. The drift
	// is recorded but carries no score penalty; scan and poll anomalies keep
	// their relative weight.
	_, err := engine.Approve(deviceCtx(), ApproveRequest{
		SessionID:    scan.SessionID,
		ApproveNonce: scan.ApproveNonce,
		PrincipalID:  "user-1",
		Device:       &Device{Platform: "ios", Model: "iPhone", AppVersion: "3.0"},
	})
	if err != nil {
		t.Fatalf("Approve failed: %v", err)
	}

	info, err := engine.GetSessionInfo(context.Background(), init.SessionID)
	if err != nil {
		t.Fatalf("GetSessionInfo failed: %v", err)
	}
	if info.RiskScore != scan.RiskScore {
		t.Fatalf("expected risk score unchanged by approve drift: %d -> %d", scan.RiskScore, info.RiskScore)
	}
	if info.Suspicious {
		t.Fatal("expected drift alone not to flag the session")
	}
}

func TestApproveNonceSingleUse(t *testing.T) {
	engine, _, done := newQrTestEngine(t, qrTestConfig(), nil)
	defer done()

	init := mustInit(t, engine, "admin")
	scan := mustScan(t, engine, init)
	mustApprove(t, engine, scan, "user-1")

	// Session is approved now, so the nonce path reports the status conflict.
	_, err := engine.Approve(deviceCtx(), ApproveRequest{
		SessionID:    scan.SessionID,
		ApproveNonce: scan.ApproveNonce,
		PrincipalID:  "user-1",
	})
	assertErrIs(t, err, ErrInvalidSessionStatus)
}

func TestApproveWrongNonce(t *testing.T) {
	engine, _, done := newQrTestEngine(t, qrTestConfig(), nil)
	defer done()

	init := mustInit(t, engine, "admin")
	scan := mustScan(t, engine, init)

	wrong := make([]byte, len(scan.ApproveNonce))
	copy(wrong, scan.ApproveNonce)
	if wrong[0] == 'a' {
		wrong[0] = 'b'
	} else {
		wrong[0] = 'a'
	}

	_, err := engine.Approve(deviceCtx(), ApproveRequest{
		SessionID:    scan.SessionID,
		ApproveNonce: string(wrong),
		PrincipalID:  "user-1",
	})
	assertErrIs(t, err, ErrInvalidApproveNonce)

	// The legitimate nonce still works after one bad attempt.
	mustApprove(t, engine, scan, "user-1")
}

func TestApproveAttemptThresholdCancels(t *testing.T) {
	engine, _, done := newQrTestEngine(t, qrTestConfig(), nil)
	defer done()

	init := mustInit(t, engine, "admin")
	scan := mustScan(t, engine, init)

	wrong := "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
	for i := 0; i < 3; i++ {
		_, err := engine.Approve(deviceCtx(), ApproveRequest{
			SessionID:    scan.SessionID,
			ApproveNonce: wrong,
			PrincipalID:  "user-1",
		})
		assertErrIs(t, err, ErrInvalidApproveNonce)
	}

	info, err := engine.GetSessionInfo(context.Background(), init.SessionID)
	if err != nil {
		t.Fatalf("GetSessionInfo failed: %v", err)
	}
	if info.Status != "cancelled" {
		t.Fatalf("expected cancelled after attempt threshold, got %s", info.Status)
	}
	if info.CancelReason != "too_many_attempts" {
		t.Fatalf("expected reason too_many_attempts, got %s", info.CancelReason)
	}
}

func TestApproveInsufficientPermissions(t *testing.T) {
	engine, _, done := newQrTestEngine(t, qrTestConfig(), nil)
	defer done()

	init := mustInit(t, engine, "admin")
	scan := mustScan(t, engine, init)

	// user-2 only holds volunteer.
	_, err := engine.Approve(deviceCtx(), ApproveRequest{
		SessionID:    scan.SessionID,
		ApproveNonce: scan.ApproveNonce,
		PrincipalID:  "user-2",
	})
	assertErrIs(t, err, ErrInsufficientPermissions)
}

func TestApproveGenericRoleGrantsRequested(t *testing.T) {
	engine, _, done := newQrTestEngine(t, qrTestConfig(), nil)
	defer done()

	init := mustInit(t, engine, "admin")
	scan := mustScan(t, engine, init)

	// user-3 holds only the generic role, which grants any requested role.
	res := mustApprove(t, engine, scan, "user-3")
	if res.Role != "admin" {
		t.Fatalf("expected admin via generic role, got %s", res.Role)
	}
}

func TestApproveGenericSessionFallsBack(t *testing.T) {
	engine, _, done := newQrTestEngine(t, qrTestConfig(), nil)
	defer done()

	// A session initialized for the generic role resolves to the first
	// fallback role the principal holds.
	init := mustInit(t, engine, "multi")
	scan := mustScan(t, engine, init)

	res := mustApprove(t, engine, scan, "user-2")
	if res.Role != "volunteer" {
		t.Fatalf("expected volunteer fallback, got %s", res.Role)
	}
}

func TestApproveGuestMode(t *testing.T) {
	engine, _, done := newQrTestEngine(t, qrTestConfig(), nil)
	defer done()

	init := mustInit(t, engine, "admin")
	scan := mustScan(t, engine, init)

	res, err := engine.Approve(deviceCtx(), ApproveRequest{
		SessionID:    scan.SessionID,
		ApproveNonce: scan.ApproveNonce,
		PrincipalID:  "user-2",
		GuestMode:    true,
	})
	if err != nil {
		t.Fatalf("guest approve failed: %v", err)
	}
	if res.Role != "guest" {
		t.Fatalf("expected guest role, got %s", res.Role)
	}
}

func TestApproveResolverUnavailable(t *testing.T) {
	resolver := &mockRoleResolver{err: errors.New("directory down")}
	engine, _, done := newQrTestEngine(t, qrTestConfig(), resolver)
	defer done()

	init := mustInit(t, engine, "admin")
	scan := mustScan(t, engine, init)

	_, err := engine.Approve(deviceCtx(), ApproveRequest{
		SessionID:    scan.SessionID,
		ApproveNonce: scan.ApproveNonce,
		PrincipalID:  "user-1",
	})
	assertErrIs(t, err, ErrRoleResolverUnavailable)
}

func TestApproveValidatesInput(t *testing.T) {
	engine, _, done := newQrTestEngine(t, qrTestConfig(), nil)
	defer done()

	init := mustInit(t, engine, "admin")
	scan := mustScan(t, engine, init)

	_, err := engine.Approve(deviceCtx(), ApproveRequest{
		SessionID:    scan.SessionID,
		ApproveNonce: scan.ApproveNonce,
	})
	assertErrIs(t, err, ErrInvalidInput)

	_, err = engine.Approve(deviceCtx(), ApproveRequest{
		SessionID:    scan.SessionID,
		ApproveNonce: "short",
		PrincipalID:  "user-1",
	})
	assertErrIs(t, err, ErrInvalidInput)
}
