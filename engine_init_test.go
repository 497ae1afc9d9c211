package goQrLogin

import (
	"context"
	"testing"
	"time"
)

func TestInitCreatesPendingSession(t *testing.T) {
	engine, _, done := newQrTestEngine(t, qrTestConfig(), nil)
	defer done()

	res := mustInit(t, engine, "admin")

	if res.SessionID == "" {
		t.Fatal("expected session id")
	}
	if res.QRPayload == "" || res.Signature == "" {
		t.Fatal("expected QR payload and signature")
	}
	if len(res.PollNonce) != 64 {
		t.Fatalf("expected 64-char hex poll nonce, got %d chars", len(res.PollNonce))
	}
	if res.ExpiresAt <= res.IssuedAt {
		t.Fatal("expected expiry after issue time")
	}
	if res.ExpiresInSec <= 0 || res.ExpiresInSec > 90 {
		t.Fatalf("unexpected ExpiresInSec %d", res.ExpiresInSec)
	}
	if res.PollIntervalSec != 2 {
		t.Fatalf("expected poll interval 2s, got %d", res.PollIntervalSec)
	}

	info, err := engine.GetSessionInfo(context.Background(), res.SessionID)
	if err != nil {
		t.Fatalf("GetSessionInfo failed: %v", err)
	}
	if info.Status != "pending" {
		t.Fatalf("expected pending, got %s", info.Status)
	}
	if info.Role != "admin" {
		t.Fatalf("expected role admin, got %s", info.Role)
	}
}

func TestInitRejectsUnknownRole(t *testing.T) {
	engine, _, done := newQrTestEngine(t, qrTestConfig(), nil)
	defer done()

	_, err := engine.Init(webCtx(), InitRequest{Role: "superuser"})
	assertErrIs(t, err, ErrInvalidRole)

	_, err = engine.Init(webCtx(), InitRequest{})
	assertErrIs(t, err, ErrInvalidInput)
}

func TestInitMissingHeadersRaisesRisk(t *testing.T) {
	engine, _, done := newQrTestEngine(t, qrTestConfig(), nil)
	defer done()

	res, err := engine.Init(context.Background(), InitRequest{Role: "guest"})
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	// Missing IP (20) plus missing user agent (10).
	if res.RiskScore != 30 {
		t.Fatalf("expected risk score 30, got %d", res.RiskScore)
	}

	withHeaders := mustInit(t, engine, "guest")
	if withHeaders.RiskScore != 0 {
		t.Fatalf("expected zero risk with full headers, got %d", withHeaders.RiskScore)
	}
}

func TestInitRateLimited(t *testing.T) {
	cfg := qrTestConfig()
	cfg.RateLimit.Enabled = true
	cfg.RateLimit.Window = time.Minute
	cfg.RateLimit.MaxRequests = 2

	engine, _, done := newQrTestEngine(t, cfg, nil)
	defer done()

	for i := 0; i < 2; i++ {
		if _, err := engine.Init(webCtx(), InitRequest{Role: "admin"}); err != nil {
			t.Fatalf("Init %d failed: %v", i, err)
		}
	}

	_, err := engine.Init(webCtx(), InitRequest{Role: "admin"})
	assertErrIs(t, err, ErrRateLimited)

	// A different client key has its own window.
	other := WithClientIP(context.Background(), "203.0.113.99")
	if _, err := engine.Init(other, InitRequest{Role: "admin"}); err != nil {
		t.Fatalf("Init from other IP failed: %v", err)
	}
}

func TestInitSanitizesDeviceFields(t *testing.T) {
	cfg := qrTestConfig()
	cfg.Session.MaxFieldLength = 8
	engine, _, done := newQrTestEngine(t, cfg, nil)
	defer done()

	res, err := engine.Init(webCtx(), InitRequest{
		Role:   "admin",
		Source: "web-kiosk-with-a-very-long-tag",
		Device: &Device{Name: "evil\x00name-that-overflows"},
	})
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	info, err := engine.GetSessionInfo(context.Background(), res.SessionID)
	if err != nil {
		t.Fatalf("GetSessionInfo failed: %v", err)
	}
	if len(info.Source) > 8 {
		t.Fatalf("expected source capped at 8 chars, got %q", info.Source)
	}
}
