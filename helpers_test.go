package goQrLogin

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type mockRoleResolver struct {
	roles map[string][]string
	err   error
}

func (m *mockRoleResolver) Resolve(_ context.Context, principalID string) ([]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.roles[principalID], nil
}

type mockTicketIssuer struct {
	err    error
	issued int
	mu     sync.Mutex
}

func (m *mockTicketIssuer) Issue(_ context.Context, principalID, role, _ string) (string, string, error) {
	if m.err != nil {
		return "", "", m.err
	}
	m.mu.Lock()
	m.issued++
	m.mu.Unlock()
	return "ticket-" + principalID + "-" + role, "refresh-" + principalID, nil
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Now()}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

func qrTestConfig() Config {
	cfg := defaultConfig()
	cfg.Crypto.Secret = []byte("test-encryption-secret")
	cfg.Crypto.SigningSecret = []byte("test-signing-secret")
	cfg.Ticket.SigningMethod = "hs256"
	cfg.Ticket.PrivateKey = []byte("test-ticket-signing-key")
	cfg.RateLimit.Enabled = false
	return cfg
}

func defaultTestResolver() *mockRoleResolver {
	return &mockRoleResolver{
		roles: map[string][]string{
			"user-1": {"admin", "social_worker"},
			"user-2": {"volunteer"},
			"user-3": {"multi"},
		},
	}
}

func newQrTestEngine(t *testing.T, cfg Config, resolver RoleResolver) (*Engine, *testClock, func()) {
	t.Helper()

	mr, rdb := newTestRedis(t)
	if resolver == nil {
		resolver = defaultTestResolver()
	}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithRoleResolver(resolver).
		Build()
	if err != nil {
		mr.Close()
		t.Fatalf("Build failed: %v", err)
	}

	clock := newTestClock()
	engine.now = clock.Now

	return engine, clock, func() {
		engine.Close()
		mr.Close()
	}
}

func webCtx() context.Context {
	return WithUserAgent(WithClientIP(context.Background(), "203.0.113.1"), "web-browser/1.0")
}

func deviceCtx() context.Context {
	return WithUserAgent(WithClientIP(context.Background(), "198.51.100.7"), "mobile-app/2.3")
}

func mustInit(t *testing.T, engine *Engine, role string) *InitResult {
	t.Helper()

	res, err := engine.Init(webCtx(), InitRequest{
		Role:   role,
		Source: "web",
	})
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	return res
}

func mustScan(t *testing.T, engine *Engine, init *InitResult) *ScanResult {
	t.Helper()

	res, err := engine.Scan(deviceCtx(), ScanRequest{
		QRPayload: init.QRPayload,
		Signature: init.Signature,
		Device:    &Device{Platform: "android", Model: "Pixel", AppVersion: "2.3"},
	})
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	return res
}

func mustApprove(t *testing.T, engine *Engine, scan *ScanResult, principalID string) *ApproveResult {
	t.Helper()

	res, err := engine.Approve(deviceCtx(), ApproveRequest{
		SessionID:    scan.SessionID,
		ApproveNonce: scan.ApproveNonce,
		PrincipalID:  principalID,
		User:         &ApprovedUser{PrincipalID: principalID, DisplayName: "Test User"},
		Device:       &Device{Platform: "android", Model: "Pixel", AppVersion: "2.3"},
	})
	if err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	return res
}

func assertErrIs(t *testing.T, err, want error) {
	t.Helper()

	if !errors.Is(err, want) {
		t.Fatalf("expected error %v, got %v", want, err)
	}
}
