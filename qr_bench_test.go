package goQrLogin

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func BenchmarkPollPending(b *testing.B) {
	engine, cleanup := newBenchmarkEngine(b)
	defer cleanup()

	initRes, err := engine.Init(webCtx(), InitRequest{Role: "admin"})
	if err != nil {
		b.Fatalf("init failed: %v", err)
	}

	nonce := initRes.PollNonce
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		res, err := engine.Poll(webCtx(), PollRequest{
			SessionID: initRes.SessionID,
			PollNonce: nonce,
		})
		if err != nil {
			b.Fatalf("poll failed: %v", err)
		}
		nonce = res.Nonce
	}
}

func BenchmarkFullLoginCycle(b *testing.B) {
	engine, cleanup := newBenchmarkEngine(b)
	defer cleanup()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		initRes, err := engine.Init(webCtx(), InitRequest{Role: "admin"})
		if err != nil {
			b.Fatalf("init failed: %v", err)
		}
		scanRes, err := engine.Scan(deviceCtx(), ScanRequest{
			QRPayload: initRes.QRPayload,
			Signature: initRes.Signature,
		})
		if err != nil {
			b.Fatalf("scan failed: %v", err)
		}
		if _, err := engine.Approve(deviceCtx(), ApproveRequest{
			SessionID:    scanRes.SessionID,
			ApproveNonce: scanRes.ApproveNonce,
			PrincipalID:  "user-1",
		}); err != nil {
			b.Fatalf("approve failed: %v", err)
		}
		res, err := engine.Poll(webCtx(), PollRequest{
			SessionID: initRes.SessionID,
			PollNonce: initRes.PollNonce,
		})
		if err != nil {
			b.Fatalf("poll failed: %v", err)
		}
		if res.Ticket == "" {
			b.Fatalf("expected ticket, got status %q", res.Status)
		}
	}
}

func BenchmarkScan(b *testing.B) {
	engine, cleanup := newBenchmarkEngine(b)
	defer cleanup()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		b.StopTimer()
		initRes, err := engine.Init(webCtx(), InitRequest{Role: "admin"})
		if err != nil {
			b.Fatalf("init failed: %v", err)
		}
		b.StartTimer()

		if _, err := engine.Scan(deviceCtx(), ScanRequest{
			QRPayload: initRes.QRPayload,
			Signature: initRes.Signature,
		}); err != nil {
			b.Fatalf("scan failed: %v", err)
		}
	}
}

func newBenchmarkEngine(tb testing.TB) (*Engine, func()) {
	tb.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		tb.Fatalf("miniredis.Run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := qrTestConfig()
	cfg.Session.Timeout = 10 * time.Minute

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithRoleResolver(defaultTestResolver()).
		Build()
	if err != nil {
		mr.Close()
		tb.Fatalf("Build failed: %v", err)
	}

	return engine, func() {
		engine.Close()
		mr.Close()
	}
}
