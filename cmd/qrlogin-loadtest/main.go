package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	goQrLogin "github.com/MrEthical07/goQrLogin"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func main() {
	var (
		cycles      = flag.Int("cycles", 20000, "number of full login cycles (init, scan, approve, poll)")
		concurrency = flag.Int("concurrency", 128, "number of concurrent workers")
		pollOps     = flag.Int("poll-ops", 100000, "nonce rotation polls in the poll phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *cycles <= 0 || *concurrency <= 0 || *pollOps <= 0 {
		fmt.Fprintln(os.Stderr, "cycles, concurrency, and poll-ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	cfg := goQrLogin.DefaultConfig()
	cfg.Crypto.Secret = []byte("loadtest-qr-encryption-secret")
	cfg.Crypto.SigningSecret = []byte("loadtest-qr-signing-secret")
	cfg.Ticket.SigningMethod = "hs256"
	cfg.Ticket.PrivateKey = []byte("loadtest-ticket-signing-key")
	cfg.Session.Timeout = 10 * time.Minute
	cfg.RateLimit.Enabled = false

	engine, err := goQrLogin.New().
		WithConfig(cfg).
		WithRedis(client).
		WithRoleResolver(staticResolver{roles: []string{"admin", "volunteer"}}).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine build failed: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	cycleStats := runCyclePhase(ctx, engine, *cycles, *concurrency)
	pollStats := runPollPhase(ctx, engine, *pollOps, *concurrency)

	fmt.Println("---- results ----")
	printStats("cycle", cycleStats)
	printStats("poll", pollStats)
}

// runCyclePhase drives full login handshakes: init a session, scan its QR,
// approve from the device, then poll once for the ticket.
func runCyclePhase(ctx context.Context, engine *goQrLogin.Engine, ops, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	webCtx := goQrLogin.WithUserAgent(goQrLogin.WithClientIP(ctx, "203.0.113.10"), "loadtest-web")
	deviceCtx := goQrLogin.WithUserAgent(goQrLogin.WithClientIP(ctx, "198.51.100.20"), "loadtest-device")

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}

				t0 := time.Now()
				err := runOneCycle(webCtx, deviceCtx, engine)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}

				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

func runOneCycle(webCtx, deviceCtx context.Context, engine *goQrLogin.Engine) error {
	initRes, err := engine.Init(webCtx, goQrLogin.InitRequest{Role: "admin"})
	if err != nil {
		return err
	}

	scanRes, err := engine.Scan(deviceCtx, goQrLogin.ScanRequest{
		QRPayload: initRes.QRPayload,
		Signature: initRes.Signature,
	})
	if err != nil {
		return err
	}

	if _, err := engine.Approve(deviceCtx, goQrLogin.ApproveRequest{
		SessionID:    scanRes.SessionID,
		ApproveNonce: scanRes.ApproveNonce,
		PrincipalID:  "loadtest-user",
	}); err != nil {
		return err
	}

	pollRes, err := engine.Poll(webCtx, goQrLogin.PollRequest{
		SessionID: initRes.SessionID,
		PollNonce: initRes.PollNonce,
	})
	if err != nil {
		return err
	}
	if pollRes.Ticket == "" {
		return fmt.Errorf("expected ticket, got status %q", pollRes.Status)
	}
	return nil
}

// runPollPhase measures nonce rotation under load: each worker owns a pending
// session and polls it repeatedly, presenting the previous poll's nonce.
func runPollPhase(ctx context.Context, engine *goQrLogin.Engine, ops, concurrency int) phaseStats {
	webCtx := goQrLogin.WithUserAgent(goQrLogin.WithClientIP(ctx, "203.0.113.10"), "loadtest-web")

	type pollState struct {
		sid   string
		nonce string
	}
	states := make([]pollState, concurrency)
	for w := range states {
		initRes, err := engine.Init(webCtx, goQrLogin.InitRequest{Role: "admin"})
		if err != nil {
			fmt.Fprintf(os.Stderr, "poll phase seed failed: %v\n", err)
			os.Exit(1)
		}
		states[w] = pollState{sid: initRes.SessionID, nonce: initRes.PollNonce}
	}

	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			state := &states[worker]
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}

				t0 := time.Now()
				res, err := engine.Poll(webCtx, goQrLogin.PollRequest{
					SessionID: state.sid,
					PollNonce: state.nonce,
				})
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				} else if res.Nonce != "" {
					state.nonce = res.Nonce
				}

				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}

type staticResolver struct {
	roles []string
}

func (r staticResolver) Resolve(_ context.Context, _ string) ([]string, error) {
	return r.roles, nil
}
