package goQrLogin

import (
	"context"
	"errors"
	"log"
	"strconv"
	"time"

	internalaudit "github.com/MrEthical07/goQrLogin/internal/audit"
	"github.com/MrEthical07/goQrLogin/internal/rate"
	"github.com/MrEthical07/goQrLogin/qrcrypto"
	"github.com/MrEthical07/goQrLogin/session"
)

// Engine is the QR login engine. Instances are created by [Builder.Build],
// treated as immutable afterwards, and safe for concurrent use.
type Engine struct {
	config       Config
	sessionStore *session.Store
	rateLimiter  *rate.Limiter
	codec        *qrcrypto.Codec
	issuer       TicketIssuer
	resolver     RoleResolver
	audit        *internalaudit.Dispatcher
	metrics      *Metrics

	// now is swapped out in tests.
	now func() time.Time
}

// Close drains and stops the audit dispatcher. The engine must not be used
// afterwards.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns the number of events dropped by the audit dispatcher
// since construction.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of all engine metrics.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Ping reports session store availability and round-trip latency.
func (e *Engine) Ping(ctx context.Context) (time.Duration, error) {
	if e == nil || e.sessionStore == nil {
		return 0, ErrEngineNotReady
	}
	latency, err := e.sessionStore.Ping(ctx)
	if err != nil {
		return latency, mapStoreErr(err)
	}
	return latency, nil
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) nowMillis() int64 {
	return e.now().UnixMilli()
}

// checkRate enforces the sliding window for one client. Limiter transport
// failures fail open: a degraded Redis must not take logins down with it,
// and the failure is still surfaced as a security event.
func (e *Engine) checkRate(ctx context.Context, op, clientKey string) error {
	if e.rateLimiter == nil || clientKey == "" {
		return nil
	}

	err := e.rateLimiter.Check(ctx, op+":"+clientKey)
	if err == nil {
		return nil
	}
	if errors.Is(err, rate.ErrRateLimited) {
		e.metricInc(MetricRateLimitHit)
		e.emitSecurity(EventRateLimitExceeded, "", "", clientKey, false, ErrRateLimited.Error(), func() map[string]string {
			return map[string]string{
				"operation": op,
			}
		})
		return ErrRateLimited
	}

	log.Print("goQrLogin: rate limiter unavailable")
	e.emitSecurity(EventLimiterUnavailable, "", "", clientKey, false, err.Error(), func() map[string]string {
		return map[string]string{
			"operation": op,
		}
	})
	return nil
}

// collaboratorCtx bounds calls into injected collaborators so a stuck role
// resolver or ticket issuer cannot hold a protocol operation forever.
func (e *Engine) collaboratorCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, e.config.Session.CollaboratorTimeout)
}

// markExpiredLazily persists the expired status for a past-deadline session
// and emits the lifecycle event. Best effort: the caller already knows the
// session is expired.
func (e *Engine) markExpiredLazily(ctx context.Context, sessionID string) {
	_, err := e.sessionStore.MarkExpired(ctx, sessionID, e.nowMillis())
	if err != nil && !errors.Is(err, session.ErrWrongStatus) && !errors.Is(err, session.ErrSessionNotFound) {
		log.Print("goQrLogin: lazy expiry persist failed")
		return
	}
	if err == nil {
		e.metricInc(MetricSessionExpired)
		e.emitAudit(EventSessionExpired, sessionID, "", "", true, nil)
	}
}

// mapStoreErr folds session store sentinels into the engine's error surface.
func mapStoreErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, session.ErrSessionNotFound):
		return ErrSessionNotFound
	case errors.Is(err, session.ErrSessionExpired):
		return ErrSessionExpired
	case errors.Is(err, session.ErrSessionCorrupt):
		return ErrSessionNotFound
	case errors.Is(err, session.ErrRedisUnavailable):
		return errors.Join(ErrStoreUnavailable, err)
	default:
		return err
	}
}

func riskLevel(score int) string {
	switch {
	case score < 30:
		return "low"
	case score < 70:
		return "medium"
	default:
		return "high"
	}
}

func itoa(v int) string {
	return strconv.Itoa(v)
}

func expiresInSec(nowMillis, expiresAt int64) int {
	remaining := expiresAt - nowMillis
	if remaining <= 0 {
		return 0
	}
	return int(remaining / 1000)
}
