package rate

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Config holds rate limiter tuning parameters.
type Config struct {
	Enabled     bool
	Window      time.Duration
	MaxRequests int
	KeyPrefix   string
}

// Limiter enforces a per-client sliding-window request budget using a Redis
// sorted set per client key. Members are scored by request time; entries
// older than the window are pruned on every check.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "qrl:rate"
	}
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

// Check prunes expired entries, counts the remaining window, and either
// admits the request (recording it) or returns ErrRateLimited. A blocked
// request is not recorded, so hammering a blocked client does not extend
// the block.
func (l *Limiter) Check(ctx context.Context, clientKey string) error {
	if !l.config.Enabled || clientKey == "" {
		return nil
	}

	key := l.config.KeyPrefix + ":" + clientKey
	now := time.Now()
	cutoff := now.Add(-l.config.Window)

	if err := l.redis.ZRemRangeByScore(ctx, key, "-inf", formatScore(cutoff)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	count, err := l.redis.ZCard(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count >= int64(l.config.MaxRequests) {
		return ErrRateLimited
	}

	pipe := l.redis.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: uuid.NewString(),
	})
	pipe.Expire(ctx, key, l.config.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

func formatScore(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}
