package rate

import "errors"

var (
	// ErrRateLimited reports that the client exhausted its window budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps Redis transport failures so callers can
	// distinguish a denial from a backend outage.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
