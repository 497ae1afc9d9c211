// Package rate provides the Redis-backed sliding-window rate limiter used by
// the login engine.
//
// # Window semantics
//
// One sorted set per client key, scored by request time in unix milliseconds.
// A check prunes entries older than the window, counts what remains, and
// records the request only when admitted. Blocked requests leave the window
// untouched.
//
// The limiter decides RATE_LIMITED vs backend failure; whether a backend
// failure blocks or admits the request is the caller's policy.
package rate
