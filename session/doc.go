// Package session defines the persisted QR login session record and its
// Redis-backed store.
//
// # Storage layout
//
//   - <prefix>:<sid>       — JSON session blob with a TTL covering active
//     lifetime plus retention.
//   - <prefix>:<sid>:used  — set of consumed poll-nonce hashes, expiring
//     with the session.
//
// # Concurrency model
//
// Every transition is a Lua compare-and-swap over the JSON blob, decoded and
// re-encoded server-side with cjson. Concurrent callers on the same session
// observe one serialized history: nonce rotation admits at most one winner
// per nonce and ticket consumption admits at most one winner per session.
//
// The store never deletes sessions. Terminal records stay readable for the
// retention window so late pollers observe the terminal state instead of a
// not-found.
package session
