package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrSessionNotFound is returned when no record exists for the session ID.
var ErrSessionNotFound = errors.New("session not found")

// ErrSessionExpired is returned when a mutation finds the session past its
// deadline. The script persists the expired status before reporting it.
var ErrSessionExpired = errors.New("session expired")

// ErrNonceMismatch is returned when the presented nonce hash is not the
// session's current one and was never valid.
var ErrNonceMismatch = errors.New("nonce mismatch")

// ErrNonceReplayed is returned when the presented nonce hash was already
// rotated away, the signature of a replayed capture.
var ErrNonceReplayed = errors.New("nonce replayed")

// ErrApproveNonceUsed is returned on a second consumption attempt of the
// single-use approve nonce.
var ErrApproveNonceUsed = errors.New("approve nonce already used")

// ErrWrongStatus is returned when a transition's source-state precondition
// fails. Wrapped with the observed status.
var ErrWrongStatus = errors.New("invalid session status")

// ErrSessionCorrupt is returned when a stored blob cannot be decoded.
var ErrSessionCorrupt = errors.New("session blob corrupt")

// ErrRedisUnavailable wraps Redis transport failures.
var ErrRedisUnavailable = errors.New("redis unavailable")

const (
	casStatusNotFound    int64 = 0
	casStatusExpired     int64 = 1
	casStatusMismatch    int64 = 2
	casStatusApplied     int64 = 3
	casStatusInvalidBlob int64 = 4
	casStatusWrongStatus int64 = 5
	casStatusReplay      int64 = 6
	casStatusNonceUsed   int64 = 7
)

// Shared Lua prelude: blob load/save plus the attempt bookkeeping every
// failure branch applies. save_session preserves the key's remaining TTL so
// retention set at Save time is never extended by later mutations.
const luaPrelude = `
local function load_session(key)
  local data = redis.call("GET", key)
  if not data then
    return nil, false
  end
  local ok, sess = pcall(cjson.decode, data)
  if not ok or type(sess) ~= "table" then
    return nil, true
  end
  return sess, false
end

local function save_session(key, sess)
  local ttl = redis.call("PTTL", key)
  if ttl <= 0 then
    return false
  end
  redis.call("SET", key, cjson.encode(sess), "PX", ttl)
  return true
end

local function expire_session(key, sess, now)
  sess["status"] = "expired"
  sess["expiredAt"] = now
  save_session(key, sess)
end

local function bump_attempts(key, sess, now, max_attempts)
  sess["attemptCount"] = (sess["attemptCount"] or 0) + 1
  sess["lastAccessAt"] = now
  if max_attempts > 0 and sess["attemptCount"] >= max_attempts and sess["status"] == "pending" then
    sess["status"] = "cancelled"
    sess["cancelledAt"] = now
    sess["cancelReason"] = "too_many_attempts"
  end
  save_session(key, sess)
end
`

var rotatePollNonceLua = redis.NewScript(luaPrelude + `
local session_key = KEYS[1]
local used_key = KEYS[2]
local provided_hash = ARGV[1]
local next_hash = ARGV[2]
local now = tonumber(ARGV[3])
local max_attempts = tonumber(ARGV[4])

local sess, corrupt = load_session(session_key)
if corrupt then
  return {4}
end
if not sess then
  return {0}
end

if sess["status"] ~= "pending" then
  return {5, sess["status"]}
end

if sess["expiresAt"] <= now then
  expire_session(session_key, sess, now)
  return {1, cjson.encode(sess)}
end

if redis.call("SISMEMBER", used_key, provided_hash) == 1 then
  bump_attempts(session_key, sess, now, max_attempts)
  return {6, cjson.encode(sess)}
end

if sess["pollNonceHash"] ~= provided_hash then
  bump_attempts(session_key, sess, now, max_attempts)
  return {2, cjson.encode(sess)}
end

redis.call("SADD", used_key, provided_hash)
local ttl = redis.call("PTTL", session_key)
if ttl > 0 then
  redis.call("PEXPIRE", used_key, ttl)
end

sess["pollNonceHash"] = next_hash
sess["nonceIssuedAt"] = now
sess["lastAccessAt"] = now
if not save_session(session_key, sess) then
  return {1, cjson.encode(sess)}
end
return {3, cjson.encode(sess)}
`)

var consumeTicketLua = redis.NewScript(luaPrelude + `
local session_key = KEYS[1]
local now = tonumber(ARGV[1])

local sess, corrupt = load_session(session_key)
if corrupt then
  return {4}
end
if not sess then
  return {0}
end

if sess["status"] ~= "approved" then
  return {5, sess["status"]}
end

sess["status"] = "consumed"
sess["consumedAt"] = now
sess["lastAccessAt"] = now
save_session(session_key, sess)
return {3, cjson.encode(sess)}
`)

var consumeApproveNonceLua = redis.NewScript(luaPrelude + `
local session_key = KEYS[1]
local provided_hash = ARGV[1]
local now = tonumber(ARGV[2])
local max_attempts = tonumber(ARGV[3])

local sess, corrupt = load_session(session_key)
if corrupt then
  return {4}
end
if not sess then
  return {0}
end

if sess["status"] ~= "pending" then
  return {5, sess["status"]}
end

if sess["expiresAt"] <= now then
  expire_session(session_key, sess, now)
  return {1, cjson.encode(sess)}
end

local stored = sess["approveNonceHash"]
if not stored or stored == "" or stored ~= provided_hash then
  bump_attempts(session_key, sess, now, max_attempts)
  return {2, cjson.encode(sess)}
end

if sess["approveNonceUsed"] then
  bump_attempts(session_key, sess, now, max_attempts)
  return {7, cjson.encode(sess)}
end

sess["approveNonceUsed"] = true
sess["lastAccessAt"] = now
save_session(session_key, sess)
return {3, cjson.encode(sess)}
`)

var approveLua = redis.NewScript(luaPrelude + `
local session_key = KEYS[1]
local now = tonumber(ARGV[1])
local patch_ok, patch = pcall(cjson.decode, ARGV[2])
if not patch_ok or type(patch) ~= "table" then
  return {4}
end

local sess, corrupt = load_session(session_key)
if corrupt then
  return {4}
end
if not sess then
  return {0}
end

if sess["status"] ~= "pending" then
  return {5, sess["status"]}
end

if sess["expiresAt"] <= now then
  expire_session(session_key, sess, now)
  return {1, cjson.encode(sess)}
end

sess["status"] = "approved"
sess["approvedAt"] = now
sess["lastAccessAt"] = now
for k, v in pairs(patch) do
  sess[k] = v
end
save_session(session_key, sess)
return {3, cjson.encode(sess)}
`)

var cancelLua = redis.NewScript(luaPrelude + `
local session_key = KEYS[1]
local now = tonumber(ARGV[1])
local reason = ARGV[2]

local sess, corrupt = load_session(session_key)
if corrupt then
  return {4}
end
if not sess then
  return {0}
end

if sess["status"] ~= "pending" then
  return {5, sess["status"]}
end

sess["status"] = "cancelled"
sess["cancelledAt"] = now
sess["cancelReason"] = reason
sess["lastAccessAt"] = now
save_session(session_key, sess)
return {3, cjson.encode(sess)}
`)

var markExpiredLua = redis.NewScript(luaPrelude + `
local session_key = KEYS[1]
local now = tonumber(ARGV[1])

local sess, corrupt = load_session(session_key)
if corrupt then
  return {4}
end
if not sess then
  return {0}
end

if sess["status"] == "expired" then
  return {3, cjson.encode(sess)}
end
if sess["status"] == "consumed" or sess["status"] == "cancelled" then
  return {5, sess["status"]}
end

expire_session(session_key, sess, now)
return {3, cjson.encode(sess)}
`)

var recordScanLua = redis.NewScript(luaPrelude + `
local session_key = KEYS[1]
local now = tonumber(ARGV[1])
local approve_hash = ARGV[2]
local scan_fp = ARGV[3]
local scan_ip = ARGV[4]
local risk = tonumber(ARGV[5])
local suspicious = ARGV[6] == "1"

local sess, corrupt = load_session(session_key)
if corrupt then
  return {4}
end
if not sess then
  return {0}
end

if sess["status"] ~= "pending" then
  return {5, sess["status"]}
end

if sess["expiresAt"] <= now then
  expire_session(session_key, sess, now)
  return {1, cjson.encode(sess)}
end

sess["approveNonceHash"] = approve_hash
sess["approveNonceUsed"] = false
sess["scanFp"] = scan_fp
sess["scanIp"] = scan_ip
sess["scannedAt"] = now
sess["scanCount"] = (sess["scanCount"] or 0) + 1
sess["lastAccessAt"] = now
if risk > (sess["riskScore"] or 0) then
  sess["riskScore"] = risk
end
if suspicious then
  sess["suspicious"] = true
end
save_session(session_key, sess)
return {3, cjson.encode(sess)}
`)

var incrementAttemptsLua = redis.NewScript(luaPrelude + `
local session_key = KEYS[1]
local now = tonumber(ARGV[1])
local max_attempts = tonumber(ARGV[2])

local sess, corrupt = load_session(session_key)
if corrupt then
  return {4}
end
if not sess then
  return {0}
end

bump_attempts(session_key, sess, now, max_attempts)
return {3, cjson.encode(sess)}
`)

var raiseRiskLua = redis.NewScript(luaPrelude + `
local session_key = KEYS[1]
local now = tonumber(ARGV[1])
local penalty = tonumber(ARGV[2])
local suspicious = ARGV[3] == "1"

local sess, corrupt = load_session(session_key)
if corrupt then
  return {4}
end
if not sess then
  return {0}
end

local score = (sess["riskScore"] or 0) + penalty
if score > 100 then
  score = 100
end
sess["riskScore"] = score
if suspicious then
  sess["suspicious"] = true
end
sess["lastAccessAt"] = now
save_session(session_key, sess)
return {3, cjson.encode(sess)}
`)

var touchLua = redis.NewScript(luaPrelude + `
local session_key = KEYS[1]
local now = tonumber(ARGV[1])

local sess, corrupt = load_session(session_key)
if corrupt then
  return {4}
end
if not sess then
  return {0}
end

sess["lastAccessAt"] = now
save_session(session_key, sess)
return {3}
`)

// ApprovePatch is the field set the approve script merges into a pending
// session while flipping it to approved.
type ApprovePatch struct {
	ApprovedBy         string        `json:"approvedBy"`
	Role               string        `json:"role"`
	User               *ApprovedUser `json:"user,omitempty"`
	Ticket             string        `json:"ticket"`
	RefreshToken       string        `json:"refreshToken,omitempty"`
	ApproveFingerprint string        `json:"approveFp,omitempty"`
}

// Store is a Redis-backed session store. Every state transition runs as a
// Lua compare-and-swap so concurrent operations on the same session observe
// a single serialized history.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore creates a session [Store] backed by the given Redis client.
// prefix sets the Redis key namespace.
func NewStore(redisClient redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "qrl:s"
	}
	return &Store{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *Store) key(sessionID string) string {
	return s.prefix + ":" + sessionID
}

func (s *Store) usedNonceKey(sessionID string) string {
	return s.prefix + ":" + sessionID + ":used"
}

// Save persists a new session with the given TTL. TTL covers the active
// lifetime plus the retention window for terminal-state reads.
func (s *Store) Save(ctx context.Context, sess *Session, ttl time.Duration) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.key(sess.SessionID), data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Get fetches a session without mutating any Redis state. Lazy expiry is the
// caller's job: a past-deadline session comes back as stored.
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionCorrupt, err)
	}
	return &sess, nil
}

// RotatePollNonce atomically validates the presented poll-nonce hash and
// installs nextHash. The consumed hash joins the session's used set, so a
// replayed hash is distinguishable from one that was never valid. Both
// failure shapes count as an attempt and may close the session.
//
//	Security: CAS guarantees at most one caller wins a given nonce.
func (s *Store) RotatePollNonce(ctx context.Context, sessionID, providedHash, nextHash string, now int64, maxAttempts int) (*Session, error) {
	return s.runCAS(ctx, rotatePollNonceLua,
		[]string{s.key(sessionID), s.usedNonceKey(sessionID)},
		providedHash, nextHash, now, maxAttempts)
}

// ConsumeTicket atomically flips approved to consumed. Exactly one of any
// number of racing callers observes the transition; the rest get
// ErrWrongStatus with the consumed state.
func (s *Store) ConsumeTicket(ctx context.Context, sessionID string, now int64) (*Session, error) {
	return s.runCAS(ctx, consumeTicketLua, []string{s.key(sessionID)}, now)
}

// ConsumeApproveNonce atomically burns the single-use approve nonce minted
// at scan time. Reuse returns ErrApproveNonceUsed; a wrong hash returns
// ErrNonceMismatch. Both count as an attempt.
func (s *Store) ConsumeApproveNonce(ctx context.Context, sessionID, providedHash string, now int64, maxAttempts int) (*Session, error) {
	return s.runCAS(ctx, consumeApproveNonceLua,
		[]string{s.key(sessionID)}, providedHash, now, maxAttempts)
}

// Approve atomically transitions pending to approved and merges the patch.
func (s *Store) Approve(ctx context.Context, sessionID string, patch ApprovePatch, now int64) (*Session, error) {
	raw, err := json.Marshal(patch)
	if err != nil {
		return nil, err
	}
	return s.runCAS(ctx, approveLua, []string{s.key(sessionID)}, now, string(raw))
}

// Cancel atomically transitions pending to cancelled with the given reason.
func (s *Store) Cancel(ctx context.Context, sessionID, reason string, now int64) (*Session, error) {
	return s.runCAS(ctx, cancelLua, []string{s.key(sessionID)}, now, reason)
}

// MarkExpired persists the expired status for a past-deadline session.
// Idempotent: an already-expired session succeeds. Consumed and cancelled
// sessions are left alone.
func (s *Store) MarkExpired(ctx context.Context, sessionID string, now int64) (*Session, error) {
	return s.runCAS(ctx, markExpiredLua, []string{s.key(sessionID)}, now)
}

// RecordScan attaches the approve-nonce hash and scan telemetry to a pending
// session. Risk only ever rises and the suspicious flag never clears.
func (s *Store) RecordScan(ctx context.Context, sessionID, approveNonceHash, scanFingerprint, scanIP string, riskScore int, suspicious bool, now int64) (*Session, error) {
	return s.runCAS(ctx, recordScanLua,
		[]string{s.key(sessionID)},
		now, approveNonceHash, scanFingerprint, scanIP, riskScore, boolArg(suspicious))
}

// IncrementAttempts counts a failed validation against the session and
// cancels it at the threshold.
func (s *Store) IncrementAttempts(ctx context.Context, sessionID string, now int64, maxAttempts int) (*Session, error) {
	return s.runCAS(ctx, incrementAttemptsLua, []string{s.key(sessionID)}, now, maxAttempts)
}

// RaiseRisk adds penalty to the session's risk score (capped at 100) and
// optionally sets the monotonic suspicious flag.
func (s *Store) RaiseRisk(ctx context.Context, sessionID string, penalty int, suspicious bool, now int64) (*Session, error) {
	return s.runCAS(ctx, raiseRiskLua, []string{s.key(sessionID)}, now, penalty, boolArg(suspicious))
}

// Touch refreshes lastAccessAt.
func (s *Store) Touch(ctx context.Context, sessionID string, now int64) error {
	_, err := s.runCAS(ctx, touchLua, []string{s.key(sessionID)}, now)
	return err
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}

func (s *Store) runCAS(ctx context.Context, script *redis.Script, keys []string, args ...interface{}) (*Session, error) {
	result, err := script.Run(ctx, s.redis, keys, args...).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) == 0 {
		return nil, fmt.Errorf("%w: invalid script response", ErrRedisUnavailable)
	}

	code, ok := parts[0].(int64)
	if !ok {
		return nil, fmt.Errorf("%w: invalid script status", ErrRedisUnavailable)
	}

	switch code {
	case casStatusNotFound:
		return nil, ErrSessionNotFound
	case casStatusExpired:
		sess, decErr := decodePayload(parts)
		if decErr != nil {
			return nil, decErr
		}
		return sess, ErrSessionExpired
	case casStatusMismatch:
		sess, decErr := decodePayload(parts)
		if decErr != nil {
			return nil, decErr
		}
		return sess, ErrNonceMismatch
	case casStatusReplay:
		sess, decErr := decodePayload(parts)
		if decErr != nil {
			return nil, decErr
		}
		return sess, ErrNonceReplayed
	case casStatusNonceUsed:
		sess, decErr := decodePayload(parts)
		if decErr != nil {
			return nil, decErr
		}
		return sess, ErrApproveNonceUsed
	case casStatusWrongStatus:
		status := stringPayload(parts)
		return nil, fmt.Errorf("%w: %s", ErrWrongStatus, status)
	case casStatusApplied:
		if len(parts) < 2 {
			return nil, nil
		}
		return decodePayload(parts)
	case casStatusInvalidBlob:
		return nil, ErrSessionCorrupt
	default:
		return nil, fmt.Errorf("%w: unknown script status", ErrRedisUnavailable)
	}
}

func decodePayload(parts []interface{}) (*Session, error) {
	if len(parts) < 2 {
		return nil, fmt.Errorf("%w: missing session payload", ErrRedisUnavailable)
	}

	var blob []byte
	switch v := parts[1].(type) {
	case string:
		blob = []byte(v)
	case []byte:
		blob = v
	default:
		return nil, fmt.Errorf("%w: invalid session payload", ErrRedisUnavailable)
	}

	var sess Session
	if err := json.Unmarshal(blob, &sess); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionCorrupt, err)
	}
	return &sess, nil
}

func stringPayload(parts []interface{}) string {
	if len(parts) < 2 {
		return ""
	}
	switch v := parts[1].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	}
	return ""
}

func boolArg(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
