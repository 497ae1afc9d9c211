package internal

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const fingerprintLen = 16

// Fingerprint derives a stable device fingerprint from the sanitized device
// components. Truncated to 16 hex characters: the fingerprint is a grouping
// key for anomaly detection, not a credential.
func Fingerprint(components ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(components, "|")))
	return hex.EncodeToString(sum[:])[:fingerprintLen]
}
