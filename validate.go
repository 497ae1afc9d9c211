package goQrLogin

import (
	"fmt"

	"github.com/MrEthical07/goQrLogin/internal"
)

const nonceHexLen = 64

// validateRole checks the requested role against the configured whitelist.
func (e *Engine) validateRole(role string) error {
	if role == "" {
		return fmt.Errorf("%w: role is required", ErrInvalidInput)
	}
	for _, allowed := range e.config.Roles.Allowed {
		if role == allowed {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrInvalidRole, role)
}

// validateSessionID parses and normalizes a caller-supplied session ID.
func validateSessionID(sessionID string) (string, error) {
	if sessionID == "" {
		return "", fmt.Errorf("%w: session ID is required", ErrInvalidInput)
	}
	sid, err := internal.ParseSessionID(sessionID)
	if err != nil {
		return "", fmt.Errorf("%w: malformed session ID", ErrInvalidInput)
	}
	return sid.String(), nil
}

// validateNonce checks the shape of a caller-supplied nonce before it is
// hashed and compared.
func validateNonce(nonce string) error {
	if nonce == "" {
		return fmt.Errorf("%w: nonce is required", ErrInvalidInput)
	}
	if len(nonce) != nonceHexLen {
		return fmt.Errorf("%w: malformed nonce", ErrInvalidInput)
	}
	for i := 0; i < len(nonce); i++ {
		c := nonce[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return fmt.Errorf("%w: malformed nonce", ErrInvalidInput)
		}
	}
	return nil
}

// validatePayload caps the accepted QR payload size before decoding.
func (e *Engine) validatePayload(payload string) error {
	if payload == "" {
		return fmt.Errorf("%w: QR payload is required", ErrInvalidInput)
	}
	if len(payload) > e.config.Session.MaxPayloadBytes {
		return fmt.Errorf("%w: QR payload too large", ErrInvalidInput)
	}
	return nil
}
