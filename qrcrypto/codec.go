package qrcrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/scrypt"
)

// PayloadVersion is the wire version of the QR envelope. Decrypt rejects
// anything else so stale clients fail closed.
const PayloadVersion = 2

const (
	keyLen  = 32
	ivLen   = 16
	saltV2  = "qr-login-salt-v2"
	aadV2   = "qr-login-data-v2"
	sigTail = "v2"
)

var (
	// ErrMisconfigured reports missing or unusable key material.
	ErrMisconfigured = errors.New("qrcrypto misconfigured")
	// ErrUnsupportedVersion reports an envelope minted by a different
	// protocol version.
	ErrUnsupportedVersion = errors.New("unsupported payload version")
	// ErrDecryptFailed reports a malformed envelope or authentication
	// failure. Deliberately coarse: callers get no oracle.
	ErrDecryptFailed = errors.New("payload decryption failed")
)

// Config carries the two independent secrets of the codec. Secret feeds the
// AEAD key derivation, SigningSecret keys the detached HMAC signature.
type Config struct {
	Secret        []byte
	SigningSecret []byte
}

// Codec encrypts and signs QR payloads. Encryption is AES-256-GCM under a
// scrypt-derived key with a fixed versioned salt and additional authenticated
// data, so envelopes from other deployments or versions never open.
type Codec struct {
	aead       cipher.AEAD
	signingKey []byte
}

type envelope struct {
	Version    int    `json:"v"`
	Ciphertext string `json:"c"`
	IV         string `json:"iv"`
	Tag        string `json:"tag"`
	IssuedAt   int64  `json:"ts"`
}

// New derives the AEAD key and returns a ready codec.
func New(cfg Config) (*Codec, error) {
	if len(cfg.Secret) == 0 || len(cfg.SigningSecret) == 0 {
		return nil, fmt.Errorf("%w: secret and signing secret are required", ErrMisconfigured)
	}

	key, err := scrypt.Key(cfg.Secret, []byte(saltV2), 1<<14, 8, 1, keyLen)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMisconfigured, err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMisconfigured, err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, ivLen)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMisconfigured, err)
	}

	return &Codec{
		aead:       aead,
		signingKey: append([]byte(nil), cfg.SigningSecret...),
	}, nil
}

// Encrypt seals plaintext into a versioned envelope with a fresh random IV
// and returns it base64url encoded. issuedAt (unix milliseconds) is carried
// in the clear for freshness checks but bound by the AAD-protected envelope.
func (c *Codec) Encrypt(plaintext []byte, issuedAt int64) (string, error) {
	iv := make([]byte, ivLen)
	if _, err := rand.Read(iv); err != nil {
		return "", err
	}

	sealed := c.aead.Seal(nil, iv, plaintext, []byte(aadV2))
	tagStart := len(sealed) - c.aead.Overhead()

	env := envelope{
		Version:    PayloadVersion,
		Ciphertext: base64.StdEncoding.EncodeToString(sealed[:tagStart]),
		IV:         base64.StdEncoding.EncodeToString(iv),
		Tag:        base64.StdEncoding.EncodeToString(sealed[tagStart:]),
		IssuedAt:   issuedAt,
	}

	raw, err := json.Marshal(env)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// Decrypt opens an envelope produced by Encrypt and returns the plaintext
// and the embedded issue time. All malformed-input paths collapse into
// ErrDecryptFailed except a recognizable version mismatch.
func (c *Codec) Decrypt(payload string) ([]byte, int64, error) {
	raw, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return nil, 0, ErrDecryptFailed
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, 0, ErrDecryptFailed
	}
	if env.Version != PayloadVersion {
		return nil, 0, ErrUnsupportedVersion
	}

	ciphertext, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return nil, 0, ErrDecryptFailed
	}
	iv, err := base64.StdEncoding.DecodeString(env.IV)
	if err != nil || len(iv) != ivLen {
		return nil, 0, ErrDecryptFailed
	}
	tag, err := base64.StdEncoding.DecodeString(env.Tag)
	if err != nil || len(tag) != c.aead.Overhead() {
		return nil, 0, ErrDecryptFailed
	}

	plaintext, err := c.aead.Open(nil, iv, append(ciphertext, tag...), []byte(aadV2))
	if err != nil {
		return nil, 0, ErrDecryptFailed
	}

	return plaintext, env.IssuedAt, nil
}

// Sign returns the hex HMAC-SHA256 over "sessionID:timestamp:v2" under the
// signing secret. The signature travels next to the envelope and binds the
// session identity to its mint time.
func (c *Codec) Sign(sessionID string, timestamp int64) string {
	mac := hmac.New(sha256.New, c.signingKey)
	fmt.Fprintf(mac, "%s:%d:%s", sessionID, timestamp, sigTail)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches Sign(sessionID, timestamp) using
// a constant-time comparison.
func (c *Codec) Verify(sessionID string, timestamp int64, signature string) bool {
	expected := c.Sign(sessionID, timestamp)
	return hmac.Equal([]byte(expected), []byte(signature))
}
