// Package qrcrypto implements the authenticated QR payload envelope and the
// detached session signature.
//
// # Wire format
//
// A payload is base64url(JSON{v, c, iv, tag, ts}): version, AES-256-GCM
// ciphertext, 16-byte IV, auth tag, and mint time in unix milliseconds. The
// AEAD key is derived from the shared secret with scrypt and a versioned
// salt; a versioned additional-authenticated-data string ties every envelope
// to this protocol revision.
//
// The detached signature is hex HMAC-SHA256 over "sessionID:ts:v2" under an
// independent signing secret, letting relays validate session identity
// without the decryption key.
package qrcrypto
