// Package ticket provides the default JWT-backed ticket issuer for approved
// QR login sessions. The engine treats ticket issuance as a pluggable
// collaborator; this package is the batteries-included implementation
// (HS256 or Ed25519 signatures, opaque hex refresh tokens).
package ticket
