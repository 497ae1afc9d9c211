package ticket

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"
)

func TestNewIssuerValidation(t *testing.T) {
	if _, err := NewIssuer(Config{TTL: 0, SigningMethod: MethodHS256, PrivateKey: []byte("k")}); !errors.Is(err, ErrMisconfigured) {
		t.Fatalf("expected misconfigured for zero TTL, got %v", err)
	}
	if _, err := NewIssuer(Config{TTL: time.Hour, SigningMethod: MethodHS256}); !errors.Is(err, ErrMisconfigured) {
		t.Fatalf("expected misconfigured for missing key, got %v", err)
	}
	if _, err := NewIssuer(Config{TTL: time.Hour, SigningMethod: "rs512", PrivateKey: []byte("k")}); !errors.Is(err, ErrMisconfigured) {
		t.Fatalf("expected misconfigured for unknown method, got %v", err)
	}
	if _, err := NewIssuer(Config{TTL: time.Hour, SigningMethod: MethodEd25519, PrivateKey: []byte("too-short")}); !errors.Is(err, ErrMisconfigured) {
		t.Fatalf("expected misconfigured for bad ed25519 key, got %v", err)
	}
}

func TestIssueAndParseHS256(t *testing.T) {
	issuer, err := NewIssuer(Config{
		TTL:           time.Hour,
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("test-ticket-signing-key"),
		Issuer:        "qr-login",
		Audience:      "web",
	})
	if err != nil {
		t.Fatalf("NewIssuer failed: %v", err)
	}

	ticket, refresh, err := issuer.Issue(context.Background(), "user-1", "admin", "Alice")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if ticket == "" {
		t.Fatal("expected ticket")
	}
	if len(refresh) != 64 {
		t.Fatalf("expected 64-char hex refresh token, got %d chars", len(refresh))
	}

	claims, err := issuer.Parse(ticket)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if claims.PrincipalID != "user-1" || claims.Role != "admin" || claims.DisplayName != "Alice" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.Issuer != "qr-login" {
		t.Fatalf("unexpected issuer: %s", claims.Issuer)
	}
}

func TestIssueAndParseEd25519(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}

	issuer, err := NewIssuer(Config{
		TTL:           time.Hour,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
	})
	if err != nil {
		t.Fatalf("NewIssuer failed: %v", err)
	}

	ticket, _, err := issuer.Issue(context.Background(), "user-1", "guest", "")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	claims, err := issuer.Parse(ticket)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if claims.Role != "guest" {
		t.Fatalf("unexpected role: %s", claims.Role)
	}
}

func TestParseRejectsForeignSignature(t *testing.T) {
	a, err := NewIssuer(Config{TTL: time.Hour, SigningMethod: MethodHS256, PrivateKey: []byte("key-a")})
	if err != nil {
		t.Fatalf("NewIssuer failed: %v", err)
	}
	b, err := NewIssuer(Config{TTL: time.Hour, SigningMethod: MethodHS256, PrivateKey: []byte("key-b")})
	if err != nil {
		t.Fatalf("NewIssuer failed: %v", err)
	}

	ticket, _, err := a.Issue(context.Background(), "user-1", "admin", "")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if _, err := b.Parse(ticket); err == nil {
		t.Fatal("expected parse failure across keys")
	}
}

func TestRefreshTokensAreUnique(t *testing.T) {
	issuer, err := NewIssuer(Config{TTL: time.Hour, SigningMethod: MethodHS256, PrivateKey: []byte("k")})
	if err != nil {
		t.Fatalf("NewIssuer failed: %v", err)
	}

	_, first, err := issuer.Issue(context.Background(), "u", "guest", "")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	_, second, err := issuer.Issue(context.Background(), "u", "guest", "")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if first == second {
		t.Fatal("expected unique refresh tokens")
	}
}
