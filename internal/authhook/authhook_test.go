package authhook

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signHS256(t *testing.T, secret []byte, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestJWTVerifier_VerifiesValidToken(t *testing.T) {
	secret := []byte("test-secret")
	v := NewJWTVerifier(func(*jwt.Token) (any, error) { return secret, nil }, "HS256")

	token := signHS256(t, secret, jwt.MapClaims{
		"sub":   "user-1",
		"scope": "read write",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})

	p, err := v.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if p.Subject != "user-1" {
		t.Errorf("expected subject user-1, got %q", p.Subject)
	}
	if !p.HasScope("read") || !p.HasScope("write") {
		t.Errorf("expected both scopes, got %v", p.Scopes)
	}
	if p.HasScope("admin") {
		t.Error("did not expect admin scope")
	}
}

func TestJWTVerifier_RejectsExpiredToken(t *testing.T) {
	secret := []byte("test-secret")
	v := NewJWTVerifier(func(*jwt.Token) (any, error) { return secret, nil }, "HS256")

	token := signHS256(t, secret, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})

	if _, err := v.Verify(context.Background(), token); err == nil {
		t.Error("expected expired token to fail verification")
	}
}

func TestJWTVerifier_RejectsWrongSigningMethod(t *testing.T) {
	secret := []byte("test-secret")
	v := NewJWTVerifier(func(*jwt.Token) (any, error) { return secret, nil }, "RS256")

	token := signHS256(t, secret, jwt.MapClaims{"sub": "user-1"})

	if _, err := v.Verify(context.Background(), token); err == nil {
		t.Error("expected HS256 token to be rejected when only RS256 is allowed")
	}
}

func TestPrincipal_RequireScopeReturnsTypedError(t *testing.T) {
	p := Principal{Subject: "user-1", Scopes: []string{"read"}}
	err := p.RequireScope("write")
	if err == nil {
		t.Fatal("expected missing-scope error")
	}
	var missing *ErrMissingScope
	if !asMissingScope(err, &missing) {
		t.Fatalf("expected *ErrMissingScope, got %T", err)
	}
	if missing.Scope != "write" {
		t.Errorf("expected scope 'write', got %q", missing.Scope)
	}
}

func asMissingScope(err error, target **ErrMissingScope) bool {
	e, ok := err.(*ErrMissingScope)
	if !ok {
		return false
	}
	*target = e
	return true
}
