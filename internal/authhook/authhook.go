// Package authhook provides the optional access-control hook the core
// never calls itself (base §1): a Verifier interface an embedder wires
// into its own request path, plus a JWT-backed implementation.
package authhook

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Principal is the identity recovered from a verified bearer token.
type Principal struct {
	Subject string
	Scopes  []string
	Claims  map[string]any
}

// Verifier authenticates a bearer token and returns the principal it
// names. Embedders call this themselves at whatever boundary they
// choose; nothing in cidkit/envelope/chain/objectstore/search invokes
// it.
type Verifier interface {
	Verify(ctx context.Context, token string) (Principal, error)
}

// ErrMissingScope reports that a verified principal lacks a required scope.
type ErrMissingScope struct {
	Subject string
	Scope   string
}

func (e *ErrMissingScope) Error() string {
	return fmt.Sprintf("principal %s missing required scope %q", e.Subject, e.Scope)
}

// JWTVerifier verifies HMAC- or RSA-signed bearer tokens with
// golang-jwt/jwt/v5, matching the signing method against keyFunc's
// lookup to reject algorithm-confusion attacks.
type JWTVerifier struct {
	keyFunc jwt.Keyfunc
	parser  *jwt.Parser
}

// NewJWTVerifier builds a JWTVerifier using keyFunc to resolve the
// verification key for a given token, and restricts accepted signing
// methods to allowedMethods (e.g. "HS256", "RS256").
func NewJWTVerifier(keyFunc jwt.Keyfunc, allowedMethods ...string) *JWTVerifier {
	return &JWTVerifier{
		keyFunc: keyFunc,
		parser:  jwt.NewParser(jwt.WithValidMethods(allowedMethods)),
	}
}

// Verify parses and validates token, returning the recovered Principal.
func (v *JWTVerifier) Verify(ctx context.Context, token string) (Principal, error) {
	claims := jwt.MapClaims{}
	parsed, err := v.parser.ParseWithClaims(token, claims, v.keyFunc)
	if err != nil {
		return Principal{}, fmt.Errorf("authhook: %w", err)
	}
	if !parsed.Valid {
		return Principal{}, fmt.Errorf("authhook: token failed validation")
	}

	p := Principal{Claims: map[string]any(claims)}
	if sub, err := claims.GetSubject(); err == nil {
		p.Subject = sub
	}
	if scopeClaim, ok := claims["scope"].(string); ok {
		p.Scopes = splitScopes(scopeClaim)
	}
	return p, nil
}

// HasScope reports whether p was granted scope.
func (p Principal) HasScope(scope string) bool {
	for _, s := range p.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// RequireScope returns ErrMissingScope if p lacks scope, nil otherwise.
func (p Principal) RequireScope(scope string) error {
	if p.HasScope(scope) {
		return nil
	}
	return &ErrMissingScope{Subject: p.Subject, Scope: scope}
}

func splitScopes(raw string) []string {
	var scopes []string
	start := 0
	for i := 0; i <= len(raw); i++ {
		if i == len(raw) || raw[i] == ' ' {
			if i > start {
				scopes = append(scopes, raw[start:i])
			}
			start = i + 1
		}
	}
	return scopes
}
