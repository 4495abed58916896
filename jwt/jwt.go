package jwtkit

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// Signer issues asymmetric JWTs.
type Signer interface {
	// Algorithm returns the JWS algorithm (e.g., RS256).
	Algorithm() string
	// KID returns current key id.
	KID() string
	// Sign creates a signed JWT with provided claims.
	Sign(ctx context.Context, claims jwt.MapClaims) (token string, err error)
}

// RSASigner is an in-memory RS256 signer. Entra ID signs access tokens with RS256.
type RSASigner struct {
	key *rsa.PrivateKey
	kid string
}

var _ Signer = (*RSASigner)(nil)

func NewRSASigner(bits int, kid string) (*RSASigner, error) {
	if bits == 0 {
		bits = 2048
	}
	k, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, err
	}
	return &RSASigner{key: k, kid: kid}, nil
}

func (s *RSASigner) Algorithm() string           { return jwt.SigningMethodRS256.Alg() }
func (s *RSASigner) KID() string                 { return s.kid }
func (s *RSASigner) PublicKey() *rsa.PublicKey   { return &s.key.PublicKey }
func (s *RSASigner) PrivateKey() *rsa.PrivateKey { return s.key }

func (s *RSASigner) Sign(_ context.Context, claims jwt.MapClaims) (string, error) {
	return SignWithMethod(jwt.SigningMethodRS256, s.key, s.kid, claims)
}

// SignWithMethod signs claims with an arbitrary method and key, stamping kid
// into the header when non-empty. Used to build tokens a verifier must refuse.
func SignWithMethod(method jwt.SigningMethod, key any, kid string, claims jwt.MapClaims) (string, error) {
	token := jwt.NewWithClaims(method, claims)
	if kid != "" {
		token.Header["kid"] = kid
	}
	return token.SignedString(key)
}

// AccessTokenClaims builds the payload of an Entra v2 access token.
func AccessTokenClaims(tenantID, issuer, audience string, ttl time.Duration) jwt.MapClaims {
	now := time.Now()
	ver := "2.0"
	if issuer != "" && issuer[len(issuer)-1] == '/' {
		ver = "1.0"
	}
	return jwt.MapClaims{
		"aud": audience,
		"iss": issuer,
		"iat": now.Unix(),
		"nbf": now.Unix(),
		"exp": now.Add(ttl).Unix(),
		"tid": tenantID,
		"ver": ver,
	}
}
