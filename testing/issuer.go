// Package testing provides a mock Entra ID tenant for tests of code that
// verifies bearer tokens. It serves the v2.0 discovery document, the JWKS and
// a client-credentials token endpoint, and mints tokens that validate
// against the published keys.
//
// Example usage:
//
//	tenant := testing.NewTestTenant("abc-123", "api://xyz")
//	defer tenant.Close()
//
//	keys := oidckit.NewSigningKeySet(tenant.TenantID(), oidckit.WithAuthority(tenant.Authority()))
//	token := tenant.CreateToken(nil)
package testing

import (
	"context"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	jwtkit "github.com/PaulFidika/entraguard/jwt"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TestTenant is an httptest server impersonating one Entra ID tenant.
type TestTenant struct {
	server   *httptest.Server
	ring     *jwtkit.KeyRing
	tenantID string
	audience string

	discoveryHits atomic.Int64
	jwksHits      atomic.Int64
	tokenHits     atomic.Int64

	mu              sync.Mutex
	discoveryStatus int
	omitJWKSURI     bool
	jwksStatus      int
	kidSeq          int
}

// NewTestTenant starts a tenant whose tokens carry audience.
func NewTestTenant(tenantID, audience string) *TestTenant {
	ring, err := jwtkit.NewKeyRing("test-key-1")
	if err != nil {
		panic("failed to create key ring: " + err.Error())
	}
	tt := &TestTenant{
		ring:            ring,
		tenantID:        tenantID,
		audience:        audience,
		discoveryStatus: http.StatusOK,
		jwksStatus:      http.StatusOK,
		kidSeq:          1,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/"+tenantID+"/v2.0/.well-known/openid-configuration", tt.handleDiscovery)
	mux.HandleFunc("/"+tenantID+"/discovery/v2.0/keys", tt.handleJWKS)
	mux.HandleFunc("/"+tenantID+"/oauth2/v2.0/token", tt.handleToken)
	tt.server = httptest.NewServer(mux)
	return tt
}

// Authority is the base URL to use in place of https://login.microsoftonline.com.
func (tt *TestTenant) Authority() string { return tt.server.URL }

func (tt *TestTenant) TenantID() string { return tt.tenantID }
func (tt *TestTenant) Audience() string { return tt.audience }

// IssuerV2 is the v2.0 issuer string for this tenant.
func (tt *TestTenant) IssuerV2() string {
	return fmt.Sprintf("https://login.microsoftonline.com/%s/v2.0", tt.tenantID)
}

// IssuerV1 is the v1.0 issuer string for this tenant.
func (tt *TestTenant) IssuerV1() string {
	return fmt.Sprintf("https://sts.windows.net/%s/", tt.tenantID)
}

// JWKSURL is the jwks_uri advertised by discovery.
func (tt *TestTenant) JWKSURL() string {
	return tt.server.URL + "/" + tt.tenantID + "/discovery/v2.0/keys"
}

// Close shuts down the test server.
func (tt *TestTenant) Close() {
	if tt.server != nil {
		tt.server.Close()
	}
}

// DiscoveryHits counts requests to the OpenID configuration endpoint.
func (tt *TestTenant) DiscoveryHits() int64 { return tt.discoveryHits.Load() }

// JWKSHits counts requests to the JWKS endpoint.
func (tt *TestTenant) JWKSHits() int64 { return tt.jwksHits.Load() }

// TokenHits counts requests to the token endpoint.
func (tt *TestTenant) TokenHits() int64 { return tt.tokenHits.Load() }

// SetDiscoveryStatus makes discovery answer with code and no body when code is not 200.
func (tt *TestTenant) SetDiscoveryStatus(code int) {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	tt.discoveryStatus = code
}

// OmitJWKSURI drops jwks_uri from the discovery document.
func (tt *TestTenant) OmitJWKSURI(omit bool) {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	tt.omitJWKSURI = omit
}

// SetJWKSStatus makes the JWKS endpoint answer with code when code is not 200.
func (tt *TestTenant) SetJWKSStatus(code int) {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	tt.jwksStatus = code
}

// ActiveKID is the kid new tokens are signed with.
func (tt *TestTenant) ActiveKID() string { return tt.ring.ActiveSigner().KID() }

// SigningKey returns the active signer, for tests that need to sign with a published key.
func (tt *TestTenant) SigningKey() *jwtkit.RSASigner { return tt.ring.ActiveSigner() }

// RotateKey publishes a new signing key and returns its kid. With retire the
// previous key disappears from the JWKS.
func (tt *TestTenant) RotateKey(retire bool) string {
	tt.mu.Lock()
	tt.kidSeq++
	kid := fmt.Sprintf("test-key-%d", tt.kidSeq)
	tt.mu.Unlock()
	if _, err := tt.ring.Rotate(kid, retire); err != nil {
		panic("failed to rotate key: " + err.Error())
	}
	return kid
}

func (tt *TestTenant) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	tt.discoveryHits.Add(1)
	tt.mu.Lock()
	status, omit := tt.discoveryStatus, tt.omitJWKSURI
	tt.mu.Unlock()
	if status != http.StatusOK {
		w.WriteHeader(status)
		return
	}
	doc := map[string]any{
		"issuer":                 tt.IssuerV2(),
		"token_endpoint":         tt.server.URL + "/" + tt.tenantID + "/oauth2/v2.0/token",
		"authorization_endpoint": tt.server.URL + "/" + tt.tenantID + "/oauth2/v2.0/authorize",
		"id_token_signing_alg_values_supported": []string{"RS256"},
	}
	if !omit {
		doc["jwks_uri"] = tt.JWKSURL()
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(doc)
}

func (tt *TestTenant) handleJWKS(w http.ResponseWriter, r *http.Request) {
	tt.jwksHits.Add(1)
	tt.mu.Lock()
	status := tt.jwksStatus
	tt.mu.Unlock()
	if status != http.StatusOK {
		w.WriteHeader(status)
		return
	}
	jwtkit.ServeJWKS(w, r, tt.ring.JWKS())
}

// handleToken implements just enough of the client_credentials grant for probes.
func (tt *TestTenant) handleToken(w http.ResponseWriter, r *http.Request) {
	tt.tokenHits.Add(1)
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil || r.PostForm.Get("grant_type") != "client_credentials" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "unsupported_grant_type"})
		return
	}
	clientID := r.PostForm.Get("client_id")
	resource := strings.TrimSuffix(r.PostForm.Get("scope"), "/.default")
	token := tt.CreateTokenWithClaims(map[string]any{
		"aud":   resource,
		"azp":   clientID,
		"appid": clientID,
		"roles": []string{"Data.Read"},
	})
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_in":   3600,
	})
}

// CreateToken returns a valid v2 delegated access token. extra claims override the defaults.
func (tt *TestTenant) CreateToken(extra map[string]any) string {
	return tt.CreateTokenWithClaims(extra)
}

// CreateTokenWithClaims signs the default claims merged with claims using the active key.
func (tt *TestTenant) CreateTokenWithClaims(claims map[string]any) string {
	token, err := tt.ring.ActiveSigner().Sign(context.Background(), tt.claims(claims))
	if err != nil {
		panic("failed to sign token: " + err.Error())
	}
	return token
}

// CreateTokenWithExpiry returns a token with a custom exp.
func (tt *TestTenant) CreateTokenWithExpiry(expiry time.Time) string {
	return tt.CreateTokenWithClaims(map[string]any{"exp": expiry.Unix()})
}

// CreateExpiredToken returns a token whose exp is ten seconds in the past.
func (tt *TestTenant) CreateExpiredToken() string {
	return tt.CreateTokenWithExpiry(time.Now().Add(-10 * time.Second))
}

// CreateUnsignedToken returns an alg=none token carrying the active kid.
func (tt *TestTenant) CreateUnsignedToken(claims map[string]any) string {
	token, err := jwtkit.SignWithMethod(jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, tt.ActiveKID(), tt.claims(claims))
	if err != nil {
		panic("failed to build unsigned token: " + err.Error())
	}
	return token
}

// CreateHS256Token returns a token HMAC-signed with the PEM of the active
// public key, the classic RS256/HS256 confusion attempt.
func (tt *TestTenant) CreateHS256Token(claims map[string]any) string {
	der, err := x509.MarshalPKIXPublicKey(tt.ring.ActiveSigner().PublicKey())
	if err != nil {
		panic("failed to marshal public key: " + err.Error())
	}
	secret := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
	token, err := jwtkit.SignWithMethod(jwt.SigningMethodHS256, secret, tt.ActiveKID(), tt.claims(claims))
	if err != nil {
		panic("failed to sign hs256 token: " + err.Error())
	}
	return token
}

// CreateTokenSignedBy signs the default claims with signer, typically a key the tenant never published.
func (tt *TestTenant) CreateTokenSignedBy(signer jwtkit.Signer, claims map[string]any) string {
	token, err := signer.Sign(context.Background(), tt.claims(claims))
	if err != nil {
		panic("failed to sign token: " + err.Error())
	}
	return token
}

func (tt *TestTenant) claims(extra map[string]any) jwt.MapClaims {
	claims := jwtkit.AccessTokenClaims(tt.tenantID, tt.IssuerV2(), tt.audience, time.Hour)
	claims["sub"] = "AAAAAAAAAAAAAAAAAAAAAIkzqFVrSaSaFHy782bbtaQ"
	claims["oid"] = uuid.NewString()
	claims["name"] = "Test User"
	claims["preferred_username"] = "test.user@contoso.example"
	claims["scp"] = "access_as_user"
	claims["azp"] = uuid.NewString()
	claims["azpacr"] = "1"
	for k, v := range extra {
		if v == nil {
			delete(claims, k)
			continue
		}
		claims[k] = v
	}
	return claims
}
