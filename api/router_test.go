package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	authgin "github.com/PaulFidika/entraguard/adapters/gin"
	oidckit "github.com/PaulFidika/entraguard/oidc"
	memorylimiter "github.com/PaulFidika/entraguard/ratelimit/memory"
	entratest "github.com/PaulFidika/entraguard/testing"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAPI(t *testing.T, resolve bool) (*entratest.TestTenant, http.Handler) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	tenant := entratest.NewTestTenant("abc-123", "api://xyz")
	t.Cleanup(tenant.Close)
	keys := oidckit.NewSigningKeySet(tenant.TenantID(), oidckit.WithAuthority(tenant.Authority()))
	if resolve {
		require.NoError(t, keys.Resolve(context.Background()))
	}
	v := oidckit.NewVerifier(keys, tenant.TenantID(), tenant.Audience())
	r, err := NewRouter(v, authgin.Options{}, nil)
	require.NoError(t, err)
	return tenant, r
}

func get(h http.Handler, path, token string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	h.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	_, h := newAPI(t, false)
	w := get(h, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"healthy","service":"empty-api"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRoot(t *testing.T) {
	_, h := newAPI(t, false)
	w := get(h, "/", "")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Endpoints map[string]string `json:"endpoints"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	for _, path := range []string{"/health", "/emptydata", "/me", "/metrics"} {
		assert.Contains(t, body.Endpoints, path)
	}
}

func TestEmptyData_ValidToken(t *testing.T) {
	tenant, h := newAPI(t, true)
	w := get(h, "/emptydata", tenant.CreateToken(map[string]any{"email": "extra@contoso.example"}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body struct {
		Message string `json:"message"`
		Debug   struct {
			TokenReceived bool           `json:"token_received"`
			Claims        map[string]any `json:"claims"`
			AllClaims     map[string]any `json:"all_claims"`
		} `json:"debug"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Here are data from empty api", body.Message)
	assert.True(t, body.Debug.TokenReceived)
	assert.Equal(t, "abc-123", body.Debug.Claims["tid"])
	assert.Equal(t, "Test User", body.Debug.Claims["name"])
	assert.NotContains(t, body.Debug.Claims, "email")
	assert.Equal(t, "extra@contoso.example", body.Debug.AllClaims["email"])
}

func TestEmptyData_Rejections(t *testing.T) {
	tenant, h := newAPI(t, true)

	w := get(h, "/emptydata", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "missing_bearer_token")

	w = get(h, "/emptydata", tenant.CreateExpiredToken())
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), string(oidckit.KindTokenExpired))

	w = get(h, "/emptydata", tenant.CreateToken(map[string]any{"aud": "api://other"}))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "api://xyz")
}

func TestEmptyData_NotReady(t *testing.T) {
	tenant, h := newAPI(t, false)
	w := get(h, "/emptydata", tenant.CreateToken(nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, int64(0), tenant.JWKSHits())
}

func TestMe(t *testing.T) {
	tenant, h := newAPI(t, true)
	w := get(h, "/me", tenant.CreateToken(map[string]any{"scp": "access_as_user Data.Read"}))
	require.Equal(t, http.StatusOK, w.Code)
	var view authgin.CallerView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, "delegated", view.Source)
	assert.Equal(t, []string{"access_as_user", "Data.Read"}, view.Scopes)
}

func TestMetrics(t *testing.T) {
	tenant, h := newAPI(t, true)
	get(h, "/emptydata", tenant.CreateToken(nil))
	w := get(h, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "entraguard_verifications_total"))
}

func throttledAPI(t *testing.T, trusted []string) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)
	tenant := entratest.NewTestTenant("abc-123", "api://xyz")
	t.Cleanup(tenant.Close)
	keys := oidckit.NewSigningKeySet(tenant.TenantID(), oidckit.WithAuthority(tenant.Authority()))
	require.NoError(t, keys.Resolve(context.Background()))
	v := oidckit.NewVerifier(keys, tenant.TenantID(), tenant.Audience())
	r, err := NewRouter(v, authgin.Options{Throttle: memorylimiter.New(2, time.Minute)}, trusted)
	require.NoError(t, err)
	return r
}

func getFrom(h http.Handler, remoteAddr, forwardedFor string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/emptydata", nil)
	req.RemoteAddr = remoteAddr
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	if forwardedFor != "" {
		req.Header.Set("X-Forwarded-For", forwardedFor)
	}
	h.ServeHTTP(w, req)
	return w
}

func TestThrottle_IgnoresForwardedForFromUntrustedPeers(t *testing.T) {
	h := throttledAPI(t, nil)

	for i := 0; i < 2; i++ {
		w := getFrom(h, "203.0.113.66:40000", "198.51.100.7")
		require.Equal(t, http.StatusUnauthorized, w.Code)
	}
	// The sender is charged, not the address it claimed.
	w := getFrom(h, "203.0.113.66:40001", "198.51.100.8")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	w = getFrom(h, "198.51.100.7:50000", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestThrottle_HonorsForwardedForFromTrustedProxy(t *testing.T) {
	h := throttledAPI(t, []string{"10.0.0.0/8"})

	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusUnauthorized, getFrom(h, "10.1.2.3:40000", "198.51.100.7").Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, getFrom(h, "10.1.2.3:40000", "198.51.100.7").Code)
	assert.Equal(t, http.StatusUnauthorized, getFrom(h, "10.1.2.3:40000", "198.51.100.9").Code)
}

func TestNewRouter_RejectsBadTrustedProxy(t *testing.T) {
	_, err := NewRouter(nil, authgin.Options{}, []string{"not-an-ip"})
	assert.Error(t, err)
}
