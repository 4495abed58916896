package authhttp_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	authhttp "github.com/PaulFidika/entraguard/adapters/http"
	oidckit "github.com/PaulFidika/entraguard/oidc"
	entratest "github.com/PaulFidika/entraguard/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequireBearer(t *testing.T) {
	tenant := entratest.NewTestTenant("abc-123", "api://xyz")
	defer tenant.Close()
	keys := oidckit.NewSigningKeySet(tenant.TenantID(), oidckit.WithAuthority(tenant.Authority()))
	v := oidckit.NewVerifier(keys, tenant.TenantID(), tenant.Audience())

	h := authhttp.RequireBearer(v, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cl, ok := authhttp.ClaimsFromContext(r.Context())
		require.True(t, ok)
		_, _ = w.Write([]byte(cl.TenantID()))
	}))

	call := func(auth string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/emptydata", nil)
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}
		h.ServeHTTP(w, req)
		return w
	}

	w := call("Bearer " + tenant.CreateToken(nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), string(oidckit.KindKeyResolverNotReady))

	require.NoError(t, keys.Resolve(context.Background()))

	w = call("Bearer " + tenant.CreateToken(nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "abc-123", w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = call("")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "missing_bearer_token")

	w = call("Bearer " + tenant.CreateUnsignedToken(nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), string(oidckit.KindSignatureInvalid))
}
