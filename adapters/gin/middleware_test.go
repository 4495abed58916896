package authgin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	core "github.com/PaulFidika/entraguard/core"
	oidckit "github.com/PaulFidika/entraguard/oidc"
	memorylimiter "github.com/PaulFidika/entraguard/ratelimit/memory"
	entratest "github.com/PaulFidika/entraguard/testing"
	"github.com/gin-gonic/gin"
)

type fakeVerifier struct {
	claims *oidckit.VerifiedClaims
	err    error
	calls  int
}

func (f *fakeVerifier) Verify(_ context.Context, raw string) (*oidckit.VerifiedClaims, error) {
	f.calls++
	return f.claims, f.err
}

type recordingAudit struct{ events []core.VerificationEvent }

func (r *recordingAudit) LogVerification(_ context.Context, ev core.VerificationEvent) error {
	r.events = append(r.events, ev)
	return nil
}

// verifiedClaims runs a real verification against a mock tenant.
func verifiedClaims(t *testing.T) *oidckit.VerifiedClaims {
	t.Helper()
	tenant := entratest.NewTestTenant("abc-123", "api://xyz")
	t.Cleanup(tenant.Close)
	keys := oidckit.NewSigningKeySet(tenant.TenantID(), oidckit.WithAuthority(tenant.Authority()))
	if err := keys.Resolve(context.Background()); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	v := oidckit.NewVerifier(keys, tenant.TenantID(), tenant.Audience())
	claims, err := v.Verify(context.Background(), tenant.CreateToken(map[string]any{"azp": "client-app"}))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	return claims
}

func newEngine(v TokenVerifier, opts Options) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/p", RequireBearer(v, opts), func(c *gin.Context) {
		cl, ok := ClaimsFromGin(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		if _, ok := ClaimsFromContext(c.Request.Context()); !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusOK, cl.Name())
	})
	return r
}

func do(r http.Handler, auth string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/p", nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	r.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", w.Body.String(), err)
	}
	return body
}

func TestRequireBearer_MissingHeader(t *testing.T) {
	fv := &fakeVerifier{}
	r := newEngine(fv, Options{})
	for _, auth := range []string{"", "Basic dXNlcjpwYXNz", "Bearer", "Bearer   "} {
		w := do(r, auth)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("%q: expected 401, got %d", auth, w.Code)
		}
		if decodeError(t, w)["error"] != "missing_bearer_token" {
			t.Fatalf("%q: unexpected body %s", auth, w.Body.String())
		}
	}
	if fv.calls != 0 {
		t.Fatalf("verifier should not run without a token")
	}
}

func TestRequireBearer_Success(t *testing.T) {
	claims := verifiedClaims(t)
	audit := &recordingAudit{}
	r := newEngine(&fakeVerifier{claims: claims}, Options{Audit: audit})

	w := do(r, "bearer tok")
	if w.Code != http.StatusOK || w.Body.String() != "Test User" {
		t.Fatalf("unexpected response %d %q", w.Code, w.Body.String())
	}
	if len(audit.events) != 1 || audit.events[0].Failure != "" || audit.events[0].Status != http.StatusOK {
		t.Fatalf("unexpected audit events %+v", audit.events)
	}
}

func TestRequireBearer_MapsFailureKinds(t *testing.T) {
	cases := []struct {
		kind oidckit.FailureKind
		code int
	}{
		{oidckit.KindTokenExpired, http.StatusUnauthorized},
		{oidckit.KindInvalidAudience, http.StatusUnauthorized},
		{oidckit.KindSignatureInvalid, http.StatusUnauthorized},
		{oidckit.KindKeyResolverNotReady, http.StatusServiceUnavailable},
		{oidckit.KindDiscoveryUnavailable, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		err := &oidckit.VerificationError{Kind: tc.kind, Message: "because"}
		w := do(newEngine(&fakeVerifier{err: err}, Options{}), "Bearer tok")
		if w.Code != tc.code {
			t.Fatalf("%s: expected %d, got %d", tc.kind, tc.code, w.Code)
		}
		body := decodeError(t, w)
		if body["error"] != string(tc.kind) || body["message"] != "because" {
			t.Fatalf("%s: unexpected body %v", tc.kind, body)
		}
	}
}

func TestRequireBearer_ThrottlesRepeatedFailures(t *testing.T) {
	fv := &fakeVerifier{err: &oidckit.VerificationError{Kind: oidckit.KindSignatureInvalid, Message: "bad"}}
	r := newEngine(fv, Options{Throttle: memorylimiter.New(2, time.Minute)})

	for i := 0; i < 2; i++ {
		if w := do(r, "Bearer forged"); w.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i, w.Code)
		}
	}
	w := do(r, "Bearer forged")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after limit, got %d", w.Code)
	}
	if fv.calls != 2 {
		t.Fatalf("expected throttled request to skip verification, calls=%d", fv.calls)
	}
}

func TestRequireBearer_UnavailableDoesNotCountAgainstClient(t *testing.T) {
	fv := &fakeVerifier{err: &oidckit.VerificationError{Kind: oidckit.KindKeyResolverNotReady, Message: "not ready"}}
	r := newEngine(fv, Options{Throttle: memorylimiter.New(1, time.Minute)})
	for i := 0; i < 3; i++ {
		if w := do(r, "Bearer tok"); w.Code != http.StatusServiceUnavailable {
			t.Fatalf("attempt %d: expected 503, got %d", i, w.Code)
		}
	}
}

func TestBearerToken(t *testing.T) {
	cases := map[string]string{
		"Bearer abc":     "abc",
		"BEARER abc":     "abc",
		"  Bearer  abc ": "abc",
	}
	for in, want := range cases {
		got, ok := bearerToken(in)
		if !ok || got != want {
			t.Fatalf("%q: got %q %v", in, got, ok)
		}
	}
	if _, ok := bearerToken("Token abc"); ok {
		t.Fatalf("expected non-bearer scheme to be rejected")
	}
}

func TestCurrentCaller(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	if view, ok := CurrentCaller(c); ok || view.Source != "none" {
		t.Fatalf("expected no caller, got %+v", view)
	}
	c.Set(ctxClaims, verifiedClaims(t))
	view, ok := CurrentCaller(c)
	if !ok || view.Source != "delegated" || view.Name != "Test User" || view.App != "client-app" {
		t.Fatalf("unexpected caller %+v", view)
	}
}
