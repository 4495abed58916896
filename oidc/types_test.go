package oidckit

import (
	"errors"
	"fmt"
	"testing"
)

func TestVerifiedClaims_DebugClaimsOmitsAbsent(t *testing.T) {
	c := newVerifiedClaims(map[string]any{
		"aud":   "api://xyz",
		"tid":   "abc-123",
		"scp":   "access_as_user Data.Read",
		"email": "not-in-debug@example.com",
		"azp":   nil,
	}, "raw", "https://login.microsoftonline.com/abc-123/v2.0")

	got := c.DebugClaims()
	if len(got) != 3 {
		t.Fatalf("expected 3 debug claims, got %v", got)
	}
	if _, ok := got["email"]; ok {
		t.Fatalf("expected email to be left out of debug claims")
	}
	if _, ok := got["azp"]; ok {
		t.Fatalf("expected nil azp to be dropped")
	}
	if !c.HasScope("Data.Read") || c.HasScope("Data.Write") {
		t.Fatalf("unexpected scopes %v", c.Scopes())
	}
}

func TestVerifiedClaims_AllReturnsCopy(t *testing.T) {
	src := map[string]any{"name": "Ada"}
	c := newVerifiedClaims(src, "raw", "iss")
	src["name"] = "changed"

	all := c.All()
	all["name"] = "mutated"
	if c.Name() != "Ada" {
		t.Fatalf("expected claims to be isolated from callers, got %q", c.Name())
	}
}

func TestVerifiedClaims_Roles(t *testing.T) {
	c := newVerifiedClaims(map[string]any{"roles": []any{"Data.Read", 7, "Admin"}}, "", "")
	roles := c.Roles()
	if len(roles) != 2 || roles[0] != "Data.Read" || roles[1] != "Admin" {
		t.Fatalf("unexpected roles %v", roles)
	}
	if newVerifiedClaims(nil, "", "").Roles() != nil {
		t.Fatalf("expected nil roles when claim absent")
	}
}

func TestVerificationError_MatchesSentinel(t *testing.T) {
	for kind, sentinel := range sentinels {
		err := fmt.Errorf("wrapped: %w", newFailure(kind, "msg", errors.New("cause")))
		if !errors.Is(err, sentinel) {
			t.Fatalf("expected %s to match its sentinel", kind)
		}
		if KindOf(err) != kind {
			t.Fatalf("expected KindOf to return %s, got %s", kind, KindOf(err))
		}
		if errors.Is(err, ErrMalformedToken) != (kind == KindMalformedToken) {
			t.Fatalf("%s matched the wrong sentinel", kind)
		}
	}
	if KindOf(errors.New("plain")) != "" {
		t.Fatalf("expected foreign errors to have no kind")
	}
}

func TestIsUnavailable(t *testing.T) {
	if !IsUnavailable(KindServiceUnavailable) || !IsUnavailable(KindDiscoveryUnavailable) {
		t.Fatalf("expected resolver kinds to be unavailable")
	}
	if IsUnavailable(KindTokenExpired) {
		t.Fatalf("expected token kinds to be available failures")
	}
}
