package oidckit

import "strings"

// debugClaimNames is the fixed subset echoed back by the protected API.
var debugClaimNames = []string{
	"aud", "iss", "iat", "exp", "name", "oid", "preferred_username", "scp", "tid", "azp", "azpacr",
}

// VerifiedClaims is the decoded payload of a token that passed every check.
// It is read-only; All returns a copy.
type VerifiedClaims struct {
	claims   map[string]any
	rawToken string
	issuer   string
}

func newVerifiedClaims(claims map[string]any, rawToken, issuer string) *VerifiedClaims {
	cp := make(map[string]any, len(claims))
	for k, v := range claims {
		cp[k] = v
	}
	return &VerifiedClaims{claims: cp, rawToken: rawToken, issuer: issuer}
}

// RawToken is the original bearer token, kept for forwarding downstream.
func (c *VerifiedClaims) RawToken() string { return c.rawToken }

// Issuer is the authenticated iss value.
func (c *VerifiedClaims) Issuer() string { return c.issuer }

// Get returns a single claim.
func (c *VerifiedClaims) Get(name string) (any, bool) {
	v, ok := c.claims[name]
	return v, ok
}

// String returns a claim when it is a string, otherwise "".
func (c *VerifiedClaims) String(name string) string {
	if s, ok := c.claims[name].(string); ok {
		return s
	}
	return ""
}

// All returns a copy of every claim.
func (c *VerifiedClaims) All() map[string]any {
	out := make(map[string]any, len(c.claims))
	for k, v := range c.claims {
		out[k] = v
	}
	return out
}

func (c *VerifiedClaims) TenantID() string          { return c.String("tid") }
func (c *VerifiedClaims) ObjectID() string          { return c.String("oid") }
func (c *VerifiedClaims) Name() string              { return c.String("name") }
func (c *VerifiedClaims) PreferredUsername() string { return c.String("preferred_username") }

// Scopes splits the space-delimited scp claim of delegated tokens.
func (c *VerifiedClaims) Scopes() []string {
	return strings.Fields(c.String("scp"))
}

// Roles returns the roles claim of application tokens.
func (c *VerifiedClaims) Roles() []string {
	raw, ok := c.claims["roles"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, r := range v {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// HasScope reports whether scp contains scope.
func (c *VerifiedClaims) HasScope(scope string) bool {
	for _, s := range c.Scopes() {
		if s == scope {
			return true
		}
	}
	return false
}

// DebugClaims returns the well-known identity claims that are present.
func (c *VerifiedClaims) DebugClaims() map[string]any {
	out := make(map[string]any, len(debugClaimNames))
	for _, name := range debugClaimNames {
		if v, ok := c.claims[name]; ok && v != nil {
			out[name] = v
		}
	}
	return out
}
