package oidckit

import (
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultAuthority is the Entra ID login host.
	DefaultAuthority = "https://login.microsoftonline.com"

	// IssuerTemplateV2 and IssuerTemplateV1 are the two issuer shapes Entra
	// uses for the same tenant, depending on the access token version.
	IssuerTemplateV2 = "https://login.microsoftonline.com/%s/v2.0"
	IssuerTemplateV1 = "https://sts.windows.net/%s/"

	// DefaultHTTPTimeout bounds discovery and JWKS requests.
	DefaultHTTPTimeout = 10 * time.Second
	// DefaultMinRefreshInterval throttles JWKS refreshes triggered by unknown kids.
	DefaultMinRefreshInterval = 30 * time.Second
)

// DefaultIssuerTemplates returns the v2 and v1 Entra issuer templates.
func DefaultIssuerTemplates() []string {
	return []string{IssuerTemplateV2, IssuerTemplateV1}
}

// DiscoveryURL builds the v2.0 OpenID configuration URL for a tenant.
func DiscoveryURL(authority, tenantID string) string {
	if strings.TrimSpace(authority) == "" {
		authority = DefaultAuthority
	}
	return fmt.Sprintf("%s/%s/v2.0/.well-known/openid-configuration", strings.TrimRight(authority, "/"), tenantID)
}

// TokenURL builds the v2.0 token endpoint for a tenant.
func TokenURL(authority, tenantID string) string {
	if strings.TrimSpace(authority) == "" {
		authority = DefaultAuthority
	}
	return fmt.Sprintf("%s/%s/oauth2/v2.0/token", strings.TrimRight(authority, "/"), tenantID)
}

// AcceptedIssuers expands each template with tenantID, dropping duplicates.
func AcceptedIssuers(tenantID string, templates []string) []string {
	if len(templates) == 0 {
		templates = DefaultIssuerTemplates()
	}
	seen := make(map[string]struct{}, len(templates))
	out := make([]string, 0, len(templates))
	for _, t := range templates {
		iss := fmt.Sprintf(t, tenantID)
		if _, ok := seen[iss]; ok {
			continue
		}
		seen[iss] = struct{}{}
		out = append(out, iss)
	}
	return out
}

// DefaultAudience is the audience Entra stamps on tokens for an app registration
// exposing an API with the default application ID URI.
func DefaultAudience(clientID string) string {
	return "api://" + clientID
}
