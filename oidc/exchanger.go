package oidckit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// ClientCredentials describes a confidential client that calls a protected API as itself.
type ClientCredentials struct {
	Authority    string
	TenantID     string
	ClientID     string
	ClientSecret string
	// Resource is the target API's application ID URI, e.g. api://{clientId}.
	Resource string
}

// Scope returns the .default scope Entra expects for client credential grants.
func (c ClientCredentials) Scope() string {
	return strings.TrimRight(c.Resource, "/") + "/.default"
}

func (c ClientCredentials) config() (*clientcredentials.Config, error) {
	if c.TenantID == "" || c.ClientID == "" || c.ClientSecret == "" {
		return nil, errors.New("oidc: client credentials need tenant, client id and secret")
	}
	if c.Resource == "" {
		return nil, errors.New("oidc: client credentials need a resource")
	}
	return &clientcredentials.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		TokenURL:     TokenURL(c.Authority, c.TenantID),
		Scopes:       []string{c.Scope()},
		AuthStyle:    oauth2.AuthStyleInParams,
	}, nil
}

// ClientCredentialsToken obtains an access token for c.Resource.
func ClientCredentialsToken(ctx context.Context, c ClientCredentials) (*oauth2.Token, error) {
	cfg, err := c.config()
	if err != nil {
		return nil, err
	}
	tok, err := cfg.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("token request for %s failed: %w", c.Scope(), err)
	}
	return tok, nil
}

// ClientCredentialsHTTPClient returns a client that attaches a bearer token for
// c.Resource to every request, refreshing it as it expires.
func ClientCredentialsHTTPClient(ctx context.Context, c ClientCredentials) (*http.Client, error) {
	cfg, err := c.config()
	if err != nil {
		return nil, err
	}
	return cfg.Client(ctx), nil
}
