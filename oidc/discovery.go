package oidckit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

type discoveryDoc struct {
	Issuer        string `json:"issuer"`
	TokenEndpoint string `json:"token_endpoint"`
	JWKSURI       string `json:"jwks_uri"`
}

// fetchDiscovery reads the OpenID configuration and returns its jwks_uri.
func fetchDiscovery(ctx context.Context, client *http.Client, discoveryURL string) (*discoveryDoc, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, discoveryURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("oidc: discovery failed: %s", resp.Status)
	}
	var doc discoveryDoc
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("oidc: decode discovery: %w", err)
	}
	if doc.JWKSURI == "" {
		return nil, errors.New("oidc: discovery missing jwks_uri")
	}
	return &doc, nil
}
