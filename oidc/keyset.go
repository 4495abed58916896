package oidckit

import (
	"context"
	"crypto/rsa"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/PaulFidika/entraguard/metrics"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// SigningKeySet resolves a tenant's jwks_uri once through discovery and
// caches the published signing keys. Safe for concurrent use.
type SigningKeySet struct {
	tenantID     string
	discoveryURL string
	client       *http.Client
	minRefresh   time.Duration
	log          logrus.FieldLogger
	now          func() time.Time

	group singleflight.Group

	mu          sync.RWMutex
	jwksURL     string
	keys        jwk.Set
	lastAttempt time.Time
}

// KeySetOpt configures a SigningKeySet.
type KeySetOpt func(*SigningKeySet)

// WithAuthority overrides the login host used to build the discovery URL.
func WithAuthority(authority string) KeySetOpt {
	return func(s *SigningKeySet) {
		s.discoveryURL = DiscoveryURL(authority, s.tenantID)
	}
}

// WithHTTPClient sets the client for discovery and JWKS requests. Its Timeout bounds each call.
func WithHTTPClient(client *http.Client) KeySetOpt {
	return func(s *SigningKeySet) {
		if client != nil {
			s.client = client
		}
	}
}

// WithMinRefreshInterval sets how often an unknown kid may trigger a JWKS refetch.
func WithMinRefreshInterval(d time.Duration) KeySetOpt {
	return func(s *SigningKeySet) {
		if d >= 0 {
			s.minRefresh = d
		}
	}
}

// WithKeySetLogger sets the logger.
func WithKeySetLogger(log logrus.FieldLogger) KeySetOpt {
	return func(s *SigningKeySet) {
		if log != nil {
			s.log = log
		}
	}
}

// NewSigningKeySet builds an unresolved key set for tenantID. Call Resolve before use.
func NewSigningKeySet(tenantID string, opts ...KeySetOpt) *SigningKeySet {
	s := &SigningKeySet{
		tenantID:     tenantID,
		discoveryURL: DiscoveryURL(DefaultAuthority, tenantID),
		client:       &http.Client{Timeout: DefaultHTTPTimeout},
		minRefresh:   DefaultMinRefreshInterval,
		log:          logrus.StandardLogger(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.WithField("tenant_id", tenantID)
	return s
}

// TenantID returns the tenant this key set serves.
func (s *SigningKeySet) TenantID() string { return s.tenantID }

// DiscoveryURL returns the OpenID configuration endpoint.
func (s *SigningKeySet) DiscoveryURL() string { return s.discoveryURL }

// JWKSURL returns the resolved jwks_uri and whether discovery has succeeded.
func (s *SigningKeySet) JWKSURL() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.jwksURL, s.jwksURL != ""
}

// Ready reports whether discovery has succeeded.
func (s *SigningKeySet) Ready() bool {
	_, ok := s.JWKSURL()
	return ok
}

// Resolve fetches the discovery document and records its jwks_uri. After the
// first success it returns immediately; the URL never changes afterwards.
// Concurrent callers share one in-flight request.
func (s *SigningKeySet) Resolve(ctx context.Context) error {
	if s.Ready() {
		return nil
	}
	_, err, _ := s.group.Do("discovery", func() (any, error) {
		if s.Ready() {
			return nil, nil
		}
		doc, err := fetchDiscovery(ctx, s.client, s.discoveryURL)
		if err != nil {
			metrics.DiscoveryTotal.WithLabelValues(metrics.ResultError).Inc()
			s.log.WithError(err).WithField("discovery_url", s.discoveryURL).Warn("could not resolve jwks_uri; requests will be refused until discovery succeeds")
			return nil, newFailure(KindDiscoveryUnavailable, "fetch "+s.discoveryURL, err)
		}
		s.mu.Lock()
		if s.jwksURL == "" {
			s.jwksURL = doc.JWKSURI
		}
		s.mu.Unlock()
		metrics.DiscoveryTotal.WithLabelValues(metrics.ResultSuccess).Inc()
		s.log.WithField("jwks_uri", doc.JWKSURI).Info("resolved jwks_uri")
		return nil, nil
	})
	return err
}

// SigningKey returns the RSA public key published under kid. An unknown kid
// triggers at most one refetch of the JWKS, rate limited by the min refresh interval.
func (s *SigningKeySet) SigningKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	jwksURL, ok := s.JWKSURL()
	if !ok {
		return nil, newFailure(KindKeyResolverNotReady, "discovery has not succeeded", nil)
	}
	if kid == "" {
		return nil, newFailure(KindSigningKeyNotFound, "token header has no kid", nil)
	}

	if pub, ok := s.lookup(kid); ok {
		return pub, nil
	}
	if !s.mayFetch() {
		// Another caller may have just refreshed.
		if pub, ok := s.lookup(kid); ok {
			return pub, nil
		}
		return nil, newFailure(KindSigningKeyNotFound, fmt.Sprintf("kid %q not in jwks", kid), nil)
	}
	set, err := s.fetchKeys(ctx, jwksURL)
	if err != nil {
		return nil, newFailure(KindSigningKeyNotFound, "fetch "+jwksURL, err)
	}
	if pub, ok := rsaKey(set, kid); ok {
		return pub, nil
	}
	s.log.WithField("kid", kid).Warn("kid not found in jwks after refresh")
	return nil, newFailure(KindSigningKeyNotFound, fmt.Sprintf("kid %q not in jwks", kid), nil)
}

func (s *SigningKeySet) lookup(kid string) (*rsa.PublicKey, bool) {
	s.mu.RLock()
	set := s.keys
	s.mu.RUnlock()
	if set == nil {
		return nil, false
	}
	return rsaKey(set, kid)
}

// mayFetch allows a fetch while no JWKS has ever been cached, otherwise once per minRefresh.
func (s *SigningKeySet) mayFetch() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.keys == nil || s.lastAttempt.IsZero() || s.now().Sub(s.lastAttempt) >= s.minRefresh
}

// fetchKeys refreshes the cached JWKS. Concurrent callers share one fetch,
// which runs detached from the caller's cancellation and is bounded by the
// HTTP client timeout.
func (s *SigningKeySet) fetchKeys(ctx context.Context, jwksURL string) (jwk.Set, error) {
	ch := s.group.DoChan("jwks", func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.fetchTimeout())
		defer cancel()
		set, err := jwk.Fetch(fetchCtx, jwksURL, jwk.WithHTTPClient(s.client))
		s.mu.Lock()
		s.lastAttempt = s.now()
		if err == nil {
			s.keys = set
		}
		s.mu.Unlock()
		metrics.JWKSFetchTotal.WithLabelValues(metrics.Result(err)).Inc()
		if err != nil {
			s.log.WithError(err).WithField("jwks_uri", jwksURL).Warn("jwks fetch failed")
			return nil, err
		}
		s.log.WithField("keys", set.Len()).Debug("fetched jwks")
		return set, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(jwk.Set), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *SigningKeySet) fetchTimeout() time.Duration {
	if s.client.Timeout > 0 {
		return s.client.Timeout
	}
	return DefaultHTTPTimeout
}

func rsaKey(set jwk.Set, kid string) (*rsa.PublicKey, bool) {
	key, ok := set.LookupKeyID(kid)
	if !ok || key.KeyType() != jwa.RSA {
		return nil, false
	}
	var raw any
	if err := key.Raw(&raw); err != nil {
		return nil, false
	}
	switch pub := raw.(type) {
	case *rsa.PublicKey:
		return pub, true
	case rsa.PublicKey:
		return &pub, true
	default:
		return nil, false
	}
}

// StartDiscoveryRetry retries a failed discovery on a cron schedule (e.g. "@every 1m")
// until it succeeds. Requests never trigger discovery themselves. The returned
// func stops the schedule and waits for a running attempt.
func (s *SigningKeySet) StartDiscoveryRetry(spec string) (func(), error) {
	if s.Ready() {
		return func() {}, nil
	}
	c := cron.New()
	timeout := s.fetchTimeout()
	_, err := c.AddFunc(spec, func() {
		if s.Ready() {
			c.Stop()
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := s.Resolve(ctx); err == nil {
			c.Stop()
		}
	})
	if err != nil {
		return nil, fmt.Errorf("oidc: discovery retry schedule %q: %w", spec, err)
	}
	c.Start()
	return func() { <-c.Stop().Done() }, nil
}
