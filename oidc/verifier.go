package oidckit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/PaulFidika/entraguard/metrics"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

// Verifier validates Entra ID access tokens for a single tenant and audience.
type Verifier struct {
	keys      *SigningKeySet
	tenantID  string
	audience  string
	templates []string
	issuers   []string
	leeway    time.Duration
	now       func() time.Time
	log       logrus.FieldLogger
}

// VerifierOpt configures a Verifier.
type VerifierOpt func(*Verifier)

// WithClock replaces time.Now for expiry and not-before checks.
func WithClock(now func() time.Time) VerifierOpt {
	return func(v *Verifier) {
		if now != nil {
			v.now = now
		}
	}
}

// WithLeeway tolerates clock skew on exp and nbf. Zero by default.
func WithLeeway(d time.Duration) VerifierOpt {
	return func(v *Verifier) {
		if d > 0 {
			v.leeway = d
		}
	}
}

// WithIssuerTemplates replaces the accepted issuer templates. Each template
// takes the tenant ID as its single %s verb.
func WithIssuerTemplates(templates ...string) VerifierOpt {
	return func(v *Verifier) {
		if len(templates) > 0 {
			v.templates = templates
		}
	}
}

// WithVerifierLogger sets the logger.
func WithVerifierLogger(log logrus.FieldLogger) VerifierOpt {
	return func(v *Verifier) {
		if log != nil {
			v.log = log
		}
	}
}

// NewVerifier builds a verifier that accepts tokens for audience issued by
// tenantID in either the v1 or v2 issuer format.
func NewVerifier(keys *SigningKeySet, tenantID, audience string, opts ...VerifierOpt) *Verifier {
	v := &Verifier{
		keys:      keys,
		tenantID:  tenantID,
		audience:  audience,
		templates: DefaultIssuerTemplates(),
		now:       time.Now,
		log:       logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(v)
	}
	v.issuers = AcceptedIssuers(tenantID, v.templates)
	v.log = v.log.WithField("tenant_id", tenantID)
	return v
}

// Audience returns the expected audience.
func (v *Verifier) Audience() string { return v.audience }

// AcceptedIssuers returns the issuer values a token may carry.
func (v *Verifier) AcceptedIssuers() []string {
	return append([]string(nil), v.issuers...)
}

// KeySet returns the underlying key resolver.
func (v *Verifier) KeySet() *SigningKeySet { return v.keys }

// Verify checks rawToken and returns its claims, or a *VerificationError.
//
// The issuer is read from the unverified payload first and compared against
// the accepted set before any key lookup. The signed parse then requires that
// same value again. Failure precedence when several apply: malformed, signature
// (including any algorithm other than RS256), expired, not yet valid,
// audience, issuer.
func (v *Verifier) Verify(ctx context.Context, rawToken string) (claims *VerifiedClaims, err error) {
	started := time.Now()
	defer func() {
		result := metrics.ResultSuccess
		if err != nil {
			result = string(KindOf(err))
		}
		metrics.ObserveVerification(result, started)
	}()

	if v == nil || v.keys == nil {
		return nil, newFailure(KindKeyResolverNotReady, "verifier has no key set", nil)
	}
	if !v.keys.Ready() {
		return nil, newFailure(KindKeyResolverNotReady, "jwks_uri has not been resolved", nil)
	}

	unverified, _, err := jwt.NewParser().ParseUnverified(rawToken, jwt.MapClaims{})
	if err != nil {
		v.log.WithError(err).Warn("rejected malformed token")
		return nil, newFailure(KindMalformedToken, "decode token", err)
	}
	actualIssuer, err := unverified.Claims.GetIssuer()
	if err != nil {
		return nil, newFailure(KindMalformedToken, "decode iss", err)
	}
	if !v.acceptsIssuer(actualIssuer) {
		v.log.WithFields(logrus.Fields{"issuer": actualIssuer, "expected": v.issuers}).Warn("rejected token: issuer not accepted")
		return nil, newFailure(KindInvalidIssuer, fmt.Sprintf("issuer %q is not accepted", actualIssuer), nil)
	}

	kid, _ := unverified.Header["kid"].(string)
	pub, err := v.keys.SigningKey(ctx, kid)
	if err != nil {
		v.log.WithError(err).WithField("kid", kid).Warn("rejected token: no signing key")
		return nil, err
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(v.audience),
		jwt.WithIssuer(actualIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.now),
	)
	mc := jwt.MapClaims{}
	if _, err := parser.ParseWithClaims(rawToken, mc, func(*jwt.Token) (any, error) { return pub, nil }); err != nil {
		failure := v.classify(err)
		v.log.WithError(err).WithField("failure", failure.Kind).Warn("rejected token")
		return nil, failure
	}

	out := newVerifiedClaims(mc, rawToken, actualIssuer)
	v.log.WithFields(logrus.Fields{
		"name":               out.Name(),
		"preferred_username": out.PreferredUsername(),
	}).Info("token validated")
	return out, nil
}

func (v *Verifier) acceptsIssuer(iss string) bool {
	if iss == "" {
		return false
	}
	for _, accepted := range v.issuers {
		if iss == accepted {
			return true
		}
	}
	return false
}

// classify maps a golang-jwt error to a failure kind. Claim validation joins
// every failing check into one error, so the order of the cases decides precedence.
func (v *Verifier) classify(err error) *VerificationError {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return newFailure(KindMalformedToken, "token is malformed", err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return newFailure(KindSignatureInvalid, "signature verification failed", err)
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return newFailure(KindMalformedToken, "required claim missing", err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return newFailure(KindTokenExpired, "token has expired", err)
	case errors.Is(err, jwt.ErrTokenNotValidYet), errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return newFailure(KindTokenNotYetValid, "token is not valid yet", err)
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return newFailure(KindInvalidAudience, fmt.Sprintf("expected audience %q", v.audience), err)
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return newFailure(KindInvalidIssuer, "issuer changed between checks", err)
	default:
		return newFailure(KindMalformedToken, "token rejected", err)
	}
}
