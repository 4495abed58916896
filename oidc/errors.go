package oidckit

import (
	"errors"
	"fmt"
)

// FailureKind classifies why a bearer token was not accepted.
type FailureKind string

const (
	// KindDiscoveryUnavailable: the discovery document could not be fetched or had no jwks_uri.
	KindDiscoveryUnavailable FailureKind = "DiscoveryUnavailable"
	// KindKeyResolverNotReady: discovery never succeeded, so nothing can be verified.
	KindKeyResolverNotReady FailureKind = "KeyResolverNotReady"
	// KindSigningKeyNotFound: the token's kid is not in the JWKS, even after a refresh.
	KindSigningKeyNotFound FailureKind = "SigningKeyNotFound"
	// KindInvalidIssuer: iss is outside the accepted set, or changed between the two checks.
	KindInvalidIssuer FailureKind = "InvalidIssuer"
	// KindTokenExpired: now >= exp.
	KindTokenExpired FailureKind = "TokenExpired"
	// KindTokenNotYetValid: nbf lies in the future.
	KindTokenNotYetValid FailureKind = "TokenNotYetValid"
	// KindInvalidAudience: aud does not contain the expected audience.
	KindInvalidAudience FailureKind = "InvalidAudience"
	// KindMalformedToken: the input is not a well-formed signed JWT.
	KindMalformedToken FailureKind = "MalformedToken"
	// KindSignatureInvalid: cryptographic verification failed or the algorithm is not RS256.
	KindSignatureInvalid FailureKind = "SignatureInvalid"
)

// KindServiceUnavailable is the name the HTTP layer uses for a resolver that is not ready.
const KindServiceUnavailable = KindKeyResolverNotReady

// Sentinels for errors.Is. A *VerificationError matches the sentinel of its Kind.
var (
	ErrDiscoveryUnavailable = errors.New("oidc: discovery unavailable")
	ErrKeyResolverNotReady  = errors.New("oidc: key resolver not ready")
	ErrSigningKeyNotFound   = errors.New("oidc: signing key not found")
	ErrInvalidIssuer        = errors.New("oidc: invalid issuer")
	ErrTokenExpired         = errors.New("oidc: token expired")
	ErrTokenNotYetValid     = errors.New("oidc: token not yet valid")
	ErrInvalidAudience      = errors.New("oidc: invalid audience")
	ErrMalformedToken       = errors.New("oidc: malformed token")
	ErrSignatureInvalid     = errors.New("oidc: signature invalid")
)

var sentinels = map[FailureKind]error{
	KindDiscoveryUnavailable: ErrDiscoveryUnavailable,
	KindKeyResolverNotReady:  ErrKeyResolverNotReady,
	KindSigningKeyNotFound:   ErrSigningKeyNotFound,
	KindInvalidIssuer:        ErrInvalidIssuer,
	KindTokenExpired:         ErrTokenExpired,
	KindTokenNotYetValid:     ErrTokenNotYetValid,
	KindInvalidAudience:      ErrInvalidAudience,
	KindMalformedToken:       ErrMalformedToken,
	KindSignatureInvalid:     ErrSignatureInvalid,
}

// VerificationError is the single error type returned by SigningKeySet and Verifier.
type VerificationError struct {
	Kind    FailureKind
	Message string
	Err     error
}

func (e *VerificationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *VerificationError) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for e.Kind.
func (e *VerificationError) Is(target error) bool {
	s, ok := sentinels[e.Kind]
	return ok && s == target
}

func newFailure(kind FailureKind, message string, err error) *VerificationError {
	return &VerificationError{Kind: kind, Message: message, Err: err}
}

// KindOf returns the failure kind carried by err, or "" if err is nil or foreign.
func KindOf(err error) FailureKind {
	var ve *VerificationError
	if errors.As(err, &ve) {
		return ve.Kind
	}
	return ""
}

// IsUnavailable reports whether kind means the verifier itself cannot work yet,
// as opposed to the token being bad.
func IsUnavailable(kind FailureKind) bool {
	return kind == KindKeyResolverNotReady || kind == KindDiscoveryUnavailable
}
