// Package authhttp protects plain net/http handlers with Entra ID bearer tokens.
package authhttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	oidckit "github.com/PaulFidika/entraguard/oidc"
	"github.com/google/uuid"
)

type claimsKey struct{}

// TokenVerifier is satisfied by *oidckit.Verifier.
type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (*oidckit.VerifiedClaims, error)
}

// RequireBearer wraps next so it only runs for requests carrying a valid token.
func RequireBearer(v TokenVerifier, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)

		scheme, raw, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
		raw = strings.TrimSpace(raw)
		if !ok || !strings.EqualFold(scheme, "Bearer") || raw == "" {
			writeError(w, http.StatusUnauthorized, "missing_bearer_token", "Authorization header must be 'Bearer <token>'")
			return
		}

		claims, err := v.Verify(r.Context(), raw)
		if err != nil {
			var ve *oidckit.VerificationError
			if !errors.As(err, &ve) {
				writeError(w, http.StatusUnauthorized, string(oidckit.KindMalformedToken), "token validation failed")
				return
			}
			status := http.StatusUnauthorized
			if oidckit.IsUnavailable(ve.Kind) {
				status = http.StatusServiceUnavailable
			}
			writeError(w, status, string(ve.Kind), ve.Message)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
	})
}

// ClaimsFromContext returns the claims stored by RequireBearer.
func ClaimsFromContext(ctx context.Context) (*oidckit.VerifiedClaims, bool) {
	cl, ok := ctx.Value(claimsKey{}).(*oidckit.VerifiedClaims)
	return cl, ok && cl != nil
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code, "message": message})
}
