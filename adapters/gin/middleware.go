package authgin

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/PaulFidika/entraguard/adapters/ginutil"
	core "github.com/PaulFidika/entraguard/core"
	"github.com/PaulFidika/entraguard/metrics"
	oidckit "github.com/PaulFidika/entraguard/oidc"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const ctxClaims = "auth.claims"

type claimsKey struct{}

// TokenVerifier is satisfied by *oidckit.Verifier.
type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (*oidckit.VerifiedClaims, error)
}

// FailureThrottle counts rejected tokens per client. Both limiter packages implement it.
type FailureThrottle interface {
	Blocked(ctx context.Context, key string) (bool, error)
	RecordFailure(ctx context.Context, key string) error
}

// Options tune RequireBearer. Every field is optional.
type Options struct {
	Throttle FailureThrottle
	Audit    core.AuthEventLogger
	Log      logrus.FieldLogger
}

// RequireBearer rejects requests without a valid Entra ID bearer token.
// On success the claims are stored on the gin context and the request context.
func RequireBearer(v TokenVerifier, opts Options) gin.HandlerFunc {
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	return func(c *gin.Context) {
		started := time.Now()
		ctx := c.Request.Context()
		client := c.ClientIP()
		ev := core.VerificationEvent{
			RequestID: ginutil.RequestIDFrom(c),
			ClientIP:  client,
			Path:      c.Request.URL.Path,
		}
		defer func() {
			if opts.Audit == nil {
				return
			}
			ev.Status = c.Writer.Status()
			ev.Duration = time.Since(started)
			if err := opts.Audit.LogVerification(ctx, ev); err != nil {
				log.WithError(err).Debug("audit sink failed")
			}
		}()

		if opts.Throttle != nil {
			blocked, err := opts.Throttle.Blocked(ctx, client)
			if err != nil {
				log.WithError(err).Warn("failure throttle unavailable; allowing request")
			}
			if blocked {
				metrics.RejectedClientsTotal.Inc()
				ev.Failure = "throttled"
				ginutil.TooMany(c)
				return
			}
		}

		raw, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			ev.Failure = "missing_bearer_token"
			ginutil.Unauthorized(c, "missing_bearer_token", "Authorization header must be 'Bearer <token>'")
			return
		}

		claims, err := v.Verify(ctx, raw)
		if err != nil {
			var ve *oidckit.VerificationError
			if !errors.As(err, &ve) {
				ve = &oidckit.VerificationError{Kind: oidckit.KindMalformedToken, Message: "token validation failed", Err: err}
			}
			ev.Failure = string(ve.Kind)
			if oidckit.IsUnavailable(ve.Kind) {
				ginutil.Unavailable(c, string(ve.Kind), ve.Message)
				return
			}
			if opts.Throttle != nil {
				if err := opts.Throttle.RecordFailure(ctx, client); err != nil {
					log.WithError(err).Warn("could not record rejected token")
				}
			}
			ginutil.Unauthorized(c, string(ve.Kind), ve.Message)
			return
		}

		ev.Subject = claims.String("sub")
		ev.Name = claims.Name()
		ev.PreferredUsername = claims.PreferredUsername()
		c.Set(ctxClaims, claims)
		c.Request = c.Request.WithContext(context.WithValue(ctx, claimsKey{}, claims))
		c.Next()
	}
}

// ClaimsFromGin returns the claims stored by RequireBearer.
func ClaimsFromGin(c *gin.Context) (*oidckit.VerifiedClaims, bool) {
	v, ok := c.Get(ctxClaims)
	if !ok {
		return nil, false
	}
	cl, ok := v.(*oidckit.VerifiedClaims)
	return cl, ok && cl != nil
}

// ClaimsFromContext returns the claims stored by RequireBearer on the request context.
func ClaimsFromContext(ctx context.Context) (*oidckit.VerifiedClaims, bool) {
	cl, ok := ctx.Value(claimsKey{}).(*oidckit.VerifiedClaims)
	return cl, ok && cl != nil
}

// bearerToken accepts "Bearer <token>" with a case-insensitive scheme.
func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
