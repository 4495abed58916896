// Package api assembles the protected HTTP API.
package api

import (
	"fmt"

	authgin "github.com/PaulFidika/entraguard/adapters/gin"
	"github.com/PaulFidika/entraguard/adapters/gin/handlers"
	"github.com/PaulFidika/entraguard/adapters/ginutil"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ServiceName is reported by /health.
const ServiceName = "empty-api"

// NewRouter mounts the public endpoints and the bearer-protected ones.
// X-Forwarded-For is honored only from trustedProxies (IPs or CIDRs); with
// none, the client IP is the connection's remote address.
func NewRouter(v authgin.TokenVerifier, opts authgin.Options, trustedProxies []string) (*gin.Engine, error) {
	r := gin.New()
	if err := r.SetTrustedProxies(trustedProxies); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}
	r.Use(gin.Recovery(), ginutil.RequestID())

	r.GET("/", handlers.HandleRootGET())
	r.GET("/health", handlers.HandleHealthGET(ServiceName))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	protected := r.Group("/", authgin.RequireBearer(v, opts))
	protected.GET("/emptydata", handlers.HandleEmptyDataGET())
	protected.GET("/me", handlers.HandleWhoAmIGET())
	return r, nil
}
