package core

import (
	"time"

	oidckit "github.com/PaulFidika/entraguard/oidc"
)

// AcceptConfig configures verification of Entra ID access tokens for one
// tenant and one protected API.
type AcceptConfig struct {
	TenantID string `yaml:"tenantId"`
	ClientID string `yaml:"clientId"`
	// Audience defaults to api://{ClientID}.
	Audience  string `yaml:"audience"`
	Authority string `yaml:"authority"`
	// IssuerTemplates overrides the v2/v1 Entra issuer shapes; %s is the tenant.
	IssuerTemplates []string `yaml:"issuerTemplates"`
	ClockSkew       Duration `yaml:"clockSkew"`

	Discovery DiscoveryConfig `yaml:"discovery"`
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Throttle  ThrottleConfig  `yaml:"throttle"`

	// ClientSecret is only read from the environment and only used by probes.
	ClientSecret string `yaml:"-"`
}

// DiscoveryConfig bounds the calls made to the identity provider.
type DiscoveryConfig struct {
	Timeout Duration `yaml:"timeout"`
	// Retry is a cron spec for retrying a failed discovery, or "off".
	Retry              string   `yaml:"retry"`
	MinRefreshInterval Duration `yaml:"minRefreshInterval"`
}

// ServerConfig configures the protected API listener.
type ServerConfig struct {
	ListenAddr      string   `yaml:"listenAddr"`
	ShutdownTimeout Duration `yaml:"shutdownTimeout"`
	// TrustedProxies lists the IPs or CIDRs whose X-Forwarded-For is believed.
	// Empty means the client IP is always the remote address.
	TrustedProxies []string `yaml:"trustedProxies"`
}

// LoggingConfig selects the logrus level and formatter.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text | json
}

// ThrottleConfig limits how many rejected tokens a client may present per window.
// FailureLimit <= 0 disables throttling. With RedisAddr empty the limit is per process.
type ThrottleConfig struct {
	FailureLimit  int      `yaml:"failureLimit"`
	FailureWindow Duration `yaml:"failureWindow"`
	RedisAddr     string   `yaml:"redisAddr"`
	RedisPrefix   string   `yaml:"redisPrefix"`
}

// DefaultConfig returns an AcceptConfig with default values.
// TenantID and ClientID have no defaults.
func DefaultConfig() *AcceptConfig {
	return &AcceptConfig{
		Authority: oidckit.DefaultAuthority,
		Discovery: DiscoveryConfig{
			Timeout:            Duration{Duration: oidckit.DefaultHTTPTimeout},
			Retry:              "@every 1m",
			MinRefreshInterval: Duration{Duration: oidckit.DefaultMinRefreshInterval},
		},
		Server: ServerConfig{
			ListenAddr:      ":8000",
			ShutdownTimeout: Duration{Duration: 10 * time.Second},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Throttle: ThrottleConfig{
			FailureLimit:  20,
			FailureWindow: Duration{Duration: time.Minute},
			RedisPrefix:   "entraguard:rejected:",
		},
	}
}

// ExpectedAudience returns Audience, or api://{ClientID} when unset.
func (c *AcceptConfig) ExpectedAudience() string {
	if c.Audience != "" {
		return c.Audience
	}
	return oidckit.DefaultAudience(c.ClientID)
}

// RetryEnabled reports whether background discovery retry is configured.
func (c *AcceptConfig) RetryEnabled() bool {
	return c.Discovery.Retry != "" && c.Discovery.Retry != "off"
}
