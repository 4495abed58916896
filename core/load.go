package core

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables. The API_* names are shared with the deployed API's .env files.
const (
	EnvTenantID           = "API_TENANT_ID"
	EnvClientID           = "API_CLIENT_ID"
	EnvAudience           = "API_AUDIENCE"
	EnvClientSecret       = "API_CLIENT_SECRET"
	EnvAuthority          = "ENTRAGUARD_AUTHORITY"
	EnvListenAddr         = "ENTRAGUARD_LISTEN_ADDR"
	EnvDiscoveryTimeout   = "ENTRAGUARD_DISCOVERY_TIMEOUT"
	EnvDiscoveryRetry     = "ENTRAGUARD_DISCOVERY_RETRY"
	EnvKeyRefreshInterval = "ENTRAGUARD_KEY_REFRESH_MIN_INTERVAL"
	EnvClockSkew          = "ENTRAGUARD_CLOCK_SKEW"
	EnvLogLevel           = "ENTRAGUARD_LOG_LEVEL"
	EnvLogFormat          = "ENTRAGUARD_LOG_FORMAT"
	EnvRedisAddr          = "ENTRAGUARD_REDIS_ADDR"
	EnvFailureLimit       = "ENTRAGUARD_FAILURE_LIMIT"
	EnvFailureWindow      = "ENTRAGUARD_FAILURE_WINDOW"
	EnvTrustedProxies     = "ENTRAGUARD_TRUSTED_PROXIES"
)

// Load reads defaults, then the YAML file at path, then the environment, and
// validates the result. An empty path skips the file; a named file must exist.
func Load(path string) (*AcceptConfig, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := LoadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load from environment: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadFromEnv overrides cfg with any environment variables that are set.
func LoadFromEnv(cfg *AcceptConfig) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *Duration) error {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		dst.Duration = d
		return nil
	}

	str(EnvTenantID, &cfg.TenantID)
	str(EnvClientID, &cfg.ClientID)
	str(EnvAudience, &cfg.Audience)
	str(EnvClientSecret, &cfg.ClientSecret)
	str(EnvAuthority, &cfg.Authority)
	str(EnvListenAddr, &cfg.Server.ListenAddr)
	str(EnvDiscoveryRetry, &cfg.Discovery.Retry)
	str(EnvLogLevel, &cfg.Logging.Level)
	str(EnvLogFormat, &cfg.Logging.Format)
	str(EnvRedisAddr, &cfg.Throttle.RedisAddr)

	for key, dst := range map[string]*Duration{
		EnvDiscoveryTimeout:   &cfg.Discovery.Timeout,
		EnvKeyRefreshInterval: &cfg.Discovery.MinRefreshInterval,
		EnvClockSkew:          &cfg.ClockSkew,
		EnvFailureWindow:      &cfg.Throttle.FailureWindow,
	} {
		if err := dur(key, dst); err != nil {
			return err
		}
	}

	if v := strings.TrimSpace(os.Getenv(EnvTrustedProxies)); v != "" {
		cfg.Server.TrustedProxies = nil
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				cfg.Server.TrustedProxies = append(cfg.Server.TrustedProxies, p)
			}
		}
	}

	if v := strings.TrimSpace(os.Getenv(EnvFailureLimit)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvFailureLimit, err)
		}
		cfg.Throttle.FailureLimit = n
	}
	return nil
}

// Validate checks the fields verification cannot run without.
func Validate(cfg *AcceptConfig) error {
	if strings.TrimSpace(cfg.TenantID) == "" {
		return errors.New("tenantId is required (set " + EnvTenantID + ")")
	}
	if strings.TrimSpace(cfg.ClientID) == "" && strings.TrimSpace(cfg.Audience) == "" {
		return errors.New("clientId or audience is required (set " + EnvClientID + " or " + EnvAudience + ")")
	}
	for _, t := range cfg.IssuerTemplates {
		if strings.Count(t, "%s") != 1 {
			return fmt.Errorf("issuer template %q must contain exactly one %%s", t)
		}
	}
	if cfg.Discovery.Timeout.Duration <= 0 {
		return errors.New("discovery.timeout must be positive")
	}
	if cfg.Discovery.MinRefreshInterval.Duration < 0 {
		return errors.New("discovery.minRefreshInterval must be non-negative")
	}
	if cfg.ClockSkew.Duration < 0 {
		return errors.New("clockSkew must be non-negative")
	}
	if cfg.Throttle.FailureLimit > 0 && cfg.Throttle.FailureWindow.Duration <= 0 {
		return errors.New("throttle.failureWindow must be positive when throttling is enabled")
	}
	switch strings.ToLower(cfg.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", cfg.Logging.Format)
	}
	return nil
}
