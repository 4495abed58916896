package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	authgin "github.com/PaulFidika/entraguard/adapters/gin"
	"github.com/PaulFidika/entraguard/api"
	core "github.com/PaulFidika/entraguard/core"
	memorylimiter "github.com/PaulFidika/entraguard/ratelimit/memory"
	redislimiter "github.com/PaulFidika/entraguard/ratelimit/redis"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var listenAddr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the protected API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			if listenAddr != "" {
				cfg.Server.ListenAddr = listenAddr
			}
			return runServe(cmd.Context(), cfg, log)
		},
	}
	cmd.Flags().StringVar(&listenAddr, "listen-addr", "", "Override the configured listen address")
	return cmd
}

func runServe(ctx context.Context, cfg *core.AcceptConfig, log *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	v := newVerifier(cfg, log)
	keys := v.KeySet()

	resolveCtx, cancel := context.WithTimeout(ctx, cfg.Discovery.Timeout.Duration)
	if err := keys.Resolve(resolveCtx); err != nil {
		log.WithError(err).Warn("discovery failed at startup; protected endpoints answer 503 until it succeeds")
	}
	cancel()

	if !keys.Ready() && cfg.RetryEnabled() {
		stopRetry, err := keys.StartDiscoveryRetry(cfg.Discovery.Retry)
		if err != nil {
			return err
		}
		defer stopRetry()
	}

	throttle, closeThrottle, err := newThrottle(cfg.Throttle, log)
	if err != nil {
		return err
	}
	defer closeThrottle()

	gin.SetMode(gin.ReleaseMode)
	router, err := api.NewRouter(v, authgin.Options{
		Throttle: throttle,
		Audit:    core.LogrusEventLogger{Log: log},
		Log:      log,
	}, cfg.Server.TrustedProxies)
	if err != nil {
		return err
	}

	srv := &http.Server{Addr: cfg.Server.ListenAddr, Handler: router}
	errCh := make(chan error, 1)
	go func() {
		log.WithFields(logrus.Fields{
			"addr":     cfg.Server.ListenAddr,
			"tenant":   cfg.TenantID,
			"audience": cfg.ExpectedAudience(),
		}).Info("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newThrottle picks the redis limiter when an address is configured, the in-process one otherwise.
func newThrottle(cfg core.ThrottleConfig, log logrus.FieldLogger) (authgin.FailureThrottle, func(), error) {
	if cfg.FailureLimit <= 0 {
		return nil, func() {}, nil
	}
	if cfg.RedisAddr == "" {
		return memorylimiter.New(cfg.FailureLimit, cfg.FailureWindow.Duration), func() {}, nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	ctx, cancel := context.WithTimeout(context.Background(), cfg.FailureWindow.Duration)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
	}
	log.WithField("redis", cfg.RedisAddr).Info("failure throttle shared through redis")
	return redislimiter.New(rdb, cfg.RedisPrefix, cfg.FailureLimit, cfg.FailureWindow.Duration), func() { _ = rdb.Close() }, nil
}
