package cmd

import (
	"net/http"
	"os"

	core "github.com/PaulFidika/entraguard/core"
	oidckit "github.com/PaulFidika/entraguard/oidc"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "entraguard",
	Short: "Verify Microsoft Entra ID bearer tokens",
	Long: `entraguard verifies access tokens issued by Microsoft Entra ID for one tenant
and one protected API.

It discovers the tenant's signing keys through the OpenID configuration
document, checks RS256 signatures, expiry, audience and issuer, and can:
- serve a small protected API (serve)
- verify a single token from the command line (verify)
- call a protected API with a client-credentials token (probe)

Configuration comes from an optional YAML file and the environment
(API_TENANT_ID, API_CLIENT_ID, API_AUDIENCE, ENTRAGUARD_*).`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// SetVersion sets the version for the application
func SetVersion(v string) {
	rootCmd.Version = v
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file (optional)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level (debug, info, warn, error)")

	rootCmd.AddCommand(newServeCmd(), newVerifyCmd(), newProbeCmd())
}

// loadConfig reads configuration and builds the logger every subcommand uses.
func loadConfig() (*core.AcceptConfig, *logrus.Logger, error) {
	cfg, err := core.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	log, err := core.NewLogger(cfg.Logging)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

// newVerifier wires a key set and verifier from cfg. Discovery is not attempted here.
func newVerifier(cfg *core.AcceptConfig, log logrus.FieldLogger) *oidckit.Verifier {
	keys := oidckit.NewSigningKeySet(cfg.TenantID,
		oidckit.WithAuthority(cfg.Authority),
		oidckit.WithHTTPClient(&http.Client{Timeout: cfg.Discovery.Timeout.Duration}),
		oidckit.WithMinRefreshInterval(cfg.Discovery.MinRefreshInterval.Duration),
		oidckit.WithKeySetLogger(log),
	)
	return oidckit.NewVerifier(keys, cfg.TenantID, cfg.ExpectedAudience(),
		oidckit.WithLeeway(cfg.ClockSkew.Duration),
		oidckit.WithIssuerTemplates(cfg.IssuerTemplates...),
		oidckit.WithVerifierLogger(log),
	)
}
