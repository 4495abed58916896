package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	oidckit "github.com/PaulFidika/entraguard/oidc"
	"github.com/spf13/cobra"
)

func newProbeCmd() *cobra.Command {
	var (
		apiURL     string
		path       string
		resource   string
		printToken bool
	)
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Call a protected API with a client-credentials token",
		Long: `Obtain an app-only token for {audience}/.default with API_CLIENT_ID and
API_CLIENT_SECRET, then GET {api-url}/emptydata and print the response.
With --print-token only the access token is printed and no API is called.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			if resource == "" {
				resource = cfg.ExpectedAudience()
			}
			creds := oidckit.ClientCredentials{
				Authority:    cfg.Authority,
				TenantID:     cfg.TenantID,
				ClientID:     cfg.ClientID,
				ClientSecret: cfg.ClientSecret,
				Resource:     resource,
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 3*cfg.Discovery.Timeout.Duration)
			defer cancel()

			if printToken {
				tok, err := oidckit.ClientCredentialsToken(ctx, creds)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), tok.AccessToken)
				return nil
			}

			client, err := oidckit.ClientCredentialsHTTPClient(ctx, creds)
			if err != nil {
				return err
			}
			target := strings.TrimRight(apiURL, "/") + path
			log.WithField("url", target).WithField("scope", creds.Scope()).Debug("probing protected api")
			body, status, err := probe(ctx, client, target)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), body)
			if status != http.StatusOK {
				return fmt.Errorf("probe: %s answered %d", target, status)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&apiURL, "api-url", "http://localhost:8000", "Base URL of the protected API")
	cmd.Flags().StringVar(&path, "path", "/emptydata", "Path to call")
	cmd.Flags().BoolVar(&printToken, "print-token", false, "Print the client-credentials access token and exit")
	cmd.Flags().StringVar(&resource, "resource", "", "Application ID URI to request a token for (default: configured audience)")
	return cmd
}

func probe(ctx context.Context, client *http.Client, target string) (string, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", 0, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("probe: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", resp.StatusCode, err
	}
	return string(data), resp.StatusCode, nil
}
