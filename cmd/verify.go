package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	oidckit "github.com/PaulFidika/entraguard/oidc"
	"github.com/spf13/cobra"
)

func newVerifyCmd() *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify one access token and print its claims",
		Long: `Verify one access token against the configured tenant and audience.

The token is read from --token, or from stdin when the flag is omitted.
Exits non-zero with the failure kind when the token is rejected.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			if token == "" {
				if token, err = readToken(cmd.InOrStdin()); err != nil {
					return err
				}
			}

			v := newVerifier(cfg, log)
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*cfg.Discovery.Timeout.Duration)
			defer cancel()
			if err := v.KeySet().Resolve(ctx); err != nil {
				return err
			}
			claims, err := v.Verify(ctx, token)
			if err != nil {
				var ve *oidckit.VerificationError
				if errors.As(err, &ve) {
					fmt.Fprintln(cmd.ErrOrStderr(), ve.Kind)
				}
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(claims.All())
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "Access token to verify (default: read stdin)")
	return cmd
}

func readToken(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read token: %w", err)
	}
	token := strings.TrimPrefix(strings.TrimSpace(line), "Bearer ")
	if token == "" {
		return "", errors.New("no token given (use --token or pipe one on stdin)")
	}
	return token, nil
}
