package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"live-quiz-service/internal/config"
	transport "live-quiz-service/internal/transport/http"
)

// NewTokenCmd signs a host bearer token with the configured JWT secret.
func NewTokenCmd(configPath *string) *cobra.Command {
	var (
		hostID string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a host token for the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if hostID == "" {
				return fmt.Errorf("--host-id is required")
			}
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			token, err := transport.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer).IssueToken(hostID, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&hostID, "host-id", "", "host identity placed in the token")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	return cmd
}
