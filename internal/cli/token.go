package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"livequiz-service/internal/app"
	"livequiz-service/internal/config"
)

// NewTokenCmd mints a host token for the configured signing secret, handy
// for local testing and operator tooling.
func NewTokenCmd(configPath *string) *cobra.Command {
	var subject string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed host token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			secret := cfg.Auth.Secret
			if secret == "" {
				secret = os.Getenv("AUTH_SECRET")
			}
			if secret == "" {
				return fmt.Errorf("no auth secret configured")
			}
			token, err := app.NewTokenVerifier(secret).Issue(subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "host-1", "host identity the token asserts")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token validity")
	return cmd
}
