package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/spec-kit/issuelog/internal/auth"
	"github.com/spec-kit/issuelog/internal/config"
)

type tokenOutput struct {
	Token     string    `json:"token"`
	Subject   string    `json:"subject"`
	Role      auth.Role `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

func newTokenCmd(out func(*cobra.Command) printer) *cobra.Command {
	var (
		subject string
		role    string
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed API token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if subject == "" {
				return fmt.Errorf("--subject is required")
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
			signed, expiresAt, err := tokens.GenerateToken(subject, auth.Role(role))
			if err != nil {
				return err
			}

			p := out(cmd)
			result := tokenOutput{Token: signed, Subject: subject, Role: auth.Role(role), ExpiresAt: expiresAt.UTC()}
			if done, err := p.JSON(result); done || err != nil {
				return err
			}
			p.Printf("%s\n", signed)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "", "token subject, usually the operator name")
	cmd.Flags().StringVar(&role, "role", string(auth.RoleOperator), "operator or reader")
	return cmd
}
