package main

import (
	"fmt"
	"time"

	"github.com/boddenberg/freight-quote-bfa-go/internal/service"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token <subject>",
		Short: "Sign a bearer token for a local server with auth enabled",
		Long: `Signs an HS256 access token with QUOTE_JWT_SECRET (or jwt_secret in the
config file) so that /v1 routes can be called during development.

Examples:
  QUOTE_JWT_SECRET=... quotectl token ops@forwarder.test --tenant acme`,
		Args: cobra.ExactArgs(1),
		RunE: runToken,
	}

	cmd.Flags().String("tenant", "", "tenant claim, used as the preferred carrier tenant")
	cmd.Flags().Duration("ttl", 15*time.Minute, "token lifetime (jwt_access_ttl)")
	_ = viper.BindPFlag("jwt_access_ttl", cmd.Flags().Lookup("ttl"))

	return cmd
}

func runToken(cmd *cobra.Command, args []string) error {
	secret := viper.GetString("jwt_secret")
	if len(secret) < 16 {
		return fmt.Errorf("jwt_secret must be at least 16 characters")
	}
	tenant, _ := cmd.Flags().GetString("tenant")
	ttl := viper.GetDuration("jwt_access_ttl")

	tokens := service.NewTokenValidator(secret, viper.GetString("jwt_issuer"))
	token, err := tokens.Sign(args[0], tenant, ttl)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
	return err
}
