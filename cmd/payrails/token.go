package main

import (
	"errors"
	"fmt"
	"time"

	"payrails/internal/service"

	"github.com/spf13/cobra"
)

func tokenCmd() *cobra.Command {
	var accountID string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for an account (development use)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.JWT.Secret == "" {
				return errors.New("jwt.secret must be set")
			}
			tokens := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)
			tok, exp, err := tokens.Generate(accountID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", exp.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&accountID, "account", "", "account id to put in the token subject")
	_ = cmd.MarkFlagRequired("account")
	return cmd
}
