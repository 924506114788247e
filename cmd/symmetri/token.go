package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/angelmondragon/symmetri/pkg/auth"
)

func newIssueTokenCommand(a *app) *cobra.Command {
	var (
		subject string
		role    string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "issue-token",
		Short: "Mint an API bearer token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			token, err := auth.MintAccessToken(a.cfg.JWT, time.Now(), ttl, auth.AccessTokenPayload{
				Subject: subject,
				Role:    auth.ParseRole(role),
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "token subject")
	cmd.Flags().StringVar(&role, "role", string(auth.RoleReader), "admin|reader")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime; defaults to the configured expiration")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
