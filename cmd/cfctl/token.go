package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/MrJamesThe3rd/cryptofund/internal/http/auth"
)

func (a *app) tokenCmd() *cobra.Command {
	var (
		owner string
		ttl   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign a development bearer token with JWT_SECRET",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			id := uuid.New()

			if owner != "" {
				parsed, err := uuid.Parse(owner)
				if err != nil {
					return fmt.Errorf("parsing --owner: %w", err)
				}

				id = parsed
			}

			token, err := auth.IssueToken(a.cfg.Auth.JWTSecret, id, ttl)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)

			return nil
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "owner uuid (random when empty)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")

	return cmd
}
