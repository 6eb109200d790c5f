package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"jobvyne-crawler/internal/secrets"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage ATS API tokens in the OS keychain",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "set <key> <token>",
			Short: "Store the token an employer names in token_key",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := secrets.SetAPIToken(args[0], args[1]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "stored %s (env override: %s)\n", args[0], secrets.EnvName(args[0]))
				return nil
			},
		},
		&cobra.Command{
			Use:   "delete <key>",
			Short: "Remove a stored token",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return secrets.DeleteAPIToken(args[0])
			},
		},
	)
	return cmd
}
