package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newEmployersCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "employers",
		Short: "List the active employers and their adapters",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer a.Close()

			renderEmployers(cmd.OutOrStdout(), a.registry.Entries())
			return nil
		},
	}
}

func newRunsCmd(flags *rootFlags) *cobra.Command {
	var (
		employer string
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show recent crawl runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, flags)
			if err != nil {
				return err
			}
			defer a.Close()

			var id int64
			if employer != "" {
				e, ok := a.registry.Get(employer)
				if !ok {
					return fmt.Errorf("unknown employer %q", employer)
				}
				id = e.Spec.ID
			}
			runs, err := a.runs.ListRuns(ctx, id, limit)
			if err != nil {
				return err
			}
			renderRuns(cmd.OutOrStdout(), runs)
			return nil
		},
	}
	cmd.Flags().StringVarP(&employer, "employer", "e", "", "only this employer")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs")
	return cmd
}
