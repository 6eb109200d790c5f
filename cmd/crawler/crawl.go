package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"jobvyne-crawler/internal/runner"
)

func newCrawlCmd(flags *rootFlags) *cobra.Command {
	var (
		employers []string
		dryRun    bool
		maxErrors int
	)
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl employers once and reconcile the catalog",
		Long: `Crawl every active employer, or only those named with --employer, and
reconcile what they list into the catalog. With --dry-run nothing is written.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, flags)
			if err != nil {
				return err
			}
			defer a.Close()

			var reports []runner.Report
			if len(employers) == 0 {
				reports = a.runner.RunAll(ctx, dryRun)
			} else {
				for _, name := range employers {
					rep, err := a.runner.RunByName(ctx, name, dryRun)
					if err != nil {
						return err
					}
					reports = append(reports, rep)
				}
			}

			out := cmd.OutOrStdout()
			renderReports(out, reports)
			renderErrors(out, reports, maxErrors)

			return cycleError(reports)
		},
	}
	cmd.Flags().StringSliceVarP(&employers, "employer", "e", nil, "employer name (repeatable)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "crawl without writing to the catalog")
	cmd.Flags().IntVar(&maxErrors, "max-errors", 10, "errors listed per employer")
	return cmd
}

// cycleError summarizes failed runs; busy employers do not count.
func cycleError(reports []runner.Report) error {
	failed := 0
	for _, r := range reports {
		if r.Status() == runner.StatusFailed {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d employer runs failed", failed, len(reports))
	}
	return nil
}
