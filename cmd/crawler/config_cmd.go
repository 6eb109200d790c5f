package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"jobvyne-crawler/internal/adapter"
	"jobvyne-crawler/internal/config"
)

func newConfigCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Check config.yml and the employer registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			cfg, path, res, err := loadConfig(flags)
			for _, w := range res.Warnings {
				fmt.Fprintln(out, "warning:", w)
			}
			if err != nil {
				return err
			}

			specs, err := config.LoadEmployers(cfg.EmployersPath())
			if err != nil {
				return fmt.Errorf("employers %s: %w", cfg.EmployersPath(), err)
			}
			// tabs are only opened when crawling, so a stub is enough to build
			reg, err := adapter.NewRegistry(specs, adapter.Deps{Tabs: noTabs{}, DefaultConcurrency: cfg.Crawl.Concurrency})
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s ok, %d active employers\n", path, reg.Len())
			return nil
		},
	})
	return cmd
}

type noTabs struct{}

func (noTabs) NewTab(context.Context) (context.Context, func(), error) {
	return nil, nil, errors.New("browser not started")
}
