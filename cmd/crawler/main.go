// Command crawler crawls employer career sites and keeps the job catalog in
// sync with what they list.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

type rootFlags struct {
	dataDir    string
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:           "crawler",
		Short:         "Crawl employer career sites into the job catalog",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.PersistentFlags().StringVar(&flags.dataDir, "data-dir", "", "data directory (default $JOBVYNE_DATA_DIR or .)")
	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file (default <data-dir>/config.yml)")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "override app.log_level")

	cmd.AddCommand(
		newCrawlCmd(flags),
		newServeCmd(flags),
		newEmployersCmd(flags),
		newRunsCmd(flags),
		newTokenCmd(),
		newConfigCmd(flags),
	)
	return cmd
}

func main() {
	// .env is optional
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
