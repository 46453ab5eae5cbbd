// Package main implements the archie CLI, which turns team conversations
// into knowledge-base documents published through change requests.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
)

// errRunFailed reports a pipeline run that ended in the failed status. The
// result has already been printed.
var errRunFailed = errors.New("pipeline run failed")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errRunFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		stop()
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "archie",
		Short: "Turn team conversations into knowledge-base documents",
		Long: `archie reads a chat channel, thread, export file or free text, strips
personal data, extracts structured knowledge and proposes it to a
markdown knowledge-base repository as a change request.

Configuration is read from ~/.config/archie/config.yaml (or --config),
then ARCHIE_* environment variables.`,
		Version:       fmt.Sprintf("%s (%s)", version, gitCommit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "Config file path (default ~/.config/archie/config.yaml)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level override: trace, debug, info, warn, error")

	root.AddCommand(newProcessCmd(flags))
	root.AddCommand(newIndexCmd(flags))
	root.AddCommand(newSearchCmd(flags))
	root.AddCommand(newKBCmd(flags))
	return root
}
