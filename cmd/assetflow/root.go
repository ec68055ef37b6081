package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// globalFlags are shared by every command.
type globalFlags struct {
	root        string
	env         string
	logLevel    string
	concurrency int
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	run := &runFlags{}

	cmd := &cobra.Command{
		Use:   "assetflow [task...]",
		Short: "Asset pipeline and development server orchestrator",
		Long: `assetflow builds the assets of a web project and runs its development
server behind a live-reload relay.

With no arguments it runs the "default" task: the server is started and
supervised, browsers connect through the relay and source changes re-run
the matching asset tasks.

Any other arguments are task names, so "assetflow build" is the same as
"assetflow run build". Use "assetflow list" to see every task.`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				args = []string{"default"}
			}
			return runTargets(cmd, flags, run, args)
		},
	}

	cmd.PersistentFlags().StringVar(&flags.root, "root", "", "Project root (default: directory of .assetflow.yaml or the working directory)")
	cmd.PersistentFlags().StringVar(&flags.env, "env", "", "Build environment: development or production (overrides NODE_ENV)")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn or error")
	cmd.PersistentFlags().IntVar(&flags.concurrency, "concurrency", 0, "Maximum tasks running at once")
	run.register(cmd)

	cmd.AddCommand(newRunCmd(flags))
	cmd.AddCommand(newServeCmd(flags))
	cmd.AddCommand(newWatchCmd(flags))
	cmd.AddCommand(newListCmd(flags))
	cmd.AddCommand(newHistoryCmd(flags))
	cmd.AddCommand(newConfigCmd(flags))
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// Execute runs the root command
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.New(color.FgRed, color.Bold).Sprint("Error: ")+err.Error())
		os.Exit(1)
	}
}
