package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const version = "0.3.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	home     string
	logLevel string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	cmd := &cobra.Command{
		Use:           "rdpms",
		Short:         "Multi-session remote desktop control panel",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE:          func(c *cobra.Command, _ []string) error { return c.Help() },
	}
	cmd.PersistentFlags().StringVar(&opts.home, "home", "", "rdpms home directory (default: $RDPMS_HOME, nearest .rdpms/, or ~/.rdpms)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")

	cmd.AddCommand(newSetupCmd())
	cmd.AddCommand(newDaemonCmd(opts))
	cmd.AddCommand(newStatusCmd(opts))
	cmd.AddCommand(newToggleCmd(opts))
	cmd.AddCommand(newCheckUpdatesCmd(opts))
	cmd.AddCommand(newExportLogCmd(opts))
	cmd.AddCommand(newConsoleCmd(opts))
	cmd.AddCommand(newAuditCmd(opts))
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(c *cobra.Command, _ []string) {
			fmt.Fprintf(c.OutOrStdout(), "rdpms %s\n", version)
		},
	})
	return cmd
}
