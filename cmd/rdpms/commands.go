package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/meteor-ioi/RDP-MultiSession-App/internal/auditlog"
	"github.com/meteor-ioi/RDP-MultiSession-App/internal/console"
	"github.com/meteor-ioi/RDP-MultiSession-App/internal/executor"
	"github.com/meteor-ioi/RDP-MultiSession-App/internal/model"
	"github.com/meteor-ioi/RDP-MultiSession-App/internal/setup"
)

func newSetupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup [dir]",
		Short: "Create .rdpms/ with a default config.yaml",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			home, err := setup.Run(dir)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.OutOrStdout(), "initialized %s\n", home)
			return nil
		},
	}
}

func newDaemonCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run the privileged executor (usually as root)",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			home, cfg, err := resolveHome(opts)
			if err != nil {
				return err
			}
			e, err := executor.New(home, cfg)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.ErrOrStderr(), "executor listening on %s\n", e.SocketPath())
			return e.Run()
		},
	}
}

// statusReport is the --json form of rdpms status.
type statusReport struct {
	Status         model.SystemStatus `json:"status"`
	Loaded         bool               `json:"loaded"`
	ActiveSessions int                `json:"active_sessions"`
	Log            []logLine          `json:"log"`
}

type logLine struct {
	Time     string         `json:"time"`
	Severity model.Severity `json:"severity"`
	Message  string         `json:"message"`
}

func newStatusCmd(opts *globalOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Load and show the system status",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			s, err := openSession(opts, c.ErrOrStderr())
			if err != nil {
				return err
			}
			defer s.Close()

			s.load(c.Context())
			snap := s.engine.Store().Snapshot()

			if asJSON {
				report := statusReport{
					Status:         snap.Status,
					Loaded:         snap.Loaded,
					ActiveSessions: snap.ActiveSessions(),
				}
				for _, e := range s.log.Entries() {
					report.Log = append(report.Log, logLine{
						Time:     e.Timestamp.Format(auditlog.TimeLayout),
						Severity: e.Severity,
						Message:  e.Message,
					})
				}
				enc := json.NewEncoder(c.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}

			printLog(c.OutOrStdout(), s.log)
			fmt.Fprintln(c.OutOrStdout())
			console.RenderStatus(c.OutOrStdout(), snap)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the status and log as JSON")
	return cmd
}

func newToggleCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "toggle <patch|persistence|exclusion>",
		Short:     "Flip one setting",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(model.OpPatch), string(model.OpPersistence), string(model.OpExclusion)},
		RunE: func(c *cobra.Command, args []string) error {
			op, err := model.ParseToggle(args[0])
			if err != nil {
				return err
			}
			s, err := openSession(opts, c.ErrOrStderr())
			if err != nil {
				return err
			}
			defer s.Close()

			s.load(c.Context())
			err = s.engine.Toggle(c.Context(), op)
			printLog(c.OutOrStdout(), s.log)
			return err
		},
	}
}

func newCheckUpdatesCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check-updates",
		Short: "Ask the executor to fetch the pattern table",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			s, err := openSession(opts, c.ErrOrStderr())
			if err != nil {
				return err
			}
			defer s.Close()

			s.load(c.Context())
			err = s.engine.CheckUpdates(c.Context())
			printLog(c.OutOrStdout(), s.log)
			return err
		},
	}
}

func newExportLogCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "export-log",
		Short: "Load the status and save this session's log through the executor",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			s, err := openSession(opts, c.ErrOrStderr())
			if err != nil {
				return err
			}
			defer s.Close()

			s.load(c.Context())
			err = s.engine.ExportLog(c.Context())
			printLog(c.OutOrStdout(), s.log)
			return err
		},
	}
}

func newAuditCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the durable audit mirror",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "verify [path]",
		Short: "Check every mirror record against its checksum",
		Long: "Reads a JSONL audit mirror (default: audit.mirror_path) and reports how many\n" +
			"records pass their checksum. Records written without a checksum count as valid.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			var path string
			if len(args) == 1 {
				path = args[0]
			} else {
				home, cfg, err := resolveHome(opts)
				if err != nil {
					return err
				}
				path = setup.Resolve(home, cfg.Audit.MirrorPath)
			}

			total, valid, err := auditlog.VerifyIntegrity(path)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.OutOrStdout(), "%s: %d/%d records valid\n", path, valid, total)
			if valid < total {
				return fmt.Errorf("%d record(s) failed checksum verification", total-valid)
			}
			return nil
		},
	})
	return cmd
}

func newConsoleCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Interactive control panel",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			s, err := openSession(opts, c.ErrOrStderr())
			if err != nil {
				return err
			}
			defer s.Close()

			fmt.Fprintln(c.OutOrStdout(), "rdpms console (type help)")
			return console.New(s.engine, s.bus, c.InOrStdin(), c.OutOrStdout()).Run(c.Context())
		},
	}
}
