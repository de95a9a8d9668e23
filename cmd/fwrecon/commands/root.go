package commands

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/vulntor/fwrecon/pkg/appctx"
	"github.com/vulntor/fwrecon/pkg/config"
	"github.com/vulntor/fwrecon/pkg/logging"
	"github.com/vulntor/fwrecon/pkg/report"
	"github.com/vulntor/fwrecon/pkg/workspace"
)

const cliExecutable = "fwrecon"

// NewCommand constructs the top-level fwrecon CLI command, wiring global flags,
// configuration loading, logging and workspace preparation.
func NewCommand() *cobra.Command {
	var (
		configFile        string
		workspaceDir      string
		workspaceDisabled bool
		verbosityCount    int
		debug             bool
		logCloser         io.Closer
	)

	cmd := &cobra.Command{
		Use:   cliExecutable,
		Short: "fwrecon maps firewall filtering behaviour with staged nmap probes",
		Long: `fwrecon discovers open ports on a host, block or domain, fans out a set of
scan techniques against them and classifies each port by how the firewall
in front of it answers.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			mgr := config.NewManager()
			if err := mgr.Load(config.DefaultSources(configFile, cmd.Flags(), debug)...); err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			cfg := mgr.Get()

			closer, err := logging.Configure(logging.Options{
				Level:  cfg.Log.Level,
				Format: cfg.Log.Format,
				File:   cfg.Log.File,
			})
			if err != nil {
				return fmt.Errorf("configure logging: %w", err)
			}
			logCloser = closer
			if verbosityCount > 0 {
				logging.ConfigureGlobal(logging.Verbosity(verbosityCount, logging.ParseLevel(cfg.Log.Level)))
			}
			log.Debug().Strs("sources", mgr.Sources()).Msg("configuration loaded")

			ctx := appctx.WithConfig(cmd.Context(), mgr)

			if !workspaceDisabled {
				prepared, err := workspace.Prepare(workspaceDir)
				if err != nil {
					return fmt.Errorf("prepare workspace: %w", err)
				}
				ctx = workspace.WithContext(ctx, prepared)

				store, err := report.NewStore(filepath.Join(prepared, workspace.ReportsDir), cfg.Output.Compress)
				if err != nil {
					return fmt.Errorf("open report store: %w", err)
				}
				ctx = appctx.WithReportStore(ctx, store)
				log.Info().Str("workspace", prepared).Msg("workspace ready")
			} else {
				log.Info().Msg("workspace disabled for this run")
			}

			cmd.SetContext(ctx)
			if root := cmd.Root(); root != nil && root != cmd {
				root.SetContext(ctx)
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if logCloser != nil {
				return logCloser.Close()
			}
			return nil
		},
	}

	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	cmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file path")
	cmd.PersistentFlags().StringVar(&workspaceDir, "workspace-dir", "", "Override workspace root directory")
	cmd.PersistentFlags().BoolVar(&workspaceDisabled, "no-workspace", false, "Disable workspace persistence for this run")
	cmd.PersistentFlags().CountVarP(&verbosityCount, "verbosity", "v", "Increase logging verbosity (repeatable)")
	cmd.PersistentFlags().BoolVar(&debug, "debug", false, "Shortcut for --log-level debug")
	cmd.PersistentFlags().String("log-level", "", "Log level: trace, debug, info, warn, error")
	cmd.PersistentFlags().String("log-format", "", "Log format: text or json")
	cmd.PersistentFlags().String("log-file", "", "Write logs to this file instead of stderr")
	cmd.PersistentFlags().StringP("output", "o", "", "Output format: table, json, yaml")
	cmd.PersistentFlags().BoolP("quiet", "q", false, "Only print results")
	cmd.PersistentFlags().Bool("no-color", false, "Disable colored output")

	cmd.AddGroup(&cobra.Group{ID: "scan", Title: "Scan Commands"})
	cmd.AddGroup(&cobra.Group{ID: "core", Title: "Core Commands"})

	cmd.AddCommand(newScanCommand())
	cmd.AddCommand(newProfilesCommand())
	cmd.AddCommand(newReportsCommand())
	cmd.AddCommand(newVersionCommand())

	return cmd
}
