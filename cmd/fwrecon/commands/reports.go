package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vulntor/fwrecon/cmd/fwrecon/internal/format"
	"github.com/vulntor/fwrecon/pkg/appctx"
	"github.com/vulntor/fwrecon/pkg/report"
)

var errNoWorkspace = errors.New("report store unavailable (workspace disabled?)")

func newReportsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "reports",
		Short:   "Inspect reports saved in the workspace",
		GroupID: "core",
	}
	cmd.AddCommand(newReportsListCommand())
	cmd.AddCommand(newReportsShowCommand())
	return cmd
}

func newReportsListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved reports, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := formatterFor(cmd)
			store, ok := appctx.ReportStore(cmd.Context())
			if !ok {
				return errNoWorkspace
			}

			entries, err := store.List()
			if err != nil {
				return err
			}
			if len(entries) == 0 && !formatter.IsStructured() {
				return formatter.PrintSummary(fmt.Sprintf("No reports in %s", store.Dir()))
			}

			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				rows = append(rows, []string{
					e.ID,
					e.Timestamp.Local().Format(time.DateTime),
					fmt.Sprintf("%t", e.Compressed),
					e.Path,
				})
			}
			return formatter.PrintTable([]string{"ID", "Saved", "Compressed", "Path"}, rows)
		},
	}
}

func newReportsShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show [id]",
		Short: "Render a saved report (the newest when no id is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := formatterFor(cmd)
			store, ok := appctx.ReportStore(cmd.Context())
			if !ok {
				return errNoWorkspace
			}

			id := ""
			if len(args) == 1 {
				id = args[0]
			}
			r, err := store.Get(id)
			if errors.Is(err, report.ErrNotFound) && id == "" {
				return fmt.Errorf("no reports saved in %s", store.Dir())
			}
			if err != nil {
				return err
			}
			return formatter.PrintReport(r)
		},
	}
}

func formatterFor(cmd *cobra.Command) format.Formatter {
	if mgr, ok := appctx.Config(cmd.Context()); ok {
		return format.FromCommandWithMode(cmd, mgr.Get().Output.Format)
	}
	return format.FromCommand(cmd)
}
