package commands

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vulntor/fwrecon/cmd/fwrecon/internal/format"
	"github.com/vulntor/fwrecon/pkg/appctx"
	"github.com/vulntor/fwrecon/pkg/profile"
	"github.com/vulntor/fwrecon/pkg/stringutil"
)

func newProfilesCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "profiles",
		Short:   "List the scan techniques and their stages",
		GroupID: "core",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			registry := profile.NewRegistry()
			fallback := ""
			if mgr, ok := appctx.Config(cmd.Context()); ok {
				cfg := mgr.Get()
				fallback = cfg.Output.Format
				r, err := registry.WithOverrides(cfg.Profiles)
				if err != nil {
					return err
				}
				registry = r
			}
			formatter := format.FromCommandWithMode(cmd, fallback)
			intent := func(s string) string { return s }
			if !formatter.IsStructured() {
				intent = func(s string) string { return stringutil.Ellipsis(s, 60) }
			}

			headers := []string{"Name", "Kind", "Stage", "Default", "Timing", "Flags", "Intent"}
			rows := make([][]string, 0, len(registry.All()))
			for _, p := range registry.All() {
				rows = append(rows, []string{
					p.Name,
					string(p.Kind),
					string(p.Stage),
					strconv.FormatBool(!p.OptIn),
					"T" + strconv.Itoa(p.Opts.Timing),
					strings.Join(p.Opts.Flags, " "),
					intent(p.Intent),
				})
			}
			return formatter.PrintTable(headers, rows)
		},
	}
}
