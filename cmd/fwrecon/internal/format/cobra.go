package format

import (
	"os"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// FromCommand builds a Formatter using cobra command output/error writers and common flags.
func FromCommand(cmd *cobra.Command) Formatter {
	return FromCommandWithMode(cmd, "")
}

// FromCommandWithMode is FromCommand with a fallback mode used when the
// command has no --output flag or leaves it unset (e.g. the configured
// output.format).
func FromCommandWithMode(cmd *cobra.Command, fallback string) Formatter {
	stdout := cmd.OutOrStdout()
	stderr := cmd.ErrOrStderr()

	mode := ParseMode(fallback)
	if flag := cmd.Flags().Lookup("output"); flag != nil && (flag.Changed || fallback == "") {
		mode = ParseMode(flag.Value.String())
	}

	quiet := false
	if flag := cmd.Flags().Lookup("quiet"); flag != nil {
		if val, err := strconv.ParseBool(flag.Value.String()); err == nil {
			quiet = val
		}
	}

	useColor := !color.NoColor
	if flag := cmd.Flags().Lookup("no-color"); flag != nil {
		if val, err := strconv.ParseBool(flag.Value.String()); err == nil && val {
			useColor = false
		}
	}

	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}

	return New(stdout, stderr, mode, quiet, useColor)
}
