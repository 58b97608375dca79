package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/rostermap/internal/dictionary"
)

// BuildInfo identifies the running binary.
type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

// NewVersionCommand creates the version command.
func NewVersionCommand(info BuildInfo) *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long: `Display the rostermap version, the build it came from, and the
workbook and dictionary formats it understands.`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			if short {
				_, _ = fmt.Fprintln(out, info.Version)
				return
			}
			_, _ = fmt.Fprintf(out, "rostermap v%s (commit %s, built %s)\n", info.Version, info.Commit, info.Date)
			_, _ = fmt.Fprintln(out, "Rewrites crew roster shift codes into station descriptions")
			_, _ = fmt.Fprintln(out, "  workbooks:    .xlsx, .xlsm (styled or plain output)")
			_, _ = fmt.Fprintf(out, "  dictionaries: %s, %s, %s\n", dictionary.FormatJSON, dictionary.FormatYAML, dictionary.FormatCSV)
		},
	}

	cmd.Flags().BoolVar(&short, "short", false, "Print only the version number")
	return cmd
}
