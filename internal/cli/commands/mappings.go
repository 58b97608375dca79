package commands

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/rostermap/internal/cli/output"
	"github.com/leapstack-labs/rostermap/internal/dictionary"
	"github.com/leapstack-labs/rostermap/internal/engine"
	"github.com/leapstack-labs/rostermap/internal/store"
	"github.com/leapstack-labs/rostermap/pkg/roster"
)

// NewMappingsCommand creates the mappings command group.
func NewMappingsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "mappings",
		Aliases: []string{"mapping"},
		Short:   "Manage station mapping tables",
		Long: `Import, inspect and export the versioned station mapping tables.

Every import creates a new version. Commands act on the station given by
--station (global by default).`,
	}

	cmd.AddCommand(newMappingsImportCommand())
	cmd.AddCommand(newMappingsShowCommand())
	cmd.AddCommand(newMappingsExportCommand())
	cmd.AddCommand(newMappingsVersionsCommand())
	cmd.AddCommand(newMappingsDeleteCommand())
	cmd.AddCommand(newMappingsStationsCommand())
	cmd.AddCommand(newMappingsAuditCommand())
	return cmd
}

func defaultAuthor() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "cli"
}

func newMappingsImportCommand() *cobra.Command {
	var (
		replace bool
		author  string
		note    string
	)

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a dictionary file as a new version",
		Long: `Import a JSON, YAML or CSV dictionary as the station's next version.

By default the file is merged over the latest version: existing codes are
updated and new codes appended. Use --replace to store the file as is.`,
		Example: `  rostermap mappings import sgn.json --station SGN
  rostermap mappings import codes.csv --station HAN --replace --note "June update"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			v, err := cmdCtx.Engine.ImportMapping(cmd.Context(), engine.ImportRequest{
				Station: cmdCtx.Cfg.Station,
				Path:    args[0],
				Author:  author,
				Note:    note,
				Replace: replace,
			})
			if err != nil {
				return err
			}

			r := cmdCtx.Renderer
			if r.EffectiveMode() == output.ModeJSON {
				return r.JSON(v)
			}
			r.Success(fmt.Sprintf("Saved %s version %d (%d entries)", v.Station, v.Number, v.EntryCount))
			return nil
		},
	}

	cmd.Flags().BoolVar(&replace, "replace", false, "Replace the table instead of merging")
	cmd.Flags().StringVar(&author, "author", defaultAuthor(), "Author recorded with the version")
	cmd.Flags().StringVar(&note, "note", "", "Note recorded with the version")
	return cmd
}

// loadVersion loads a specific version, or the latest when number is 0.
func loadVersion(ctx context.Context, st *store.Store, station string, number int) ([]roster.Entry, *store.Version, error) {
	if number > 0 {
		return st.LoadMappingVersion(ctx, station, number)
	}
	return st.LoadMapping(ctx, station)
}

func newMappingsShowCommand() *cobra.Command {
	var number int

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show a station's mapping table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			entries, v, err := loadVersion(cmd.Context(), cmdCtx.Engine.Store(), cmdCtx.Cfg.Station, number)
			if err != nil {
				return err
			}

			r := cmdCtx.Renderer
			if r.EffectiveMode() == output.ModeJSON {
				return r.JSON(struct {
					*store.Version
					Entries []roster.Entry `json:"entries"`
				}{v, entries})
			}

			rows := make([][]string, 0, len(entries))
			for _, en := range entries {
				kind := "exact"
				if roster.IsPattern(en.Code) {
					kind = "pattern"
				}
				rows = append(rows, []string{en.Code, en.Description, kind})
			}
			r.Header(1, fmt.Sprintf("%s version %d (%d entries)", v.Station, v.Number, len(entries)))
			r.Table([]string{"Code", "Description", "Kind"}, rows)
			return nil
		},
	}

	cmd.Flags().IntVar(&number, "version", 0, "Version number (default latest)")
	return cmd
}

func newMappingsExportCommand() *cobra.Command {
	var (
		number int
		format string
	)

	cmd := &cobra.Command{
		Use:   "export [file]",
		Short: "Export a station's mapping table to a dictionary file",
		Long: `Write a station's mapping table as JSON, YAML or CSV.

The format follows the file extension unless --format is given. Without a
file, or with "-", the table is written to standard output as JSON.`,
		Example: `  rostermap mappings export sgn.yaml --station SGN
  rostermap mappings export --station HAN --format csv > han.csv`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			path := "-"
			if len(args) == 1 {
				path = args[0]
			}
			f, err := exportFormat(path, format)
			if err != nil {
				return err
			}

			entries, v, err := loadVersion(cmd.Context(), cmdCtx.Engine.Store(), cmdCtx.Cfg.Station, number)
			if err != nil {
				return err
			}

			var buf bytes.Buffer
			if err := dictionary.Write(&buf, f, entries); err != nil {
				return err
			}
			if path == "-" {
				_, err := cmd.OutOrStdout().Write(buf.Bytes())
				return err
			}
			if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
				return fmt.Errorf("failed to write %s: %w", path, err)
			}
			cmdCtx.Renderer.Success(fmt.Sprintf("Exported %s version %d to %s", v.Station, v.Number, path))
			return nil
		},
	}

	cmd.Flags().IntVar(&number, "version", 0, "Version number (default latest)")
	cmd.Flags().StringVar(&format, "format", "", "Dictionary format (json|yaml|csv)")
	return cmd
}

func exportFormat(path, name string) (dictionary.Format, error) {
	if name != "" {
		return dictionary.ParseFormat(name)
	}
	if path == "-" {
		return dictionary.FormatJSON, nil
	}
	return dictionary.FormatFromPath(path)
}

func newMappingsVersionsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "versions",
		Short: "List a station's mapping versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			versions, err := cmdCtx.Engine.Store().ListVersions(cmd.Context(), cmdCtx.Cfg.Station)
			if err != nil {
				return err
			}

			r := cmdCtx.Renderer
			if r.EffectiveMode() == output.ModeJSON {
				return r.JSON(versions)
			}
			if len(versions) == 0 {
				r.Muted("No versions stored for " + cmdCtx.Cfg.Station)
				return nil
			}
			rows := make([][]string, 0, len(versions))
			for _, v := range versions {
				rows = append(rows, []string{
					strconv.Itoa(v.Number),
					strconv.Itoa(v.EntryCount),
					v.Author,
					v.Note,
					formatTime(v.CreatedAt),
				})
			}
			r.Header(1, "Versions of "+versions[0].Station)
			r.Table([]string{"Version", "Entries", "Author", "Note", "Created"}, rows)
			return nil
		},
	}
}

func newMappingsDeleteCommand() *cobra.Command {
	var actor string

	cmd := &cobra.Command{
		Use:   "delete <version>",
		Short: "Delete one mapping version",
		Long: `Delete a stored version of the station's table. Version numbers are
never reused; deleting the latest version makes the previous one current.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			number, err := strconv.Atoi(args[0])
			if err != nil || number < 1 {
				return fmt.Errorf("invalid version %q", args[0])
			}

			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			ok, err := cmdCtx.Engine.DeleteMapping(cmd.Context(), cmdCtx.Cfg.Station, number, actor)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: %s version %d", store.ErrNotFound, cmdCtx.Cfg.Station, number)
			}
			cmdCtx.Renderer.Success(fmt.Sprintf("Deleted %s version %d", cmdCtx.Cfg.Station, number))
			return nil
		},
	}

	cmd.Flags().StringVar(&actor, "author", defaultAuthor(), "Actor recorded in the audit log")
	return cmd
}

func newMappingsStationsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stations",
		Short: "List stations with stored mappings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			stations, err := cmdCtx.Engine.Store().Stations(cmd.Context())
			if err != nil {
				return err
			}

			r := cmdCtx.Renderer
			if r.EffectiveMode() == output.ModeJSON {
				return r.JSON(stations)
			}
			rows := make([][]string, 0, len(stations))
			for _, s := range stations {
				rows = append(rows, []string{
					s.Station,
					strconv.Itoa(s.Latest),
					strconv.Itoa(s.Versions),
					formatTime(s.UpdatedAt),
				})
			}
			r.Header(1, fmt.Sprintf("Stations (%d total)", len(stations)))
			r.Table([]string{"Station", "Latest", "Versions", "Updated"}, rows)
			return nil
		},
	}
}

func newMappingsAuditCommand() *cobra.Command {
	var (
		limit int
		every bool
	)

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show the mapping change log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			station := cmdCtx.Cfg.Station
			if every {
				station = ""
			}
			entries, err := cmdCtx.Engine.Store().AuditLog(cmd.Context(), station, limit)
			if err != nil {
				return err
			}

			r := cmdCtx.Renderer
			if r.EffectiveMode() == output.ModeJSON {
				return r.JSON(entries)
			}
			rows := make([][]string, 0, len(entries))
			for _, a := range entries {
				rows = append(rows, []string{
					formatTime(a.CreatedAt),
					a.Station,
					a.Action,
					strconv.Itoa(a.Version),
					a.Actor,
					a.Detail,
				})
			}
			r.Header(1, "Audit log")
			r.Table([]string{"Time", "Station", "Action", "Version", "Actor", "Detail"}, rows)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum entries (0 for all)")
	cmd.Flags().BoolVar(&every, "all-stations", false, "Show every station")
	return cmd
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
