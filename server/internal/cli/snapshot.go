package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/livelist/livelist/pkg/types"
	"github.com/livelist/livelist/server/internal/store"
)

// SnapshotOptions holds flags for the snapshot command.
type SnapshotOptions struct {
	*RootOptions
	Database string
}

// NewSnapshotCommand creates the snapshot command.
func NewSnapshotCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SnapshotOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Print the records stored in a SQLite database",
		Long: `Load the table from a SQLite database written by "livelist serve" with
storage.backend: sqlite, and print it in insertion order.

Example:
  livelist snapshot --db ./livelist.db
  livelist snapshot --db ./livelist.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshot(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runSnapshot(cmd *cobra.Command, opts *SnapshotOptions) error {
	if _, err := os.Stat(opts.Database); err != nil {
		return WrapExitError(ExitCommandError, "database not found", err)
	}
	b, err := store.OpenSQLite(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	st, err := store.Open(cmd.Context(), b)
	if err != nil {
		b.Close()
		return WrapExitError(ExitFailure, "failed to load records", err)
	}
	defer st.Close()

	return writeSnapshot(cmd.OutOrStdout(), opts.Format, st.Snapshot())
}

// writeSnapshot prints snap as a table (text) or as its JSON encoding.
func writeSnapshot(w io.Writer, format string, snap types.Snapshot) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tID\tNAME")
	for i := 0; i < snap.Len(); i++ {
		r := snap.At(i)
		fmt.Fprintf(tw, "%d\t%s\t%s\n", i+1, r.ID, r.Name)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%d record(s)\n", snap.Len())
	return err
}
