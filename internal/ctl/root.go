// Package ctl implements the wxctl command line: one-off checks and
// inspection of the persisted alert state.
package ctl

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/linnemanlabs/wxalerts/internal/backend"
	"github.com/linnemanlabs/wxalerts/internal/cfg"
	"github.com/linnemanlabs/wxalerts/internal/ingest"
)

// storeFlags are shared by every subcommand.
type storeFlags struct {
	kind        string
	sqlitePath  string
	databaseURL string
}

func (f *storeFlags) open(ctx context.Context) (ingest.Store, func(), error) {
	return backend.Open(ctx, backend.Options{
		Kind:        f.kind,
		SQLitePath:  f.sqlitePath,
		DatabaseURL: f.databaseURL,
		MaxConns:    2,
	})
}

// Execute runs the root command.
func Execute() error {
	return NewRoot().Execute()
}

// NewRoot builds the wxctl command tree.
func NewRoot() *cobra.Command {
	var sf storeFlags
	root := &cobra.Command{
		Use:           "wxctl",
		Short:         "Check and inspect weather hazard alerts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&sf.kind, "store", cfg.StoreSQLite, "alert state backend: sqlite, postgres or memory")
	pf.StringVar(&sf.sqlitePath, "sqlite-path", "data/wxalerts.db", "SQLite database file")
	pf.StringVar(&sf.databaseURL, "database-url", "", "PostgreSQL connection URL")

	root.AddCommand(
		CheckCmd(&sf),
		AlertsCmd(&sf),
		ShowCmd(&sf),
		ResetCmd(&sf),
	)
	return root
}

func printf(cmd *cobra.Command, format string, args ...any) {
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
