package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/runger/perfdb/internal/migrate"
	"github.com/runger/perfdb/internal/sanitize"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the database schema",
	Long: `Create the database if needed and apply pending schema migrations.

Every command migrates the database on first use; this command only does
that and reports the resulting schema version.`,
	Args:    cobra.NoArgs,
	GroupID: groupSetup,
	RunE:    runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	version, err := migrate.GetSchemaVersion(ctx, e.handle.Engine().DB())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: schema v%d\n", sanitize.Path(e.handle.Path()), version)
	return nil
}
