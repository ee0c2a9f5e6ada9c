package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"chantier/internal/storage"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	Run: func(cmd *cobra.Command, args []string) {
		exitOnError(storage.RunMigrations(cfg.SQLiteDBPath), "migration failed")
		fmt.Fprintf(cmd.OutOrStdout(), "Ledger %s is up to date\n", cfg.SQLiteDBPath)
	},
}
