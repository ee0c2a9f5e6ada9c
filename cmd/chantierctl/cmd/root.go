// Package cmd provides the chantierctl commands.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"chantier/internal/cli"
	"chantier/internal/config"
	applog "chantier/internal/log"
	"chantier/internal/storage"
)

var (
	dbPath string
	debug  bool

	cfg    *config.Config
	logger *applog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "chantierctl",
	Short: "Administer the chantier renovation ledger",
	Long: `chantierctl works directly on the chantier SQLite ledger.

It supports:
- Applying schema migrations
- Printing the dashboard summary as text, JSON or YAML
- Managing tags and payers
- Hashing the household password
- Authorizing the Google Sheets export

Example:
  chantierctl summary --output json
  chantierctl tags add Cuisine`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cli.LoadEnvFile()
		cfg = config.Load()
		if dbPath != "" {
			cfg.SQLiteDBPath = dbPath
		}

		logConfig := applog.DefaultConfig()
		logConfig.Level = applog.ParseLevel(cfg.LogLevel)
		if debug {
			logConfig.Level = applog.ParseLevel("debug")
		}
		logConfig.Format = cfg.LogFormat
		logConfig.Output = os.Stderr
		logger = applog.New(logConfig)
		applog.SetDefault(logger)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "ledger database path (default SQLITE_DB_PATH)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(summaryCmd)
	rootCmd.AddCommand(hashPasswordCmd)
	rootCmd.AddCommand(tagsCmd)
	rootCmd.AddCommand(payersCmd)
	rootCmd.AddCommand(sheetsAuthCmd)
}

// openRepo opens the ledger, applying pending migrations.
func openRepo() *storage.SQLiteRepository {
	exitOnError(cli.ValidateCommon(cfg), "invalid configuration")
	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	exitOnError(err, "failed to open ledger")
	return repo
}

func exitOnError(err error, msg string) {
	if err != nil {
		logger.Error(msg, applog.FieldError, err)
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
		os.Exit(1)
	}
}
