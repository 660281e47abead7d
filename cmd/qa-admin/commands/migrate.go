package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tendant/simple-qa/pkg/simpleqa/config"
	repopg "github.com/tendant/simple-qa/pkg/simpleqa/repo/postgres"
)

// migrateCmd applies the Postgres schema
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	Long: `Apply the simple-qa schema to the database named by DATABASE_URL.

The schema is idempotent, so running migrate against an up to date database
is a no-op.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigrate(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.DatabaseType != "postgres" {
		return fmt.Errorf("migrate needs a postgres DATABASE_URL, got %q", cfg.DatabaseType)
	}

	pool, err := config.NewPool(ctx, cfg.DatabaseURL, cfg.DBSchema)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := repopg.Migrate(ctx, pool); err != nil {
		return err
	}
	logger.Info("schema applied", "schema", cfg.DBSchema)
	fmt.Println("Schema is up to date.")
	return nil
}
