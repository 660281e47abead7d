package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/tendant/simple-qa/pkg/simpleqa/config"
)

var (
	// Global flags
	jsonOutput bool
	verbose    bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "qa-admin",
	Short: "Maintenance tasks for the simple-qa service",
	Long: `qa-admin runs maintenance tasks against the same database and blob store
the server uses. Configuration is read from the environment (and a .env file
in the working directory), exactly like qa-server.

ENVIRONMENT VARIABLES:
  DATABASE_URL   "memory" or a postgres connection string
  DB_SCHEMA      Postgres schema (search_path)
  STORAGE_URL    memory://, file:///path or s3://bucket?region=...`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
}

// loadConfig reads the environment the same way qa-server does. Event
// logging is off so command output is not interleaved with event lines.
func loadConfig() (*config.ServerConfig, *slog.Logger, error) {
	level := "warn"
	if verbose {
		level = "debug"
	}
	cfg, err := config.Load(config.WithEnv(), config.WithEventLogging(false), config.WithLogging(level, ""))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, cfg.NewLogger(), nil
}
