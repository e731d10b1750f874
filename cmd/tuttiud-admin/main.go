// Package main is the entrypoint for the tuttiud-admin operator CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/tuttiud/platform/internal/crypto"
	"github.com/tuttiud/platform/internal/db"
)

// Build-time variables set via ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "tuttiud-admin",
		Short: "Operator tooling for the Tuttiud setup gateway",
		Long: `tuttiud-admin provides operator commands for the Tuttiud setup gateway:
generating encryption key material and running control-store migrations.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newGenKeyCmd())
	rootCmd.AddCommand(newMigrateCmd())

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("tuttiud-admin %s (commit %s, built %s)\n", Version, Commit, BuildDate)
		},
	}
}

func newGenKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "genkey",
		Short: "Generate key material for ENCRYPTION_KEY",
		Long: `Generates a fresh random 32-byte key, base64-encoded, suitable for the
ENCRYPTION_KEY environment variable. The key is printed to stdout and
never stored.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := crypto.GenerateKey()
			if err != nil {
				return fmt.Errorf("generate key: %w", err)
			}
			fmt.Println(key)
			return nil
		},
	}
}

func newMigrateCmd() *cobra.Command {
	var dbURL string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run control-store migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
				With().
				Timestamp().
				Logger()

			url := dbURL
			if url == "" {
				url = os.Getenv("DATABASE_URL")
			}
			if url == "" {
				return fmt.Errorf("database URL required: use --db or set DATABASE_URL")
			}

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()

			cfg := db.DefaultConfig(url)
			cfg.MaxConns = 5
			cfg.MinConns = 1

			database, err := db.New(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("connect to control store: %w", err)
			}
			defer database.Close()

			logger.Info().Msg("running control store migrations")
			if err := database.Migrate(ctx); err != nil {
				return fmt.Errorf("run migrations: %w", err)
			}
			logger.Info().Msg("migrations complete")
			return nil
		},
	}

	cmd.Flags().StringVar(&dbURL, "db", "", "Control store URL (or set DATABASE_URL)")
	return cmd
}
