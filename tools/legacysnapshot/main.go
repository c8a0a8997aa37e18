// Package main provides a CLI tool that copies the legacy MySQL tables into a
// SQLite file, so a migration can be rehearsed offline with source.type sqlite.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (can be set via ldflags during build)
var version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "legacysnapshot",
	Short: "Copy the legacy certificate database from MySQL into SQLite",
	Long: `A tool for taking an offline snapshot of the legacy certificate database.

The legacy tables are copied with their original ids into a SQLite file. Point
source.type and source.path of certmigrate at the file to rehearse a migration
without touching the production database. Rows already present in the snapshot
are left alone, so the tool can be re-run to pick up new legacy rows.`,
	RunE:    runSnapshot,
	Version: version,
}

var cfg Config

func init() {
	// Target snapshot file
	rootCmd.Flags().StringVar(&cfg.SQLitePath, "sqlite-path", "legacy_snapshot.db", "Path of the SQLite snapshot file")

	// Source database flags - DSN or individual components
	rootCmd.Flags().StringVar(&cfg.MySQLDSN, "mysql-dsn", "", "MySQL connection string (e.g., user:pass@tcp(host:3306)/dbname)")
	rootCmd.Flags().StringVar(&cfg.MySQLHost, "mysql-host", "", "MySQL host (alternative to DSN)")
	rootCmd.Flags().IntVar(&cfg.MySQLPort, "mysql-port", 3306, "MySQL port")
	rootCmd.Flags().StringVar(&cfg.MySQLUser, "mysql-user", "", "MySQL username")
	rootCmd.Flags().StringVar(&cfg.MySQLPass, "mysql-pass", "", "MySQL password")
	rootCmd.Flags().StringVar(&cfg.MySQLDatabase, "mysql-database", "", "MySQL database name")

	// Copy options
	rootCmd.Flags().IntVar(&cfg.BatchSize, "batch-size", 1000, "Number of rows per batch")
	rootCmd.Flags().BoolVar(&cfg.Clean, "clean", false, "Delete snapshot rows before copying")
	rootCmd.Flags().BoolVar(&cfg.SkipVerify, "skip-verify", false, "Skip post-copy verification")
	rootCmd.Flags().BoolVar(&cfg.Verbose, "verbose", false, "Enable verbose output")

	// Config file fallback
	rootCmd.Flags().StringVar(&cfg.ConfigPath, "config", "", "Path to certmigrate config.yaml (for connection fallback)")
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	if err := cfg.Load(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	out := cmd.OutOrStdout()
	if cfg.Verbose {
		_, _ = fmt.Fprintf(out, "Source: %s\n", cfg.GetSanitizedMySQLDSN())
		_, _ = fmt.Fprintf(out, "Target: %s\n", cfg.SQLitePath)
		_, _ = fmt.Fprintf(out, "Batch size: %d\n", cfg.BatchSize)
	}

	snap, err := OpenSnapshot(cfg.SourceDialector(), cfg.TargetDialector(), &cfg, out)
	if err != nil {
		return fmt.Errorf("failed to initialize snapshot: %w", err)
	}
	defer snap.Close()

	stats, err := snap.Run(cmd.Context())
	if err != nil {
		return fmt.Errorf("snapshot failed: %w", err)
	}
	stats.Print(out)

	if !cfg.SkipVerify {
		_, _ = fmt.Fprintln(out, "\n--- Verification ---")
		if err := snap.Verify(cmd.Context()); err != nil {
			return fmt.Errorf("verification failed: %w", err)
		}
		_, _ = fmt.Fprintln(out, "Verification passed!")
	}
	return nil
}
