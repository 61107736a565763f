// Package cli implements the sheetbase command-line interface. Commands
// open the store directly rather than going through the HTTP API, so the
// CLI works against a database file with no server running.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"sheetbase/internal/app"
	"sheetbase/internal/config"
)

var version = "dev"

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// rootOptions carries the persistent flags shared by every command.
type rootOptions struct {
	dbPath        string
	historyDBPath string
	output        string
	logLevel      string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "sheetbase",
		Short:         "Spreadsheet import and search store",
		Long:          "Import CSV and XLSX files into a single searchable store and query across all of them at once.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if opts.output != "table" && opts.output != "json" {
				return fmt.Errorf("unsupported output format %q: use 'table' or 'json'", opts.output)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.dbPath, "db", "", "path to the store database (default $DB_PATH or products.duckdb)")
	rootCmd.PersistentFlags().StringVar(&opts.historyDBPath, "history-db", "", "path to the search-history sidecar (default $HISTORY_DB_PATH)")
	rootCmd.PersistentFlags().StringVarP(&opts.output, "output", "o", "table", "Output format (table, json)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(newImportCmd(opts))
	rootCmd.AddCommand(newSearchCmd(opts))
	rootCmd.AddCommand(newFilesCmd(opts))
	rootCmd.AddCommand(newStatsCmd(opts))
	rootCmd.AddCommand(newExportCmd(opts))
	rootCmd.AddCommand(newClearCmd(opts))
	rootCmd.AddCommand(newServeCmd(opts))
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

// openApp wires the application from environment config overridden by the
// persistent flags. The caller must Close it.
func openApp(ctx context.Context, opts *rootOptions) (*app.App, error) {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, err
	}
	if opts.dbPath != "" {
		cfg.DBPath = opts.dbPath
	}
	if opts.historyDBPath != "" {
		cfg.HistoryDBPath = opts.historyDBPath
	}
	cfg.LogLevel = opts.logLevel

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	return app.New(ctx, cfg, logger)
}

// signalContext returns a context cancelled by SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the CLI version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}
