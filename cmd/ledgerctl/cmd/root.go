// Package cmd provides the ledgerctl commands.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-ledger/internal/app"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

var (
	debug      bool
	jsonOutput bool
	actor      string

	cfg    *app.Config
	logger *slog.Logger
)

// exitCodeError carries a non-zero exit status without an error message.
type exitCodeError struct {
	code int
}

func (e exitCodeError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func exitCode(code int) error {
	if code == 0 {
		return nil
	}
	return exitCodeError{code: code}
}

var rootCmd = &cobra.Command{
	Use:   "ledgerctl",
	Short: "Operate the Odyssey general ledger",
	Long: `ledgerctl runs operator tasks against the Odyssey ledger database.

Example:
  ledgerctl migrate up
  ledgerctl sync sales_order SO-1042
  ledgerctl reconcile
  ledgerctl reports trial-balance --as-of 2024-06-30
  ledgerctl integrity`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := app.LoadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
		level := slog.LevelWarn
		if debug {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		return nil
	},
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		var exit exitCodeError
		if errors.As(err, &exit) {
			return exit.code
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print JSON instead of text")
	rootCmd.PersistentFlags().StringVar(&actor, "actor", "", "actor recorded on postings (default ledgerctl)")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(reportsCmd)
	rootCmd.AddCommand(integrityCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(rolesCmd)
}

func operator() string {
	if actor != "" {
		return actor
	}
	return "ledgerctl"
}

func openPool(ctx context.Context) (*pgxpool.Pool, error) {
	pool, err := db.New(ctx, cfg.PGDSN, db.WithMaxConns(4))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pool, nil
}
