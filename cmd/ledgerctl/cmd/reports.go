package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-ledger/cmd/odyssey/cli"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

var (
	reportAsOf      string
	ledgerAccount   int64
	ledgerFrom      string
	ledgerTo        string
	integrityAsOf   string
	integrityQueued bool
)

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "Print balances reconstructed from the postings log",
}

var trialBalanceCmd = &cobra.Command{
	Use:   "trial-balance",
	Short: "Print the trial balance as of a date",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ops, closeFn, err := openOps(cmd)
		if err != nil {
			return err
		}
		defer closeFn()
		return exitCode(ops.TrialBalanceCommand(cmd.Context(), cli.TrialBalanceOptions{
			AsOf:       reportAsOf,
			JSONOutput: jsonOutput,
			Stdout:     cmd.OutOrStdout(),
			Stderr:     cmd.ErrOrStderr(),
		}))
	},
}

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Print an account statement with running balances",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ops, closeFn, err := openOps(cmd)
		if err != nil {
			return err
		}
		defer closeFn()
		return exitCode(ops.LedgerCommand(cmd.Context(), cli.LedgerOptions{
			AccountID:  ledgerAccount,
			From:       ledgerFrom,
			To:         ledgerTo,
			JSONOutput: jsonOutput,
			Stdout:     cmd.OutOrStdout(),
			Stderr:     cmd.ErrOrStderr(),
		}))
	},
}

var integrityCmd = &cobra.Command{
	Use:   "integrity",
	Short: "Check that every posting group and the trial balance balance",
	Long: `Check that every posting group nets to zero and that the trial
balance agrees. Exits with status 10 when the books are out of balance.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if integrityQueued {
			var asOf time.Time
			if integrityAsOf != "" {
				parsed, err := time.Parse(time.DateOnly, integrityAsOf)
				if err != nil {
					return fmt.Errorf("invalid --as-of %q (expected YYYY-MM-DD)", integrityAsOf)
				}
				asOf = parsed
			}
			client, err := jobs.NewClient(cache.AsynqOpt(cfg.RedisAddr))
			if err != nil {
				return err
			}
			defer client.Close()
			info, err := client.EnqueueIntegrity(cmd.Context(), asOf)
			if err != nil {
				return fmt.Errorf("enqueue integrity: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s as %s\n", jobs.TaskGLIntegrity, info.ID)
			return nil
		}

		ops, closeFn, err := openOps(cmd)
		if err != nil {
			return err
		}
		defer closeFn()
		return exitCode(ops.IntegrityCommand(cmd.Context(), cli.IntegrityOptions{
			AsOf:       integrityAsOf,
			JSONOutput: jsonOutput,
			Stdout:     cmd.OutOrStdout(),
			Stderr:     cmd.ErrOrStderr(),
		}))
	},
}

func openOps(cmd *cobra.Command) (*cli.LedgerOpsCLI, func(), error) {
	svc, err := newLedgerServices(cmd.Context())
	if err != nil {
		return nil, nil, err
	}
	ops, err := svc.opsCLI()
	if err != nil {
		svc.Close()
		return nil, nil, err
	}
	return ops, svc.Close, nil
}

func init() {
	trialBalanceCmd.Flags().StringVar(&reportAsOf, "as-of", "", "report date YYYY-MM-DD (default today)")
	ledgerCmd.Flags().Int64Var(&ledgerAccount, "account", 0, "account id")
	ledgerCmd.Flags().StringVar(&ledgerFrom, "from", "", "first day YYYY-MM-DD (default start of the month)")
	ledgerCmd.Flags().StringVar(&ledgerTo, "to", "", "last day YYYY-MM-DD (default today)")
	_ = ledgerCmd.MarkFlagRequired("account")
	reportsCmd.AddCommand(trialBalanceCmd, ledgerCmd)

	integrityCmd.Flags().StringVar(&integrityAsOf, "as-of", "", "trial balance date YYYY-MM-DD (default today)")
	integrityCmd.Flags().BoolVar(&integrityQueued, "enqueue", false, "queue the check for the worker instead of running it here")
}
