package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

var (
	cancelMemo       string
	reconcileEnqueue bool
)

var syncCmd = &cobra.Command{
	Use:   "sync <kind> <id>",
	Short: "Post a source document into the ledger",
	Long: `Post one source document into the ledger. Kinds are sales_order,
purchase_order and purchase_payment. Syncing a document twice is a no-op.

Example:
  ledgerctl sync sales_order SO-1042
  ledgerctl sync cancel purchase_order PO-77 --memo "supplier returned goods"`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newLedgerServices(cmd.Context())
		if err != nil {
			return err
		}
		defer svc.Close()

		applied, err := svc.hooks.Sync(cmd.Context(), accounting.SourceType(args[0]), args[1])
		if err != nil {
			return err
		}
		if jsonOutput {
			return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]bool{"applied": applied})
		}
		if applied {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s posted\n", args[0], args[1])
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s already posted, nothing to do\n", args[0], args[1])
		}
		return nil
	},
}

var syncCancelCmd = &cobra.Command{
	Use:   "cancel <kind> <id>",
	Short: "Reverse the postings of a cancelled source document",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newLedgerServices(cmd.Context())
		if err != nil {
			return err
		}
		defer svc.Close()

		reversed, err := svc.hooks.Cancel(cmd.Context(), accounting.SourceType(args[0]), args[1], cancelMemo)
		if err != nil {
			return err
		}
		if jsonOutput {
			return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]bool{"reversed": reversed})
		}
		if reversed {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s reversed\n", args[0], args[1])
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s has no postings to reverse\n", args[0], args[1])
		}
		return nil
	},
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Sync every postable document that has not reached the ledger",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if reconcileEnqueue {
			client, err := jobs.NewClient(cache.AsynqOpt(cfg.RedisAddr))
			if err != nil {
				return err
			}
			defer client.Close()
			info, err := client.EnqueueReconcile(cmd.Context(), operator())
			if err != nil {
				return fmt.Errorf("enqueue reconcile: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s as %s\n", jobs.TaskLedgerReconcile, info.ID)
			return nil
		}

		svc, err := newLedgerServices(cmd.Context())
		if err != nil {
			return err
		}
		defer svc.Close()

		summary, err := svc.reconciler.Run(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			if err := json.NewEncoder(cmd.OutOrStdout()).Encode(summary); err != nil {
				return err
			}
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "run %s: scanned %d, applied %d, skipped %d, failed %d in %s\n",
				summary.RunID, summary.Scanned, summary.Applied, summary.Skipped, summary.Failed,
				summary.Duration.Round(time.Millisecond))
		}
		if summary.Failed > 0 {
			return exitCode(2)
		}
		return nil
	},
}

func init() {
	syncCancelCmd.Flags().StringVar(&cancelMemo, "memo", "", "reason recorded on the reversal")
	syncCmd.AddCommand(syncCancelCmd)
	reconcileCmd.Flags().BoolVar(&reconcileEnqueue, "enqueue", false, "queue the run for the worker instead of running it here")
}
