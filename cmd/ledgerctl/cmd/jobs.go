package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-ledger/cmd/odyssey/cli"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/cache"
)

var scheduledSize int

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect and trigger background jobs",
}

var jobsTriggerCmd = &cobra.Command{
	Use:   "trigger <task>",
	Short: "Enqueue ledger:reconcile or ledger:gl_integrity with its default payload",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := cli.NewJobsCLI(cache.AsynqOpt(cfg.RedisAddr))
		if err != nil {
			return err
		}
		defer c.Close()
		info, err := c.Trigger(cmd.Context(), args[0], operator())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s as %s on %s\n", info.Type, info.ID, info.Queue)
		return nil
	},
}

var jobsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show queue depth for the default queue",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := cli.NewJobsCLI(cache.AsynqOpt(cfg.RedisAddr))
		if err != nil {
			return err
		}
		defer c.Close()
		stats, err := c.InspectQueue(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			return json.NewEncoder(cmd.OutOrStdout()).Encode(stats)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "queue %s: pending %d, active %d, scheduled %d, retry %d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
		return nil
	},
}

var jobsScheduledCmd = &cobra.Command{
	Use:   "scheduled",
	Short: "List tasks waiting for their scheduled time",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := cli.NewJobsCLI(cache.AsynqOpt(cfg.RedisAddr))
		if err != nil {
			return err
		}
		defer c.Close()
		tasks, err := c.ListScheduled(cmd.Context(), scheduledSize)
		if err != nil {
			return err
		}
		for _, t := range tasks {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s next %s\n", t.ID, t.Type, t.NextProcessAt.UTC().Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

func init() {
	jobsScheduledCmd.Flags().IntVar(&scheduledSize, "size", 10, "maximum tasks to list")
	jobsCmd.AddCommand(jobsTriggerCmd, jobsStatsCmd, jobsScheduledCmd)
}
