package cmd

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	_ "github.com/odyssey-erp/odyssey-ledger/testing"
)

func TestCommandTree(t *testing.T) {
	cases := map[string][]string{
		"cancel":        {"sync", "cancel", "sales_order", "SO1"},
		"sync":          {"sync", "sales_order", "SO1"},
		"trial-balance": {"reports", "trial-balance"},
		"ledger":        {"reports", "ledger", "--account", "1"},
		"integrity":     {"integrity", "--enqueue"},
		"trigger":       {"jobs", "trigger", "ledger:reconcile"},
		"set":           {"roles", "set", "cash_in_hand", "3"},
		"down":          {"migrate", "down", "--steps", "2"},
	}
	for want, args := range cases {
		found, _, err := rootCmd.Find(args)
		require.NoError(t, err, args)
		require.Equal(t, want, found.Name(), args)
	}
}

func TestExitCode(t *testing.T) {
	require.NoError(t, exitCode(0))

	var exit exitCodeError
	require.True(t, errors.As(exitCode(10), &exit))
	require.Equal(t, 10, exit.code)
}

func TestOperatorDefault(t *testing.T) {
	actor = ""
	require.Equal(t, "ledgerctl", operator())
	actor = "ops@odyssey"
	t.Cleanup(func() { actor = "" })
	require.Equal(t, "ops@odyssey", operator())
}
