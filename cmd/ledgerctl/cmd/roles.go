package cmd

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
)

var rolesCmd = &cobra.Command{
	Use:   "roles",
	Short: "Manage the accounts system roles post against",
}

var rolesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List database role overrides",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newLedgerServices(cmd.Context())
		if err != nil {
			return err
		}
		defer svc.Close()
		overrides, err := svc.roles.List(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			return json.NewEncoder(cmd.OutOrStdout()).Encode(overrides)
		}
		if len(overrides) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no overrides; configured targets apply")
			return nil
		}
		for _, m := range overrides {
			fmt.Fprintf(cmd.OutOrStdout(), "%-18s account %d (updated %s)\n", m.Role, m.AccountID, m.UpdatedAt.UTC().Format("2006-01-02 15:04"))
		}
		return nil
	},
}

var rolesSetCmd = &cobra.Command{
	Use:   "set <role> <account-id>",
	Short: "Point a role at an active account",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		role := mappings.Role(args[0])
		if !slices.Contains(mappings.Roles, role) {
			return fmt.Errorf("unknown role %q", args[0])
		}
		accountID, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil || accountID <= 0 {
			return fmt.Errorf("invalid account id %q", args[1])
		}

		svc, err := newLedgerServices(cmd.Context())
		if err != nil {
			return err
		}
		defer svc.Close()
		account, err := svc.accounts.Get(cmd.Context(), accountID)
		if err != nil {
			return err
		}
		if !account.IsActive {
			return fmt.Errorf("account %s %s is inactive", account.Code, account.Name)
		}
		if err := svc.roles.Set(cmd.Context(), role, accountID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s now posts to %s %s\n", role, account.Code, account.Name)
		return nil
	},
}

func init() {
	rolesCmd.AddCommand(rolesListCmd, rolesSetCmd)
}
