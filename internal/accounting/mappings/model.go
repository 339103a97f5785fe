package mappings

import "time"

// Role names a system account the integration hooks post against.
type Role string

const (
	RoleCashInHand      Role = "cash_in_hand"
	RoleBankAccount     Role = "bank_account"
	RoleSalesRevenue    Role = "sales_revenue"
	RoleInventory       Role = "inventory"
	RoleAccountsPayable Role = "accounts_payable"
)

// Roles lists every role the resolver must be able to satisfy.
var Roles = []Role{RoleCashInHand, RoleBankAccount, RoleSalesRevenue, RoleInventory, RoleAccountsPayable}

// Target identifies the account a role points at. Code wins over Name.
type Target struct {
	Name string `yaml:"name"`
	Code string `yaml:"code"`
}

// DefaultTargets maps each role to the well-known account name seeded with
// a fresh chart of accounts.
func DefaultTargets() map[Role]Target {
	return map[Role]Target{
		RoleCashInHand:      {Name: "Cash in Hand"},
		RoleBankAccount:     {Name: "Bank Account"},
		RoleSalesRevenue:    {Name: "Sales Revenue"},
		RoleInventory:       {Name: "Inventory"},
		RoleAccountsPayable: {Name: "Accounts Payable"},
	}
}

// RoleMapping is a database override row linking a role to an account.
type RoleMapping struct {
	Role      Role
	AccountID int64
	UpdatedAt time.Time
}
