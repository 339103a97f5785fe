package reports

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
)

// BalanceTolerance is the largest debit/credit difference still reported as balanced.
var BalanceTolerance = decimal.New(1, -3)

// TrialBalanceRow is one account line. Exactly one of Debit and Credit
// carries the balance, chosen by the account's normal side.
type TrialBalanceRow struct {
	AccountID     int64                  `json:"account_id"`
	Code          string                 `json:"code"`
	Name          string                 `json:"name"`
	Type          accounts.AccountType   `json:"type"`
	NormalBalance accounts.NormalBalance `json:"normal_balance"`
	IsActive      bool                   `json:"is_active"`
	Balance       decimal.Decimal        `json:"balance"`
	Debit         decimal.Decimal        `json:"debit"`
	Credit        decimal.Decimal        `json:"credit"`
}

// TrialBalanceGroup aggregates rows sharing a code prefix.
type TrialBalanceGroup struct {
	Key    string            `json:"key"`
	Rows   []TrialBalanceRow `json:"rows"`
	Debit  decimal.Decimal   `json:"debit"`
	Credit decimal.Decimal   `json:"credit"`
}

// TrialBalance lists every account balance as of a date.
type TrialBalance struct {
	AsOf         time.Time           `json:"as_of"`
	Rows         []TrialBalanceRow   `json:"accounts"`
	Groups       []TrialBalanceGroup `json:"groups"`
	TotalDebits  decimal.Decimal     `json:"total_debits"`
	TotalCredits decimal.Decimal     `json:"total_credits"`
}

// Difference is TotalDebits minus TotalCredits.
func (tb TrialBalance) Difference() decimal.Decimal {
	return tb.TotalDebits.Sub(tb.TotalCredits)
}

// Balanced reports whether the debit and credit totals agree within BalanceTolerance.
func (tb TrialBalance) Balanced() bool {
	return tb.Difference().Abs().LessThanOrEqual(BalanceTolerance)
}

// BuildTrialBalance converts account balances into trial balance rows. Active
// accounts are always listed; inactive ones only while they carry a balance.
func BuildTrialBalance(asOf time.Time, balances []AccountBalance) TrialBalance {
	result := TrialBalance{AsOf: asOf, Rows: []TrialBalanceRow{}, TotalDebits: decimal.Zero, TotalCredits: decimal.Zero}
	groups := make(map[string]*TrialBalanceGroup)
	var keys []string

	sorted := append([]AccountBalance(nil), balances...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Account.Code < sorted[j].Account.Code })

	for _, acc := range sorted {
		balance := acc.Balance()
		if !acc.Account.IsActive && balance.IsZero() {
			continue
		}
		row := TrialBalanceRow{
			AccountID:     acc.Account.ID,
			Code:          acc.Account.Code,
			Name:          acc.Account.Name,
			Type:          acc.Account.Type,
			NormalBalance: acc.Account.NormalBalance,
			IsActive:      acc.Account.IsActive,
			Balance:       balance,
			Debit:         decimal.Zero,
			Credit:        decimal.Zero,
		}
		if acc.Account.DebitNormal() {
			row.Debit = balance
			result.TotalDebits = result.TotalDebits.Add(balance)
		} else {
			row.Credit = balance
			result.TotalCredits = result.TotalCredits.Add(balance)
		}
		result.Rows = append(result.Rows, row)

		key := acc.GroupKey()
		grp, ok := groups[key]
		if !ok {
			grp = &TrialBalanceGroup{Key: key, Debit: decimal.Zero, Credit: decimal.Zero}
			groups[key] = grp
			keys = append(keys, key)
		}
		grp.Rows = append(grp.Rows, row)
		grp.Debit = grp.Debit.Add(row.Debit)
		grp.Credit = grp.Credit.Add(row.Credit)
	}

	sort.Strings(keys)
	for _, key := range keys {
		result.Groups = append(result.Groups, *groups[key])
	}
	return result
}
