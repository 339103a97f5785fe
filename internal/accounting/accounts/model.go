package accounts

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountType enumerates CoA categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// NormalBalance is the side on which an account naturally increases.
type NormalBalance string

const (
	NormalDebit  NormalBalance = "DEBIT"
	NormalCredit NormalBalance = "CREDIT"
)

// Valid reports whether t is a known account type.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue, AccountTypeExpense:
		return true
	}
	return false
}

// NormalBalance returns the side implied by the account type.
func (t AccountType) NormalBalance() NormalBalance {
	switch t {
	case AccountTypeAsset, AccountTypeExpense:
		return NormalDebit
	default:
		return NormalCredit
	}
}

// Account models a chart of accounts node.
type Account struct {
	ID            int64         `json:"id"`
	Code          string        `json:"code"`
	Name          string        `json:"name"`
	Type          AccountType   `json:"type"`
	NormalBalance NormalBalance `json:"normal_balance"`
	IsActive      bool          `json:"is_active"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// DebitNormal reports whether debits increase the account.
func (a Account) DebitNormal() bool {
	return a.NormalBalance == NormalDebit
}

// Signed converts a debit/credit pair into a movement on the account's
// normal side: positive increases the balance, negative decreases it.
func (a Account) Signed(debit, credit decimal.Decimal) decimal.Decimal {
	if a.DebitNormal() {
		return debit.Sub(credit)
	}
	return credit.Sub(debit)
}

// CreateInput carries the operator supplied fields for a new account.
type CreateInput struct {
	Code          string        `json:"code" validate:"required,max=20"`
	Name          string        `json:"name" validate:"required,max=120"`
	Type          AccountType   `json:"type" validate:"required,oneof=ASSET LIABILITY EQUITY REVENUE EXPENSE"`
	NormalBalance NormalBalance `json:"normal_balance" validate:"omitempty,oneof=DEBIT CREDIT"`
}
