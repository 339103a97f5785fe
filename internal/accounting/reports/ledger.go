package reports

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
)

// LedgerEntry is one posting on an account statement.
type LedgerEntry struct {
	PostingID      int64             `json:"posting_id"`
	GroupID        string            `json:"group_id"`
	Date           time.Time         `json:"date"`
	Description    string            `json:"description"`
	Remarks        string            `json:"remarks,omitempty"`
	Source         accounting.Source `json:"source"`
	Debit          decimal.Decimal   `json:"debit"`
	Credit         decimal.Decimal   `json:"credit"`
	Amount         decimal.Decimal   `json:"amount"`
	RunningBalance decimal.Decimal   `json:"running_balance"`
}

// Ledger is an account statement over a date range.
type Ledger struct {
	Account        accounts.Account `json:"account"`
	From           time.Time        `json:"from"`
	To             time.Time        `json:"to"`
	OpeningBalance decimal.Decimal  `json:"opening_balance"`
	Transactions   []LedgerEntry    `json:"transactions"`
	TotalDebit     decimal.Decimal  `json:"total_debit"`
	TotalCredit    decimal.Decimal  `json:"total_credit"`
	ClosingBalance decimal.Decimal  `json:"closing_balance"`
}

// BuildLedger orders postings and accumulates running balances from the
// opening totals. Rows sort by date, then group, then credit before debit
// so both legs of a group stay adjacent, then posting id.
func BuildLedger(account accounts.Account, from, to time.Time, opening accounting.AccountTotals, postings []accounting.Posting) Ledger {
	l := Ledger{
		Account:        account,
		From:           from,
		To:             to,
		OpeningBalance: account.Signed(opening.Debit, opening.Credit),
		Transactions:   make([]LedgerEntry, 0, len(postings)),
		TotalDebit:     decimal.Zero,
		TotalCredit:    decimal.Zero,
	}
	sorted := append([]accounting.Posting(nil), postings...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.GroupID != b.GroupID {
			return a.GroupID < b.GroupID
		}
		if a.IsDebit() != b.IsDebit() {
			return !a.IsDebit()
		}
		return a.ID < b.ID
	})

	running := l.OpeningBalance
	for _, p := range sorted {
		debit, credit := decimal.Zero, decimal.Zero
		if p.IsDebit() {
			debit = p.Debit.Decimal
		} else {
			credit = p.Credit.Decimal
		}
		signed := account.Signed(debit, credit)
		running = running.Add(signed)
		l.TotalDebit = l.TotalDebit.Add(debit)
		l.TotalCredit = l.TotalCredit.Add(credit)
		l.Transactions = append(l.Transactions, LedgerEntry{
			PostingID:      p.ID,
			GroupID:        p.GroupID,
			Date:           p.Date,
			Description:    p.Description,
			Remarks:        p.Remarks,
			Source:         p.Source,
			Debit:          debit,
			Credit:         credit,
			Amount:         signed,
			RunningBalance: running,
		})
	}
	l.ClosingBalance = running
	return l
}
