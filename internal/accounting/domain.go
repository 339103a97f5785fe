package accounting

import (
	"time"

	"github.com/shopspring/decimal"
)

// SourceType identifies the kind of business document behind a posting group.
type SourceType string

const (
	SourceManualEntry     SourceType = "manual_entry"
	SourceSalesOrder      SourceType = "sales_order"
	SourcePurchaseOrder   SourceType = "purchase_order"
	SourcePurchasePayment SourceType = "purchase_payment"
)

// Reversible reports whether groups of this type may be reversed directly.
// System generated groups are reversed through their document's lifecycle.
func (t SourceType) Reversible() bool {
	return t == SourceManualEntry
}

// Source links a posting group back to its originating document. ID is empty
// for entries that have no document (manual journal vouchers).
type Source struct {
	Type SourceType `json:"source_type"`
	ID   string     `json:"source_id,omitempty"`
}

// GroupStatus enumerates posting group lifecycle values.
type GroupStatus string

const (
	GroupStatusPosted   GroupStatus = "POSTED"
	GroupStatusReversed GroupStatus = "REVERSED"
)

// PostingDetails is the validated input of a two-line entry.
type PostingDetails struct {
	Date            time.Time       `json:"date" validate:"required"`
	Description     string          `json:"description" validate:"required,max=255"`
	Remarks         string          `json:"remarks,omitempty" validate:"max=1000"`
	DebitAccountID  int64           `json:"debit_account_id" validate:"required,gt=0"`
	CreditAccountID int64           `json:"credit_account_id" validate:"required,gt=0,nefield=DebitAccountID"`
	Amount          decimal.Decimal `json:"amount"`
}

// Event is a business event that produces one balanced posting group.
type Event interface {
	Details() PostingDetails
	Source() Source
}

// ManualEntry is an operator keyed journal voucher.
type ManualEntry struct {
	Date            time.Time
	Description     string
	Remarks         string
	DebitAccountID  int64
	CreditAccountID int64
	Amount          decimal.Decimal
}

func (e ManualEntry) Details() PostingDetails {
	return PostingDetails{
		Date:            e.Date,
		Description:     e.Description,
		Remarks:         e.Remarks,
		DebitAccountID:  e.DebitAccountID,
		CreditAccountID: e.CreditAccountID,
		Amount:          e.Amount,
	}
}

func (e ManualEntry) Source() Source { return Source{Type: SourceManualEntry} }

// SalesPosting records the receipt of payment for a sales order.
type SalesPosting struct {
	OrderID          string
	OrderNumber      string
	Date             time.Time
	ReceiptAccountID int64
	RevenueAccountID int64
	Amount           decimal.Decimal
}

func (e SalesPosting) Details() PostingDetails {
	return PostingDetails{
		Date:            e.Date,
		Description:     "Sales order " + orFallback(e.OrderNumber, e.OrderID),
		Remarks:         "Payment received",
		DebitAccountID:  e.ReceiptAccountID,
		CreditAccountID: e.RevenueAccountID,
		Amount:          e.Amount,
	}
}

func (e SalesPosting) Source() Source { return Source{Type: SourceSalesOrder, ID: e.OrderID} }

// PurchasePosting records goods received against a purchase order.
type PurchasePosting struct {
	PurchaseOrderID    string
	PONumber           string
	Date               time.Time
	InventoryAccountID int64
	PayableAccountID   int64
	Amount             decimal.Decimal
}

func (e PurchasePosting) Details() PostingDetails {
	return PostingDetails{
		Date:            e.Date,
		Description:     "Purchase order " + orFallback(e.PONumber, e.PurchaseOrderID),
		Remarks:         "Goods received",
		DebitAccountID:  e.InventoryAccountID,
		CreditAccountID: e.PayableAccountID,
		Amount:          e.Amount,
	}
}

func (e PurchasePosting) Source() Source {
	return Source{Type: SourcePurchaseOrder, ID: e.PurchaseOrderID}
}

// PurchasePaymentPosting records settlement of a purchase order.
type PurchasePaymentPosting struct {
	PurchaseOrderID  string
	PONumber         string
	Date             time.Time
	PayableAccountID int64
	PaymentAccountID int64
	Amount           decimal.Decimal
}

func (e PurchasePaymentPosting) Details() PostingDetails {
	return PostingDetails{
		Date:            e.Date,
		Description:     "Payment for purchase order " + orFallback(e.PONumber, e.PurchaseOrderID),
		Remarks:         "Supplier paid",
		DebitAccountID:  e.PayableAccountID,
		CreditAccountID: e.PaymentAccountID,
		Amount:          e.Amount,
	}
}

func (e PurchasePaymentPosting) Source() Source {
	return Source{Type: SourcePurchasePayment, ID: e.PurchaseOrderID}
}

// PostingGroup is the atomic, balanced unit of a transaction.
type PostingGroup struct {
	ID            string      `json:"group_id"`
	Date          time.Time   `json:"date"`
	FinancialYear string      `json:"financial_year"`
	Description   string      `json:"description"`
	Remarks       string      `json:"remarks,omitempty"`
	Source        Source      `json:"source"`
	Status        GroupStatus `json:"status"`
	ReversalOf    string      `json:"reversal_of,omitempty"`
	CreatedBy     string      `json:"created_by"`
	CreatedAt     time.Time   `json:"created_at"`
	Postings      []Posting   `json:"postings,omitempty"`
}

// IsReversal reports whether the group negates another group.
func (g PostingGroup) IsReversal() bool {
	return g.ReversalOf != ""
}

// Totals sums the debit and credit legs of the group.
func (g PostingGroup) Totals() (debit, credit decimal.Decimal) {
	debit, credit = decimal.Zero, decimal.Zero
	for _, p := range g.Postings {
		if p.Debit.Valid {
			debit = debit.Add(p.Debit.Decimal)
		}
		if p.Credit.Valid {
			credit = credit.Add(p.Credit.Decimal)
		}
	}
	return debit, credit
}

// Balanced reports whether debits equal credits.
func (g PostingGroup) Balanced() bool {
	debit, credit := g.Totals()
	return debit.Equal(credit)
}

// Posting is one immutable debit or credit line.
type Posting struct {
	ID            int64               `json:"id"`
	GroupID       string              `json:"group_id"`
	AccountID     int64               `json:"account_id"`
	Date          time.Time           `json:"date"`
	FinancialYear string              `json:"financial_year"`
	Description   string              `json:"description"`
	Remarks       string              `json:"remarks,omitempty"`
	Debit         decimal.NullDecimal `json:"debit"`
	Credit        decimal.NullDecimal `json:"credit"`
	Source        Source              `json:"source"`
	CreatedBy     string              `json:"created_by"`
	CreatedAt     time.Time           `json:"created_at"`
}

// IsDebit reports whether the posting is a debit leg.
func (p Posting) IsDebit() bool {
	return p.Debit.Valid
}

// Amount returns the non-null side of the posting.
func (p Posting) Amount() decimal.Decimal {
	if p.Debit.Valid {
		return p.Debit.Decimal
	}
	return p.Credit.Decimal
}

// ReverseInput wraps parameters for reversal.
type ReverseInput struct {
	GroupID string
	Actor   string
	Memo    string
}

func orFallback(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

// AccountTotals sums the debit and credit legs posted to one account.
type AccountTotals struct {
	AccountID int64
	Debit     decimal.Decimal
	Credit    decimal.Decimal
}

// Add folds a posting into the totals.
func (t *AccountTotals) Add(p Posting) {
	if p.Debit.Valid {
		t.Debit = t.Debit.Add(p.Debit.Decimal)
	}
	if p.Credit.Valid {
		t.Credit = t.Credit.Add(p.Credit.Decimal)
	}
}

// GroupImbalance is a posting group whose legs do not net to zero.
type GroupImbalance struct {
	GroupID string          `json:"group_id"`
	Legs    int             `json:"legs"`
	Debit   decimal.Decimal `json:"debit"`
	Credit  decimal.Decimal `json:"credit"`
}
