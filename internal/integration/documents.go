package integration

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Document states that trigger a ledger posting.
const (
	PaymentStatusReceived = "Received"
	POStatusReceived      = "Received"
	PaymentStatusPaid     = "Paid"
	PaymentModeCash       = "Cash"
)

// SalesOrder is the financial view of a sales order.
type SalesOrder struct {
	ID            string
	Number        string
	OrderDate     time.Time
	Status        string
	PaymentMode   string
	Total         decimal.Decimal
	PaymentStatus string
	PaidAt        *time.Time
}

// Paid reports whether the customer payment has been received.
func (o SalesOrder) Paid() bool {
	return strings.EqualFold(o.PaymentStatus, PaymentStatusReceived)
}

// PostingDate is the payment date, falling back to the order date.
func (o SalesOrder) PostingDate() time.Time {
	if o.PaidAt != nil {
		return *o.PaidAt
	}
	return o.OrderDate
}

// PurchaseOrder is the financial view of a purchase order.
type PurchaseOrder struct {
	ID            string
	Number        string
	OrderDate     time.Time
	Status        string
	ReceivedAt    *time.Time
	PaymentMode   string
	Total         decimal.Decimal
	PaymentStatus string
	PaidAt        *time.Time
}

// Received reports whether the goods have been received.
func (o PurchaseOrder) Received() bool {
	return strings.EqualFold(o.Status, POStatusReceived)
}

// Paid reports whether the supplier has been paid.
func (o PurchaseOrder) Paid() bool {
	return strings.EqualFold(o.PaymentStatus, PaymentStatusPaid)
}

// ReceiptDate is the goods received date, falling back to the order date.
func (o PurchaseOrder) ReceiptDate() time.Time {
	if o.ReceivedAt != nil {
		return *o.ReceivedAt
	}
	return o.OrderDate
}

// PaymentDate is the settlement date, falling back to the order date.
func (o PurchaseOrder) PaymentDate() time.Time {
	if o.PaidAt != nil {
		return *o.PaidAt
	}
	return o.OrderDate
}

// paymentRole picks the cash or bank account for a payment mode.
func paymentRole(mode string) mappings.Role {
	if strings.EqualFold(strings.TrimSpace(mode), PaymentModeCash) {
		return mappings.RoleCashInHand
	}
	return mappings.RoleBankAccount
}

// DocumentReader loads source documents. The ledger never writes them.
type DocumentReader interface {
	SalesOrder(ctx context.Context, id string) (SalesOrder, error)
	PurchaseOrder(ctx context.Context, id string) (PurchaseOrder, error)
	// The list methods return ids of documents in a postable state with a
	// positive total.
	PaidSalesOrders(ctx context.Context) ([]string, error)
	ReceivedPurchaseOrders(ctx context.Context) ([]string, error)
	PaidPurchaseOrders(ctx context.Context) ([]string, error)
}

// PGDocuments reads documents from PostgreSQL.
type PGDocuments struct {
	pool *pgxpool.Pool
}

// NewPGDocuments constructs the document reader.
func NewPGDocuments(pool *pgxpool.Pool) *PGDocuments {
	return &PGDocuments{pool: pool}
}

func (r *PGDocuments) SalesOrder(ctx context.Context, id string) (SalesOrder, error) {
	var (
		o     SalesOrder
		total string
	)
	err := r.pool.QueryRow(ctx, `SELECT id, number, order_date, status, payment_mode, total::text, payment_status, paid_at
FROM sales_orders WHERE id=$1`, id).Scan(&o.ID, &o.Number, &o.OrderDate, &o.Status, &o.PaymentMode, &total, &o.PaymentStatus, &o.PaidAt)
	if err != nil {
		return SalesOrder{}, documentErr(err, "sales order", id)
	}
	if o.Total, err = decimal.NewFromString(total); err != nil {
		return SalesOrder{}, shared.Storage("parse sales order total", err)
	}
	return o, nil
}

func (r *PGDocuments) PurchaseOrder(ctx context.Context, id string) (PurchaseOrder, error) {
	var (
		o     PurchaseOrder
		total string
	)
	err := r.pool.QueryRow(ctx, `SELECT id, number, order_date, status, received_at, payment_mode, total::text, payment_status, paid_at
FROM purchase_orders WHERE id=$1`, id).Scan(&o.ID, &o.Number, &o.OrderDate, &o.Status, &o.ReceivedAt, &o.PaymentMode, &total, &o.PaymentStatus, &o.PaidAt)
	if err != nil {
		return PurchaseOrder{}, documentErr(err, "purchase order", id)
	}
	if o.Total, err = decimal.NewFromString(total); err != nil {
		return PurchaseOrder{}, shared.Storage("parse purchase order total", err)
	}
	return o, nil
}

func (r *PGDocuments) PaidSalesOrders(ctx context.Context) ([]string, error) {
	return r.ids(ctx, `SELECT id FROM sales_orders WHERE payment_status=$1 AND total > 0 ORDER BY order_date, id`, PaymentStatusReceived)
}

func (r *PGDocuments) ReceivedPurchaseOrders(ctx context.Context) ([]string, error) {
	return r.ids(ctx, `SELECT id FROM purchase_orders WHERE status=$1 AND total > 0 ORDER BY order_date, id`, POStatusReceived)
}

func (r *PGDocuments) PaidPurchaseOrders(ctx context.Context) ([]string, error) {
	return r.ids(ctx, `SELECT id FROM purchase_orders WHERE payment_status=$1 AND total > 0 ORDER BY order_date, id`, PaymentStatusPaid)
}

func (r *PGDocuments) ids(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, shared.Storage("list documents", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, shared.Storage("list documents", err)
	}
	return ids, nil
}

func documentErr(err error, entity, id string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return shared.NotFound(entity, id)
	}
	return shared.Storage("load "+entity, err)
}
