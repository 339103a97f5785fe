package integration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// SystemActor is recorded on groups posted without an operator.
const SystemActor = "system"

// Ledger exposes the posting operations required by integrations.
type Ledger interface {
	Posted(ctx context.Context, source accounting.Source) (bool, error)
	PostOnce(ctx context.Context, event accounting.Event, actor string) (accounting.PostingGroup, bool, error)
	ReverseSource(ctx context.Context, source accounting.Source, actor, memo string) (accounting.PostingGroup, error)
}

// RoleResolver maps system account roles to registry accounts.
type RoleResolver interface {
	Resolve(ctx context.Context, role mappings.Role) (accounts.Account, error)
}

// Hooks wires document state transitions into the general ledger. Each sync
// posts at most one primary group per document and event kind.
type Hooks struct {
	ledger    Ledger
	documents DocumentReader
	roles     RoleResolver
	logger    *slog.Logger
	actor     string
}

// NewHooks constructs integration hooks.
func NewHooks(ledger Ledger, documents DocumentReader, roles RoleResolver, logger *slog.Logger) *Hooks {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hooks{ledger: ledger, documents: documents, roles: roles, logger: logger, actor: SystemActor}
}

// WithActor returns a copy of the hooks posting as actor.
func (h *Hooks) WithActor(actor string) *Hooks {
	clone := *h
	if actor = strings.TrimSpace(actor); actor != "" {
		clone.actor = actor
	}
	return &clone
}

// Sync dispatches to the sync operation for kind.
func (h *Hooks) Sync(ctx context.Context, kind accounting.SourceType, id string) (bool, error) {
	switch kind {
	case accounting.SourceSalesOrder:
		return h.SyncFromOrder(ctx, id)
	case accounting.SourcePurchaseOrder:
		return h.SyncFromPurchase(ctx, id)
	case accounting.SourcePurchasePayment:
		return h.SyncFromPurchasePayment(ctx, id)
	default:
		return false, shared.Validation("kind", fmt.Sprintf("unsupported source type %q", kind))
	}
}

// SyncFromOrder posts the receipt of a paid sales order. applied is false
// when the order had already been posted.
func (h *Hooks) SyncFromOrder(ctx context.Context, orderID string) (bool, error) {
	order, err := h.documents.SalesOrder(ctx, orderID)
	if err != nil {
		return false, err
	}
	if !order.Paid() {
		return false, shared.InvalidState("sales order", orderID, fmt.Sprintf("payment status is %q", order.PaymentStatus))
	}
	if !order.Total.IsPositive() {
		h.skipZero(accounting.SourceSalesOrder, orderID)
		return true, nil
	}
	if posted, err := h.posted(ctx, accounting.Source{Type: accounting.SourceSalesOrder, ID: order.ID}); err != nil || posted {
		return false, err
	}
	receipt, err := h.roles.Resolve(ctx, paymentRole(order.PaymentMode))
	if err != nil {
		return false, err
	}
	revenue, err := h.roles.Resolve(ctx, mappings.RoleSalesRevenue)
	if err != nil {
		return false, err
	}
	return h.post(ctx, accounting.SalesPosting{
		OrderID:          order.ID,
		OrderNumber:      order.Number,
		Date:             order.PostingDate(),
		ReceiptAccountID: receipt.ID,
		RevenueAccountID: revenue.ID,
		Amount:           order.Total,
	})
}

// SyncFromPurchase posts goods received against a purchase order.
func (h *Hooks) SyncFromPurchase(ctx context.Context, poID string) (bool, error) {
	po, err := h.documents.PurchaseOrder(ctx, poID)
	if err != nil {
		return false, err
	}
	if !po.Received() {
		return false, shared.InvalidState("purchase order", poID, fmt.Sprintf("status is %q", po.Status))
	}
	if !po.Total.IsPositive() {
		h.skipZero(accounting.SourcePurchaseOrder, poID)
		return true, nil
	}
	if posted, err := h.posted(ctx, accounting.Source{Type: accounting.SourcePurchaseOrder, ID: po.ID}); err != nil || posted {
		return false, err
	}
	inventory, err := h.roles.Resolve(ctx, mappings.RoleInventory)
	if err != nil {
		return false, err
	}
	payable, err := h.roles.Resolve(ctx, mappings.RoleAccountsPayable)
	if err != nil {
		return false, err
	}
	return h.post(ctx, accounting.PurchasePosting{
		PurchaseOrderID:    po.ID,
		PONumber:           po.Number,
		Date:               po.ReceiptDate(),
		InventoryAccountID: inventory.ID,
		PayableAccountID:   payable.ID,
		Amount:             po.Total,
	})
}

// SyncFromPurchasePayment posts the settlement of a paid purchase order.
func (h *Hooks) SyncFromPurchasePayment(ctx context.Context, poID string) (bool, error) {
	po, err := h.documents.PurchaseOrder(ctx, poID)
	if err != nil {
		return false, err
	}
	if !po.Paid() {
		return false, shared.InvalidState("purchase order", poID, fmt.Sprintf("payment status is %q", po.PaymentStatus))
	}
	if !po.Total.IsPositive() {
		h.skipZero(accounting.SourcePurchasePayment, poID)
		return true, nil
	}
	if posted, err := h.posted(ctx, accounting.Source{Type: accounting.SourcePurchasePayment, ID: po.ID}); err != nil || posted {
		return false, err
	}
	payable, err := h.roles.Resolve(ctx, mappings.RoleAccountsPayable)
	if err != nil {
		return false, err
	}
	payment, err := h.roles.Resolve(ctx, paymentRole(po.PaymentMode))
	if err != nil {
		return false, err
	}
	return h.post(ctx, accounting.PurchasePaymentPosting{
		PurchaseOrderID:  po.ID,
		PONumber:         po.Number,
		Date:             po.PaymentDate(),
		PayableAccountID: payable.ID,
		PaymentAccountID: payment.ID,
		Amount:           po.Total,
	})
}

// Cancel reverses the primary group posted for a document, typically when
// the document is cancelled. reversed is false when nothing was posted.
func (h *Hooks) Cancel(ctx context.Context, kind accounting.SourceType, id, memo string) (bool, error) {
	switch kind {
	case accounting.SourceSalesOrder, accounting.SourcePurchaseOrder, accounting.SourcePurchasePayment:
	default:
		return false, shared.Validation("kind", fmt.Sprintf("unsupported source type %q", kind))
	}
	reversal, err := h.ledger.ReverseSource(ctx, accounting.Source{Type: kind, ID: id}, h.actor, memo)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	h.logger.Info("document posting reversed",
		slog.String("source_type", string(kind)),
		slog.String("source_id", id),
		slog.String("reversal_id", reversal.ID))
	return true, nil
}

// posted short-circuits documents that already carry a primary group, so a
// later role change cannot fail a re-sync.
func (h *Hooks) posted(ctx context.Context, source accounting.Source) (bool, error) {
	posted, err := h.ledger.Posted(ctx, source)
	if err != nil || !posted {
		return false, err
	}
	h.logger.Debug("document already posted",
		slog.String("source_type", string(source.Type)),
		slog.String("source_id", source.ID))
	return true, nil
}

func (h *Hooks) post(ctx context.Context, event accounting.Event) (bool, error) {
	group, applied, err := h.ledger.PostOnce(ctx, event, h.actor)
	if err != nil {
		return false, err
	}
	source := event.Source()
	if !applied {
		h.logger.Debug("document already posted",
			slog.String("source_type", string(source.Type)),
			slog.String("source_id", source.ID),
			slog.String("group_id", group.ID))
		return false, nil
	}
	h.logger.Info("document posted",
		slog.String("source_type", string(source.Type)),
		slog.String("source_id", source.ID),
		slog.String("group_id", group.ID))
	return true, nil
}

func (h *Hooks) skipZero(kind accounting.SourceType, id string) {
	h.logger.Debug("zero value document, nothing to post",
		slog.String("source_type", string(kind)),
		slog.String("source_id", id))
}
