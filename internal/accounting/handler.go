package accounting

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

const (
	dateLayout        = "2006-01-02"
	idempotencyHeader = "Idempotency-Key"
	idempotencyModule = "accounting.journals"
)

// IdempotencyPort claims client supplied request keys.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key, module string) error
}

// Handler wires journal endpoints.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	idempotency IdempotencyPort
}

// NewHandler builds a Handler instance. idempotency may be nil.
func NewHandler(logger *slog.Logger, service *Service, idempotency IdempotencyPort) *Handler {
	return &Handler{logger: logger, service: service, idempotency: idempotency}
}

// MountRoutes registers HTTP routes for the journal module.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/accounting/journals", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Get("/{id}", h.show)
		r.Post("/{id}/reverse", h.reverse)
	})
}

type manualEntryRequest struct {
	Date            string          `json:"date"`
	Description     string          `json:"description"`
	Remarks         string          `json:"remarks"`
	DebitAccountID  int64           `json:"debit_account_id"`
	CreditAccountID int64           `json:"credit_account_id"`
	Amount          decimal.Decimal `json:"amount"`
}

type reverseRequest struct {
	Memo string `json:"memo"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req manualEntryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		shared.RespondError(w, h.logger, shared.Validation("body", err.Error()))
		return
	}
	date, err := time.Parse(dateLayout, strings.TrimSpace(req.Date))
	if err != nil {
		shared.RespondError(w, h.logger, shared.Validation("date", "expected YYYY-MM-DD"))
		return
	}

	key := strings.TrimSpace(r.Header.Get(idempotencyHeader))
	if key != "" && h.idempotency != nil {
		if err := h.idempotency.CheckAndInsert(r.Context(), key, idempotencyModule); err != nil {
			if errors.Is(err, internalShared.ErrIdempotencyConflict) {
				httpx.Problem(w, http.StatusConflict, "Duplicate", "request already processed")
				return
			}
			shared.RespondError(w, h.logger, err)
			return
		}
	}

	id, err := h.service.Post(r.Context(), ManualEntry{
		Date:            date,
		Description:     req.Description,
		Remarks:         req.Remarks,
		DebitAccountID:  req.DebitAccountID,
		CreditAccountID: req.CreditAccountID,
		Amount:          req.Amount,
	}, internalShared.ActorFromContext(r.Context()))
	if err != nil {
		if key != "" && h.idempotency != nil {
			if derr := h.idempotency.Delete(context.WithoutCancel(r.Context()), key, idempotencyModule); derr != nil {
				h.logger.Warn("release idempotency key", slog.String("key", key), slog.Any("error", derr))
			}
		}
		shared.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]string{"group_id": id})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	group, err := h.service.Group(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, group)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{SourceType: SourceType(q.Get("source_type"))}
	var err error
	if filter.From, err = parseOptionalDate(q.Get("from")); err != nil {
		shared.RespondError(w, h.logger, shared.Validation("from", "expected YYYY-MM-DD"))
		return
	}
	if filter.To, err = parseOptionalDate(q.Get("to")); err != nil {
		shared.RespondError(w, h.logger, shared.Validation("to", "expected YYYY-MM-DD"))
		return
	}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	groups, err := h.service.ListGroups(r.Context(), filter)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	if groups == nil {
		groups = []PostingGroup{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"groups": groups})
}

func (h *Handler) reverse(w http.ResponseWriter, r *http.Request) {
	var req reverseRequest
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			shared.RespondError(w, h.logger, shared.Validation("body", err.Error()))
			return
		}
	}
	reversal, err := h.service.Reverse(r.Context(), ReverseInput{
		GroupID: chi.URLParam(r, "id"),
		Actor:   internalShared.ActorFromContext(r.Context()),
		Memo:    req.Memo,
	})
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, reversal)
}

func parseOptionalDate(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(dateLayout, v)
}
