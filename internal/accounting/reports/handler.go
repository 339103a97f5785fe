package reports

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

// Handler exposes ledger and report endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	now     func() time.Time
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, now: time.Now}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/accounting/ledger/{accountID}", h.ledger)
	r.Route("/accounting/reports", func(r chi.Router) {
		r.Get("/trial-balance", h.trialBalance)
		r.Get("/pl", h.profitAndLoss)
		r.Get("/bs", h.balanceSheet)
	})
}

func (h *Handler) ledger(w http.ResponseWriter, r *http.Request) {
	accountID, err := strconv.ParseInt(chi.URLParam(r, "accountID"), 10, 64)
	if err != nil || accountID <= 0 {
		shared.RespondError(w, h.logger, shared.Validation("account_id", "must be a positive integer"))
		return
	}
	today := h.now()
	from, ok := h.dateParam(w, r, "from", accounting.FinancialYearStart(today))
	if !ok {
		return
	}
	to, ok := h.dateParam(w, r, "to", today)
	if !ok {
		return
	}
	ledger, err := h.service.Ledger(r.Context(), accountID, from, to)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ledger)
}

func (h *Handler) trialBalance(w http.ResponseWriter, r *http.Request) {
	asOf, ok := h.dateParam(w, r, "as_of", h.now())
	if !ok {
		return
	}
	tb, err := h.service.TrialBalance(r.Context(), asOf)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, struct {
		TrialBalance
		Balanced bool `json:"balanced"`
	}{tb, tb.Balanced()})
}

func (h *Handler) profitAndLoss(w http.ResponseWriter, r *http.Request) {
	today := h.now()
	from, ok := h.dateParam(w, r, "from", accounting.FinancialYearStart(today))
	if !ok {
		return
	}
	to, ok := h.dateParam(w, r, "to", today)
	if !ok {
		return
	}
	pl, err := h.service.ProfitAndLoss(r.Context(), from, to)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, pl)
}

func (h *Handler) balanceSheet(w http.ResponseWriter, r *http.Request) {
	asOf, ok := h.dateParam(w, r, "as_of", h.now())
	if !ok {
		return
	}
	bs, err := h.service.BalanceSheet(r.Context(), asOf)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, bs)
}

func (h *Handler) dateParam(w http.ResponseWriter, r *http.Request, name string, fallback time.Time) (time.Time, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, true
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		shared.RespondError(w, h.logger, shared.Validation(name, "expected YYYY-MM-DD"))
		return time.Time{}, false
	}
	return t, true
}
