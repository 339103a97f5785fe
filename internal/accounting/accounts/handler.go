package accounts

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers the chart of accounts endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/accounting/accounts", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Get("/{id}", h.Show)
		r.Post("/{id}/deactivate", h.Deactivate)
		r.Post("/{id}/activate", h.Activate)
	})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	list := h.service.ListActive
	if r.URL.Query().Get("all") == "true" {
		list = h.service.List
	}
	accounts, err := list(r.Context())
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	if accounts == nil {
		accounts = []Account{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"accounts": accounts})
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		shared.RespondError(w, h.logger, shared.Validation("body", err.Error()))
		return
	}
	account, err := h.service.Create(r.Context(), in)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	h.logger.Info("account created", slog.Int64("id", account.ID), slog.String("code", account.Code))
	httpx.JSON(w, http.StatusCreated, account)
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, ok := h.accountID(w, r)
	if !ok {
		return
	}
	account, err := h.service.Get(r.Context(), id)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
}

func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, h.service.Deactivate)
}

func (h *Handler) Activate(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, h.service.Activate)
}

func (h *Handler) toggle(w http.ResponseWriter, r *http.Request, fn func(context.Context, int64) (Account, error)) {
	id, ok := h.accountID(w, r)
	if !ok {
		return
	}
	account, err := fn(r.Context(), id)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
}

func (h *Handler) accountID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		shared.RespondError(w, h.logger, shared.Validation("id", "must be a positive integer"))
		return 0, false
	}
	return id, true
}
