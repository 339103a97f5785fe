package integration

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Handler exposes manual sync triggers.
type Handler struct {
	logger     *slog.Logger
	hooks      *Hooks
	reconciler *Reconciler
}

// NewHandler builds the sync handler. reconciler may be nil.
func NewHandler(logger *slog.Logger, hooks *Hooks, reconciler *Reconciler) *Handler {
	return &Handler{logger: logger, hooks: hooks, reconciler: reconciler}
}

// MountRoutes registers sync endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/accounting/sync", func(r chi.Router) {
		if h.reconciler != nil {
			r.Post("/reconcile", h.reconcile)
		}
		r.Post("/{kind}/{id}", h.sync)
		r.Post("/{kind}/{id}/cancel", h.cancel)
	})
}

type cancelRequest struct {
	Memo string `json:"memo"`
}

func (h *Handler) sync(w http.ResponseWriter, r *http.Request) {
	kind := accounting.SourceType(chi.URLParam(r, "kind"))
	id := chi.URLParam(r, "id")
	applied, err := h.hooksFor(r).Sync(r.Context(), kind, id)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"source_type": kind, "source_id": id, "applied": applied})
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			shared.RespondError(w, h.logger, shared.Validation("body", err.Error()))
			return
		}
	}
	kind := accounting.SourceType(chi.URLParam(r, "kind"))
	id := chi.URLParam(r, "id")
	reversed, err := h.hooksFor(r).Cancel(r.Context(), kind, id, req.Memo)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"source_type": kind, "source_id": id, "reversed": reversed})
}

func (h *Handler) reconcile(w http.ResponseWriter, r *http.Request) {
	summary, err := h.reconciler.Run(r.Context())
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) hooksFor(r *http.Request) *Hooks {
	if actor := internalShared.ActorFromContext(r.Context()); actor != "" {
		return h.hooks.WithActor(actor)
	}
	return h.hooks
}
