package shared

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

// RespondError writes err as a problem response, translating ledger error
// kinds to their HTTP classes. Unclassified failures are logged.
func RespondError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var class error
	switch {
	case errors.Is(err, ErrValidation):
		class = httpx.ErrValidation
	case errors.Is(err, ErrConfiguration):
		class = httpx.ErrMisconfigured
	case errors.Is(err, ErrNotFound):
		class = httpx.ErrNotFound
	case errors.Is(err, ErrSourceConflict):
		class = httpx.ErrDuplicate
	case errors.Is(err, ErrInvalidState):
		class = httpx.ErrConflict
	}
	if class == nil {
		if logger != nil {
			logger.Error("ledger request failed", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.RespondError(w, fmt.Errorf("%w: %w", class, err))
}
