package app

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	_ "github.com/odyssey-erp/odyssey-ledger/testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("LEDGER_SYNC_LOCK_TTL", "45s")
	t.Setenv("LOG_LEVEL", "debug")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.AppAddr)
	require.Equal(t, 45*time.Second, cfg.LedgerSyncLockTTL)
	require.Equal(t, "*/15 * * * *", cfg.LedgerReconcileCron)
	require.Equal(t, ":9091", cfg.WorkerMetricsAddr)
	require.Equal(t, slog.LevelDebug, parseLevel(cfg))
	require.False(t, cfg.IsProduction())
}

func TestActorMiddleware(t *testing.T) {
	var seen string
	h := ActorMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = shared.ActorFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/accounting/journals", nil)
	req.Header.Set(ActorHeader, " alice ")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "alice", seen)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/accounting/journals", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	seen = "unset"
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/accounting/journals", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Empty(t, seen)
}

func TestRouterHealth(t *testing.T) {
	router := NewRouter(RouterParams{Logger: slog.Default(), Config: &Config{}})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "ok")
}

func TestTestModeRefresh(t *testing.T) {
	require.True(t, InTestMode())
	// Registered before Setenv so it runs after the variable is restored.
	t.Cleanup(RefreshTestMode)
	t.Setenv("ODYSSEY_TEST_MODE", "0")
	RefreshTestMode()
	require.False(t, InTestMode())
}
