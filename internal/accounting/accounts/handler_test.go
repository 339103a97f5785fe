package accounts

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func TestHandlerCreateAndDeactivate(t *testing.T) {
	r := chi.NewRouter()
	NewHandler(slog.Default(), NewService(newMemoryRepo())).MountRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/accounting/accounts",
		strings.NewReader(`{"code":"1000","name":"Cash in Hand","type":"ASSET"}`)))
	require.Equal(t, http.StatusCreated, rec.Code)
	var created Account
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	require.Equal(t, NormalDebit, created.NormalBalance)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/accounting/accounts",
		strings.NewReader(`{"code":"4000","name":"Sales Revenue","type":"REVENUE","normal_balance":"DEBIT"}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/accounting/accounts/1/deactivate", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/accounting/accounts", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Accounts []Account `json:"accounts"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&listed))
	require.Empty(t, listed.Accounts)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/accounting/accounts/1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/accounting/accounts/abc", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
