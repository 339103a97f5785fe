package accounting_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

type keyStore struct {
	keys map[string]bool
}

func (k *keyStore) CheckAndInsert(ctx context.Context, key, module string) error {
	if k.keys[module+key] {
		return internalShared.ErrIdempotencyConflict
	}
	k.keys[module+key] = true
	return nil
}

func (k *keyStore) Delete(ctx context.Context, key, module string) error {
	delete(k.keys, module+key)
	return nil
}

func newTestRouter(f *fixture, keys accounting.IdempotencyPort) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(internalShared.ContextWithActor(req.Context(), "clerk")))
		})
	})
	accounting.NewHandler(slog.Default(), f.svc, keys).MountRoutes(r)
	return r
}

func TestHandlerPostAndReverse(t *testing.T) {
	f := newFixture(t)
	keys := &keyStore{keys: map[string]bool{}}
	router := newTestRouter(f, keys)

	body := `{"date":"2024-05-01","description":"Float","debit_account_id":1,"credit_account_id":3,"amount":"75.25"}`
	req := httptest.NewRequest(http.MethodPost, "/accounting/journals", strings.NewReader(body))
	req.Header.Set("Idempotency-Key", "abc")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	require.Equal(t, "JV00000001", created["group_id"])

	replay := httptest.NewRequest(http.MethodPost, "/accounting/journals", strings.NewReader(body))
	replay.Header.Set("Idempotency-Key", "abc")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, replay)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Len(t, f.repo.Groups(), 1)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/accounting/journals/JV00000001/reverse", nil))
	require.Equal(t, http.StatusCreated, rec.Code)
	var reversal accounting.PostingGroup
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&reversal))
	require.Equal(t, "JV00000001", reversal.ReversalOf)
	require.Equal(t, "clerk", reversal.CreatedBy)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/accounting/journals/JV00000001/reverse", nil))
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandlerMapsErrors(t *testing.T) {
	f := newFixture(t)
	keys := &keyStore{keys: map[string]bool{}}
	router := newTestRouter(f, keys)

	body := `{"date":"2024-05-01","description":"Float","debit_account_id":1,"credit_account_id":1,"amount":"10"}`
	req := httptest.NewRequest(http.MethodPost, "/accounting/journals", strings.NewReader(body))
	req.Header.Set("Idempotency-Key", "same-accounts")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	require.Empty(t, keys.keys, "failed posting releases its idempotency key")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/accounting/journals",
		strings.NewReader(`{"date":"01/05/2024","description":"x","debit_account_id":1,"credit_account_id":3,"amount":"1"}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/accounting/journals/JV00000404", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
