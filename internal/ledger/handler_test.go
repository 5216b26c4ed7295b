package ledger

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/steelworks-erp/steelworks/internal/platform/httpx"
)

func newTestRouter(store *memoryStore) http.Handler {
	r := chi.NewRouter()
	h := NewHandler(slog.Default(), NewService(store, New(nil), nil, nil))
	r.Route("/stock-reports", h.MountRoutes)
	return r
}

func TestHandlerCreatesManualEntry(t *testing.T) {
	store := newMemoryStore(4)
	router := newTestRouter(store)

	body := `{"transactionDate":"2024-04-01","transactionType":"RECEIPT","itemId":4,"quantity":"10","rate":"12.5","remarks":"stock count"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/stock-reports/stock-transactions", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var got Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.True(t, dec("125").Equal(got.Amount))
	require.Equal(t, "stock count", got.Remarks)
}

func TestHandlerRejectsBadManualEntry(t *testing.T) {
	router := newTestRouter(newMemoryStore(4))

	cases := map[string]string{
		"bad type":      `{"transactionDate":"2024-04-01","transactionType":"ADJUST","itemId":4,"quantity":"1","rate":"1"}`,
		"zero rate":     `{"transactionDate":"2024-04-01","transactionType":"RECEIPT","itemId":4,"quantity":"1","rate":"0"}`,
		"bad date":      `{"transactionDate":"01-04-2024","transactionType":"RECEIPT","itemId":4,"quantity":"1","rate":"1"}`,
		"missing item":  `{"transactionDate":"2024-04-01","transactionType":"RECEIPT","quantity":"1","rate":"1"}`,
		"unknown field": `{"transactionDate":"2024-04-01","transactionType":"RECEIPT","itemId":4,"quantity":"1","rate":"1","warehouse":3}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/stock-reports/stock-transactions", strings.NewReader(body)))
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			var problem httpx.ProblemDetail
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
			require.Equal(t, "Validation Failed", problem.Title)
		})
	}
}

func TestHandlerStockCardValidatesQuery(t *testing.T) {
	router := newTestRouter(newMemoryStore(4))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stock-reports/stock-ledger?itemId=4&startDate=2024-04-01", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stock-reports/stock-ledger?itemId=4&startDate=2024-04-01&endDate=2024-04-30", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}
