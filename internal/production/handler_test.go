package production

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func newTestRouter(repo *memoryRepo, rates RatePolicy) http.Handler {
	r := chi.NewRouter()
	NewHandler(slog.Default(), newTestService(repo, rates)).MountRoutes(r)
	return r
}

func serve(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rec
}

func TestHandlerProductionEvents(t *testing.T) {
	repo := newMemoryRepo()
	router := newTestRouter(repo, RatePolicy{HeatTreatmentDefault: decPtr("70")})

	rec := serve(router, http.MethodPost, "/production/grns",
		`{"supplierId":5,"grnDate":"2024-04-01","invoiceNo":"A-9","lines":[{"itemId":1,"quantity":"100","rate":"30"}]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = serve(router, http.MethodPost, "/production/meltings",
		`{"meltingDate":"2024-04-02","heatNumber":"H-7","consumptions":[{"itemId":1,"quantity":"60"}]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var m Melting
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	require.Equal(t, RateFromLatestReceipt, m.Issues[0].RateSource)

	rec = serve(router, http.MethodPost, "/production/heat-treatments",
		`{"treatmentDate":"2024-04-03","furnaceNumber":"F1","itemId":4,"bagsProduced":3}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var ht HeatTreatment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ht))
	require.True(t, dec("75").Equal(ht.Receipt.Quantity))

	rec = serve(router, http.MethodDelete, "/production/meltings/"+strconv.FormatInt(m.ID, 10), "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = serve(router, http.MethodDelete, "/production/heat-treatments/"+strconv.FormatInt(ht.ID, 10), "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = serve(router, http.MethodDelete, "/production/grns/999", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerMeltingWithoutRateIsRejected(t *testing.T) {
	router := newTestRouter(newMemoryRepo(), RatePolicy{})

	rec := serve(router, http.MethodPost, "/production/meltings",
		`{"meltingDate":"2024-04-02","heatNumber":"H-8","consumptions":[{"itemId":2,"quantity":"5"}]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "no rate available")

	rec = serve(router, http.MethodPost, "/production/meltings",
		`{"meltingDate":"2024-04-02","consumptions":[{"itemId":2,"quantity":"5"}]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
