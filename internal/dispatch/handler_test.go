package dispatch

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

	"github.com/steelworks-erp/steelworks/internal/platform/httpx"
)

func newTestRouter(repo *memoryRepo) http.Handler {
	svc, _, _ := newTestService(repo)
	r := chi.NewRouter()
	NewHandler(slog.Default(), svc).MountRoutes(r)
	return r
}

func send(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rec
}

func TestHandlerDispatchLifecycle(t *testing.T) {
	router := newTestRouter(seededRepo())

	rec := send(router, http.MethodPost, "/dispatches",
		`{"orderId":1,"dispatchDate":"2024-04-10","transporterId":3,"items":[{"orderItemId":100,"quantityDispatched":"300"}]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created Dispatch
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Len(t, created.Items, 1)
	path := "/dispatches/" + strconv.FormatInt(created.ID, 10)

	rec = send(router, http.MethodPost, "/dispatches",
		`{"orderId":1,"dispatchDate":"2024-04-11","items":[{"orderItemId":100,"quantityDispatched":"250"}]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var problem httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	require.Contains(t, problem.Detail, "order item 100")

	rec = send(router, http.MethodPut, path, `{"items":[{"orderItemId":100,"quantityDispatched":"450"}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = send(router, http.MethodGet, path, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var fetched Dispatch
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fetched))
	require.True(t, dec("450").Equal(fetched.Items[0].QuantityDispatched))

	rec = send(router, http.MethodDelete, path, "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = send(router, http.MethodGet, path, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerDispatchValidation(t *testing.T) {
	router := newTestRouter(seededRepo())

	for name, body := range map[string]string{
		"no items":     `{"orderId":1,"dispatchDate":"2024-04-10","items":[]}`,
		"missing date": `{"orderId":1,"items":[{"orderItemId":100,"quantityDispatched":"1"}]}`,
		"zero qty":     `{"orderId":1,"dispatchDate":"2024-04-10","items":[{"orderItemId":100,"quantityDispatched":"0"}]}`,
		"bad date":     `{"orderId":1,"dispatchDate":"10/04/2024","items":[{"orderItemId":100,"quantityDispatched":"1"}]}`,
	} {
		t.Run(name, func(t *testing.T) {
			rec := send(router, http.MethodPost, "/dispatches", body)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}
