package orders

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(repo *memoryRepo) http.Handler {
	svc, _, _ := newTestService(repo)
	r := chi.NewRouter()
	r.Route("/api/orders", NewHandler(nil, svc).MountRoutes)
	return r
}

func doRequest(h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerCreateAndGet(t *testing.T) {
	repo := newMemoryRepo()
	repo.addProduct(1, 600, 10, 2)
	repo.addCustomer(7, 0)
	h := newTestRouter(repo)

	rec := doRequest(h, http.MethodPost, "/api/orders",
		`{"customer_id":7,"channel":"internal","lines":[{"product_id":1,"quantity":4}]}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, 2400.0, created.Total)
	assert.NotEmpty(t, rec.Header().Get("Location"))

	rec = doRequest(h, http.MethodGet, rec.Header().Get("Location"), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var fetched Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fetched))
	assert.Equal(t, created.OrderNo, fetched.OrderNo)

	rec = doRequest(h, http.MethodGet, "/api/orders?customer_id=7", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list ListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list.Orders, 1)
}

func TestHandlerCreateReportsShortages(t *testing.T) {
	repo := newMemoryRepo()
	repo.addProduct(1, 10, 1, 0)
	repo.addCustomer(7, 0)
	h := newTestRouter(repo)

	rec := doRequest(h, http.MethodPost, "/api/orders",
		`{"customer_id":7,"channel":"internal","lines":[{"product_id":1,"quantity":4}]}`, nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	var body struct {
		Extensions struct {
			Shortages []Shortage `json:"shortages"`
		} `json:"extensions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []Shortage{{ProductID: 1, Requested: 4, Available: 1}}, body.Extensions.Shortages)
}

func TestHandlerRejectsBadInput(t *testing.T) {
	repo := newMemoryRepo()
	repo.addProduct(1, 10, 5, 0)
	repo.addCustomer(7, 0)
	h := newTestRouter(repo)

	cases := []struct {
		name    string
		method  string
		path    string
		body    string
		headers map[string]string
		status  int
	}{
		{"unknown channel", http.MethodPost, "/api/orders", `{"customer_id":7,"channel":"pos","lines":[{"product_id":1,"quantity":1}]}`, nil, http.StatusBadRequest},
		{"no lines", http.MethodPost, "/api/orders", `{"customer_id":7,"channel":"internal","lines":[]}`, nil, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/api/orders", `{"customer_id":7,"channel":"internal","lines":[{"product_id":1,"quantity":1}],"x":1}`, nil, http.StatusBadRequest},
		{"bad idempotency key", http.MethodPost, "/api/orders", `{"customer_id":7,"channel":"internal","lines":[{"product_id":1,"quantity":1}]}`, map[string]string{IdempotencyHeader: "abc"}, http.StatusBadRequest},
		{"unknown customer", http.MethodPost, "/api/orders", `{"customer_id":8,"channel":"internal","lines":[{"product_id":1,"quantity":1}]}`, nil, http.StatusNotFound},
		{"bad id", http.MethodGet, "/api/orders/abc", "", nil, http.StatusBadRequest},
		{"missing order", http.MethodGet, "/api/orders/404", "", nil, http.StatusNotFound},
		{"bad status", http.MethodPatch, "/api/orders/1/status", `{"status":"lost"}`, nil, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(h, tc.method, tc.path, tc.body, tc.headers)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
		})
	}
	assert.Equal(t, int64(5), repo.quantity(1))
}

func TestHandlerIdempotentCreate(t *testing.T) {
	repo := newMemoryRepo()
	repo.addProduct(1, 10, 5, 0)
	repo.addCustomer(7, 0)
	h := newTestRouter(repo)
	headers := map[string]string{IdempotencyHeader: "0b5cf3a4-8d5e-4c8e-9d7e-3a2f5c1e9b10"}
	body := `{"customer_id":7,"channel":"internal","lines":[{"product_id":1,"quantity":2}]}`

	require.Equal(t, http.StatusCreated, doRequest(h, http.MethodPost, "/api/orders", body, headers).Code)
	assert.Equal(t, http.StatusConflict, doRequest(h, http.MethodPost, "/api/orders", body, headers).Code)
	assert.Equal(t, int64(3), repo.quantity(1))
}

func TestHandlerStatusAndCancel(t *testing.T) {
	repo := newMemoryRepo()
	repo.addProduct(1, 10, 5, 0)
	repo.addCustomer(7, 0)
	h := newTestRouter(repo)

	rec := doRequest(h, http.MethodPost, "/api/orders",
		`{"customer_id":7,"channel":"internal","lines":[{"product_id":1,"quantity":2}]}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	loc := rec.Header().Get("Location")

	rec = doRequest(h, http.MethodPatch, loc+"/status", `{"status":"completed","paid_amount":70}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, StatusCompleted, updated.Status)
	assert.Equal(t, 70.0, updated.PaidAmount)

	rec = doRequest(h, http.MethodDelete, loc, "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res CancelResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, int64(2), res.RestoredQuantity)
	assert.Equal(t, int64(5), repo.quantity(1))

	rec = doRequest(h, http.MethodPost, loc+"/cancel", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
