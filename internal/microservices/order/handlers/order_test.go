package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"restaurant-orders/internal/common/httpx"
	"restaurant-orders/internal/domain"
	"restaurant-orders/internal/intake"
	"restaurant-orders/internal/microservices/order/repository"
	"restaurant-orders/internal/microservices/order/service"
)

const sodaBody = `{"restaurantID":"r1","menuID":"m1","orderItems":[{"productID":"p1","name":"Soda","quantity":2,"unitValue":1.50}],"total":3.00}`

func newServer(t *testing.T, limiter *httpx.RateLimiter) (*httptest.Server, *intake.MemoryQueue) {
	t.Helper()
	q := intake.NewMemoryQueue()
	svc := service.New(repository.NewInMemory("test"), q, nil, false, zap.NewNop())
	mux := http.NewServeMux()
	Register(mux, New(svc), limiter)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, q
}

func do(t *testing.T, method, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), method, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	if resp.StatusCode != http.StatusNoContent {
		_ = json.NewDecoder(resp.Body).Decode(&out)
	}
	return resp, out
}

func TestAdmission(t *testing.T) {
	srv, q := newServer(t, nil)

	resp, body := do(t, http.MethodPost, srv.URL+"/restaurants/r1/orders", sodaBody)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, float64(1), body["orderNumber"])
	assert.Equal(t, "pending", body["status"])
	assert.Equal(t, float64(3), body["total"])

	resp, body = do(t, http.MethodPost, srv.URL+"/restaurants/r1/orders", sodaBody)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, float64(2), body["orderNumber"])
	assert.Equal(t, 2, q.Len())
}

func TestAdmission_Rejections(t *testing.T) {
	srv, q := newServer(t, nil)

	cases := []struct {
		name string
		path string
		body string
	}{
		{"bad json", "/restaurants/r1/orders", `{`},
		{"total mismatch", "/restaurants/r1/orders", strings.Replace(sodaBody, `"total":3.00`, `"total":4.00`, 1)},
		{"tenant mismatch", "/restaurants/r2/orders", sodaBody},
		{"no items", "/restaurants/r1/orders", `{"restaurantID":"r1","menuID":"m1","orderItems":[],"total":1}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, _ := do(t, http.MethodPost, srv.URL+tc.path, tc.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
	assert.Zero(t, q.Len())
}

func TestStatusPatch(t *testing.T) {
	srv, _ := newServer(t, nil)

	_, created := do(t, http.MethodPost, srv.URL+"/restaurants/r1/orders", sodaBody)
	id := created["orderID"].(string)
	url := srv.URL + "/restaurants/r1/orders/" + id + "/status"

	resp, _ := do(t, http.MethodPatch, url, `{"restaurantID":"r1","menuID":"m1","orderID":"`+id+`","status":"pending"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = do(t, http.MethodPatch, url, `{"restaurantID":"r1","orderID":"`+id+`","status":"ready"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := do(t, http.MethodPatch, url, `{"restaurantID":"r1","menuID":"m1","orderID":"`+id+`","status":"ready"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ready", body["status"])

	resp, _ = do(t, http.MethodPatch, srv.URL+"/restaurants/r1/orders/nope/status",
		`{"restaurantID":"r1","menuID":"m1","orderID":"nope","status":"ready"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = do(t, http.MethodGet, srv.URL+"/restaurants/r1/orders/"+id+"/history", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["history"], 2)
}

func TestReadReplaceDelete(t *testing.T) {
	srv, _ := newServer(t, nil)

	_, created := do(t, http.MethodPost, srv.URL+"/restaurants/r1/orders", sodaBody)
	id := created["orderID"].(string)
	url := srv.URL + "/restaurants/r1/orders/" + id

	resp, body := do(t, http.MethodGet, url, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, id, body["orderID"])

	replace := `{"restaurantID":"r1","orderID":"` + id + `","menuID":"m1","status":"waiting",` +
		`"orderItems":[{"productID":"p1","name":"Soda","quantity":4,"value":1.50}],"total":6}`
	resp, body = do(t, http.MethodPut, url, replace)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "waiting", body["status"])
	assert.Equal(t, float64(1), body["orderNumber"])

	resp, _ = do(t, http.MethodDelete, url, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = do(t, http.MethodDelete, url, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = do(t, http.MethodGet, url, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListOrders(t *testing.T) {
	srv, _ := newServer(t, nil)
	do(t, http.MethodPost, srv.URL+"/restaurants/r1/orders", sodaBody)
	do(t, http.MethodPost, srv.URL+"/restaurants/r1/orders", sodaBody)

	resp, err := http.Get(srv.URL + "/restaurants/r1/orders")
	require.NoError(t, err)
	defer resp.Body.Close()

	var orders []domain.Order
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&orders))
	require.Len(t, orders, 2)
	assert.Equal(t, int64(1), orders[0].OrderNumber)
	assert.Equal(t, int64(2), orders[1].OrderNumber)
}

func TestAdmission_RateLimited(t *testing.T) {
	srv, _ := newServer(t, httpx.NewRateLimiter(0.001, 1))

	resp, _ := do(t, http.MethodPost, srv.URL+"/restaurants/r1/orders", sodaBody)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	resp, _ = do(t, http.MethodPost, srv.URL+"/restaurants/r1/orders", sodaBody)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	other := strings.Replace(sodaBody, `"r1"`, `"r2"`, 1)
	resp, _ = do(t, http.MethodPost, srv.URL+"/restaurants/r2/orders", other)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}
