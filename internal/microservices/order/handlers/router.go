package handlers

import (
	"net/http"

	"restaurant-orders/internal/common/httpx"
)

// Register mounts the order routes. Admission goes through limiter when one is given.
func Register(mux *http.ServeMux, h *Handler, limiter *httpx.RateLimiter) {
	var admit http.Handler = http.HandlerFunc(h.OrderHandler.AddOrder)
	if limiter != nil {
		admit = limiter.Wrap(admit)
	}
	mux.Handle("POST /restaurants/{restaurantID}/orders", admit)
	mux.HandleFunc("GET /restaurants/{restaurantID}/orders", h.OrderHandler.ListOrders)
	mux.HandleFunc("GET /restaurants/{restaurantID}/orders/{orderID}", h.OrderHandler.GetOrder)
	mux.HandleFunc("PUT /restaurants/{restaurantID}/orders/{orderID}", h.OrderHandler.ReplaceOrder)
	mux.HandleFunc("DELETE /restaurants/{restaurantID}/orders/{orderID}", h.OrderHandler.DeleteOrder)
	mux.HandleFunc("PATCH /restaurants/{restaurantID}/orders/{orderID}/status", h.OrderHandler.UpdateStatus)
	mux.HandleFunc("GET /restaurants/{restaurantID}/orders/{orderID}/history", h.OrderHandler.History)
}
