package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"restaurant-orders/internal/common/httpx"
	"restaurant-orders/internal/domain"
	"restaurant-orders/internal/microservices/order/service"
)

type OrderHandler struct {
	service service.OrderServiceInterface
}

func NewOrderHandler(s service.OrderServiceInterface) *OrderHandler {
	return &OrderHandler{service: s}
}

func (oh *OrderHandler) AddOrder(w http.ResponseWriter, r *http.Request) {
	var req domain.Order
	if !decode(w, r, &req) {
		return
	}

	order, err := oh.service.AddOrder(r.Context(), r.PathValue("restaurantID"), req)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, order)
}

func (oh *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := oh.service.ListOrders(r.Context(), r.PathValue("restaurantID"))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orders)
}

func (oh *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := oh.service.GetOrder(r.Context(), r.PathValue("restaurantID"), r.PathValue("orderID"))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, order)
}

func (oh *OrderHandler) ReplaceOrder(w http.ResponseWriter, r *http.Request) {
	var req domain.Order
	if !decode(w, r, &req) {
		return
	}

	order, err := oh.service.ReplaceOrder(r.Context(), r.PathValue("restaurantID"), r.PathValue("orderID"), req)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, order)
}

func (oh *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req domain.StatusPatch
	if !decode(w, r, &req) {
		return
	}

	order, err := oh.service.UpdateStatus(r.Context(), r.PathValue("restaurantID"), r.PathValue("orderID"), req)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, order)
}

func (oh *OrderHandler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := oh.service.DeleteOrder(r.Context(), r.PathValue("restaurantID"), r.PathValue("orderID")); err != nil {
		httpx.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (oh *OrderHandler) History(w http.ResponseWriter, r *http.Request) {
	limit := atoiDefault(r.URL.Query().Get("limit"), 50)
	offset := atoiDefault(r.URL.Query().Get("offset"), 0)

	orderID := r.PathValue("orderID")
	changes, err := oh.service.OrderHistory(r.Context(), r.PathValue("restaurantID"), orderID, limit, offset)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"orderID": orderID, "history": changes})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpx.WriteProblem(w, http.StatusBadRequest, "invalid_json", "invalid JSON body")
		return false
	}
	return true
}

func atoiDefault(s string, d int) int {
	if s == "" {
		return d
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return d
	}
	return n
}
