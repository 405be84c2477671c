package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"restaurant-orders/internal/domain"
)

func WriteJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(code)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// WriteProblem writes a simplified RFC 7807 body.
func WriteProblem(w http.ResponseWriter, code int, typ, detail string) {
	WriteJSON(w, code, map[string]any{
		"type":   typ,
		"title":  http.StatusText(code),
		"status": code,
		"detail": detail,
	})
}

// WriteError maps domain error kinds to HTTP status codes.
func WriteError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		WriteProblem(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, domain.ErrConflict):
		WriteProblem(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		WriteProblem(w, http.StatusNotFound, "not_found", err.Error())
	default:
		WriteProblem(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
