package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/leafyhealth/fulfillment/internal/inventory"
	"github.com/leafyhealth/fulfillment/internal/orders"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, orders.ErrNotFound), errors.Is(err, inventory.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, orders.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, orders.ErrInvalidInput),
		errors.Is(err, orders.ErrInvalidStatus),
		errors.Is(err, orders.ErrNotEnoughOrders),
		errors.Is(err, orders.ErrNothingToFulfill),
		errors.Is(err, inventory.ErrInvalidInput),
		errors.Is(err, inventory.ErrInsufficientStock):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
