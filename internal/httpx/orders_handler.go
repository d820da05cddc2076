package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/leafyhealth/fulfillment/internal/orders"
)

type OrdersHandler struct {
	Svc *orders.Service
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Post("/orders", h.createOrder)
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/orders/{id}/status", h.getOrderStatus)
	r.Get("/orders/status/{status}", h.listByStatus)
	r.Get("/orders/customer/{customerID}", h.listByCustomer)
	r.Put("/orders/{id}/status", h.updateStatus)
	r.Put("/orders/{id}/payment", h.updatePayment)
	r.Post("/orders/bundle-delivery", h.bundleDelivery)
	r.Post("/orders/retry-failed", h.retryFailed)
	r.Put("/orders/{id}/optimize-routing", h.optimizeRouting)
	r.Post("/orders/{id}/partial-fulfillment", h.partialFulfillment)
}

func reqCtx(r *http.Request, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), d)
}

func actor(r *http.Request) string {
	if v := r.Header.Get("X-User-Id"); v != "" {
		return v
	}
	return "api"
}

func trace(r *http.Request) string { return r.Header.Get("X-Request-Id") }

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var in orders.CreateOrderInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	ctx, cancel := reqCtx(r, 5*time.Second)
	defer cancel()

	res, err := h.Svc.Create(ctx, in, actor(r), trace(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	code := http.StatusCreated
	if res.Idempotent {
		code = http.StatusOK
	}
	writeJSON(w, code, res)
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := reqCtx(r, 3*time.Second)
	defer cancel()
	out, err := h.Svc.List(ctx, 100)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := reqCtx(r, 3*time.Second)
	defer cancel()
	agg, err := h.Svc.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agg)
}

// getOrderStatus serves the lightweight status document, Redis-first.
func (h *OrdersHandler) getOrderStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := reqCtx(r, 3*time.Second)
	defer cancel()

	id := chi.URLParam(r, "id")
	if body, ok := h.Svc.CachedStatus(ctx, id); ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(body))
		return
	}
	agg, err := h.Svc.Get(ctx, id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         agg.Order.Status,
		"payment_status": agg.Order.PaymentStatus,
	})
}

func (h *OrdersHandler) listByStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := reqCtx(r, 3*time.Second)
	defer cancel()
	out, err := h.Svc.ListByStatus(ctx, orders.Status(chi.URLParam(r, "status")), 100)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *OrdersHandler) listByCustomer(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := reqCtx(r, 3*time.Second)
	defer cancel()
	out, err := h.Svc.ListByCustomer(ctx, chi.URLParam(r, "customerID"), 100)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type updateStatusReq struct {
	Status orders.Status `json:"status"`
	Reason string        `json:"reason"`
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	ctx, cancel := reqCtx(r, 5*time.Second)
	defer cancel()

	o, err := h.Svc.UpdateStatus(ctx, chi.URLParam(r, "id"), req.Status, req.Reason, actor(r), trace(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

type updatePaymentReq struct {
	PaymentStatus orders.PaymentStatus `json:"payment_status"`
}

func (h *OrdersHandler) updatePayment(w http.ResponseWriter, r *http.Request) {
	var req updatePaymentReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	ctx, cancel := reqCtx(r, 5*time.Second)
	defer cancel()

	o, err := h.Svc.UpdatePayment(ctx, chi.URLParam(r, "id"), req.PaymentStatus, actor(r), trace(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

type bundleReq struct {
	Zone            string `json:"zone"`
	TimeWindowHours int    `json:"time_window_hours"`
}

func (h *OrdersHandler) bundleDelivery(w http.ResponseWriter, r *http.Request) {
	var req bundleReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	ctx, cancel := reqCtx(r, 5*time.Second)
	defer cancel()

	res, err := h.Svc.BundleForDelivery(ctx, req.Zone, req.TimeWindowHours, actor(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type retryReq struct {
	MaxRetries int `json:"max_retries"`
}

func (h *OrdersHandler) retryFailed(w http.ResponseWriter, r *http.Request) {
	var req retryReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	ctx, cancel := reqCtx(r, 10*time.Second)
	defer cancel()

	res, err := h.Svc.RetryFailed(ctx, req.MaxRetries, actor(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *OrdersHandler) optimizeRouting(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := reqCtx(r, 5*time.Second)
	defer cancel()

	res, err := h.Svc.OptimizeRouting(ctx, chi.URLParam(r, "id"), actor(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type partialFulfillmentReq struct {
	Fulfillable map[int64]int `json:"fulfillable"`
}

func (h *OrdersHandler) partialFulfillment(w http.ResponseWriter, r *http.Request) {
	var req partialFulfillmentReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	ctx, cancel := reqCtx(r, 5*time.Second)
	defer cancel()

	res, err := h.Svc.PartialFulfillment(ctx, chi.URLParam(r, "id"), req.Fulfillable, actor(r), trace(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
