package httpx

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/leafyhealth/fulfillment/internal/inventory"
	"github.com/shopspring/decimal"
)

type InventoryHandler struct {
	Svc *inventory.Service
}

func (h *InventoryHandler) Register(r *chi.Mux) {
	r.Get("/inventory/stock", h.allStock)
	r.Get("/inventory/stock/low", h.lowStock)
	r.Get("/inventory/stock/{productID}", h.productStock)
	r.Post("/inventory/transactions", h.recordTransaction)
	r.Get("/inventory/transactions", h.listTransactions)
	r.Put("/inventory/adjustments", h.adjust)
	r.Get("/inventory/alerts", h.activeAlerts)
	r.Get("/inventory/reconciliation", h.reconcile)
}

func (h *InventoryHandler) allStock(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := reqCtx(r, 3*time.Second)
	defer cancel()
	out, err := h.Svc.AllStock(ctx)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *InventoryHandler) lowStock(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := reqCtx(r, 3*time.Second)
	defer cancel()
	out, err := h.Svc.LowStock(ctx)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *InventoryHandler) productStock(w http.ResponseWriter, r *http.Request) {
	pid, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid product id"})
		return
	}
	ctx, cancel := reqCtx(r, 3*time.Second)
	defer cancel()
	rec, err := h.Svc.Stock(ctx, pid)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type transactionReq struct {
	ProductID       int64           `json:"product_id"`
	TransactionType string          `json:"transaction_type"`
	Quantity        int             `json:"quantity"`
	UnitCost        decimal.Decimal `json:"unit_cost"`
	Reference       string          `json:"reference"`
	Note            string          `json:"note"`
}

func (h *InventoryHandler) recordTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	ctx, cancel := reqCtx(r, 5*time.Second)
	defer cancel()

	res, err := h.Svc.RecordEntry(ctx, inventory.EntryInput{
		ProductID:   req.ProductID,
		Kind:        inventory.Kind(req.TransactionType),
		Qty:         req.Quantity,
		UnitCost:    req.UnitCost,
		Reference:   req.Reference,
		Note:        req.Note,
		PerformedBy: actor(r),
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *InventoryHandler) listTransactions(w http.ResponseWriter, r *http.Request) {
	pid, _ := strconv.ParseInt(r.URL.Query().Get("product_id"), 10, 64)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	ctx, cancel := reqCtx(r, 3*time.Second)
	defer cancel()
	out, err := h.Svc.Entries(ctx, pid, limit)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type adjustReq struct {
	ProductID   int64  `json:"product_id"`
	NewQuantity int    `json:"new_quantity"`
	Reason      string `json:"reason"`
	ApprovedBy  string `json:"approved_by"`
}

func (h *InventoryHandler) adjust(w http.ResponseWriter, r *http.Request) {
	var req adjustReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	ctx, cancel := reqCtx(r, 5*time.Second)
	defer cancel()

	res, err := h.Svc.Adjust(ctx, req.ProductID, req.NewQuantity, req.Reason, actor(r), req.ApprovedBy)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *InventoryHandler) activeAlerts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := reqCtx(r, 3*time.Second)
	defer cancel()
	out, err := h.Svc.ActiveAlerts(ctx)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *InventoryHandler) reconcile(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := reqCtx(r, 10*time.Second)
	defer cancel()
	drifts, err := h.Svc.Reconcile(ctx)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"drift": drifts, "consistent": len(drifts) == 0})
}
