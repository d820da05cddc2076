package httpx

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/leafyhealth/fulfillment/internal/orders"
)

func newTestRouter() *chi.Mux {
	r := chi.NewRouter()
	h := &OrdersHandler{Svc: orders.NewService(nil, nil, nil, nil, nil, "test-api")}
	h.Register(r)
	return r
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestCreateOrderRejectsInvalidJSON(t *testing.T) {
	rec := do(newTestRouter(), http.MethodPost, "/orders", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"invalid json"}`, rec.Body.String())
}

func TestCreateOrderRejectsMissingFields(t *testing.T) {
	r := newTestRouter()

	rec := do(r, http.MethodPost, "/orders", `{"items":[{"product_id":1,"qty":1,"unit_price":"2.00"}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "customer_id")

	rec = do(r, http.MethodPost, "/orders", `{"customer_id":"c-1","items":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(r, http.MethodPost, "/orders", `{"customer_id":"c-1","items":[{"product_id":1,"qty":0,"unit_price":"2.00"}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateStatusRejectsUnknownStatus(t *testing.T) {
	rec := do(newTestRouter(), http.MethodPut, "/orders/ord-1/status", `{"status":"LOST"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unknown status")
}

func TestUpdatePaymentRejectsUnknownStatus(t *testing.T) {
	rec := do(newTestRouter(), http.MethodPut, "/orders/ord-1/payment", `{"payment_status":"MAYBE"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBundleDeliveryRequiresZone(t *testing.T) {
	rec := do(newTestRouter(), http.MethodPost, "/orders/bundle-delivery", `{"time_window_hours":4}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "zone required")
}

func TestListByStatusRejectsUnknownStatus(t *testing.T) {
	rec := do(newTestRouter(), http.MethodGet, "/orders/status/LOST", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthz(t *testing.T) {
	rec := do(NewRouter(), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}
