package orders

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventOrderCreated       = "OrderCreated"
	EventOrderConfirmed     = "OrderConfirmed"
	EventOrderCancelled     = "OrderCancelled"
	EventOrderStatusChanged = "OrderStatusChanged"
	EventStockCommitted     = "StockCommitted"
	EventStockRejected      = "StockRejected"
	EventStockReleased      = "StockReleased"
	EventStockAlertRaised   = "StockAlertRaised"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // usually order_id
	Payload       json.RawMessage `json:"payload"`
}

// ---- payload types ----

type ItemDemand struct {
	ProductID int64 `json:"product_id"`
	Qty       int   `json:"qty"`
}

type OrderCreatedPayload struct {
	OrderID     string          `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	CustomerID  string          `json:"customer_id"`
	Items       []ItemDemand    `json:"items"`
	Total       decimal.Decimal `json:"total"`
}

type OrderConfirmedPayload struct {
	OrderID     string       `json:"order_id"`
	OrderNumber string       `json:"order_number"`
	Items       []ItemDemand `json:"items"`
}

type OrderCancelledPayload struct {
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
	Reason      string `json:"reason,omitempty"`
}

type OrderStatusChangedPayload struct {
	OrderID string `json:"order_id"`
	From    Status `json:"from"`
	To      Status `json:"to"`
	Reason  string `json:"reason,omitempty"`
}

type StockCommittedPayload struct {
	OrderID     string       `json:"order_id"`
	OrderNumber string       `json:"order_number"`
	Items       []ItemDemand `json:"items"`
}

type ShortfallDetail struct {
	ProductID int64 `json:"product_id"`
	Required  int   `json:"required"`
	Available int   `json:"available"`
}

type StockRejectedPayload struct {
	OrderID     string            `json:"order_id"`
	OrderNumber string            `json:"order_number"`
	Reason      string            `json:"reason"` // e.g. OUT_OF_STOCK
	Details     []ShortfallDetail `json:"details,omitempty"`
}

type StockReleasedPayload struct {
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
}

type StockAlertRaisedPayload struct {
	ProductID int64  `json:"product_id"`
	AlertType string `json:"alert_type"` // LOW_STOCK | OUT_OF_STOCK
	Quantity  int    `json:"quantity,omitempty"`
	Message   string `json:"message,omitempty"`
}
