package orders

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrNotFound          = errors.New("order not found")
	ErrInvalidStatus     = errors.New("unknown status")
	ErrInvalidTransition = errors.New("illegal status transition")
	ErrNotEnoughOrders   = errors.New("not enough orders to bundle")
	ErrNothingToFulfill  = errors.New("no remaining items to split")
)

type Order struct {
	ID                string          `json:"id"`
	OrderNumber       string          `json:"order_number"`
	ExternalID        string          `json:"external_id,omitempty"`
	CustomerID        string          `json:"customer_id"`
	Status            Status          `json:"status"`
	PaymentStatus     PaymentStatus   `json:"payment_status"`
	Total             decimal.Decimal `json:"total"`
	DeliveryAddress   string          `json:"delivery_address,omitempty"`
	DeliveryZone      string          `json:"delivery_zone,omitempty"`
	RetryCount        int             `json:"retry_count"`
	BundleID          string          `json:"bundle_id,omitempty"`
	FulfillmentCenter string          `json:"fulfillment_center,omitempty"`
	ParentOrderID     string          `json:"parent_order_id,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// OrderItem rows are written once with the order and never mutated.
type OrderItem struct {
	ID        int64           `json:"id"`
	OrderID   string          `json:"order_id"`
	ProductID int64           `json:"product_id"`
	Qty       int             `json:"qty"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// StatusHistory is the append-only transition log, oldest first.
type StatusHistory struct {
	ID        int64     `json:"id"`
	OrderID   string    `json:"order_id"`
	Status    Status    `json:"status"`
	Reason    string    `json:"reason,omitempty"`
	ChangedBy string    `json:"changed_by,omitempty"`
	ChangedAt time.Time `json:"changed_at"`
}

// Aggregate is the order plus its items and history, treated as one unit.
type Aggregate struct {
	Order   Order           `json:"order"`
	Items   []OrderItem     `json:"items"`
	History []StatusHistory `json:"history"`
}
