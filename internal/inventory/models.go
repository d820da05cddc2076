package inventory

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrNotFound          = errors.New("stock record not found")
	ErrInsufficientStock = errors.New("insufficient stock")
)

type Kind string

const (
	KindIn         Kind = "IN"
	KindOut        Kind = "OUT"
	KindAdjustment Kind = "ADJUSTMENT"
)

func (k Kind) Valid() bool {
	switch k {
	case KindIn, KindOut, KindAdjustment:
		return true
	}
	return false
}

const (
	DefaultLocation     = "Main Warehouse"
	DefaultReorderLevel = 10
)

// StockRecord is the live quantity per product. It is a derived cache of the
// ledger: its quantity must equal the sum of the product's signed ledger rows.
type StockRecord struct {
	ProductID        int64      `json:"product_id"`
	Quantity         int        `json:"quantity"`
	ReservedQuantity int        `json:"reserved_quantity"`
	Location         string     `json:"location"`
	BatchNumber      string     `json:"batch_number,omitempty"`
	ExpiryDate       *time.Time `json:"expiry_date,omitempty"`
	ReorderLevel     int        `json:"reorder_level"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// LedgerEntry is one append-only stock movement. Quantity is signed: IN rows
// are positive, OUT rows negative, ADJUSTMENT rows carry new minus old.
type LedgerEntry struct {
	ID          int64           `json:"id"`
	ProductID   int64           `json:"product_id"`
	Kind        Kind            `json:"kind"`
	Quantity    int             `json:"quantity"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
	Reference   string          `json:"reference,omitempty"`
	Note        string          `json:"note,omitempty"`
	PerformedBy string          `json:"performed_by,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Adjustment is the manual-correction record; its ledger counterpart references
// it by id.
type Adjustment struct {
	ID          string    `json:"id"`
	ProductID   int64     `json:"product_id"`
	OldQuantity int       `json:"old_quantity"`
	NewQuantity int       `json:"new_quantity"`
	Reason      string    `json:"reason"`
	PerformedBy string    `json:"performed_by,omitempty"`
	ApprovedBy  string    `json:"approved_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type AlertType string

const (
	AlertLowStock   AlertType = "LOW_STOCK"
	AlertOutOfStock AlertType = "OUT_OF_STOCK"
)

type AlertStatus string

const (
	AlertActive   AlertStatus = "ACTIVE"
	AlertResolved AlertStatus = "RESOLVED"
)

// StockAlert: at most one ACTIVE alert per product and type (partial unique
// index), resolved automatically when the quantity recovers.
type StockAlert struct {
	ID         int64       `json:"id"`
	ProductID  int64       `json:"product_id"`
	Type       AlertType   `json:"alert_type"`
	Status     AlertStatus `json:"status"`
	Message    string      `json:"message,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	ResolvedAt *time.Time  `json:"resolved_at,omitempty"`
}

// Drift reports a stock record whose live quantity no longer matches its
// ledger sum.
type Drift struct {
	ProductID    int64 `json:"product_id"`
	LiveQuantity int   `json:"live_quantity"`
	LedgerSum    int   `json:"ledger_sum"`
}
