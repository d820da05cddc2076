package inventory

import "fmt"

// NextQuantity computes the post-movement quantity and the signed ledger delta
// for a movement applied to the locked current quantity. ADJUSTMENT sets an
// absolute value, so its delta is new minus current.
func NextQuantity(kind Kind, current, qty int) (next, delta int, err error) {
	switch kind {
	case KindIn:
		if qty <= 0 {
			return 0, 0, fmt.Errorf("%w: IN qty must be positive, got %d", ErrInvalidInput, qty)
		}
		return current + qty, qty, nil
	case KindOut:
		if qty <= 0 {
			return 0, 0, fmt.Errorf("%w: OUT qty must be positive, got %d", ErrInvalidInput, qty)
		}
		if current < qty {
			return 0, 0, fmt.Errorf("%w: have %d, need %d", ErrInsufficientStock, current, qty)
		}
		return current - qty, -qty, nil
	case KindAdjustment:
		if qty < 0 {
			return 0, 0, fmt.Errorf("%w: ADJUSTMENT target must not be negative, got %d", ErrInvalidInput, qty)
		}
		return qty, qty - current, nil
	default:
		return 0, 0, fmt.Errorf("%w: unknown transaction kind %q", ErrInvalidInput, kind)
	}
}

// ClassifyAlert returns the alert the quantity warrants, or "" for none.
func ClassifyAlert(qty, reorderLevel int) AlertType {
	if qty <= 0 {
		return AlertOutOfStock
	}
	if qty <= reorderLevel {
		return AlertLowStock
	}
	return ""
}

func alertMessage(t AlertType, productID int64, qty int) string {
	switch t {
	case AlertOutOfStock:
		return fmt.Sprintf("product %d is out of stock", productID)
	default:
		return fmt.Sprintf("product %d is low on stock (%d left)", productID, qty)
	}
}
