package inventory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextQuantity(t *testing.T) {
	tests := []struct {
		name      string
		kind      Kind
		current   int
		qty       int
		wantNext  int
		wantDelta int
		wantErr   error
	}{
		{name: "IN adds", kind: KindIn, current: 10, qty: 5, wantNext: 15, wantDelta: 5},
		{name: "IN into empty", kind: KindIn, current: 0, qty: 3, wantNext: 3, wantDelta: 3},
		{name: "IN zero qty rejected", kind: KindIn, current: 10, qty: 0, wantErr: ErrInvalidInput},
		{name: "IN negative qty rejected", kind: KindIn, current: 10, qty: -2, wantErr: ErrInvalidInput},

		{name: "OUT subtracts", kind: KindOut, current: 10, qty: 4, wantNext: 6, wantDelta: -4},
		{name: "OUT drains exactly", kind: KindOut, current: 4, qty: 4, wantNext: 0, wantDelta: -4},
		{name: "OUT underflow rejected", kind: KindOut, current: 12, qty: 15, wantErr: ErrInsufficientStock},
		{name: "OUT zero qty rejected", kind: KindOut, current: 10, qty: 0, wantErr: ErrInvalidInput},

		{name: "ADJUSTMENT up", kind: KindAdjustment, current: 10, qty: 25, wantNext: 25, wantDelta: 15},
		{name: "ADJUSTMENT down", kind: KindAdjustment, current: 25, qty: 10, wantNext: 10, wantDelta: -15},
		{name: "ADJUSTMENT no-op", kind: KindAdjustment, current: 7, qty: 7, wantNext: 7, wantDelta: 0},
		{name: "ADJUSTMENT to zero", kind: KindAdjustment, current: 7, qty: 0, wantNext: 0, wantDelta: -7},
		{name: "ADJUSTMENT negative target rejected", kind: KindAdjustment, current: 7, qty: -1, wantErr: ErrInvalidInput},

		{name: "unknown kind rejected", kind: Kind("TRANSFER"), current: 1, qty: 1, wantErr: ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, delta, err := NextQuantity(tt.kind, tt.current, tt.qty)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantNext, next)
			assert.Equal(t, tt.wantDelta, delta)
		})
	}
}

func TestClassifyAlert(t *testing.T) {
	assert.Equal(t, AlertOutOfStock, ClassifyAlert(0, 10))
	assert.Equal(t, AlertOutOfStock, ClassifyAlert(-3, 10))
	assert.Equal(t, AlertLowStock, ClassifyAlert(1, 10))
	assert.Equal(t, AlertLowStock, ClassifyAlert(10, 10))
	assert.Equal(t, AlertType(""), ClassifyAlert(11, 10))
	assert.Equal(t, AlertType(""), ClassifyAlert(100, 10))

	// Threshold follows the record, not a global.
	assert.Equal(t, AlertLowStock, ClassifyAlert(40, 50))
	assert.Equal(t, AlertType(""), ClassifyAlert(40, 20))
}
