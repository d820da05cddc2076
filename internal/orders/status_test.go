package orders

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusPending, StatusConfirmed, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusFailed, true},
		{StatusPending, StatusShipped, false},
		{StatusConfirmed, StatusProcessing, true},
		{StatusConfirmed, StatusBundled, true},
		{StatusConfirmed, StatusCancelled, true},
		{StatusConfirmed, StatusPending, false},
		{StatusProcessing, StatusShipped, true},
		{StatusBundled, StatusShipped, true},
		{StatusPartiallyFulfilled, StatusShipped, true},
		{StatusShipped, StatusDelivered, true},
		{StatusShipped, StatusConfirmed, false},
		{StatusFailed, StatusPending, true},
		{StatusFailed, StatusConfirmed, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.ok, CanTransition(c.from, c.to), "%s -> %s", c.from, c.to)
	}
}

func TestAbsorbingStates(t *testing.T) {
	for _, from := range []Status{StatusDelivered, StatusCancelled} {
		for to := range validNext {
			assert.False(t, CanTransition(from, to), "%s must be absorbing, allowed -> %s", from, to)
		}
	}
}

func TestStatusValid(t *testing.T) {
	assert.True(t, StatusPending.Valid())
	assert.True(t, StatusPartiallyFulfilled.Valid())
	assert.False(t, Status("SHIPPED_MAYBE").Valid())
	assert.False(t, Status("").Valid())

	assert.True(t, PaymentCompleted.Valid())
	assert.True(t, PaymentPartialPaid.Valid())
	assert.False(t, PaymentStatus("PAID").Valid())
}
