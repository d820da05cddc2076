package orders

type Status string

const (
	StatusPending            Status = "PENDING"
	StatusConfirmed          Status = "CONFIRMED"
	StatusProcessing         Status = "PROCESSING"
	StatusShipped            Status = "SHIPPED"
	StatusDelivered          Status = "DELIVERED"
	StatusCancelled          Status = "CANCELLED"
	StatusFailed             Status = "FAILED"
	StatusBundled            Status = "BUNDLED"
	StatusPartiallyFulfilled Status = "PARTIALLY_FULFILLED"
)

// validNext is the authoritative transition table. DELIVERED and CANCELLED are
// absorbing; FAILED may only be re-queued to PENDING by the retry sweep.
var validNext = map[Status]map[Status]bool{
	StatusPending:            {StatusConfirmed: true, StatusCancelled: true, StatusFailed: true},
	StatusConfirmed:          {StatusProcessing: true, StatusBundled: true, StatusPartiallyFulfilled: true, StatusCancelled: true, StatusFailed: true},
	StatusProcessing:         {StatusShipped: true, StatusPartiallyFulfilled: true, StatusFailed: true},
	StatusBundled:            {StatusProcessing: true, StatusShipped: true, StatusFailed: true},
	StatusPartiallyFulfilled: {StatusProcessing: true, StatusShipped: true, StatusFailed: true},
	StatusShipped:            {StatusDelivered: true, StatusFailed: true},
	StatusDelivered:          {},
	StatusCancelled:          {},
	StatusFailed:             {StatusPending: true},
}

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

type PaymentStatus string

const (
	PaymentPending     PaymentStatus = "PENDING"
	PaymentProcessing  PaymentStatus = "PROCESSING"
	PaymentCompleted   PaymentStatus = "COMPLETED"
	PaymentFailed      PaymentStatus = "FAILED"
	PaymentRefunded    PaymentStatus = "REFUNDED"
	PaymentPartialPaid PaymentStatus = "PARTIAL_PAID"
)

var paymentStatuses = map[PaymentStatus]bool{
	PaymentPending:     true,
	PaymentProcessing:  true,
	PaymentCompleted:   true,
	PaymentFailed:      true,
	PaymentRefunded:    true,
	PaymentPartialPaid: true,
}

func (p PaymentStatus) Valid() bool { return paymentStatuses[p] }
