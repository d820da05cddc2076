package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory Store honoring the same contract as *Repo:
// transition-table checks, append-only history, idempotent create.
type fakeStore struct {
	orders     map[string]*Order
	items      map[string][]OrderItem
	history    map[string][]StatusHistory
	byExternal map[string]string
	nextItemID int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		orders:     map[string]*Order{},
		items:      map[string][]OrderItem{},
		history:    map[string][]StatusHistory{},
		byExternal: map[string]string{},
	}
}

func (f *fakeStore) appendHistory(orderID string, st Status, reason, by string) {
	f.history[orderID] = append(f.history[orderID], StatusHistory{
		ID: int64(len(f.history[orderID]) + 1), OrderID: orderID,
		Status: st, Reason: reason, ChangedBy: by, ChangedAt: time.Now(),
	})
}

func (f *fakeStore) CreateOrder(_ context.Context, o Order, items []OrderItem, createdBy string) (Order, bool, error) {
	if id, ok := f.byExternal[o.ExternalID]; ok {
		return *f.orders[id], true, nil
	}
	cp := o
	now := time.Now()
	cp.CreatedAt, cp.UpdatedAt = now, now
	f.orders[o.ID] = &cp
	f.byExternal[o.ExternalID] = o.ID
	for _, it := range items {
		f.nextItemID++
		it.ID = f.nextItemID
		it.OrderID = o.ID
		f.items[o.ID] = append(f.items[o.ID], it)
	}
	f.appendHistory(o.ID, o.Status, "Order created", createdBy)
	return cp, false, nil
}

func (f *fakeStore) GetOrder(_ context.Context, id string) (Aggregate, error) {
	o, ok := f.orders[id]
	if !ok {
		return Aggregate{}, ErrNotFound
	}
	return Aggregate{Order: *o, Items: f.items[id], History: f.history[id]}, nil
}

func (f *fakeStore) ItemsForOrder(_ context.Context, id string) ([]OrderItem, error) {
	return f.items[id], nil
}

func (f *fakeStore) ListOrders(_ context.Context, _ int) ([]Order, error) {
	var out []Order
	for _, o := range f.orders {
		out = append(out, *o)
	}
	return out, nil
}

func (f *fakeStore) ListByStatus(_ context.Context, s Status, _ int) ([]Order, error) {
	var out []Order
	for _, o := range f.orders {
		if o.Status == s {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (f *fakeStore) ListByCustomer(_ context.Context, customerID string, _ int) ([]Order, error) {
	var out []Order
	for _, o := range f.orders {
		if o.CustomerID == customerID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateStatus(_ context.Context, id string, to Status, reason, changedBy string) (Order, Status, error) {
	o, ok := f.orders[id]
	if !ok {
		return Order{}, "", ErrNotFound
	}
	if !CanTransition(o.Status, to) {
		return Order{}, "", fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, to)
	}
	prev := o.Status
	o.Status = to
	o.UpdatedAt = time.Now()
	f.appendHistory(id, to, reason, changedBy)
	return *o, prev, nil
}

func (f *fakeStore) UpdatePayment(_ context.Context, id string, to PaymentStatus) (Order, error) {
	o, ok := f.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	o.PaymentStatus = to
	return *o, nil
}

func (f *fakeStore) ListConfirmedInZone(_ context.Context, zone string, since time.Time) ([]Order, error) {
	var out []Order
	for _, o := range f.orders {
		if o.Status == StatusConfirmed && o.DeliveryZone == zone && !o.CreatedAt.Before(since) {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (f *fakeStore) AssignBundle(_ context.Context, bundleID string, orderIDs []string, changedBy string) error {
	for _, id := range orderIDs {
		o, ok := f.orders[id]
		if !ok {
			return ErrNotFound
		}
		if !CanTransition(o.Status, StatusBundled) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, StatusBundled)
		}
	}
	for _, id := range orderIDs {
		o := f.orders[id]
		o.Status = StatusBundled
		o.BundleID = bundleID
		f.appendHistory(id, StatusBundled, "Bundled for delivery as "+bundleID, changedBy)
	}
	return nil
}

func (f *fakeStore) ListFailedBefore(_ context.Context, cutoff time.Time, maxRetries int) ([]Order, error) {
	var out []Order
	for _, o := range f.orders {
		if o.Status == StatusFailed && !o.UpdatedAt.After(cutoff) && o.RetryCount < maxRetries {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (f *fakeStore) MarkRetry(_ context.Context, id string, changedBy string) (Order, error) {
	o, ok := f.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	if !CanTransition(o.Status, StatusPending) {
		return Order{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, StatusPending)
	}
	o.Status = StatusPending
	o.RetryCount++
	o.UpdatedAt = time.Now()
	f.appendHistory(id, StatusPending, fmt.Sprintf("Automatic retry attempt %d", o.RetryCount), changedBy)
	return *o, nil
}

func (f *fakeStore) SetFulfillmentCenter(_ context.Context, id, center, changedBy string) (Order, error) {
	o, ok := f.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	o.FulfillmentCenter = center
	f.appendHistory(id, o.Status, "Routed to "+center, changedBy)
	return *o, nil
}

func (f *fakeStore) SplitOrder(_ context.Context, parentID string, child Order, items []OrderItem, changedBy string) (Order, error) {
	parent, ok := f.orders[parentID]
	if !ok {
		return Order{}, ErrNotFound
	}
	if !CanTransition(parent.Status, StatusPartiallyFulfilled) {
		return Order{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, parent.Status, StatusPartiallyFulfilled)
	}
	child.ParentOrderID = parentID
	cp := child
	f.orders[child.ID] = &cp
	f.byExternal[child.ExternalID] = child.ID
	for _, it := range items {
		f.nextItemID++
		it.ID = f.nextItemID
		it.OrderID = child.ID
		f.items[child.ID] = append(f.items[child.ID], it)
	}
	f.appendHistory(child.ID, child.Status, "Split from "+parent.OrderNumber, changedBy)
	parent.Status = StatusPartiallyFulfilled
	f.appendHistory(parentID, StatusPartiallyFulfilled, "Remainder moved to "+child.OrderNumber, changedBy)
	return cp, nil
}

// fakePublisher captures published envelopes.
type fakePublisher struct {
	envelopes []Envelope
}

func (p *fakePublisher) Publish(_, value []byte, _ ...kafkago.Header) {
	var env Envelope
	if err := json.Unmarshal(value, &env); err == nil {
		p.envelopes = append(p.envelopes, env)
	}
}

func (p *fakePublisher) last(t *testing.T) Envelope {
	t.Helper()
	require.NotEmpty(t, p.envelopes)
	return p.envelopes[len(p.envelopes)-1]
}

func newTestService() (*Service, *fakeStore, *fakePublisher, *fakePublisher) {
	store := newFakeStore()
	created := &fakePublisher{}
	changed := &fakePublisher{}
	svc := NewService(store, nil, created, changed, nil, "test-api")
	return svc, store, created, changed
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func createTestOrder(t *testing.T, svc *Service) Order {
	t.Helper()
	res, err := svc.Create(context.Background(), CreateOrderInput{
		CustomerID:   "cust-1",
		DeliveryZone: "central",
		Items: []CreateItemInput{
			{ProductID: 1, Qty: 2, UnitPrice: dec("9.99")},
		},
	}, "tester", "")
	require.NoError(t, err)
	return res.Order
}

func TestCreateOrder(t *testing.T) {
	svc, store, created, _ := newTestService()

	res, err := svc.Create(context.Background(), CreateOrderInput{
		CustomerID: "cust-1",
		Items: []CreateItemInput{
			{ProductID: 1, Qty: 2, UnitPrice: dec("9.99")},
			{ProductID: 2, Qty: 1, UnitPrice: dec("3.50")},
		},
	}, "tester", "trace-1")
	require.NoError(t, err)
	o := res.Order

	assert.False(t, res.Idempotent)
	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, PaymentPending, o.PaymentStatus)
	assert.True(t, o.Total.Equal(dec("23.48")), "total = %s", o.Total)
	assert.Regexp(t, `^ORD-\d+-\d{4}$`, o.OrderNumber)

	require.Len(t, store.items[o.ID], 2)
	assert.Equal(t, 2, store.items[o.ID][0].Qty)

	require.Len(t, store.history[o.ID], 1)
	assert.Equal(t, StatusPending, store.history[o.ID][0].Status)

	env := created.last(t)
	assert.Equal(t, EventOrderCreated, env.EventType)
	assert.Equal(t, o.ID, env.CorrelationID)
	assert.Equal(t, "trace-1", env.TraceID)
}

func TestCreateOrderIdempotent(t *testing.T) {
	svc, store, created, _ := newTestService()

	in := CreateOrderInput{
		ExternalID: "ext-42",
		CustomerID: "cust-1",
		Items:      []CreateItemInput{{ProductID: 1, Qty: 1, UnitPrice: dec("5.00")}},
	}
	first, err := svc.Create(context.Background(), in, "tester", "")
	require.NoError(t, err)
	second, err := svc.Create(context.Background(), in, "tester", "")
	require.NoError(t, err)

	assert.True(t, second.Idempotent)
	assert.Equal(t, first.Order.ID, second.Order.ID)
	assert.Len(t, store.orders, 1)
	assert.Len(t, created.envelopes, 1, "no event for the replayed create")
}

func TestCreateOrderValidation(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateOrderInput{Items: []CreateItemInput{{ProductID: 1, Qty: 1}}}, "t", "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Create(ctx, CreateOrderInput{CustomerID: "c"}, "t", "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Create(ctx, CreateOrderInput{
		CustomerID: "c",
		Items:      []CreateItemInput{{ProductID: 1, Qty: 0, UnitPrice: dec("1.00")}},
	}, "t", "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestUpdateStatusAppendsHistory(t *testing.T) {
	svc, store, _, changed := newTestService()
	o := createTestOrder(t, svc)

	updated, err := svc.UpdateStatus(context.Background(), o.ID, StatusConfirmed, "manual confirm", "ops", "")
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, updated.Status)

	require.Len(t, store.history[o.ID], 2)
	assert.Equal(t, StatusPending, store.history[o.ID][0].Status)
	assert.Equal(t, StatusConfirmed, store.history[o.ID][1].Status)

	env := changed.last(t)
	assert.Equal(t, EventOrderConfirmed, env.EventType)
	p, err := unwrap[OrderConfirmedPayload](env)
	require.NoError(t, err)
	require.Len(t, p.Items, 1)
	assert.Equal(t, int64(1), p.Items[0].ProductID)
	assert.Equal(t, 2, p.Items[0].Qty)
}

func unwrap[T any](env Envelope) (T, error) {
	var v T
	err := json.Unmarshal(env.Payload, &v)
	return v, err
}

func TestUpdateStatusRejectsIllegalTransition(t *testing.T) {
	svc, store, _, changed := newTestService()
	o := createTestOrder(t, svc)

	_, err := svc.UpdateStatus(context.Background(), o.ID, StatusDelivered, "", "ops", "")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Len(t, store.history[o.ID], 1, "no history row for a rejected transition")
	assert.Empty(t, changed.envelopes)
	assert.Equal(t, StatusPending, store.orders[o.ID].Status)
}

func TestUpdateStatusUnknownStatus(t *testing.T) {
	svc, _, _, _ := newTestService()
	o := createTestOrder(t, svc)

	_, err := svc.UpdateStatus(context.Background(), o.ID, Status("LOST"), "", "ops", "")
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestUpdateStatusNotFound(t *testing.T) {
	svc, _, _, _ := newTestService()
	_, err := svc.UpdateStatus(context.Background(), uuid.NewString(), StatusConfirmed, "", "ops", "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPaymentCompletedAutoConfirms(t *testing.T) {
	svc, store, _, changed := newTestService()
	o := createTestOrder(t, svc)

	updated, err := svc.UpdatePayment(context.Background(), o.ID, PaymentCompleted, "gateway", "")
	require.NoError(t, err)

	assert.Equal(t, StatusConfirmed, updated.Status)
	assert.Equal(t, PaymentCompleted, updated.PaymentStatus)

	require.Len(t, store.history[o.ID], 2)
	assert.Equal(t, StatusPending, store.history[o.ID][0].Status)
	assert.Equal(t, StatusConfirmed, store.history[o.ID][1].Status)
	assert.Equal(t, "Payment completed", store.history[o.ID][1].Reason)

	assert.Equal(t, EventOrderConfirmed, changed.last(t).EventType)
}

func TestPaymentCompletedOnNonPendingOrder(t *testing.T) {
	svc, store, _, _ := newTestService()
	o := createTestOrder(t, svc)
	_, err := svc.UpdateStatus(context.Background(), o.ID, StatusConfirmed, "", "ops", "")
	require.NoError(t, err)

	updated, err := svc.UpdatePayment(context.Background(), o.ID, PaymentCompleted, "gateway", "")
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, updated.Status)
	assert.Len(t, store.history[o.ID], 2, "no extra confirm for an already confirmed order")
}

func TestCancelPublishesCancelEvent(t *testing.T) {
	svc, _, _, changed := newTestService()
	o := createTestOrder(t, svc)
	_, err := svc.UpdateStatus(context.Background(), o.ID, StatusConfirmed, "", "ops", "")
	require.NoError(t, err)

	_, err = svc.UpdateStatus(context.Background(), o.ID, StatusCancelled, "customer request", "ops", "")
	require.NoError(t, err)

	env := changed.last(t)
	assert.Equal(t, EventOrderCancelled, env.EventType)
	p, err := unwrap[OrderCancelledPayload](env)
	require.NoError(t, err)
	assert.Equal(t, o.OrderNumber, p.OrderNumber)
	assert.Equal(t, "customer request", p.Reason)
}
