package orders

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	kafkax "github.com/leafyhealth/fulfillment/internal/kafka"
	"github.com/leafyhealth/fulfillment/internal/redisx"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Store is what the service needs from persistence. *Repo implements it.
type Store interface {
	CreateOrder(ctx context.Context, o Order, items []OrderItem, createdBy string) (Order, bool, error)
	GetOrder(ctx context.Context, id string) (Aggregate, error)
	ItemsForOrder(ctx context.Context, id string) ([]OrderItem, error)
	ListOrders(ctx context.Context, limit int) ([]Order, error)
	ListByStatus(ctx context.Context, s Status, limit int) ([]Order, error)
	ListByCustomer(ctx context.Context, customerID string, limit int) ([]Order, error)
	UpdateStatus(ctx context.Context, id string, to Status, reason, changedBy string) (Order, Status, error)
	UpdatePayment(ctx context.Context, id string, to PaymentStatus) (Order, error)
	ListConfirmedInZone(ctx context.Context, zone string, since time.Time) ([]Order, error)
	AssignBundle(ctx context.Context, bundleID string, orderIDs []string, changedBy string) error
	ListFailedBefore(ctx context.Context, cutoff time.Time, maxRetries int) ([]Order, error)
	MarkRetry(ctx context.Context, id string, changedBy string) (Order, error)
	SetFulfillmentCenter(ctx context.Context, id, center, changedBy string) (Order, error)
	SplitOrder(ctx context.Context, parentID string, child Order, items []OrderItem, changedBy string) (Order, error)
}

// Publisher is satisfied by *kafka.Producer.
type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

type Service struct {
	store   Store
	rdb     *redis.Client
	created Publisher // order.created
	changed Publisher // order.status.changed
	log     *zap.Logger
	name    string
	centers []FulfillmentCenter
	now     func() time.Time
}

func NewService(store Store, rdb *redis.Client, created, changed Publisher, log *zap.Logger, name string) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store:   store,
		rdb:     rdb,
		created: created,
		changed: changed,
		log:     log,
		name:    name,
		centers: DefaultCenters(),
		now:     time.Now,
	}
}

func NewOrderNumber(now time.Time) string {
	return fmt.Sprintf("ORD-%d-%04d", now.UnixMilli(), rand.IntN(10000))
}

type CreateItemInput struct {
	ProductID int64           `json:"product_id"`
	Qty       int             `json:"qty"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type CreateOrderInput struct {
	ExternalID      string            `json:"external_id"`
	CustomerID      string            `json:"customer_id"`
	DeliveryAddress string            `json:"delivery_address"`
	DeliveryZone    string            `json:"delivery_zone"`
	Items           []CreateItemInput `json:"items"`
}

type CreateOrderResult struct {
	Order      Order `json:"order"`
	Idempotent bool  `json:"idempotent"`
}

func (in CreateOrderInput) validate() error {
	if in.CustomerID == "" {
		return fmt.Errorf("%w: customer_id required", ErrInvalidInput)
	}
	if len(in.Items) == 0 {
		return fmt.Errorf("%w: at least one item required", ErrInvalidInput)
	}
	for _, it := range in.Items {
		if it.ProductID <= 0 {
			return fmt.Errorf("%w: invalid product_id %d", ErrInvalidInput, it.ProductID)
		}
		if it.Qty <= 0 {
			return fmt.Errorf("%w: invalid qty for product %d", ErrInvalidInput, it.ProductID)
		}
		if it.UnitPrice.IsNegative() {
			return fmt.Errorf("%w: negative unit price for product %d", ErrInvalidInput, it.ProductID)
		}
	}
	return nil
}

// Create inserts the order aggregate (order + items + opening PENDING history
// row) in one transaction, idempotent by external id.
func (s *Service) Create(ctx context.Context, in CreateOrderInput, createdBy, trace string) (CreateOrderResult, error) {
	if err := in.validate(); err != nil {
		return CreateOrderResult{}, err
	}
	if in.ExternalID == "" {
		in.ExternalID = uuid.NewString()
	}

	now := s.now().UTC()
	total := decimal.Zero
	items := make([]OrderItem, 0, len(in.Items))
	for _, it := range in.Items {
		total = total.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Qty))))
		items = append(items, OrderItem{ProductID: it.ProductID, Qty: it.Qty, UnitPrice: it.UnitPrice})
	}
	o := Order{
		ID:              uuid.NewString(),
		OrderNumber:     NewOrderNumber(now),
		ExternalID:      in.ExternalID,
		CustomerID:      in.CustomerID,
		Status:          StatusPending,
		PaymentStatus:   PaymentPending,
		Total:           total,
		DeliveryAddress: in.DeliveryAddress,
		DeliveryZone:    in.DeliveryZone,
	}

	created, existed, err := s.store.CreateOrder(ctx, o, items, createdBy)
	if err != nil {
		return CreateOrderResult{}, err
	}
	if existed {
		return CreateOrderResult{Order: created, Idempotent: true}, nil
	}

	s.cacheIdem(ctx, created)
	s.cacheStatus(ctx, created)

	demands := make([]ItemDemand, 0, len(items))
	for _, it := range items {
		demands = append(demands, ItemDemand{ProductID: it.ProductID, Qty: it.Qty})
	}
	s.publish(s.created, EventOrderCreated, created.ID, trace, OrderCreatedPayload{
		OrderID:     created.ID,
		OrderNumber: created.OrderNumber,
		CustomerID:  created.CustomerID,
		Items:       demands,
		Total:       created.Total,
	})
	return CreateOrderResult{Order: created}, nil
}

func (s *Service) Get(ctx context.Context, id string) (Aggregate, error) {
	return s.store.GetOrder(ctx, id)
}

func (s *Service) List(ctx context.Context, limit int) ([]Order, error) {
	return s.store.ListOrders(ctx, limit)
}

func (s *Service) ListByStatus(ctx context.Context, st Status, limit int) ([]Order, error) {
	if !st.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, st)
	}
	return s.store.ListByStatus(ctx, st, limit)
}

func (s *Service) ListByCustomer(ctx context.Context, customerID string, limit int) ([]Order, error) {
	return s.store.ListByCustomer(ctx, customerID, limit)
}

// UpdateStatus moves an order through the transition table and publishes the
// matching lifecycle event. Confirmation carries the item demands so the stock
// worker can commit inventory; cancellation triggers a release downstream.
func (s *Service) UpdateStatus(ctx context.Context, id string, to Status, reason, changedBy, trace string) (Order, error) {
	if !to.Valid() {
		return Order{}, fmt.Errorf("%w: %q", ErrInvalidStatus, to)
	}
	updated, prev, err := s.store.UpdateStatus(ctx, id, to, reason, changedBy)
	if err != nil {
		return Order{}, err
	}
	s.cacheStatus(ctx, updated)

	switch to {
	case StatusConfirmed:
		items, err := s.store.ItemsForOrder(ctx, id)
		if err != nil {
			s.log.Error("load items for confirm event", zap.String("order_id", id), zap.Error(err))
			return updated, nil
		}
		demands := make([]ItemDemand, 0, len(items))
		for _, it := range items {
			demands = append(demands, ItemDemand{ProductID: it.ProductID, Qty: it.Qty})
		}
		s.publish(s.changed, EventOrderConfirmed, id, trace, OrderConfirmedPayload{
			OrderID: id, OrderNumber: updated.OrderNumber, Items: demands,
		})
	case StatusCancelled:
		s.publish(s.changed, EventOrderCancelled, id, trace, OrderCancelledPayload{
			OrderID: id, OrderNumber: updated.OrderNumber, Reason: reason,
		})
	default:
		s.publish(s.changed, EventOrderStatusChanged, id, trace, OrderStatusChangedPayload{
			OrderID: id, From: prev, To: to, Reason: reason,
		})
	}
	return updated, nil
}

// UpdatePayment writes the payment status. A payment completing while the order
// is still PENDING auto-confirms it through the normal transition path.
func (s *Service) UpdatePayment(ctx context.Context, id string, to PaymentStatus, changedBy, trace string) (Order, error) {
	if !to.Valid() {
		return Order{}, fmt.Errorf("%w: payment status %q", ErrInvalidStatus, to)
	}
	o, err := s.store.UpdatePayment(ctx, id, to)
	if err != nil {
		return Order{}, err
	}
	if to == PaymentCompleted && o.Status == StatusPending {
		confirmed, err := s.UpdateStatus(ctx, id, StatusConfirmed, "Payment completed", changedBy, trace)
		if err != nil {
			return Order{}, err
		}
		return confirmed, nil
	}
	s.cacheStatus(ctx, o)
	return o, nil
}

func (s *Service) publish(p Publisher, eventType, orderID, trace string, payload any) {
	if p == nil {
		return
	}
	ev := Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    s.now().UTC(),
		Producer:      s.name,
		TraceID:       trace,
		CorrelationID: orderID,
		Payload:       kafkax.MustMarshal(payload),
	}
	p.Publish(PartitionKey(orderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func (s *Service) cacheIdem(ctx context.Context, o Order) {
	if s.rdb == nil || o.ExternalID == "" {
		return
	}
	key := fmt.Sprintf(redisx.KeyIdemOrderCreate, o.ExternalID)
	_ = s.rdb.Set(ctx, key, o.ID, redisx.TTLIdempotency).Err()
}

func (s *Service) cacheStatus(ctx context.Context, o Order) {
	if s.rdb == nil {
		return
	}
	key := fmt.Sprintf(redisx.KeyOrderStatus, o.ID)
	body := fmt.Sprintf(`{"status":%q,"payment_status":%q}`, o.Status, o.PaymentStatus)
	_ = s.rdb.Set(ctx, key, body, redisx.TTLStatusCache).Err()
}

// CachedStatus returns the cached status document for an order, if warm.
func (s *Service) CachedStatus(ctx context.Context, id string) (string, bool) {
	if s.rdb == nil {
		return "", false
	}
	key := fmt.Sprintf(redisx.KeyOrderStatus, id)
	v, err := s.rdb.Get(ctx, key).Result()
	return v, err == nil && v != ""
}
