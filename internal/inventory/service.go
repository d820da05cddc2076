package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	kafkax "github.com/leafyhealth/fulfillment/internal/kafka"
	"github.com/leafyhealth/fulfillment/internal/orders"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Store is what the service needs from persistence. *Repo implements it.
type Store interface {
	ApplyEntry(ctx context.Context, in EntryInput) (EntryResult, error)
	ApplyAdjustment(ctx context.Context, in AdjustmentInput) (AdjustmentResult, error)
	Stock(ctx context.Context, productID int64) (StockRecord, error)
	AllStock(ctx context.Context) ([]StockRecord, error)
	LowStock(ctx context.Context) ([]StockRecord, error)
	Entries(ctx context.Context, productID int64, limit int) ([]LedgerEntry, error)
	ActiveAlerts(ctx context.Context) ([]StockAlert, error)
	CommitOrderStock(ctx context.Context, orderNumber string, items []orders.ItemDemand) (bool, []orders.ShortfallDetail, []StockAlert, error)
	ReleaseOrderStock(ctx context.Context, orderNumber string) (bool, error)
	Reconcile(ctx context.Context) ([]Drift, error)
}

type Service struct {
	store  Store
	alerts orders.Publisher // inventory.alerts topic, optional
	log    *zap.Logger
	name   string
	now    func() time.Time
}

func NewService(store Store, alerts orders.Publisher, log *zap.Logger, name string) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, alerts: alerts, log: log, name: name, now: time.Now}
}

// RecordEntry applies one IN/OUT/ADJUSTMENT movement and publishes any alert
// it raised.
func (s *Service) RecordEntry(ctx context.Context, in EntryInput) (EntryResult, error) {
	if in.ProductID <= 0 {
		return EntryResult{}, fmt.Errorf("%w: invalid product_id %d", ErrInvalidInput, in.ProductID)
	}
	if !in.Kind.Valid() {
		return EntryResult{}, fmt.Errorf("%w: unknown transaction kind %q", ErrInvalidInput, in.Kind)
	}
	if in.UnitCost.IsNegative() {
		return EntryResult{}, fmt.Errorf("%w: negative unit cost", ErrInvalidInput)
	}

	res, err := s.store.ApplyEntry(ctx, in)
	if err != nil {
		return EntryResult{}, err
	}
	if res.Raised != nil {
		s.publishAlert(*res.Raised, res.Record.Quantity)
	}
	return res, nil
}

// Adjust records a manual correction to an absolute quantity. One call yields
// one adjustment row and one ADJUSTMENT ledger row referencing it.
func (s *Service) Adjust(ctx context.Context, productID int64, newQuantity int, reason, performedBy, approvedBy string) (AdjustmentResult, error) {
	if productID <= 0 {
		return AdjustmentResult{}, fmt.Errorf("%w: invalid product_id %d", ErrInvalidInput, productID)
	}
	if reason == "" {
		return AdjustmentResult{}, fmt.Errorf("%w: adjustment reason required", ErrInvalidInput)
	}
	res, err := s.store.ApplyAdjustment(ctx, AdjustmentInput{
		ID:          uuid.NewString(),
		ProductID:   productID,
		NewQuantity: newQuantity,
		Reason:      reason,
		PerformedBy: performedBy,
		ApprovedBy:  approvedBy,
	})
	if err != nil {
		return AdjustmentResult{}, err
	}
	if res.Raised != nil {
		s.publishAlert(*res.Raised, res.Record.Quantity)
	}
	return res, nil
}

func (s *Service) Stock(ctx context.Context, productID int64) (StockRecord, error) {
	return s.store.Stock(ctx, productID)
}

func (s *Service) AllStock(ctx context.Context) ([]StockRecord, error) {
	return s.store.AllStock(ctx)
}

func (s *Service) LowStock(ctx context.Context) ([]StockRecord, error) {
	return s.store.LowStock(ctx)
}

func (s *Service) Entries(ctx context.Context, productID int64, limit int) ([]LedgerEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.store.Entries(ctx, productID, limit)
}

func (s *Service) ActiveAlerts(ctx context.Context) ([]StockAlert, error) {
	return s.store.ActiveAlerts(ctx)
}

func (s *Service) Reconcile(ctx context.Context) ([]Drift, error) {
	drifts, err := s.store.Reconcile(ctx)
	if err != nil {
		return nil, err
	}
	for _, d := range drifts {
		s.log.Warn("stock drift",
			zap.Int64("product_id", d.ProductID),
			zap.Int("live", d.LiveQuantity),
			zap.Int("ledger_sum", d.LedgerSum))
	}
	return drifts, nil
}

func (s *Service) publishAlert(a StockAlert, qty int) {
	if s.alerts == nil {
		return
	}
	ev := orders.Envelope{
		EventID:      uuid.NewString(),
		EventType:    orders.EventStockAlertRaised,
		EventVersion: 1,
		OccurredAt:   s.now().UTC(),
		Producer:     s.name,
		Payload: kafkax.MustMarshal(orders.StockAlertRaisedPayload{
			ProductID: a.ProductID,
			AlertType: string(a.Type),
			Quantity:  qty,
			Message:   a.Message,
		}),
	}
	s.alerts.Publish([]byte(fmt.Sprintf("%d", a.ProductID)), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventStockAlertRaised)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
