package inventory

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	kafkax "github.com/leafyhealth/fulfillment/internal/kafka"
	"github.com/leafyhealth/fulfillment/internal/orders"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// OrderStatusUpdater marks orders FAILED when stock cannot be committed.
// *orders.Service satisfies it.
type OrderStatusUpdater interface {
	UpdateStatus(ctx context.Context, id string, to orders.Status, reason, changedBy, trace string) (orders.Order, error)
}

// Deduper remembers which event ids were fully processed.
// *redisx.EventDedup implements it.
type Deduper interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Mark(ctx context.Context, eventID string) error
}

// Worker applies order lifecycle events to the stock ledger.
type Worker struct {
	Svc             *Service
	Orders          OrderStatusUpdater
	Dedup           Deduper
	ProducerOK      orders.Publisher // order.stock.committed
	ProducerReject  orders.Publisher // order.stock.rejected
	ProducerRelease orders.Publisher // order.stock.released
	Log             *zap.Logger
	Name            string
}

// HandleOrderEvent consumes order.status.changed. Confirmations commit stock
// all-or-nothing; cancellations release a previous commit. Other event types
// are ignored. The dedup key is marked only after the effects are committed,
// so a failed attempt stays eligible for redelivery.
func (w *Worker) HandleOrderEvent(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}

	switch env.EventType {
	case orders.EventOrderConfirmed:
		if w.seen(ctx, env.EventID) {
			return nil
		}
		p, err := kafkax.UnwrapPayload[orders.OrderConfirmedPayload](env.Payload)
		if err != nil {
			return err
		}
		if err := w.commit(ctx, p, env.TraceID); err != nil {
			return err
		}
		w.mark(ctx, env.EventID)
		return nil
	case orders.EventOrderCancelled:
		if w.seen(ctx, env.EventID) {
			return nil
		}
		p, err := kafkax.UnwrapPayload[orders.OrderCancelledPayload](env.Payload)
		if err != nil {
			return err
		}
		if err := w.release(ctx, p, env.TraceID); err != nil {
			return err
		}
		w.mark(ctx, env.EventID)
		return nil
	default:
		return nil
	}
}

func (w *Worker) seen(ctx context.Context, eventID string) bool {
	if w.Dedup == nil {
		return false
	}
	done, err := w.Dedup.Seen(ctx, eventID)
	if err != nil {
		w.Log.Warn("dedup lookup", zap.Error(err))
		return false
	}
	return done
}

func (w *Worker) mark(ctx context.Context, eventID string) {
	if w.Dedup == nil {
		return
	}
	if err := w.Dedup.Mark(ctx, eventID); err != nil {
		w.Log.Warn("dedup mark", zap.Error(err))
	}
}

func (w *Worker) commit(ctx context.Context, p orders.OrderConfirmedPayload, trace string) error {
	ok, shortfalls, raised, err := w.Svc.store.CommitOrderStock(ctx, p.OrderNumber, p.Items)
	if err != nil {
		return err
	}
	for _, a := range raised {
		w.Svc.publishAlert(a, 0)
	}

	if ok {
		w.Log.Info("stock committed", zap.String("order", p.OrderNumber))
		w.publish(w.ProducerOK, orders.EventStockCommitted, p.OrderID, trace, orders.StockCommittedPayload{
			OrderID: p.OrderID, OrderNumber: p.OrderNumber, Items: p.Items,
		})
		return nil
	}

	w.Log.Warn("stock rejected", zap.String("order", p.OrderNumber), zap.Int("shortfalls", len(shortfalls)))
	w.publish(w.ProducerReject, orders.EventStockRejected, p.OrderID, trace, orders.StockRejectedPayload{
		OrderID: p.OrderID, OrderNumber: p.OrderNumber, Reason: "OUT_OF_STOCK", Details: shortfalls,
	})
	if w.Orders != nil {
		if _, err := w.Orders.UpdateStatus(ctx, p.OrderID, orders.StatusFailed, "Insufficient stock", w.Name, trace); err != nil {
			w.Log.Warn("mark order failed", zap.String("order_id", p.OrderID), zap.Error(err))
		}
	}
	return nil
}

func (w *Worker) release(ctx context.Context, p orders.OrderCancelledPayload, trace string) error {
	released, err := w.Svc.store.ReleaseOrderStock(ctx, p.OrderNumber)
	if err != nil {
		return err
	}
	if !released {
		return nil // nothing ever committed, or already released
	}
	w.Log.Info("stock released", zap.String("order", p.OrderNumber))
	w.publish(w.ProducerRelease, orders.EventStockReleased, p.OrderID, trace, orders.StockReleasedPayload{
		OrderID: p.OrderID, OrderNumber: p.OrderNumber,
	})
	return nil
}

func (w *Worker) publish(p orders.Publisher, eventType, orderID, trace string, payload any) {
	if p == nil {
		return
	}
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      w.Name,
		TraceID:       trace,
		CorrelationID: orderID,
		Payload:       kafkax.MustMarshal(payload),
	}
	p.Publish(orders.PartitionKey(orderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
