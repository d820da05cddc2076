package orders

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	minBundleSize = 2
	maxBundleSize = 5
	retryMinAge   = 30 * time.Minute
)

// Linear delivery cost model: every solo delivery costs the base fee, a bundle
// pays one base fee plus a per-stop increment for each extra order.
var (
	deliveryBaseCost = decimal.NewFromFloat(6.50)
	perStopCost      = decimal.NewFromFloat(2.25)
)

func bundleSavings(n int) decimal.Decimal {
	if n < minBundleSize {
		return decimal.Zero
	}
	solo := deliveryBaseCost.Mul(decimal.NewFromInt(int64(n)))
	bundled := deliveryBaseCost.Add(perStopCost.Mul(decimal.NewFromInt(int64(n - 1))))
	return solo.Sub(bundled)
}

type BundleResult struct {
	BundleID         string          `json:"bundle_id"`
	Zone             string          `json:"zone"`
	OrderIDs         []string        `json:"order_ids"`
	EstimatedSavings decimal.Decimal `json:"estimated_savings"`
}

// BundleForDelivery groups CONFIRMED orders in a zone created within the time
// window. Needs at least two; takes the five oldest at most.
func (s *Service) BundleForDelivery(ctx context.Context, zone string, windowHours int, changedBy string) (BundleResult, error) {
	if zone == "" {
		return BundleResult{}, fmt.Errorf("%w: zone required", ErrInvalidInput)
	}
	if windowHours <= 0 {
		windowHours = 4
	}
	since := s.now().UTC().Add(-time.Duration(windowHours) * time.Hour)

	candidates, err := s.store.ListConfirmedInZone(ctx, zone, since)
	if err != nil {
		return BundleResult{}, err
	}
	if len(candidates) < minBundleSize {
		return BundleResult{}, fmt.Errorf("%w: found %d confirmed orders in zone %s", ErrNotEnoughOrders, len(candidates), zone)
	}
	if len(candidates) > maxBundleSize {
		candidates = candidates[:maxBundleSize]
	}

	bundleID := fmt.Sprintf("BNDL-%d", s.now().UnixMilli())
	ids := make([]string, 0, len(candidates))
	for _, o := range candidates {
		ids = append(ids, o.ID)
	}
	if err := s.store.AssignBundle(ctx, bundleID, ids, changedBy); err != nil {
		return BundleResult{}, err
	}
	s.log.Info("orders bundled",
		zap.String("bundle_id", bundleID), zap.String("zone", zone), zap.Int("orders", len(ids)))
	return BundleResult{
		BundleID:         bundleID,
		Zone:             zone,
		OrderIDs:         ids,
		EstimatedSavings: bundleSavings(len(ids)),
	}, nil
}

type RetryResult struct {
	Retried []string `json:"retried"`
	Skipped int      `json:"skipped"`
}

// RetryFailed re-queues FAILED orders older than 30 minutes that are still
// under the retry cap.
func (s *Service) RetryFailed(ctx context.Context, maxRetries int, changedBy string) (RetryResult, error) {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	cutoff := s.now().UTC().Add(-retryMinAge)
	failed, err := s.store.ListFailedBefore(ctx, cutoff, maxRetries)
	if err != nil {
		return RetryResult{}, err
	}

	var res RetryResult
	for _, o := range failed {
		updated, err := s.store.MarkRetry(ctx, o.ID, changedBy)
		if err != nil {
			s.log.Warn("retry failed order", zap.String("order_id", o.ID), zap.Error(err))
			res.Skipped++
			continue
		}
		s.cacheStatus(ctx, updated)
		res.Retried = append(res.Retried, o.ID)
	}
	return res, nil
}

type FulfillmentCenter struct {
	Code         string
	Name         string
	Capacity     int
	CurrentLoad  int
	ZoneDistance map[string]float64 // km by delivery zone
}

// DefaultCenters is the fixed center list the routing heuristic scores against.
func DefaultCenters() []FulfillmentCenter {
	return []FulfillmentCenter{
		{Code: "FC-NORTH", Name: "North Hub", Capacity: 120, CurrentLoad: 40,
			ZoneDistance: map[string]float64{"north": 4, "central": 12, "south": 26, "east": 15, "west": 18}},
		{Code: "FC-CENTRAL", Name: "Central Hub", Capacity: 200, CurrentLoad: 150,
			ZoneDistance: map[string]float64{"north": 12, "central": 3, "south": 11, "east": 8, "west": 9}},
		{Code: "FC-SOUTH", Name: "South Hub", Capacity: 90, CurrentLoad: 20,
			ZoneDistance: map[string]float64{"north": 27, "central": 11, "south": 5, "east": 14, "west": 16}},
	}
}

const unknownZoneDistance = 50

// scoreCenter: lower is better. Distance dominates, utilization breaks ties.
func scoreCenter(c FulfillmentCenter, zone string) float64 {
	dist, ok := c.ZoneDistance[zone]
	if !ok {
		dist = unknownZoneDistance
	}
	utilization := 0.0
	if c.Capacity > 0 {
		utilization = float64(c.CurrentLoad) / float64(c.Capacity)
	}
	return 0.6*dist + 0.4*(utilization*100)
}

func pickCenter(centers []FulfillmentCenter, zone string) (FulfillmentCenter, float64) {
	best := centers[0]
	bestScore := scoreCenter(best, zone)
	for _, c := range centers[1:] {
		if sc := scoreCenter(c, zone); sc < bestScore {
			best, bestScore = c, sc
		}
	}
	return best, bestScore
}

type RoutingResult struct {
	OrderID string  `json:"order_id"`
	Center  string  `json:"fulfillment_center"`
	Score   float64 `json:"score"`
}

// OptimizeRouting stamps the best-scoring fulfillment center on the order and
// records the decision in the status history.
func (s *Service) OptimizeRouting(ctx context.Context, orderID, changedBy string) (RoutingResult, error) {
	agg, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return RoutingResult{}, err
	}
	center, score := pickCenter(s.centers, agg.Order.DeliveryZone)
	if _, err := s.store.SetFulfillmentCenter(ctx, orderID, center.Code, changedBy); err != nil {
		return RoutingResult{}, err
	}
	return RoutingResult{OrderID: orderID, Center: center.Code, Score: score}, nil
}

// remainderItems computes what a partial fulfillment leaves unserved: for each
// item, ordered qty minus the fulfillable qty (missing product = nothing
// fulfillable). Fulfillable product ids not on the order are rejected.
func remainderItems(items []OrderItem, fulfillable map[int64]int) ([]OrderItem, error) {
	onOrder := make(map[int64]bool, len(items))
	for _, it := range items {
		onOrder[it.ProductID] = true
	}
	for pid, qty := range fulfillable {
		if !onOrder[pid] {
			return nil, fmt.Errorf("%w: product %d not on order", ErrInvalidInput, pid)
		}
		if qty < 0 {
			return nil, fmt.Errorf("%w: negative fulfillable qty for product %d", ErrInvalidInput, pid)
		}
	}

	var rest []OrderItem
	for _, it := range items {
		left := it.Qty - fulfillable[it.ProductID]
		if left > it.Qty {
			left = it.Qty
		}
		if left > 0 {
			rest = append(rest, OrderItem{ProductID: it.ProductID, Qty: left, UnitPrice: it.UnitPrice})
		}
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i].ProductID < rest[j].ProductID })
	return rest, nil
}

type SplitResult struct {
	Original Order `json:"original"`
	Child    Order `json:"child"`
}

// PartialFulfillment splits the unserved remainder into a child order and marks
// the original PARTIALLY_FULFILLED.
func (s *Service) PartialFulfillment(ctx context.Context, orderID string, fulfillable map[int64]int, changedBy, trace string) (SplitResult, error) {
	agg, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return SplitResult{}, err
	}
	rest, err := remainderItems(agg.Items, fulfillable)
	if err != nil {
		return SplitResult{}, err
	}
	if len(rest) == 0 {
		return SplitResult{}, fmt.Errorf("%w: order %s is fully fulfillable", ErrNothingToFulfill, orderID)
	}

	total := decimal.Zero
	for _, it := range rest {
		total = total.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Qty))))
	}
	child := Order{
		ID:              uuid.NewString(),
		OrderNumber:     NewOrderNumber(s.now().UTC()),
		ExternalID:      uuid.NewString(),
		CustomerID:      agg.Order.CustomerID,
		Status:          StatusPending,
		PaymentStatus:   PaymentPending,
		Total:           total,
		DeliveryAddress: agg.Order.DeliveryAddress,
		DeliveryZone:    agg.Order.DeliveryZone,
	}

	created, err := s.store.SplitOrder(ctx, orderID, child, rest, changedBy)
	if err != nil {
		return SplitResult{}, err
	}
	original, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return SplitResult{}, err
	}
	s.cacheStatus(ctx, original.Order)
	s.publish(s.changed, EventOrderStatusChanged, orderID, trace, OrderStatusChangedPayload{
		OrderID: orderID, From: agg.Order.Status, To: StatusPartiallyFulfilled,
		Reason: "Remainder moved to " + created.OrderNumber,
	})
	return SplitResult{Original: original.Order, Child: created}, nil
}
