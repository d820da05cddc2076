package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct{ DB *pgxpool.Pool }

const orderCols = `id, order_number, external_id, customer_id, status, payment_status, total,
	delivery_address, delivery_zone, retry_count, bundle_id, fulfillment_center,
	COALESCE(parent_order_id::text, ''), created_at, updated_at`

type rowScanner interface{ Scan(dest ...any) error }

func scanOrder(row rowScanner) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.OrderNumber, &o.ExternalID, &o.CustomerID, &o.Status, &o.PaymentStatus,
		&o.Total, &o.DeliveryAddress, &o.DeliveryZone, &o.RetryCount, &o.BundleID,
		&o.FulfillmentCenter, &o.ParentOrderID, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

func collectOrders(rows pgx.Rows) ([]Order, error) {
	defer rows.Close()
	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// CreateOrder writes the order row, all item rows and the opening history row in
// one transaction. Idempotent via external_id: an existing order short-circuits.
func (r *Repo) CreateOrder(ctx context.Context, o Order, items []OrderItem, createdBy string) (Order, bool, error) {
	row := r.DB.QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE external_id=$1`, o.ExternalID)
	if existing, err := scanOrder(row); err == nil {
		return existing, true, nil
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return Order{}, false, err
	}

	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Order{}, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row = tx.QueryRow(ctx, `
		INSERT INTO orders(id, order_number, external_id, customer_id, status, payment_status, total,
		                   delivery_address, delivery_zone)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING `+orderCols,
		o.ID, o.OrderNumber, o.ExternalID, o.CustomerID, o.Status, o.PaymentStatus, o.Total,
		o.DeliveryAddress, o.DeliveryZone)
	created, err := scanOrder(row)
	if err != nil {
		return Order{}, false, err
	}

	for _, it := range items {
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items(order_id, product_id, qty, unit_price)
			VALUES ($1,$2,$3,$4)`,
			o.ID, it.ProductID, it.Qty, it.UnitPrice); err != nil {
			return Order{}, false, err
		}
	}

	if err := appendHistory(ctx, tx, o.ID, o.Status, "Order created", createdBy); err != nil {
		return Order{}, false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Order{}, false, err
	}
	return created, false, nil
}

func appendHistory(ctx context.Context, tx pgx.Tx, orderID string, status Status, reason, changedBy string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO order_status_history(order_id, status, reason, changed_by)
		VALUES ($1,$2,$3,$4)`, orderID, status, reason, changedBy)
	return err
}

func (r *Repo) GetOrder(ctx context.Context, id string) (Aggregate, error) {
	row := r.DB.QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE id=$1`, id)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Aggregate{}, ErrNotFound
	}
	if err != nil {
		return Aggregate{}, err
	}

	items, err := r.ItemsForOrder(ctx, id)
	if err != nil {
		return Aggregate{}, err
	}

	rows, err := r.DB.Query(ctx, `
		SELECT id, order_id, status, reason, changed_by, changed_at
		FROM order_status_history WHERE order_id=$1 ORDER BY id`, id)
	if err != nil {
		return Aggregate{}, err
	}
	defer rows.Close()
	var hist []StatusHistory
	for rows.Next() {
		var h StatusHistory
		if err := rows.Scan(&h.ID, &h.OrderID, &h.Status, &h.Reason, &h.ChangedBy, &h.ChangedAt); err != nil {
			return Aggregate{}, err
		}
		hist = append(hist, h)
	}
	if err := rows.Err(); err != nil {
		return Aggregate{}, err
	}
	return Aggregate{Order: o, Items: items, History: hist}, nil
}

func (r *Repo) ItemsForOrder(ctx context.Context, id string) ([]OrderItem, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, order_id, product_id, qty, unit_price
		FROM order_items WHERE order_id=$1 ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []OrderItem
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Qty, &it.UnitPrice); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r *Repo) ListOrders(ctx context.Context, limit int) ([]Order, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+orderCols+` FROM orders ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

func (r *Repo) ListByStatus(ctx context.Context, s Status, limit int) ([]Order, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT `+orderCols+` FROM orders WHERE status=$1 ORDER BY created_at DESC LIMIT $2`, s, limit)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

func (r *Repo) ListByCustomer(ctx context.Context, customerID string, limit int) ([]Order, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT `+orderCols+` FROM orders WHERE customer_id=$1 ORDER BY created_at DESC LIMIT $2`, customerID, limit)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

func lockOrder(ctx context.Context, tx pgx.Tx, id string) (Order, error) {
	row := tx.QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE id=$1 FOR UPDATE`, id)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	return o, err
}

// UpdateStatus checks the transition table under a row lock, writes the new
// status and appends exactly one history row, all in one transaction.
func (r *Repo) UpdateStatus(ctx context.Context, id string, to Status, reason, changedBy string) (Order, Status, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Order{}, "", err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	o, err := lockOrder(ctx, tx, id)
	if err != nil {
		return Order{}, "", err
	}
	if !CanTransition(o.Status, to) {
		return Order{}, "", fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, to)
	}

	row := tx.QueryRow(ctx, `
		UPDATE orders SET status=$2, updated_at=now() WHERE id=$1
		RETURNING `+orderCols, id, to)
	updated, err := scanOrder(row)
	if err != nil {
		return Order{}, "", err
	}
	if err := appendHistory(ctx, tx, id, to, reason, changedBy); err != nil {
		return Order{}, "", err
	}
	if err := tx.Commit(ctx); err != nil {
		return Order{}, "", err
	}
	return updated, o.Status, nil
}

// UpdatePayment writes the payment status only. The PENDING->CONFIRMED coupling
// on completed payments lives in the service.
func (r *Repo) UpdatePayment(ctx context.Context, id string, to PaymentStatus) (Order, error) {
	row := r.DB.QueryRow(ctx, `
		UPDATE orders SET payment_status=$2, updated_at=now() WHERE id=$1
		RETURNING `+orderCols, id, to)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	return o, err
}

func (r *Repo) ListConfirmedInZone(ctx context.Context, zone string, since time.Time) ([]Order, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT `+orderCols+` FROM orders
		WHERE status=$1 AND delivery_zone=$2 AND created_at >= $3
		ORDER BY created_at`, StatusConfirmed, zone, since)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

// AssignBundle stamps the bundle id and transitions every member to BUNDLED.
// All-or-nothing: a member that can no longer transition aborts the bundle.
func (r *Repo) AssignBundle(ctx context.Context, bundleID string, orderIDs []string, changedBy string) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, id := range orderIDs {
		o, err := lockOrder(ctx, tx, id)
		if err != nil {
			return err
		}
		if !CanTransition(o.Status, StatusBundled) {
			return fmt.Errorf("%w: %s -> %s (order %s)", ErrInvalidTransition, o.Status, StatusBundled, id)
		}
		if _, err := tx.Exec(ctx, `
			UPDATE orders SET status=$2, bundle_id=$3, updated_at=now() WHERE id=$1`,
			id, StatusBundled, bundleID); err != nil {
			return err
		}
		if err := appendHistory(ctx, tx, id, StatusBundled, "Bundled for delivery as "+bundleID, changedBy); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *Repo) ListFailedBefore(ctx context.Context, cutoff time.Time, maxRetries int) ([]Order, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT `+orderCols+` FROM orders
		WHERE status=$1 AND updated_at <= $2 AND retry_count < $3
		ORDER BY updated_at`, StatusFailed, cutoff, maxRetries)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

// MarkRetry re-queues a FAILED order: bumps the retry count and moves it back to
// PENDING with a history row naming the attempt.
func (r *Repo) MarkRetry(ctx context.Context, id string, changedBy string) (Order, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Order{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	o, err := lockOrder(ctx, tx, id)
	if err != nil {
		return Order{}, err
	}
	if !CanTransition(o.Status, StatusPending) {
		return Order{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, StatusPending)
	}

	row := tx.QueryRow(ctx, `
		UPDATE orders SET status=$2, retry_count=retry_count+1, updated_at=now() WHERE id=$1
		RETURNING `+orderCols, id, StatusPending)
	updated, err := scanOrder(row)
	if err != nil {
		return Order{}, err
	}
	reason := fmt.Sprintf("Automatic retry attempt %d", updated.RetryCount)
	if err := appendHistory(ctx, tx, id, StatusPending, reason, changedBy); err != nil {
		return Order{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Order{}, err
	}
	return updated, nil
}

// SetFulfillmentCenter stamps the routing decision and logs it in the history,
// in one transaction. The status itself does not change.
func (r *Repo) SetFulfillmentCenter(ctx context.Context, id, center, changedBy string) (Order, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Order{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	o, err := lockOrder(ctx, tx, id)
	if err != nil {
		return Order{}, err
	}

	row := tx.QueryRow(ctx, `
		UPDATE orders SET fulfillment_center=$2, updated_at=now() WHERE id=$1
		RETURNING `+orderCols, id, center)
	updated, err := scanOrder(row)
	if err != nil {
		return Order{}, err
	}
	if err := appendHistory(ctx, tx, id, o.Status, "Routed to "+center, changedBy); err != nil {
		return Order{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Order{}, err
	}
	return updated, nil
}

// SplitOrder creates the child order carrying the unfulfillable remainder and
// marks the parent PARTIALLY_FULFILLED, in one transaction.
func (r *Repo) SplitOrder(ctx context.Context, parentID string, child Order, items []OrderItem, changedBy string) (Order, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Order{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	parent, err := lockOrder(ctx, tx, parentID)
	if err != nil {
		return Order{}, err
	}
	if !CanTransition(parent.Status, StatusPartiallyFulfilled) {
		return Order{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, parent.Status, StatusPartiallyFulfilled)
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO orders(id, order_number, external_id, customer_id, status, payment_status, total,
		                   delivery_address, delivery_zone, parent_order_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING `+orderCols,
		child.ID, child.OrderNumber, child.ExternalID, child.CustomerID, child.Status,
		child.PaymentStatus, child.Total, child.DeliveryAddress, child.DeliveryZone, parentID)
	created, err := scanOrder(row)
	if err != nil {
		return Order{}, err
	}
	for _, it := range items {
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items(order_id, product_id, qty, unit_price)
			VALUES ($1,$2,$3,$4)`,
			child.ID, it.ProductID, it.Qty, it.UnitPrice); err != nil {
			return Order{}, err
		}
	}
	if err := appendHistory(ctx, tx, child.ID, child.Status, "Split from "+parent.OrderNumber, changedBy); err != nil {
		return Order{}, err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE orders SET status=$2, updated_at=now() WHERE id=$1`,
		parentID, StatusPartiallyFulfilled); err != nil {
		return Order{}, err
	}
	if err := appendHistory(ctx, tx, parentID, StatusPartiallyFulfilled,
		"Remainder moved to "+child.OrderNumber, changedBy); err != nil {
		return Order{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Order{}, err
	}
	return created, nil
}
