package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/leafyhealth/fulfillment/internal/orders"
	"github.com/shopspring/decimal"
)

type Repo struct{ DB *pgxpool.Pool }

const recordCols = `product_id, quantity, reserved_quantity, location, batch_number, expiry_date, reorder_level, updated_at`

func scanRecord(row interface{ Scan(...any) error }) (StockRecord, error) {
	var r StockRecord
	err := row.Scan(&r.ProductID, &r.Quantity, &r.ReservedQuantity, &r.Location,
		&r.BatchNumber, &r.ExpiryDate, &r.ReorderLevel, &r.UpdatedAt)
	return r, err
}

// lockRecord locks the stock row for update, lazily creating it at quantity
// zero in the default location when the product has never been stocked.
func lockRecord(ctx context.Context, tx pgx.Tx, productID int64) (StockRecord, error) {
	row := tx.QueryRow(ctx, `SELECT `+recordCols+` FROM stock_records WHERE product_id=$1 FOR UPDATE`, productID)
	rec, err := scanRecord(row)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return StockRecord{}, err
	}
	row = tx.QueryRow(ctx, `
		INSERT INTO stock_records(product_id, quantity, location, reorder_level)
		VALUES ($1, 0, $2, $3)
		RETURNING `+recordCols, productID, DefaultLocation, DefaultReorderLevel)
	return scanRecord(row)
}

func insertEntry(ctx context.Context, tx pgx.Tx, productID int64, kind Kind, delta int, unitCost decimal.Decimal, reference, note, performedBy string) (LedgerEntry, error) {
	var e LedgerEntry
	err := tx.QueryRow(ctx, `
		INSERT INTO inventory_ledger(product_id, kind, quantity, unit_cost, reference, note, performed_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING id, product_id, kind, quantity, unit_cost, reference, note, performed_by, created_at`,
		productID, kind, delta, unitCost, reference, note, performedBy).
		Scan(&e.ID, &e.ProductID, &e.Kind, &e.Quantity, &e.UnitCost, &e.Reference, &e.Note, &e.PerformedBy, &e.CreatedAt)
	return e, err
}

func setQuantity(ctx context.Context, tx pgx.Tx, productID int64, qty int) (StockRecord, error) {
	row := tx.QueryRow(ctx, `
		UPDATE stock_records SET quantity=$2, updated_at=now() WHERE product_id=$1
		RETURNING `+recordCols, productID, qty)
	return scanRecord(row)
}

// syncAlerts resolves active alerts the new quantity no longer warrants and
// raises the one it does. The partial unique index keeps raising idempotent.
func syncAlerts(ctx context.Context, tx pgx.Tx, productID int64, qty, reorderLevel int) (*StockAlert, error) {
	want := ClassifyAlert(qty, reorderLevel)

	if _, err := tx.Exec(ctx, `
		UPDATE stock_alerts SET status=$3, resolved_at=now()
		WHERE product_id=$1 AND status=$2 AND alert_type <> $4`,
		productID, AlertActive, AlertResolved, string(want)); err != nil {
		return nil, err
	}
	if want == "" {
		return nil, nil
	}

	var a StockAlert
	err := tx.QueryRow(ctx, `
		INSERT INTO stock_alerts(product_id, alert_type, status, message)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (product_id, alert_type) WHERE status='ACTIVE' DO NOTHING
		RETURNING id, product_id, alert_type, status, message, created_at, resolved_at`,
		productID, want, AlertActive, alertMessage(want, productID, qty)).
		Scan(&a.ID, &a.ProductID, &a.Type, &a.Status, &a.Message, &a.CreatedAt, &a.ResolvedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil // already active, nothing newly raised
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

type EntryInput struct {
	ProductID   int64
	Kind        Kind
	Qty         int
	UnitCost    decimal.Decimal
	Reference   string
	Note        string
	PerformedBy string
}

type EntryResult struct {
	Record StockRecord `json:"record"`
	Entry  LedgerEntry `json:"entry"`
	Raised *StockAlert `json:"raised_alert,omitempty"`
}

// ApplyEntry performs one stock movement in one transaction: lock (or create)
// the record, compute the new quantity and signed delta, append the ledger
// row, update the record and sync alerts. Underflow writes nothing.
func (r *Repo) ApplyEntry(ctx context.Context, in EntryInput) (EntryResult, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return EntryResult{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rec, err := lockRecord(ctx, tx, in.ProductID)
	if err != nil {
		return EntryResult{}, err
	}
	next, delta, err := NextQuantity(in.Kind, rec.Quantity, in.Qty)
	if err != nil {
		return EntryResult{}, fmt.Errorf("product %d: %w", in.ProductID, err)
	}

	entry, err := insertEntry(ctx, tx, in.ProductID, in.Kind, delta, in.UnitCost, in.Reference, in.Note, in.PerformedBy)
	if err != nil {
		return EntryResult{}, err
	}
	updated, err := setQuantity(ctx, tx, in.ProductID, next)
	if err != nil {
		return EntryResult{}, err
	}
	raised, err := syncAlerts(ctx, tx, in.ProductID, next, rec.ReorderLevel)
	if err != nil {
		return EntryResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return EntryResult{}, err
	}
	return EntryResult{Record: updated, Entry: entry, Raised: raised}, nil
}

type AdjustmentInput struct {
	ID          string
	ProductID   int64
	NewQuantity int
	Reason      string
	PerformedBy string
	ApprovedBy  string
}

type AdjustmentResult struct {
	Adjustment Adjustment  `json:"adjustment"`
	Entry      LedgerEntry `json:"entry"`
	Record     StockRecord `json:"record"`
	Raised     *StockAlert `json:"raised_alert,omitempty"`
}

// ApplyAdjustment records the manual correction and its ADJUSTMENT ledger
// counterpart in one transaction; the ledger row references the adjustment id.
func (r *Repo) ApplyAdjustment(ctx context.Context, in AdjustmentInput) (AdjustmentResult, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return AdjustmentResult{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rec, err := lockRecord(ctx, tx, in.ProductID)
	if err != nil {
		return AdjustmentResult{}, err
	}
	next, delta, err := NextQuantity(KindAdjustment, rec.Quantity, in.NewQuantity)
	if err != nil {
		return AdjustmentResult{}, fmt.Errorf("product %d: %w", in.ProductID, err)
	}

	var adj Adjustment
	err = tx.QueryRow(ctx, `
		INSERT INTO inventory_adjustments(id, product_id, old_quantity, new_quantity, reason, performed_by, approved_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING id, product_id, old_quantity, new_quantity, reason, performed_by, approved_by, created_at`,
		in.ID, in.ProductID, rec.Quantity, next, in.Reason, in.PerformedBy, in.ApprovedBy).
		Scan(&adj.ID, &adj.ProductID, &adj.OldQuantity, &adj.NewQuantity, &adj.Reason,
			&adj.PerformedBy, &adj.ApprovedBy, &adj.CreatedAt)
	if err != nil {
		return AdjustmentResult{}, err
	}

	entry, err := insertEntry(ctx, tx, in.ProductID, KindAdjustment, delta, decimal.Zero,
		"ADJ:"+adj.ID, in.Reason, in.PerformedBy)
	if err != nil {
		return AdjustmentResult{}, err
	}
	updated, err := setQuantity(ctx, tx, in.ProductID, next)
	if err != nil {
		return AdjustmentResult{}, err
	}
	raised, err := syncAlerts(ctx, tx, in.ProductID, next, rec.ReorderLevel)
	if err != nil {
		return AdjustmentResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return AdjustmentResult{}, err
	}
	return AdjustmentResult{Adjustment: adj, Entry: entry, Record: updated, Raised: raised}, nil
}

func (r *Repo) Stock(ctx context.Context, productID int64) (StockRecord, error) {
	row := r.DB.QueryRow(ctx, `SELECT `+recordCols+` FROM stock_records WHERE product_id=$1`, productID)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return StockRecord{}, ErrNotFound
	}
	return rec, err
}

func collectRecords(rows pgx.Rows) ([]StockRecord, error) {
	defer rows.Close()
	var out []StockRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *Repo) AllStock(ctx context.Context) ([]StockRecord, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+recordCols+` FROM stock_records ORDER BY product_id`)
	if err != nil {
		return nil, err
	}
	return collectRecords(rows)
}

// LowStock uses each record's own reorder level, not a global constant.
func (r *Repo) LowStock(ctx context.Context) ([]StockRecord, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT `+recordCols+` FROM stock_records WHERE quantity <= reorder_level ORDER BY product_id`)
	if err != nil {
		return nil, err
	}
	return collectRecords(rows)
}

// Entries lists ledger rows, newest first. productID 0 means all products.
func (r *Repo) Entries(ctx context.Context, productID int64, limit int) ([]LedgerEntry, error) {
	const cols = `id, product_id, kind, quantity, unit_cost, reference, note, performed_by, created_at`
	var (
		rows pgx.Rows
		err  error
	)
	if productID > 0 {
		rows, err = r.DB.Query(ctx, `
			SELECT `+cols+` FROM inventory_ledger WHERE product_id=$1 ORDER BY id DESC LIMIT $2`, productID, limit)
	} else {
		rows, err = r.DB.Query(ctx, `
			SELECT `+cols+` FROM inventory_ledger ORDER BY id DESC LIMIT $1`, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LedgerEntry
	for rows.Next() {
		var e LedgerEntry
		if err := rows.Scan(&e.ID, &e.ProductID, &e.Kind, &e.Quantity, &e.UnitCost, &e.Reference, &e.Note, &e.PerformedBy, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *Repo) ActiveAlerts(ctx context.Context) ([]StockAlert, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, product_id, alert_type, status, message, created_at, resolved_at
		FROM stock_alerts WHERE status=$1 ORDER BY created_at DESC`, AlertActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StockAlert
	for rows.Next() {
		var a StockAlert
		if err := rows.Scan(&a.ID, &a.ProductID, &a.Type, &a.Status, &a.Message, &a.CreatedAt, &a.ResolvedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// CommitOrderStock deducts every item of a confirmed order, all or nothing:
// each stock row is locked in turn; any shortfall rolls the whole commit back
// and reports per-product details. Re-delivered events short-circuit on the
// ledger rows already written for the order number.
func (r *Repo) CommitOrderStock(ctx context.Context, orderNumber string, items []orders.ItemDemand) (ok bool, shortfalls []orders.ShortfallDetail, raised []StockAlert, err error) {
	var n int
	if err := r.DB.QueryRow(ctx, `
		SELECT COUNT(*) FROM inventory_ledger WHERE reference=$1 AND kind=$2`,
		orderNumber, KindOut).Scan(&n); err != nil {
		return false, nil, nil, err
	}
	if n > 0 {
		return true, nil, nil, nil // already committed
	}

	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, nil, nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, it := range items {
		rec, err := lockRecord(ctx, tx, it.ProductID)
		if err != nil {
			return false, nil, nil, err
		}
		if rec.Quantity < it.Qty {
			shortfalls = append(shortfalls, orders.ShortfallDetail{
				ProductID: it.ProductID, Required: it.Qty, Available: rec.Quantity,
			})
			continue
		}
		next := rec.Quantity - it.Qty
		if _, err := insertEntry(ctx, tx, it.ProductID, KindOut, -it.Qty, decimal.Zero,
			orderNumber, "order stock commit", "stock-worker"); err != nil {
			return false, nil, nil, err
		}
		if _, err := setQuantity(ctx, tx, it.ProductID, next); err != nil {
			return false, nil, nil, err
		}
		alert, err := syncAlerts(ctx, tx, it.ProductID, next, rec.ReorderLevel)
		if err != nil {
			return false, nil, nil, err
		}
		if alert != nil {
			raised = append(raised, *alert)
		}
	}

	if len(shortfalls) > 0 {
		return false, shortfalls, nil, nil // rollback via defer
	}
	if err := tx.Commit(ctx); err != nil {
		return false, nil, nil, err
	}
	return true, nil, raised, nil
}

// ReleaseOrderStock writes compensating IN rows for a previous commit.
// Idempotent: nothing to release, or already released, returns false.
func (r *Repo) ReleaseOrderStock(ctx context.Context, orderNumber string) (bool, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var releasedBefore int
	if err := tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM inventory_ledger WHERE reference=$1 AND kind=$2`,
		orderNumber, KindIn).Scan(&releasedBefore); err != nil {
		return false, err
	}
	if releasedBefore > 0 {
		return false, nil
	}

	rows, err := tx.Query(ctx, `
		SELECT product_id, SUM(-quantity) FROM inventory_ledger
		WHERE reference=$1 AND kind=$2 GROUP BY product_id`, orderNumber, KindOut)
	if err != nil {
		return false, err
	}
	type rec struct {
		pid int64
		qty int
	}
	var recs []rec
	for rows.Next() {
		var x rec
		if err := rows.Scan(&x.pid, &x.qty); err != nil {
			rows.Close()
			return false, err
		}
		recs = append(recs, x)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return false, err
	}
	if len(recs) == 0 {
		return false, nil
	}

	for _, x := range recs {
		cur, err := lockRecord(ctx, tx, x.pid)
		if err != nil {
			return false, err
		}
		next := cur.Quantity + x.qty
		if _, err := insertEntry(ctx, tx, x.pid, KindIn, x.qty, decimal.Zero,
			orderNumber, "order stock release", "stock-worker"); err != nil {
			return false, err
		}
		if _, err := setQuantity(ctx, tx, x.pid, next); err != nil {
			return false, err
		}
		if _, err := syncAlerts(ctx, tx, x.pid, next, cur.ReorderLevel); err != nil {
			return false, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Reconcile compares every record's live quantity against its ledger sum.
func (r *Repo) Reconcile(ctx context.Context) ([]Drift, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT r.product_id, r.quantity, COALESCE(SUM(l.quantity), 0) AS ledger_sum
		FROM stock_records r
		LEFT JOIN inventory_ledger l ON l.product_id = r.product_id
		GROUP BY r.product_id, r.quantity
		HAVING r.quantity <> COALESCE(SUM(l.quantity), 0)
		ORDER BY r.product_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Drift
	for rows.Next() {
		var d Drift
		if err := rows.Scan(&d.ProductID, &d.LiveQuantity, &d.LedgerSum); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
