package reports

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Document selects the aggregate behind one summary figure.
type Document int

const (
	DocPurchaseOrders Document = iota + 1
	DocGoodsReceipts
	DocReturns
	DocBills
	DocPendingBills
)

type totalsQuery struct {
	table  string
	amount string
	where  squirrel.Sqlizer
}

var totalsQueries = map[Document]totalsQuery{
	DocPurchaseOrders: {table: "purchase_orders", amount: "total_amount"},
	DocGoodsReceipts:  {table: "goods_receipts", amount: "total_received"},
	DocReturns:        {table: "purchase_returns", amount: "total_return_amount"},
	DocBills:          {table: "vendor_bills", amount: "total_amount"},
	DocPendingBills:   {table: "vendor_bills", amount: "pending_amount", where: squirrel.NotEq{"status": settledBillStatuses}},
}

// PGRepository reads the projected document columns directly from the primary.
type PGRepository struct {
	pool    *pgxpool.Pool
	builder squirrel.StatementBuilderType
}

// NewPGRepository constructs a report repository.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool, builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)}
}

func (r *PGRepository) selectInto(ctx context.Context, dst any, q squirrel.SelectBuilder) error {
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("reports: build query: %w", err)
	}
	return pgxscan.Select(ctx, r.pool, dst, sql, args...)
}

// PendingPOs lists orders in statuses, newest first.
func (r *PGRepository) PendingPOs(ctx context.Context, statuses []string) ([]PendingPO, error) {
	var rows []PendingPO
	q := r.builder.
		Select("code", "vendor_code", "vendor_name", "total_amount", "status",
			"(doc->>'delivery_date')::timestamptz AS delivery_date", "created_at").
		From("purchase_orders").
		Where(squirrel.Eq{"status": statuses}).
		OrderBy("created_at DESC", "code DESC")
	return rows, r.selectInto(ctx, &rows, q)
}

// OpenBills lists bills that are neither paid nor cancelled, earliest due first.
func (r *PGRepository) OpenBills(ctx context.Context) ([]OpenBill, error) {
	var rows []OpenBill
	q := r.builder.
		Select("code", "po_code", "vendor_code", "vendor_name", "invoice_number", "status",
			"total_amount", "pending_amount", "due_date").
		From("vendor_bills").
		Where(squirrel.NotEq{"status": settledBillStatuses}).
		OrderBy("due_date", "code")
	return rows, r.selectInto(ctx, &rows, q)
}

// VendorOrders aggregates orders per vendor. Orders in completed count as
// completed.
func (r *PGRepository) VendorOrders(ctx context.Context, completed []string) ([]VendorOrders, error) {
	var rows []VendorOrders
	q := r.builder.
		Select("vendor_code", "MAX(vendor_name) AS vendor_name", "COUNT(*) AS total_orders").
		Column(squirrel.Expr("COUNT(*) FILTER (WHERE status = ANY(?)) AS completed_orders", completed)).
		Column("COALESCE(SUM(total_amount), 0) AS total_value").
		From("purchase_orders").
		GroupBy("vendor_code")
	return rows, r.selectInto(ctx, &rows, q)
}

// ReturnsByVendor counts purchase returns per vendor.
func (r *PGRepository) ReturnsByVendor(ctx context.Context) (map[string]int, error) {
	return r.countBy(ctx, "purchase_returns", "vendor_code")
}

// POStatusCounts counts purchase orders per status.
func (r *PGRepository) POStatusCounts(ctx context.Context) (map[string]int, error) {
	return r.countBy(ctx, "purchase_orders", "status")
}

func (r *PGRepository) countBy(ctx context.Context, table, column string) (map[string]int, error) {
	var rows []struct {
		Key   string `db:"key"`
		Count int    `db:"count"`
	}
	q := r.builder.Select(column+" AS key", "COUNT(*) AS count").From(table).GroupBy(column)
	if err := r.selectInto(ctx, &rows, q); err != nil {
		return nil, err
	}
	out := make(map[string]int, len(rows))
	for _, row := range rows {
		out[row.Key] = row.Count
	}
	return out, nil
}

// Totals counts one document kind and sums its headline amount.
func (r *PGRepository) Totals(ctx context.Context, doc Document) (DocumentTotals, error) {
	spec, ok := totalsQueries[doc]
	if !ok {
		return DocumentTotals{}, fmt.Errorf("reports: unknown document %d", doc)
	}
	q := r.builder.
		Select("COUNT(*) AS count", fmt.Sprintf("COALESCE(SUM(%s), 0) AS value", spec.amount)).
		From(spec.table)
	if spec.where != nil {
		q = q.Where(spec.where)
	}
	var out DocumentTotals
	sql, args, err := q.ToSql()
	if err != nil {
		return DocumentTotals{}, fmt.Errorf("reports: build query: %w", err)
	}
	if err := pgxscan.Get(ctx, r.pool, &out, sql, args...); err != nil {
		return DocumentTotals{}, err
	}
	return out, nil
}

var _ Repository = (*PGRepository)(nil)
