package procurement

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-procure/internal/inventory"
	"github.com/odyssey-erp/odyssey-procure/internal/platform/db"
	"github.com/odyssey-erp/odyssey-procure/internal/procurement/workflow"
	"github.com/odyssey-erp/odyssey-procure/internal/sequence"
	"github.com/odyssey-erp/odyssey-procure/internal/shared"
)

// docTable maps a document type onto its table. The full document lives in
// the doc column; the remaining columns are projections used for filtering
// and reporting.
type docTable[T any] struct {
	name    string
	kind    workflow.Kind
	code    func(T) string
	columns func(T) map[string]any
	filter  func(ListFilter) squirrel.And
}

var (
	prTable = docTable[PurchaseRequest]{
		name: "purchase_requests",
		kind: workflow.KindPR,
		code: func(pr PurchaseRequest) string { return pr.Code },
		columns: func(pr PurchaseRequest) map[string]any {
			return map[string]any{
				"status":       string(pr.Status),
				"priority":     string(pr.Priority),
				"requested_by": pr.RequestedBy,
				"created_at":   pr.CreatedAt,
				"updated_at":   pr.UpdatedAt,
			}
		},
		filter: func(f ListFilter) squirrel.And {
			where := commonFilter(f)
			if f.Priority != "" {
				where = append(where, squirrel.Eq{"priority": string(f.Priority)})
			}
			return where
		},
	}
	poTable = docTable[PurchaseOrder]{
		name: "purchase_orders",
		kind: workflow.KindPO,
		code: func(po PurchaseOrder) string { return po.Code },
		columns: func(po PurchaseOrder) map[string]any {
			return map[string]any{
				"status":         string(po.Status),
				"vendor_code":    po.VendorCode,
				"vendor_name":    po.VendorName,
				"total_amount":   po.TotalAmount,
				"source_pr_code": po.SourcePRCode,
				"created_at":     po.CreatedAt,
				"updated_at":     po.UpdatedAt,
			}
		},
		filter: vendorFilter,
	}
	grTable = docTable[GoodsReceipt]{
		name: "goods_receipts",
		kind: workflow.KindGR,
		code: func(gr GoodsReceipt) string { return gr.Code },
		columns: func(gr GoodsReceipt) map[string]any {
			return map[string]any{
				"status":         string(gr.Status),
				"po_code":        gr.POCode,
				"vendor_code":    gr.VendorCode,
				"warehouse":      gr.Warehouse,
				"total_received": gr.TotalReceived,
				"created_at":     gr.CreatedAt,
				"updated_at":     gr.UpdatedAt,
			}
		},
		filter: poFilter,
	}
	returnTable = docTable[PurchaseReturn]{
		name: "purchase_returns",
		kind: workflow.KindReturn,
		code: func(r PurchaseReturn) string { return r.Code },
		columns: func(r PurchaseReturn) map[string]any {
			return map[string]any{
				"status":              string(r.Status),
				"po_code":             r.POCode,
				"gr_code":             r.GRCode,
				"vendor_code":         r.VendorCode,
				"total_return_amount": r.TotalReturnAmount,
				"created_at":          r.CreatedAt,
				"updated_at":          r.UpdatedAt,
			}
		},
		filter: func(f ListFilter) squirrel.And {
			where := poFilter(f)
			if f.GRCode != "" {
				where = append(where, squirrel.Eq{"gr_code": f.GRCode})
			}
			return where
		},
	}
	billTable = docTable[VendorBill]{
		name: "vendor_bills",
		kind: workflow.KindBill,
		code: func(b VendorBill) string { return b.Code },
		columns: func(b VendorBill) map[string]any {
			return map[string]any{
				"status":         string(b.Status),
				"po_code":        b.POCode,
				"vendor_code":    b.VendorCode,
				"vendor_name":    b.VendorName,
				"invoice_number": b.InvoiceNumber,
				"due_date":       b.DueDate,
				"total_amount":   b.TotalAmount,
				"paid_amount":    b.PaidAmount,
				"pending_amount": b.PendingAmount,
				"created_at":     b.CreatedAt,
				"updated_at":     b.UpdatedAt,
			}
		},
		filter: poFilter,
	}
)

func commonFilter(f ListFilter) squirrel.And {
	where := squirrel.And{}
	if f.Status != "" {
		where = append(where, squirrel.Eq{"status": string(f.Status)})
	}
	if !f.From.IsZero() {
		where = append(where, squirrel.GtOrEq{"created_at": f.From})
	}
	if !f.To.IsZero() {
		where = append(where, squirrel.LtOrEq{"created_at": f.To})
	}
	return where
}

func vendorFilter(f ListFilter) squirrel.And {
	where := commonFilter(f)
	if f.VendorCode != "" {
		where = append(where, squirrel.Eq{"vendor_code": f.VendorCode})
	}
	return where
}

func poFilter(f ListFilter) squirrel.And {
	where := vendorFilter(f)
	if f.POCode != "" {
		where = append(where, squirrel.Eq{"po_code": f.POCode})
	}
	return where
}

type docRow struct {
	Doc []byte `db:"doc"`
}

func decode[T any](t docTable[T], raw []byte) (T, error) {
	var doc T
	if err := json.Unmarshal(raw, &doc); err != nil {
		return doc, fmt.Errorf("decode %s: %w", t.name, err)
	}
	return doc, nil
}

func getDoc[T any](ctx context.Context, q pgxscan.Querier, b squirrel.StatementBuilderType, t docTable[T], code string, lock bool) (T, error) {
	var zero T
	qb := b.Select("doc").From(t.name).Where(squirrel.Eq{"code": code})
	if lock {
		qb = qb.Suffix("FOR UPDATE")
	}
	sql, args, err := qb.ToSql()
	if err != nil {
		return zero, fmt.Errorf("build query: %w", err)
	}
	var row docRow
	if err := pgxscan.Get(ctx, q, &row, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return zero, ErrNotFound
		}
		return zero, fmt.Errorf("get %s: %w", t.name, err)
	}
	return decode(t, row.Doc)
}

func selectDocs[T any](ctx context.Context, q pgxscan.Querier, sql string, args []any, t docTable[T]) ([]T, error) {
	var rows []docRow
	if err := pgxscan.Select(ctx, q, &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("select %s: %w", t.name, err)
	}
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		doc, err := decode(t, row.Doc)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}

func listDocs[T any](ctx context.Context, pool *pgxpool.Pool, b squirrel.StatementBuilderType, t docTable[T], filter ListFilter) ([]T, int, error) {
	where := t.filter(filter)
	countSQL, countArgs, err := b.Select("COUNT(*)").From(t.name).Where(where).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count: %w", err)
	}
	var total int
	if err := pool.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count %s: %w", t.name, err)
	}
	sql, args, err := b.Select("doc").From(t.name).Where(where).
		OrderBy("created_at DESC", "code DESC").
		Limit(uint64(filter.PerPage)).
		Offset(uint64(shared.Offset(filter.Page, filter.PerPage))).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build query: %w", err)
	}
	rows, err := selectDocs(ctx, pool, sql, args, t)
	return rows, total, err
}

func childDocs[T any](ctx context.Context, tx pgx.Tx, b squirrel.StatementBuilderType, t docTable[T], column, parent string) ([]T, error) {
	sql, args, err := b.Select("doc").From(t.name).Where(squirrel.Eq{column: parent}).OrderBy("code").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	return selectDocs(ctx, tx, sql, args, t)
}

func insertDoc[T any](ctx context.Context, tx pgx.Tx, b squirrel.StatementBuilderType, t docTable[T], doc T) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s: %w", t.name, err)
	}
	values := t.columns(doc)
	values["code"] = t.code(doc)
	values["doc"] = raw
	sql, args, err := b.Insert(t.name).SetMap(values).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := tx.Exec(ctx, sql, args...); err != nil {
		if db.IsUniqueViolation(err, "") {
			return shared.Conflict(t.kind.Entity()+" "+t.code(doc)+" already exists", err)
		}
		return fmt.Errorf("insert %s: %w", t.name, err)
	}
	return nil
}

func updateDoc[T any](ctx context.Context, tx pgx.Tx, b squirrel.StatementBuilderType, t docTable[T], doc T) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s: %w", t.name, err)
	}
	sql, args, err := updateDocSQL(b, t, doc, raw)
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	tag, err := tx.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", t.name, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// updateDocSQL never moves updated_at backwards, whatever the writer's clock.
func updateDocSQL[T any](b squirrel.StatementBuilderType, t docTable[T], doc T, raw []byte) (string, []any, error) {
	values := t.columns(doc)
	values["doc"] = raw
	if at, ok := values["updated_at"]; ok {
		values["updated_at"] = squirrel.Expr("GREATEST(updated_at, ?)", at)
	}
	return b.Update(t.name).SetMap(values).Where(squirrel.Eq{"code": t.code(doc)}).ToSql()
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool    *pgxpool.Pool
	builder squirrel.StatementBuilderType
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{
		pool:    pool,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// WithTx wraps callback in a READ COMMITTED transaction. Stock and sequence
// writes share the same transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, "procurement", func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{
			TxRepository: inventory.NewTxRepository(tx),
			PGStore:      sequence.NewPGStore(tx),
			tx:           tx,
			builder:      r.builder,
		})
	})
}

// GetPR returns a purchase request.
func (r *Repository) GetPR(ctx context.Context, code string) (PurchaseRequest, error) {
	return getDoc(ctx, r.pool, r.builder, prTable, code, false)
}

// ListPRs returns a page of purchase requests.
func (r *Repository) ListPRs(ctx context.Context, filter ListFilter) ([]PurchaseRequest, int, error) {
	return listDocs(ctx, r.pool, r.builder, prTable, filter)
}

// GetPO returns a purchase order.
func (r *Repository) GetPO(ctx context.Context, code string) (PurchaseOrder, error) {
	return getDoc(ctx, r.pool, r.builder, poTable, code, false)
}

// ListPOs returns a page of purchase orders.
func (r *Repository) ListPOs(ctx context.Context, filter ListFilter) ([]PurchaseOrder, int, error) {
	return listDocs(ctx, r.pool, r.builder, poTable, filter)
}

// GetGR returns a goods receipt.
func (r *Repository) GetGR(ctx context.Context, code string) (GoodsReceipt, error) {
	return getDoc(ctx, r.pool, r.builder, grTable, code, false)
}

// ListGRs returns a page of goods receipts.
func (r *Repository) ListGRs(ctx context.Context, filter ListFilter) ([]GoodsReceipt, int, error) {
	return listDocs(ctx, r.pool, r.builder, grTable, filter)
}

// GetReturn returns a purchase return.
func (r *Repository) GetReturn(ctx context.Context, code string) (PurchaseReturn, error) {
	return getDoc(ctx, r.pool, r.builder, returnTable, code, false)
}

// ListReturns returns a page of purchase returns.
func (r *Repository) ListReturns(ctx context.Context, filter ListFilter) ([]PurchaseReturn, int, error) {
	return listDocs(ctx, r.pool, r.builder, returnTable, filter)
}

// GetBill returns a vendor bill.
func (r *Repository) GetBill(ctx context.Context, code string) (VendorBill, error) {
	return getDoc(ctx, r.pool, r.builder, billTable, code, false)
}

// ListBills returns a page of vendor bills.
func (r *Repository) ListBills(ctx context.Context, filter ListFilter) ([]VendorBill, int, error) {
	return listDocs(ctx, r.pool, r.builder, billTable, filter)
}

type txRepo struct {
	inventory.TxRepository
	*sequence.PGStore
	tx      pgx.Tx
	builder squirrel.StatementBuilderType
}

func (r *txRepo) LockPR(ctx context.Context, code string) (PurchaseRequest, error) {
	return getDoc(ctx, r.tx, r.builder, prTable, code, true)
}

func (r *txRepo) InsertPR(ctx context.Context, pr PurchaseRequest) error {
	return insertDoc(ctx, r.tx, r.builder, prTable, pr)
}

func (r *txRepo) UpdatePR(ctx context.Context, pr PurchaseRequest) error {
	return updateDoc(ctx, r.tx, r.builder, prTable, pr)
}

func (r *txRepo) LockPO(ctx context.Context, code string) (PurchaseOrder, error) {
	return getDoc(ctx, r.tx, r.builder, poTable, code, true)
}

func (r *txRepo) InsertPO(ctx context.Context, po PurchaseOrder) error {
	return insertDoc(ctx, r.tx, r.builder, poTable, po)
}

func (r *txRepo) UpdatePO(ctx context.Context, po PurchaseOrder) error {
	return updateDoc(ctx, r.tx, r.builder, poTable, po)
}

func (r *txRepo) LockGR(ctx context.Context, code string) (GoodsReceipt, error) {
	return getDoc(ctx, r.tx, r.builder, grTable, code, true)
}

func (r *txRepo) InsertGR(ctx context.Context, gr GoodsReceipt) error {
	return insertDoc(ctx, r.tx, r.builder, grTable, gr)
}

func (r *txRepo) UpdateGR(ctx context.Context, gr GoodsReceipt) error {
	return updateDoc(ctx, r.tx, r.builder, grTable, gr)
}

func (r *txRepo) GRsByPO(ctx context.Context, poCode string) ([]GoodsReceipt, error) {
	return childDocs(ctx, r.tx, r.builder, grTable, "po_code", poCode)
}

func (r *txRepo) LockReturn(ctx context.Context, code string) (PurchaseReturn, error) {
	return getDoc(ctx, r.tx, r.builder, returnTable, code, true)
}

func (r *txRepo) InsertReturn(ctx context.Context, ret PurchaseReturn) error {
	return insertDoc(ctx, r.tx, r.builder, returnTable, ret)
}

func (r *txRepo) UpdateReturn(ctx context.Context, ret PurchaseReturn) error {
	return updateDoc(ctx, r.tx, r.builder, returnTable, ret)
}

func (r *txRepo) ReturnsByGR(ctx context.Context, grCode string) ([]PurchaseReturn, error) {
	return childDocs(ctx, r.tx, r.builder, returnTable, "gr_code", grCode)
}

func (r *txRepo) LockBill(ctx context.Context, code string) (VendorBill, error) {
	return getDoc(ctx, r.tx, r.builder, billTable, code, true)
}

func (r *txRepo) InsertBill(ctx context.Context, bill VendorBill) error {
	return insertDoc(ctx, r.tx, r.builder, billTable, bill)
}

func (r *txRepo) UpdateBill(ctx context.Context, bill VendorBill) error {
	return updateDoc(ctx, r.tx, r.builder, billTable, bill)
}

func (r *txRepo) BillsByPO(ctx context.Context, poCode string) ([]VendorBill, error) {
	return childDocs(ctx, r.tx, r.builder, billTable, "po_code", poCode)
}

var (
	_ RepositoryPort = (*Repository)(nil)
	_ TxRepository   = (*txRepo)(nil)
)
