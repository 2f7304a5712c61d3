package inventory

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-procure/internal/platform/db"
	"github.com/odyssey-erp/odyssey-procure/internal/shared"
)

const (
	stockTable     = "inventory_stock"
	movementsTable = "stock_movements"
)

var stockColumns = []string{
	"item_code", "item_name", "warehouse", "uom", "opening", "current_qty", "reserved",
	"current_qty - reserved AS available", "unit_cost", "ROUND(current_qty * unit_cost, 2) AS total_value",
	"seq", "last_movement_at", "updated_at",
}

var movementColumns = []string{
	"id", "seq", "item_code", "item_name", "warehouse", "movement_type", "quantity", "unit_cost",
	"balance_before", "balance_after", "reference_kind", "reference_code", "remarks", "created_by", "created_at",
}

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool    *pgxpool.Pool
	builder squirrel.StatementBuilderType
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{
		pool:    pool,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// WithTx executes the callback inside a READ COMMITTED transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, "inventory", func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

// GetStock reads a stock row without locking.
func (r *Repository) GetStock(ctx context.Context, key Key) (Stock, error) {
	q := r.builder.Select(stockColumns...).From(stockTable).
		Where(squirrel.Eq{"item_code": key.ItemCode, "warehouse": key.Warehouse})
	sql, args, err := q.ToSql()
	if err != nil {
		return Stock{}, fmt.Errorf("build query: %w", err)
	}
	var stock Stock
	if err := pgxscan.Get(ctx, r.pool, &stock, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return Stock{}, ErrStockNotFound
		}
		return Stock{}, fmt.Errorf("get stock: %w", err)
	}
	return stock, nil
}

// ListStock returns a page of stock rows and the unpaged total.
func (r *Repository) ListStock(ctx context.Context, filter StockFilter) ([]Stock, int, error) {
	where := squirrel.And{}
	if filter.ItemCode != "" {
		where = append(where, squirrel.ILike{"item_code": "%" + filter.ItemCode + "%"})
	}
	if filter.Warehouse != "" {
		where = append(where, squirrel.Eq{"warehouse": filter.Warehouse})
	}
	if filter.OnlyShort {
		where = append(where, squirrel.Expr("current_qty - reserved <= 0"))
	}

	countSQL, countArgs, err := r.builder.Select("COUNT(*)").From(stockTable).Where(where).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count: %w", err)
	}
	var total int
	if err := r.pool.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count stock: %w", err)
	}

	q := r.builder.Select(stockColumns...).From(stockTable).Where(where).
		OrderBy("item_code", "warehouse").
		Limit(uint64(filter.PerPage)).
		Offset(uint64(shared.Offset(filter.Page, filter.PerPage)))
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build query: %w", err)
	}
	var rows []Stock
	if err := pgxscan.Select(ctx, r.pool, &rows, sql, args...); err != nil {
		return nil, 0, fmt.Errorf("select stock: %w", err)
	}
	return rows, total, nil
}

// ListMovements returns ledger entries in per-key sequence order.
func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	q := r.builder.Select(movementColumns...).From(movementsTable)
	if filter.ItemCode != "" {
		q = q.Where(squirrel.Eq{"item_code": filter.ItemCode, "warehouse": filter.Warehouse})
	}
	if filter.Type != "" {
		q = q.Where(squirrel.Eq{"movement_type": string(filter.Type)})
	}
	if filter.ReferenceKind != "" {
		q = q.Where(squirrel.Eq{"reference_kind": filter.ReferenceKind})
	}
	if filter.ReferenceCode != "" {
		q = q.Where(squirrel.Eq{"reference_code": filter.ReferenceCode})
	}
	if !filter.From.IsZero() {
		q = q.Where(squirrel.GtOrEq{"created_at": filter.From})
	}
	if !filter.To.IsZero() {
		q = q.Where(squirrel.LtOrEq{"created_at": filter.To})
	}
	q = q.OrderBy("item_code", "warehouse", "seq").Limit(uint64(filter.Limit))

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var movements []Movement
	if err := pgxscan.Select(ctx, r.pool, &movements, sql, args...); err != nil {
		return nil, fmt.Errorf("select movements: %w", err)
	}
	return movements, nil
}

type txRepo struct {
	tx      pgx.Tx
	builder squirrel.StatementBuilderType
}

// NewTxRepository binds the row operations to an open transaction. The
// procurement repository uses it to post stock effects on its own tx.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepo{tx: tx, builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)}
}

func (r *txRepo) LockStock(ctx context.Context, key Key, create bool) (Stock, error) {
	if create {
		// Materialise the row so concurrent first receipts queue on the same lock.
		if _, err := r.tx.Exec(ctx, `
			INSERT INTO inventory_stock (item_code, warehouse)
			VALUES ($1, $2)
			ON CONFLICT (item_code, warehouse) DO NOTHING`, key.ItemCode, key.Warehouse); err != nil {
			return Stock{}, fmt.Errorf("ensure stock row: %w", err)
		}
	}
	sql, args, err := r.builder.Select(stockColumns...).From(stockTable).
		Where(squirrel.Eq{"item_code": key.ItemCode, "warehouse": key.Warehouse}).
		Suffix("FOR UPDATE").ToSql()
	if err != nil {
		return Stock{}, fmt.Errorf("build lock: %w", err)
	}
	var stock Stock
	if err := pgxscan.Get(ctx, r.tx, &stock, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return Stock{}, ErrStockNotFound
		}
		return Stock{}, fmt.Errorf("lock stock: %w", err)
	}
	return stock, nil
}

func (r *txRepo) SaveStock(ctx context.Context, s Stock) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO inventory_stock (item_code, item_name, warehouse, uom, opening, current_qty, reserved, unit_cost, seq, last_movement_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (item_code, warehouse) DO UPDATE SET
			item_name = EXCLUDED.item_name,
			uom = EXCLUDED.uom,
			current_qty = EXCLUDED.current_qty,
			reserved = EXCLUDED.reserved,
			unit_cost = EXCLUDED.unit_cost,
			seq = EXCLUDED.seq,
			last_movement_at = EXCLUDED.last_movement_at,
			updated_at = EXCLUDED.updated_at`,
		s.ItemCode, s.ItemName, s.Warehouse, s.UOM, s.Opening, s.Current, s.Reserved, s.UnitCost, s.Seq, s.LastMovementAt, s.UpdatedAt)
	return err
}

func (r *txRepo) InsertMovement(ctx context.Context, m Movement) error {
	sql, args, err := r.builder.Insert(movementsTable).Columns(movementColumns...).Values(
		m.ID, m.Seq, m.ItemCode, m.ItemName, m.Warehouse, string(m.Type), m.Quantity, m.UnitCost,
		m.BalanceBefore, m.BalanceAfter, m.ReferenceKind, m.ReferenceCode, m.Remarks, m.CreatedBy, m.CreatedAt,
	).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	_, err = r.tx.Exec(ctx, sql, args...)
	return err
}
