package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-procure/internal/shared"
)

// RepositoryPort abstracts repository usage for the ledger.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetStock(ctx context.Context, key Key) (Stock, error)
	ListStock(ctx context.Context, filter StockFilter) ([]Stock, int, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error)
}

// TxRepository exposes the row-level operations the ledger runs inside a
// transaction. LockStock must hold an exclusive lock on the row until the
// transaction ends; with create set, a missing row is inserted empty first.
type TxRepository interface {
	LockStock(ctx context.Context, key Key, create bool) (Stock, error)
	SaveStock(ctx context.Context, stock Stock) error
	InsertMovement(ctx context.Context, movement Movement) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Config groups optional ledger settings.
type Config struct {
	DefaultWarehouse string
	Now              func() time.Time
	Logger           *slog.Logger
}

// Ledger owns stock balances and the movement log.
type Ledger struct {
	repo             RepositoryPort
	audit            AuditPort
	defaultWarehouse string
	now              func() time.Time
	logger           *slog.Logger
}

// DefaultWarehouse is used when callers omit the warehouse.
const DefaultWarehouse = "MAIN"

// NewLedger builds a Ledger.
func NewLedger(repo RepositoryPort, audit AuditPort, cfg Config) *Ledger {
	l := &Ledger{repo: repo, audit: audit, defaultWarehouse: cfg.DefaultWarehouse, now: cfg.Now, logger: cfg.Logger}
	if l.defaultWarehouse == "" {
		l.defaultWarehouse = DefaultWarehouse
	}
	if l.now == nil {
		l.now = time.Now
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	return l
}

// Warehouse resolves an optional warehouse to the canonical key part.
func (l *Ledger) Warehouse(w string) string {
	w = strings.TrimSpace(w)
	if w == "" {
		return l.defaultWarehouse
	}
	return w
}

// MovementInput is the public shape of add/remove requests.
type MovementInput struct {
	ItemCode  string
	ItemName  string
	Warehouse string
	UOM       string
	Quantity  shared.Quantity
	UnitCost  decimal.Decimal
	Type      MovementType
	Ref       Reference
	Remarks   string
}

// Add receives stock (IN).
func (l *Ledger) Add(ctx context.Context, in MovementInput) (Result, error) {
	return l.apply(ctx, l.mutation(ctx, OpAdd, in))
}

// Remove issues stock (OUT, ISSUE or RETURN). Fails with InsufficientStock
// when current is below the quantity.
func (l *Ledger) Remove(ctx context.Context, in MovementInput) (Result, error) {
	return l.apply(ctx, l.mutation(ctx, OpRemove, in))
}

// Adjust sets current stock to the target quantity.
func (l *Ledger) Adjust(ctx context.Context, itemCode, warehouse string, target shared.Quantity, reason string) (Result, error) {
	return l.apply(ctx, l.mutation(ctx, OpAdjust, MovementInput{
		ItemCode:  itemCode,
		Warehouse: warehouse,
		Quantity:  target,
		Remarks:   reason,
		Ref:       Reference{Kind: "ADJUSTMENT"},
	}))
}

// Reserve earmarks available stock.
func (l *Ledger) Reserve(ctx context.Context, itemCode, warehouse string, qty shared.Quantity) (Stock, error) {
	res, err := l.apply(ctx, l.mutation(ctx, OpReserve, MovementInput{ItemCode: itemCode, Warehouse: warehouse, Quantity: qty}))
	return res.Stock, err
}

// Release returns earmarked stock to available.
func (l *Ledger) Release(ctx context.Context, itemCode, warehouse string, qty shared.Quantity) (Stock, error) {
	res, err := l.apply(ctx, l.mutation(ctx, OpRelease, MovementInput{ItemCode: itemCode, Warehouse: warehouse, Quantity: qty}))
	return res.Stock, err
}

// TransferInput moves stock between two warehouses.
type TransferInput struct {
	ItemCode string
	From     string
	To       string
	Quantity shared.Quantity
	Remarks  string
}

// Transfer posts a TRANSFER pair (out of From, into To) atomically.
func (l *Ledger) Transfer(ctx context.Context, in TransferInput) (Result, Result, error) {
	from, to := l.Warehouse(in.From), l.Warehouse(in.To)
	if from == to {
		return Result{}, Result{}, shared.Validation("source and destination warehouse must differ",
			shared.FieldError{Field: "to_warehouse", Reason: "must differ from from_warehouse"})
	}
	actor := shared.ActorFromContext(ctx)
	out := Mutation{Op: OpRemove, Type: MovementTransfer, ItemCode: in.ItemCode, Warehouse: from, Quantity: in.Quantity,
		Ref: Reference{Kind: "TRANSFER", Code: to}, Remarks: in.Remarks, Actor: actor}
	inbound := Mutation{Op: OpAdd, Type: MovementTransfer, ItemCode: in.ItemCode, Warehouse: to, Quantity: in.Quantity,
		Ref: Reference{Kind: "TRANSFER", Code: from}, Remarks: in.Remarks, Actor: actor}

	var outRes, inRes Result
	err := l.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		// Lock both rows in key order before mutating either.
		keys := []Key{{ItemCode: strings.TrimSpace(in.ItemCode), Warehouse: from}, {ItemCode: strings.TrimSpace(in.ItemCode), Warehouse: to}}
		sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
		for _, k := range keys {
			if _, err := tx.LockStock(ctx, k, true); err != nil {
				return err
			}
		}
		var err error
		if outRes, err = l.Post(ctx, tx, out); err != nil {
			return err
		}
		inbound.UnitCost = outRes.Movement.UnitCost
		inRes, err = l.Post(ctx, tx, inbound)
		return err
	})
	if err != nil {
		return Result{}, Result{}, err
	}
	l.recordAudit(ctx, out, outRes)
	l.recordAudit(ctx, inbound, inRes)
	return outRes, inRes, nil
}

// Query returns the stock row for an item.
func (l *Ledger) Query(ctx context.Context, itemCode, warehouse string) (Stock, error) {
	itemCode = strings.TrimSpace(itemCode)
	if itemCode == "" {
		return Stock{}, shared.Validation("item code required", shared.FieldError{Field: "item_code", Reason: "is required"})
	}
	key := Key{ItemCode: itemCode, Warehouse: l.Warehouse(warehouse)}
	stock, err := l.repo.GetStock(ctx, key)
	if err != nil {
		if errors.Is(err, ErrStockNotFound) {
			return Stock{}, shared.NotFound("stock", key.String())
		}
		return Stock{}, err
	}
	stock.recompute()
	return stock, nil
}

// History lists movements for an item in sequence order.
func (l *Ledger) History(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	if strings.TrimSpace(filter.ItemCode) == "" && filter.ReferenceCode == "" {
		return nil, shared.Validation("item code or reference required")
	}
	if filter.ItemCode != "" {
		filter.Warehouse = l.Warehouse(filter.Warehouse)
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return nil, shared.Validation("invalid range", shared.FieldError{Field: "to", Reason: "must not precede from"})
	}
	if filter.Limit <= 0 || filter.Limit > 1000 {
		filter.Limit = 500
	}
	return l.repo.ListMovements(ctx, filter)
}

// List returns stock rows with paging metadata.
func (l *Ledger) List(ctx context.Context, filter StockFilter) ([]Stock, shared.Pagination, error) {
	filter.Page, filter.PerPage = shared.NormalizePage(filter.Page, filter.PerPage)
	rows, total, err := l.repo.ListStock(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	for i := range rows {
		rows[i].recompute()
	}
	return rows, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

func (l *Ledger) mutation(ctx context.Context, op Op, in MovementInput) Mutation {
	return Mutation{
		Op:        op,
		Type:      in.Type,
		ItemCode:  in.ItemCode,
		ItemName:  in.ItemName,
		Warehouse: in.Warehouse,
		UOM:       in.UOM,
		Quantity:  in.Quantity,
		UnitCost:  in.UnitCost,
		Ref:       in.Ref,
		Remarks:   in.Remarks,
		Actor:     shared.ActorFromContext(ctx),
	}
}

func (l *Ledger) apply(ctx context.Context, m Mutation) (Result, error) {
	var res Result
	err := l.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		res, err = l.Post(ctx, tx, m)
		return err
	})
	if err != nil {
		return Result{}, err
	}
	l.recordAudit(ctx, m, res)
	return res, nil
}

// Post applies one mutation on the caller's transaction. Callers composing
// several documents run all their mutations through the same tx so stock and
// documents commit together.
func (l *Ledger) Post(ctx context.Context, tx TxRepository, m Mutation) (Result, error) {
	m.ItemCode = strings.TrimSpace(m.ItemCode)
	m.Warehouse = l.Warehouse(m.Warehouse)
	if err := validateMutation(m); err != nil {
		return Result{}, err
	}
	m.Quantity = shared.RoundQty(m.Quantity)
	if m.Actor == "" {
		m.Actor = shared.ActorFromContext(ctx)
	}
	key := Key{ItemCode: m.ItemCode, Warehouse: m.Warehouse}

	stock, err := tx.LockStock(ctx, key, m.Op == OpAdd || m.Op == OpAdjust)
	missing := errors.Is(err, ErrStockNotFound)
	if err != nil && !missing {
		return Result{}, fmt.Errorf("inventory: lock %s: %w", key, err)
	}
	if missing {
		stock = Stock{ItemCode: key.ItemCode, Warehouse: key.Warehouse}
	}
	if stock.ItemName == "" {
		stock.ItemName = m.ItemName
	}
	if stock.UOM == "" {
		stock.UOM = m.UOM
	}
	stock.recompute()

	now := l.now().UTC()
	before := stock.Current
	costBefore := stock.UnitCost
	var movementType MovementType
	var movedQty shared.Quantity

	switch m.Op {
	case OpAdd:
		movementType = defaultType(m.Type, MovementIn)
		movedQty = m.Quantity
		if m.UnitCost.IsPositive() {
			value := stock.Current.Mul(stock.UnitCost).Add(m.Quantity.Mul(m.UnitCost))
			stock.UnitCost = value.DivRound(stock.Current.Add(m.Quantity), 6)
		}
		stock.Current = stock.Current.Add(m.Quantity)
	case OpRemove:
		movementType = defaultType(m.Type, MovementOut)
		movedQty = m.Quantity
		if stock.Current.LessThan(m.Quantity) {
			return Result{}, shared.Invariant(shared.CodeInsufficientStock, fmt.Sprintf(
				"insufficient stock for %s: current %s, requested %s", key, stock.Current.StringFixed(4), m.Quantity.StringFixed(4)))
		}
		stock.Current = stock.Current.Sub(m.Quantity)
	case OpAdjust:
		movementType = MovementAdjustment
		delta := m.Quantity.Sub(stock.Current)
		if delta.IsZero() {
			return Result{}, shared.Validation("adjustment does not change stock",
				shared.FieldError{Field: "new_quantity", Reason: "equals current stock"})
		}
		movedQty = delta.Abs()
		stock.Current = m.Quantity
	case OpReserve:
		if missing || stock.Available.LessThan(m.Quantity) {
			return Result{}, shared.Invariant(shared.CodeInsufficientAvailable, fmt.Sprintf(
				"insufficient available stock for %s: available %s, requested %s", key, stock.Available.StringFixed(4), m.Quantity.StringFixed(4)))
		}
		stock.Reserved = stock.Reserved.Add(m.Quantity)
	case OpRelease:
		if missing || stock.Reserved.LessThan(m.Quantity) {
			return Result{}, shared.Invariant(shared.CodeInsufficientReserved, fmt.Sprintf(
				"cannot release %s from %s: reserved %s", m.Quantity.StringFixed(4), key, stock.Reserved.StringFixed(4)))
		}
		stock.Reserved = stock.Reserved.Sub(m.Quantity)
	}

	if stock.Current.IsZero() {
		stock.UnitCost = decimal.Zero
	}
	stock.recompute()
	stock.UpdatedAt = now

	var movement *Movement
	if m.Op != OpReserve && m.Op != OpRelease {
		stock.Seq++
		stock.LastMovementAt = &now
		unitCost := m.UnitCost
		if !unitCost.IsPositive() {
			unitCost = costBefore
		}
		movement = &Movement{
			ID:            uuid.New(),
			Seq:           stock.Seq,
			ItemCode:      stock.ItemCode,
			ItemName:      stock.ItemName,
			Warehouse:     stock.Warehouse,
			Type:          movementType,
			Quantity:      movedQty,
			UnitCost:      unitCost,
			BalanceBefore: before,
			BalanceAfter:  stock.Current,
			ReferenceKind: m.Ref.Kind,
			ReferenceCode: m.Ref.Code,
			Remarks:       m.Remarks,
			CreatedBy:     m.Actor,
			CreatedAt:     now,
		}
	}

	if err := tx.SaveStock(ctx, stock); err != nil {
		return Result{}, fmt.Errorf("inventory: save %s: %w", key, err)
	}
	if movement != nil {
		if err := tx.InsertMovement(ctx, *movement); err != nil {
			return Result{}, fmt.Errorf("inventory: append movement %s: %w", key, err)
		}
	}
	return Result{Stock: stock, Movement: movement}, nil
}

func validateMutation(m Mutation) error {
	var fields []shared.FieldError
	if m.ItemCode == "" {
		fields = append(fields, shared.FieldError{Field: "item_code", Reason: "is required"})
	}
	switch m.Op {
	case OpAdjust:
		if m.Quantity.IsNegative() {
			fields = append(fields, shared.FieldError{Field: "new_quantity", Reason: "must not be negative"})
		}
	case OpAdd, OpRemove, OpReserve, OpRelease:
		if !m.Quantity.IsPositive() {
			fields = append(fields, shared.FieldError{Field: "quantity", Reason: "must be greater than 0"})
		}
	default:
		return shared.Validation(fmt.Sprintf("unknown ledger operation %d", m.Op))
	}
	if !shared.FitsQty(m.Quantity) {
		field := "quantity"
		if m.Op == OpAdjust {
			field = "new_quantity"
		}
		fields = append(fields, shared.FieldError{Field: field, Reason: "must have at most 4 decimal places"})
	}
	if m.UnitCost.IsNegative() {
		fields = append(fields, shared.FieldError{Field: "unit_cost", Reason: "must not be negative"})
	}
	if m.Type != "" {
		allowed := map[Op][]MovementType{
			OpAdd:    {MovementIn, MovementTransfer},
			OpRemove: {MovementOut, MovementIssue, MovementReturn, MovementTransfer},
		}[m.Op]
		ok := false
		for _, t := range allowed {
			if t == m.Type {
				ok = true
			}
		}
		if !ok {
			fields = append(fields, shared.FieldError{Field: "movement_type", Reason: fmt.Sprintf("%s not allowed here", m.Type)})
		}
	}
	if len(fields) > 0 {
		return shared.Validation("invalid stock mutation", fields...)
	}
	return nil
}

func defaultType(t, fallback MovementType) MovementType {
	if t == "" {
		return fallback
	}
	return t
}

func (l *Ledger) recordAudit(ctx context.Context, m Mutation, res Result) {
	if l.audit == nil {
		return
	}
	action := map[Op]string{OpAdd: "add", OpRemove: "remove", OpAdjust: "adjust", OpReserve: "reserve", OpRelease: "release"}[m.Op]
	meta := map[string]any{
		"warehouse": res.Stock.Warehouse,
		"quantity":  m.Quantity.String(),
		"current":   res.Stock.Current.String(),
		"reserved":  res.Stock.Reserved.String(),
	}
	if res.Movement != nil {
		meta["movement_id"] = res.Movement.ID.String()
		meta["movement_type"] = string(res.Movement.Type)
	}
	if err := l.audit.Record(ctx, shared.AuditLog{
		ActorID:  m.Actor,
		Action:   "inventory:" + action,
		Entity:   "inventory_stock",
		EntityID: res.Stock.Key().String(),
		Meta:     meta,
	}); err != nil {
		l.logger.Warn("inventory audit", slog.String("item", res.Stock.ItemCode), slog.Any("error", err))
	}
}
