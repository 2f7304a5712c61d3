package inventory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-procure/internal/shared"
)

type memoryAudit struct {
	mu   sync.Mutex
	logs []shared.AuditLog
}

func (a *memoryAudit) Record(_ context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
	return nil
}

func newTestLedger(t *testing.T) (*Ledger, *MemoryStore, *memoryAudit) {
	t.Helper()
	store := NewMemoryStore()
	audit := &memoryAudit{}
	now := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	ledger := NewLedger(store, audit, Config{Now: func() time.Time { return now }})
	return ledger, store, audit
}

func qty(s string) shared.Quantity { return shared.Dec(s) }

func requireLedgerConsistent(t *testing.T, ledger *Ledger, store *MemoryStore, item, warehouse string) {
	t.Helper()
	ctx := context.Background()
	stock, err := ledger.Query(ctx, item, warehouse)
	require.NoError(t, err)
	history, err := ledger.History(ctx, MovementFilter{ItemCode: item, Warehouse: warehouse})
	require.NoError(t, err)

	sum := shared.Dec("0")
	for i, m := range history {
		require.Equal(t, int64(i+1), m.Seq)
		require.True(t, m.Quantity.IsPositive())
		sum = sum.Add(m.Signed())
		if i > 0 {
			require.True(t, history[i-1].BalanceAfter.Equal(m.BalanceBefore))
		}
	}
	require.True(t, sum.Equal(stock.Current.Sub(stock.Opening)), "sum %s current %s", sum, stock.Current)
	if len(history) > 0 {
		require.True(t, history[len(history)-1].BalanceAfter.Equal(stock.Current))
	}
	require.True(t, stock.Available.Equal(stock.Current.Sub(stock.Reserved)))
	require.False(t, stock.Current.IsNegative())
	require.False(t, stock.Reserved.IsNegative())
}

func TestAddCreatesStockAndMovement(t *testing.T) {
	ledger, store, audit := newTestLedger(t)
	ctx := context.Background()

	res, err := ledger.Add(ctx, MovementInput{ItemCode: "FAB-001", Quantity: qty("50"), UnitCost: qty("12.5"),
		Ref: Reference{Kind: "GR", Code: "GR-20240301-0001"}})
	require.NoError(t, err)
	require.Equal(t, DefaultWarehouse, res.Stock.Warehouse)
	require.True(t, res.Stock.Current.Equal(qty("50")))
	require.True(t, res.Stock.TotalValue.Equal(qty("625")))
	require.NotNil(t, res.Movement)
	require.Equal(t, MovementIn, res.Movement.Type)
	require.Equal(t, int64(1), res.Movement.Seq)
	require.True(t, res.Movement.BalanceBefore.IsZero())
	require.True(t, res.Movement.BalanceAfter.Equal(qty("50")))
	require.Equal(t, "GR-20240301-0001", res.Movement.ReferenceCode)

	requireLedgerConsistent(t, ledger, store, "FAB-001", "")
	require.Len(t, audit.logs, 1)
	require.Equal(t, "inventory:add", audit.logs[0].Action)
}

func TestAddMovingAverageCost(t *testing.T) {
	ledger, _, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := ledger.Add(ctx, MovementInput{ItemCode: "BTN-9", Quantity: qty("10"), UnitCost: qty("2")})
	require.NoError(t, err)
	res, err := ledger.Add(ctx, MovementInput{ItemCode: "BTN-9", Quantity: qty("30"), UnitCost: qty("4")})
	require.NoError(t, err)

	require.True(t, res.Stock.UnitCost.Equal(qty("3.5")), res.Stock.UnitCost.String())
	require.True(t, res.Stock.TotalValue.Equal(qty("140")))
}

func TestRemoveRejectsInsufficientStock(t *testing.T) {
	ledger, store, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := ledger.Add(ctx, MovementInput{ItemCode: "ZIP-1", Quantity: qty("3")})
	require.NoError(t, err)

	_, err = ledger.Remove(ctx, MovementInput{ItemCode: "ZIP-1", Quantity: qty("3.0001")})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)

	stock, err := ledger.Query(ctx, "ZIP-1", "")
	require.NoError(t, err)
	require.True(t, stock.Current.Equal(qty("3")))

	res, err := ledger.Remove(ctx, MovementInput{ItemCode: "ZIP-1", Quantity: qty("3"), Type: MovementIssue})
	require.NoError(t, err)
	require.True(t, res.Stock.Current.IsZero())
	require.Equal(t, MovementIssue, res.Movement.Type)
	requireLedgerConsistent(t, ledger, store, "ZIP-1", "")
}

func TestRemoveMissingItem(t *testing.T) {
	ledger, _, _ := newTestLedger(t)
	_, err := ledger.Remove(context.Background(), MovementInput{ItemCode: "NOPE", Quantity: qty("1")})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
}

func TestMutationValidation(t *testing.T) {
	ledger, _, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := ledger.Add(ctx, MovementInput{ItemCode: "A", Quantity: qty("0")})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = ledger.Add(ctx, MovementInput{ItemCode: "A", Quantity: qty("-1")})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = ledger.Add(ctx, MovementInput{ItemCode: " ", Quantity: qty("1")})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = ledger.Add(ctx, MovementInput{ItemCode: "A", Quantity: qty("1"), Type: MovementOpening})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = ledger.Remove(ctx, MovementInput{ItemCode: "A", Quantity: qty("1"), Type: MovementIn})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestAdjust(t *testing.T) {
	ledger, store, _ := newTestLedger(t)
	ctx := context.Background()
	store.Seed(Stock{ItemCode: "THR-2", Warehouse: DefaultWarehouse, Current: qty("10")})

	_, err := ledger.Adjust(ctx, "THR-2", "", qty("10"), "count")
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = ledger.Adjust(ctx, "THR-2", "", qty("-1"), "count")
	require.ErrorIs(t, err, shared.ErrValidation)

	res, err := ledger.Adjust(ctx, "THR-2", "", qty("7.5"), "cycle count")
	require.NoError(t, err)
	require.Equal(t, MovementAdjustment, res.Movement.Type)
	require.True(t, res.Movement.Quantity.Equal(qty("2.5")))
	require.True(t, res.Movement.Signed().Equal(qty("-2.5")))

	res, err = ledger.Adjust(ctx, "THR-2", "", qty("12"), "found")
	require.NoError(t, err)
	require.True(t, res.Movement.Signed().Equal(qty("4.5")))
	requireLedgerConsistent(t, ledger, store, "THR-2", "")
}

func TestReserveRelease(t *testing.T) {
	ledger, store, _ := newTestLedger(t)
	ctx := context.Background()
	_, err := ledger.Add(ctx, MovementInput{ItemCode: "LBL-1", Quantity: qty("10")})
	require.NoError(t, err)

	stock, err := ledger.Reserve(ctx, "LBL-1", "", qty("6"))
	require.NoError(t, err)
	require.True(t, stock.Available.Equal(qty("4")))

	_, err = ledger.Reserve(ctx, "LBL-1", "", qty("5"))
	require.ErrorIs(t, err, shared.ErrInsufficientAvailable)

	_, err = ledger.Release(ctx, "LBL-1", "", qty("7"))
	require.ErrorIs(t, err, shared.ErrInvariant)
	var appErr *shared.Error
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, shared.CodeInsufficientReserved, appErr.Code)

	stock, err = ledger.Release(ctx, "LBL-1", "", qty("6"))
	require.NoError(t, err)
	require.True(t, stock.Reserved.IsZero())
	require.True(t, stock.Available.Equal(qty("10")))

	history, err := ledger.History(ctx, MovementFilter{ItemCode: "LBL-1"})
	require.NoError(t, err)
	require.Len(t, history, 1)
	requireLedgerConsistent(t, ledger, store, "LBL-1", "")
}

func TestTransfer(t *testing.T) {
	ledger, store, _ := newTestLedger(t)
	ctx := context.Background()
	_, err := ledger.Add(ctx, MovementInput{ItemCode: "FAB-7", Quantity: qty("20"), UnitCost: qty("4")})
	require.NoError(t, err)

	out, in, err := ledger.Transfer(ctx, TransferInput{ItemCode: "FAB-7", From: "MAIN", To: "CUT", Quantity: qty("8")})
	require.NoError(t, err)
	require.Equal(t, MovementTransfer, out.Movement.Type)
	require.True(t, out.Stock.Current.Equal(qty("12")))
	require.True(t, in.Stock.Current.Equal(qty("8")))
	require.True(t, in.Stock.UnitCost.Equal(qty("4")))

	_, _, err = ledger.Transfer(ctx, TransferInput{ItemCode: "FAB-7", From: "CUT", To: "MAIN", Quantity: qty("9")})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	_, _, err = ledger.Transfer(ctx, TransferInput{ItemCode: "FAB-7", From: "CUT", To: "cut ", Quantity: qty("1")})
	require.NoError(t, err)
	_, _, err = ledger.Transfer(ctx, TransferInput{ItemCode: "FAB-7", From: "CUT", To: " CUT", Quantity: qty("1")})
	require.ErrorIs(t, err, shared.ErrValidation)

	requireLedgerConsistent(t, ledger, store, "FAB-7", "MAIN")
	requireLedgerConsistent(t, ledger, store, "FAB-7", "CUT")
}

func TestQueryMissing(t *testing.T) {
	ledger, _, _ := newTestLedger(t)
	_, err := ledger.Query(context.Background(), "GHOST", "")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestConcurrentRemovesNeverOversell(t *testing.T) {
	ledger, store, _ := newTestLedger(t)
	ctx := context.Background()
	_, err := ledger.Add(ctx, MovementInput{ItemCode: "SKU-C", Quantity: qty("20")})
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok, short := 0, 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.Remove(ctx, MovementInput{ItemCode: "SKU-C", Quantity: qty("1")})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, shared.ErrInsufficientStock):
				short++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 20, ok)
	require.Equal(t, 30, short)
	requireLedgerConsistent(t, ledger, store, "SKU-C", "")
}

func TestListPaging(t *testing.T) {
	ledger, _, _ := newTestLedger(t)
	ctx := context.Background()
	for _, code := range []string{"C", "A", "B"} {
		_, err := ledger.Add(ctx, MovementInput{ItemCode: code, Quantity: qty("1")})
		require.NoError(t, err)
	}
	rows, meta, err := ledger.List(ctx, StockFilter{PerPage: 2})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "A", rows[0].ItemCode)
	require.Equal(t, 3, meta.Total)
	require.Equal(t, 2, meta.TotalPages)
}

func TestCancelledContextRollsBack(t *testing.T) {
	ledger, _, _ := newTestLedger(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ledger.Add(ctx, MovementInput{ItemCode: "X", Quantity: qty("1")})
	require.ErrorIs(t, err, context.Canceled)
	_, err = ledger.Query(context.Background(), "X", "")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestSubPrecisionQuantitiesAreRejected(t *testing.T) {
	ledger, store, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := ledger.Add(ctx, MovementInput{ItemCode: "ZIP-1", Quantity: qty("5")})
	require.NoError(t, err)

	_, err = ledger.Add(ctx, MovementInput{ItemCode: "ZIP-1", Quantity: qty("0.00001")})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = ledger.Remove(ctx, MovementInput{ItemCode: "ZIP-1", Quantity: qty("1.00004")})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = ledger.Reserve(ctx, "ZIP-1", "", qty("0.00001"))
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = ledger.Adjust(ctx, "ZIP-1", "", qty("2.00001"), "count")
	require.ErrorIs(t, err, shared.ErrValidation)
	appErr, _ := shared.AsError(err)
	require.Equal(t, "new_quantity", appErr.Fields[0].Field)

	stock, err := ledger.Query(ctx, "ZIP-1", "")
	require.NoError(t, err)
	require.True(t, stock.Current.Equal(qty("5")))
	require.True(t, stock.Reserved.IsZero())
	requireLedgerConsistent(t, ledger, store, "ZIP-1", DefaultWarehouse)
}
