package sequence

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Querier is satisfied by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var codeTables = map[Kind]string{
	KindPurchaseRequest: "purchase_requests",
	KindPurchaseOrder:   "purchase_orders",
	KindGoodsReceipt:    "goods_receipts",
	KindPurchaseReturn:  "purchase_returns",
	KindVendorBill:      "vendor_bills",
}

// PGStore keeps counters in doc_sequences. When bound to a transaction the
// counter row stays locked until commit, which serializes allocation per
// (kind, day) and rolls the counter back with the transaction.
type PGStore struct {
	q Querier
}

// NewPGStore binds the store to a pool or transaction.
func NewPGStore(q Querier) *PGStore {
	return &PGStore{q: q}
}

// Increment bumps and returns the partition counter.
func (s *PGStore) Increment(ctx context.Context, kind Kind, day string) (int64, error) {
	const query = `
INSERT INTO doc_sequences (kind, day, last_value, updated_at)
VALUES ($1, $2, 1, NOW())
ON CONFLICT (kind, day) DO UPDATE
SET last_value = doc_sequences.last_value + 1, updated_at = NOW()
RETURNING last_value`
	var n int64
	if err := s.q.QueryRow(ctx, query, string(kind), day).Scan(&n); err != nil {
		return 0, fmt.Errorf("sequence: increment %s/%s: %w", kind, day, err)
	}
	return n, nil
}

// Exists checks the document table of kind for code.
func (s *PGStore) Exists(ctx context.Context, kind Kind, code string) (bool, error) {
	table, ok := codeTables[kind]
	if !ok {
		return false, fmt.Errorf("sequence: unknown kind %q", kind)
	}
	var exists bool
	query := fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE code = $1)", table)
	if err := s.q.QueryRow(ctx, query, code).Scan(&exists); err != nil {
		return false, fmt.Errorf("sequence: check %s: %w", code, err)
	}
	return exists, nil
}
