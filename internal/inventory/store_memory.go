package inventory

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore keeps stock and movements in process. Transactions hold a
// single mutex for their whole duration and roll back by restoring a
// snapshot taken at begin.
type MemoryStore struct {
	mu        sync.Mutex
	stock     map[Key]Stock
	movements []Movement
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{stock: make(map[Key]Stock)}
}

// Seed installs a stock row directly, bypassing the ledger. Used to set
// opening balances.
func (s *MemoryStore) Seed(stock Stock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stock.Opening = stock.Current
	stock.recompute()
	s.stock[stock.Key()] = stock
}

// WithTx runs fn while holding the store lock.
func (s *MemoryStore) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stock := make(map[Key]Stock, len(s.stock))
	for k, v := range s.stock {
		stock[k] = v
	}
	movements := len(s.movements)

	if err := fn(ctx, memoryTx{s: s}); err != nil {
		s.stock = stock
		s.movements = s.movements[:movements]
		return err
	}
	if err := ctx.Err(); err != nil {
		s.stock = stock
		s.movements = s.movements[:movements]
		return err
	}
	return nil
}

func (s *MemoryStore) GetStock(ctx context.Context, key Key) (Stock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stock, ok := s.stock[key]
	if !ok {
		return Stock{}, ErrStockNotFound
	}
	return stock, nil
}

func (s *MemoryStore) ListStock(ctx context.Context, filter StockFilter) ([]Stock, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var rows []Stock
	for _, st := range s.stock {
		if filter.ItemCode != "" && !strings.Contains(strings.ToLower(st.ItemCode), strings.ToLower(filter.ItemCode)) {
			continue
		}
		if filter.Warehouse != "" && st.Warehouse != filter.Warehouse {
			continue
		}
		st.recompute()
		if filter.OnlyShort && st.Available.IsPositive() {
			continue
		}
		rows = append(rows, st)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Key().Less(rows[j].Key()) })
	total := len(rows)
	start := (filter.Page - 1) * filter.PerPage
	if start > total {
		start = total
	}
	end := start + filter.PerPage
	if end > total {
		end = total
	}
	return rows[start:end], total, nil
}

func (s *MemoryStore) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Movement
	for _, m := range s.movements {
		if filter.ItemCode != "" && (m.ItemCode != filter.ItemCode || m.Warehouse != filter.Warehouse) {
			continue
		}
		if filter.Type != "" && m.Type != filter.Type {
			continue
		}
		if filter.ReferenceKind != "" && m.ReferenceKind != filter.ReferenceKind {
			continue
		}
		if filter.ReferenceCode != "" && m.ReferenceCode != filter.ReferenceCode {
			continue
		}
		if !filter.From.IsZero() && m.CreatedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && m.CreatedAt.After(filter.To) {
			continue
		}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool {
		ki, kj := Key{out[i].ItemCode, out[i].Warehouse}, Key{out[j].ItemCode, out[j].Warehouse}
		if ki != kj {
			return ki.Less(kj)
		}
		return out[i].Seq < out[j].Seq
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

type memoryTx struct {
	s *MemoryStore
}

func (tx memoryTx) LockStock(ctx context.Context, key Key, create bool) (Stock, error) {
	stock, ok := tx.s.stock[key]
	if !ok {
		if !create {
			return Stock{}, ErrStockNotFound
		}
		stock = Stock{ItemCode: key.ItemCode, Warehouse: key.Warehouse}
		tx.s.stock[key] = stock
	}
	return stock, nil
}

func (tx memoryTx) SaveStock(ctx context.Context, stock Stock) error {
	tx.s.stock[stock.Key()] = stock
	return nil
}

func (tx memoryTx) InsertMovement(ctx context.Context, m Movement) error {
	tx.s.movements = append(tx.s.movements, m)
	return nil
}
