package procurement

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/odyssey-erp/odyssey-procure/internal/inventory"
	"github.com/odyssey-erp/odyssey-procure/internal/sequence"
	"github.com/odyssey-erp/odyssey-procure/internal/shared"
)

// memoryRepo is an in-process RepositoryPort. A transaction holds mu for its
// whole duration; rollback restores document maps and sequence counters,
// while stock rolls back inside the nested inventory store.
type memoryRepo struct {
	mu    sync.Mutex
	stock *inventory.MemoryStore
	seq   *sequence.MemoryStore
	prs   map[string]PurchaseRequest
	pos   map[string]PurchaseOrder
	grs   map[string]GoodsReceipt
	rets  map[string]PurchaseReturn
	bills map[string]VendorBill

	// failAfter, when set, fails the transaction after fn returns.
	failAfter error
}

func newMemoryRepo(stock *inventory.MemoryStore) *memoryRepo {
	return &memoryRepo{
		stock: stock,
		seq:   sequence.NewMemoryStore(),
		prs:   make(map[string]PurchaseRequest),
		pos:   make(map[string]PurchaseOrder),
		grs:   make(map[string]GoodsReceipt),
		rets:  make(map[string]PurchaseReturn),
		bills: make(map[string]VendorBill),
	}
}

// clone deep-copies a document so callers never alias stored slices.
func clone[T any](v T) T {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		panic(err)
	}
	return out
}

func copyMap[T any](m map[string]T) map[string]T {
	out := make(map[string]T, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	prs, pos, grs, rets, bills := copyMap(r.prs), copyMap(r.pos), copyMap(r.grs), copyMap(r.rets), copyMap(r.bills)
	counters := r.seq.Snapshot()

	err := r.stock.WithTx(ctx, func(ctx context.Context, itx inventory.TxRepository) error {
		if err := fn(ctx, &memoryTx{TxRepository: itx, r: r}); err != nil {
			return err
		}
		return r.failAfter
	})
	if err != nil {
		r.prs, r.pos, r.grs, r.rets, r.bills = prs, pos, grs, rets, bills
		r.seq.Restore(counters)
		return err
	}
	return nil
}

func get[T any](r *memoryRepo, m map[string]T, code string) (T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := m[code]
	if !ok {
		var zero T
		return zero, ErrNotFound
	}
	return clone(doc), nil
}

func list[T any](r *memoryRepo, m map[string]T, filter ListFilter, match func(T) bool, created func(T) time.Time, code func(T) string) ([]T, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var rows []T
	for _, doc := range m {
		at := created(doc)
		if !filter.From.IsZero() && at.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && at.After(filter.To) {
			continue
		}
		if match(doc) {
			rows = append(rows, clone(doc))
		}
	}
	sort.Slice(rows, func(i, j int) bool { return code(rows[i]) > code(rows[j]) })
	total := len(rows)
	start := shared.Offset(filter.Page, filter.PerPage)
	if start > total {
		start = total
	}
	end := start + filter.PerPage
	if end > total {
		end = total
	}
	return rows[start:end], total, nil
}

func statusMatch(filter ListFilter, status Status) bool {
	return filter.Status == "" || filter.Status == status
}

func (r *memoryRepo) GetPR(_ context.Context, code string) (PurchaseRequest, error) {
	return get(r, r.prs, code)
}

func (r *memoryRepo) ListPRs(_ context.Context, f ListFilter) ([]PurchaseRequest, int, error) {
	return list(r, r.prs, f, func(pr PurchaseRequest) bool {
		return statusMatch(f, pr.Status) && (f.Priority == "" || f.Priority == pr.Priority)
	}, func(pr PurchaseRequest) time.Time { return pr.CreatedAt }, func(pr PurchaseRequest) string { return pr.Code })
}

func (r *memoryRepo) GetPO(_ context.Context, code string) (PurchaseOrder, error) {
	return get(r, r.pos, code)
}

func (r *memoryRepo) ListPOs(_ context.Context, f ListFilter) ([]PurchaseOrder, int, error) {
	return list(r, r.pos, f, func(po PurchaseOrder) bool {
		return statusMatch(f, po.Status) && (f.VendorCode == "" || f.VendorCode == po.VendorCode)
	}, func(po PurchaseOrder) time.Time { return po.CreatedAt }, func(po PurchaseOrder) string { return po.Code })
}

func (r *memoryRepo) GetGR(_ context.Context, code string) (GoodsReceipt, error) {
	return get(r, r.grs, code)
}

func (r *memoryRepo) ListGRs(_ context.Context, f ListFilter) ([]GoodsReceipt, int, error) {
	return list(r, r.grs, f, func(gr GoodsReceipt) bool {
		return statusMatch(f, gr.Status) && (f.POCode == "" || f.POCode == gr.POCode)
	}, func(gr GoodsReceipt) time.Time { return gr.CreatedAt }, func(gr GoodsReceipt) string { return gr.Code })
}

func (r *memoryRepo) GetReturn(_ context.Context, code string) (PurchaseReturn, error) {
	return get(r, r.rets, code)
}

func (r *memoryRepo) ListReturns(_ context.Context, f ListFilter) ([]PurchaseReturn, int, error) {
	return list(r, r.rets, f, func(ret PurchaseReturn) bool {
		return statusMatch(f, ret.Status) && (f.GRCode == "" || f.GRCode == ret.GRCode)
	}, func(ret PurchaseReturn) time.Time { return ret.CreatedAt }, func(ret PurchaseReturn) string { return ret.Code })
}

func (r *memoryRepo) GetBill(_ context.Context, code string) (VendorBill, error) {
	return get(r, r.bills, code)
}

func (r *memoryRepo) ListBills(_ context.Context, f ListFilter) ([]VendorBill, int, error) {
	return list(r, r.bills, f, func(b VendorBill) bool {
		return statusMatch(f, b.Status) && (f.POCode == "" || f.POCode == b.POCode)
	}, func(b VendorBill) time.Time { return b.CreatedAt }, func(b VendorBill) string { return b.Code })
}

// memoryTx runs with memoryRepo.mu already held.
type memoryTx struct {
	inventory.TxRepository
	r *memoryRepo
}

func memLock[T any](m map[string]T, code string) (T, error) {
	doc, ok := m[code]
	if !ok {
		var zero T
		return zero, ErrNotFound
	}
	return clone(doc), nil
}

func memInsert[T any](m map[string]T, code string, doc T) error {
	if _, ok := m[code]; ok {
		return shared.Conflict(code+" already exists", nil)
	}
	m[code] = clone(doc)
	return nil
}

func memUpdate[T any](m map[string]T, code string, doc T) error {
	if _, ok := m[code]; !ok {
		return ErrNotFound
	}
	m[code] = clone(doc)
	return nil
}

func children[T any](m map[string]T, match func(T) bool, code func(T) string) []T {
	var out []T
	for _, doc := range m {
		if match(doc) {
			out = append(out, clone(doc))
		}
	}
	sort.Slice(out, func(i, j int) bool { return code(out[i]) < code(out[j]) })
	return out
}

func (tx *memoryTx) Increment(ctx context.Context, kind sequence.Kind, day string) (int64, error) {
	return tx.r.seq.Increment(ctx, kind, day)
}

func (tx *memoryTx) Exists(_ context.Context, kind sequence.Kind, code string) (bool, error) {
	var ok bool
	switch kind {
	case sequence.KindPurchaseRequest:
		_, ok = tx.r.prs[code]
	case sequence.KindPurchaseOrder:
		_, ok = tx.r.pos[code]
	case sequence.KindGoodsReceipt:
		_, ok = tx.r.grs[code]
	case sequence.KindPurchaseReturn:
		_, ok = tx.r.rets[code]
	case sequence.KindVendorBill:
		_, ok = tx.r.bills[code]
	}
	return ok, nil
}

func (tx *memoryTx) LockPR(_ context.Context, code string) (PurchaseRequest, error) {
	return memLock(tx.r.prs, code)
}

func (tx *memoryTx) InsertPR(_ context.Context, pr PurchaseRequest) error {
	return memInsert(tx.r.prs, pr.Code, pr)
}

func (tx *memoryTx) UpdatePR(_ context.Context, pr PurchaseRequest) error {
	return memUpdate(tx.r.prs, pr.Code, pr)
}

func (tx *memoryTx) LockPO(_ context.Context, code string) (PurchaseOrder, error) {
	return memLock(tx.r.pos, code)
}

func (tx *memoryTx) InsertPO(_ context.Context, po PurchaseOrder) error {
	return memInsert(tx.r.pos, po.Code, po)
}

func (tx *memoryTx) UpdatePO(_ context.Context, po PurchaseOrder) error {
	return memUpdate(tx.r.pos, po.Code, po)
}

func (tx *memoryTx) LockGR(_ context.Context, code string) (GoodsReceipt, error) {
	return memLock(tx.r.grs, code)
}

func (tx *memoryTx) InsertGR(_ context.Context, gr GoodsReceipt) error {
	return memInsert(tx.r.grs, gr.Code, gr)
}

func (tx *memoryTx) UpdateGR(_ context.Context, gr GoodsReceipt) error {
	return memUpdate(tx.r.grs, gr.Code, gr)
}

func (tx *memoryTx) GRsByPO(_ context.Context, poCode string) ([]GoodsReceipt, error) {
	return children(tx.r.grs, func(gr GoodsReceipt) bool { return gr.POCode == poCode },
		func(gr GoodsReceipt) string { return gr.Code }), nil
}

func (tx *memoryTx) LockReturn(_ context.Context, code string) (PurchaseReturn, error) {
	return memLock(tx.r.rets, code)
}

func (tx *memoryTx) InsertReturn(_ context.Context, ret PurchaseReturn) error {
	return memInsert(tx.r.rets, ret.Code, ret)
}

func (tx *memoryTx) UpdateReturn(_ context.Context, ret PurchaseReturn) error {
	return memUpdate(tx.r.rets, ret.Code, ret)
}

func (tx *memoryTx) ReturnsByGR(_ context.Context, grCode string) ([]PurchaseReturn, error) {
	return children(tx.r.rets, func(ret PurchaseReturn) bool { return ret.GRCode == grCode },
		func(ret PurchaseReturn) string { return ret.Code }), nil
}

func (tx *memoryTx) LockBill(_ context.Context, code string) (VendorBill, error) {
	return memLock(tx.r.bills, code)
}

func (tx *memoryTx) InsertBill(_ context.Context, bill VendorBill) error {
	return memInsert(tx.r.bills, bill.Code, bill)
}

func (tx *memoryTx) UpdateBill(_ context.Context, bill VendorBill) error {
	return memUpdate(tx.r.bills, bill.Code, bill)
}

func (tx *memoryTx) BillsByPO(_ context.Context, poCode string) ([]VendorBill, error) {
	return children(tx.r.bills, func(b VendorBill) bool { return b.POCode == poCode },
		func(b VendorBill) string { return b.Code }), nil
}

// memoryIdempotency mirrors shared.IdempotencyStore: an empty ref marks a
// request still in flight.
type memoryIdempotency struct {
	mu   sync.Mutex
	refs map[string]string
}

func newMemoryIdempotency() *memoryIdempotency {
	return &memoryIdempotency{refs: make(map[string]string)}
}

func (m *memoryIdempotency) Begin(_ context.Context, scope, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ref, ok := m.refs[scope+"|"+key]
	if !ok {
		m.refs[scope+"|"+key] = ""
		return "", nil
	}
	if ref == "" {
		return "", shared.ErrIdempotencyInFlight
	}
	return ref, nil
}

func (m *memoryIdempotency) Complete(_ context.Context, scope, key, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refs[scope+"|"+key] = ref
	return nil
}

func (m *memoryIdempotency) Delete(_ context.Context, scope, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.refs, scope+"|"+key)
	return nil
}

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

func (a *memoryAudit) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.logs))
	for _, l := range a.logs {
		out = append(out, l.Action)
	}
	return out
}

var (
	_ RepositoryPort  = (*memoryRepo)(nil)
	_ TxRepository    = (*memoryTx)(nil)
	_ IdempotencyPort = (*memoryIdempotency)(nil)
)
