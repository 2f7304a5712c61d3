package procurement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-procure/internal/inventory"
	"github.com/odyssey-erp/odyssey-procure/internal/procurement/workflow"
	"github.com/odyssey-erp/odyssey-procure/internal/sequence"
	"github.com/odyssey-erp/odyssey-procure/internal/shared"
)

// ErrNotFound is returned by repositories for a missing document.
var ErrNotFound = errors.New("procurement: not found")

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetPR(ctx context.Context, code string) (PurchaseRequest, error)
	ListPRs(ctx context.Context, filter ListFilter) ([]PurchaseRequest, int, error)
	GetPO(ctx context.Context, code string) (PurchaseOrder, error)
	ListPOs(ctx context.Context, filter ListFilter) ([]PurchaseOrder, int, error)
	GetGR(ctx context.Context, code string) (GoodsReceipt, error)
	ListGRs(ctx context.Context, filter ListFilter) ([]GoodsReceipt, int, error)
	GetReturn(ctx context.Context, code string) (PurchaseReturn, error)
	ListReturns(ctx context.Context, filter ListFilter) ([]PurchaseReturn, int, error)
	GetBill(ctx context.Context, code string) (VendorBill, error)
	ListBills(ctx context.Context, filter ListFilter) ([]VendorBill, int, error)
}

// TxRepository exposes transactional operations used by service. Lock*
// methods hold the row until the transaction ends. Documents are locked in
// the order PO, GR, return, bill, then stock rows in item-code order.
type TxRepository interface {
	inventory.TxRepository
	sequence.Store

	LockPR(ctx context.Context, code string) (PurchaseRequest, error)
	InsertPR(ctx context.Context, pr PurchaseRequest) error
	UpdatePR(ctx context.Context, pr PurchaseRequest) error

	LockPO(ctx context.Context, code string) (PurchaseOrder, error)
	InsertPO(ctx context.Context, po PurchaseOrder) error
	UpdatePO(ctx context.Context, po PurchaseOrder) error

	LockGR(ctx context.Context, code string) (GoodsReceipt, error)
	InsertGR(ctx context.Context, gr GoodsReceipt) error
	UpdateGR(ctx context.Context, gr GoodsReceipt) error
	GRsByPO(ctx context.Context, poCode string) ([]GoodsReceipt, error)

	LockReturn(ctx context.Context, code string) (PurchaseReturn, error)
	InsertReturn(ctx context.Context, ret PurchaseReturn) error
	UpdateReturn(ctx context.Context, ret PurchaseReturn) error
	ReturnsByGR(ctx context.Context, grCode string) ([]PurchaseReturn, error)

	LockBill(ctx context.Context, code string) (VendorBill, error)
	InsertBill(ctx context.Context, bill VendorBill) error
	UpdateBill(ctx context.Context, bill VendorBill) error
	BillsByPO(ctx context.Context, poCode string) ([]VendorBill, error)
}

// LedgerPort posts stock mutations on the caller's transaction.
type LedgerPort interface {
	Post(ctx context.Context, tx inventory.TxRepository, m inventory.Mutation) (inventory.Result, error)
	Warehouse(w string) string
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort remembers which document a client key produced.
type IdempotencyPort interface {
	Begin(ctx context.Context, scope, key string) (string, error)
	Complete(ctx context.Context, scope, key, ref string) error
	Delete(ctx context.Context, scope, key string) error
}

// Config groups optional collaborators.
type Config struct {
	Now    func() time.Time
	Logger *slog.Logger
}

// Service orchestrates procurement flows.
type Service struct {
	repo        RepositoryPort
	ledger      LedgerPort
	engine      *workflow.Engine
	codes       *sequence.Generator
	audit       AuditPort
	idempotency IdempotencyPort
	now         func() time.Time
	logger      *slog.Logger
}

// NewService constructs procurement service.
func NewService(repo RepositoryPort, ledger LedgerPort, engine *workflow.Engine, codes *sequence.Generator, audit AuditPort, idem IdempotencyPort, cfg Config) *Service {
	s := &Service{repo: repo, ledger: ledger, engine: engine, codes: codes, audit: audit, idempotency: idem, now: cfg.Now, logger: cfg.Logger}
	if s.engine == nil {
		s.engine = workflow.New()
	}
	if s.codes == nil {
		s.codes = sequence.NewGenerator()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

func (s *Service) clock() time.Time { return s.now().UTC() }

func permissions(ctx context.Context) []string {
	if p := shared.PrincipalFromContext(ctx); p != nil {
		return p.Permissions
	}
	return nil
}

func (s *Service) authorize(ctx context.Context, kind workflow.Kind, from, to Status) error {
	return s.engine.Authorize(kind, from, to, permissions(ctx))
}

func notFound(err error, kind workflow.Kind, code string) error {
	if errors.Is(err, ErrNotFound) {
		return shared.NotFound(kind.Entity(), code)
	}
	return err
}

func (s *Service) recordAudit(ctx context.Context, action string, kind workflow.Kind, code string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  shared.ActorFromContext(ctx),
		Action:   "procurement:" + action,
		Entity:   strings.ReplaceAll(kind.Entity(), " ", "_"),
		EntityID: code,
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("procurement audit", slog.String("action", action), slog.String("code", code), slog.Any("error", err))
	}
}

// idempotent runs create under a client supplied key. A replay returns the
// document the key produced first, with replayed set.
func idempotent[T any](ctx context.Context, s *Service, scope, key string, load func(context.Context, string) (T, error), create func(context.Context) (T, string, error)) (T, bool, error) {
	var zero T
	key = strings.TrimSpace(key)
	if key == "" || s.idempotency == nil {
		doc, _, err := create(ctx)
		return doc, false, err
	}
	scope = scope + ":" + shared.ActorFromContext(ctx)
	ref, err := s.idempotency.Begin(ctx, scope, key)
	if err != nil {
		if errors.Is(err, shared.ErrIdempotencyInFlight) {
			return zero, false, shared.Conflict("a request with this idempotency key is still in progress", err)
		}
		return zero, false, fmt.Errorf("procurement: idempotency begin: %w", err)
	}
	if ref != "" {
		doc, err := load(ctx, ref)
		return doc, true, err
	}
	doc, code, err := create(ctx)
	if err != nil {
		if derr := s.idempotency.Delete(context.WithoutCancel(ctx), scope, key); derr != nil {
			s.logger.Warn("idempotency release", slog.String("scope", scope), slog.Any("error", derr))
		}
		return zero, false, err
	}
	if cerr := s.idempotency.Complete(context.WithoutCancel(ctx), scope, key, code); cerr != nil {
		s.logger.Warn("idempotency complete", slog.String("scope", scope), slog.Any("error", cerr))
	}
	return doc, false, nil
}

func fieldErr(field, reason string) shared.FieldError {
	return shared.FieldError{Field: field, Reason: reason}
}

func checkQty(fields []shared.FieldError, field string, q shared.Quantity) []shared.FieldError {
	if !shared.FitsQty(q) {
		return append(fields, fieldErr(field, "must have at most 4 decimal places"))
	}
	return fields
}

func checkMoney(fields []shared.FieldError, field string, m shared.Money) []shared.FieldError {
	if !shared.FitsMoney(m) {
		return append(fields, fieldErr(field, "must have at most 2 decimal places"))
	}
	return fields
}

func lineField(i int, name string) string {
	return fmt.Sprintf("lines[%d].%s", i, name)
}

// byItem returns line indexes sorted by item code, the stock lock order.
func byItem(n int, item func(int) string) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return item(idx[a]) < item(idx[b]) })
	return idx
}

func ptrTime(t time.Time) *time.Time { return &t }

// listStatus normalises a status filter and rejects values unknown to kind.
func (s *Service) listStatus(kind workflow.Kind, filter *ListFilter) error {
	if filter.Status == "" {
		return nil
	}
	filter.Status = workflow.Normalize(kind, string(filter.Status))
	if !s.engine.Valid(kind, filter.Status) {
		return shared.Validation("unknown status", fieldErr("status", "unknown "+kind.Entity()+" status"))
	}
	return nil
}
