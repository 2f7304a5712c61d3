package reports

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-procure/internal/procurement/workflow"
	"github.com/odyssey-erp/odyssey-procure/internal/shared"
)

// Repository exposes the aggregate reads reports are built from. Reads hit
// the primary store so a caller sees its own writes.
type Repository interface {
	PendingPOs(ctx context.Context, statuses []string) ([]PendingPO, error)
	OpenBills(ctx context.Context) ([]OpenBill, error)
	VendorOrders(ctx context.Context, completed []string) ([]VendorOrders, error)
	ReturnsByVendor(ctx context.Context) (map[string]int, error)
	POStatusCounts(ctx context.Context) (map[string]int, error)
	Totals(ctx context.Context, doc Document) (DocumentTotals, error)
}

var (
	pendingPOStatuses = []string{
		string(workflow.Draft),
		string(workflow.Submitted),
		string(workflow.Approved),
		string(workflow.PartiallyReceived),
	}
	// Billing moves a FULLY_RECEIVED order on to INVOICED, and settling its
	// bills closes it, so both still count as completed deliveries.
	completedPOStatuses = []string{
		string(workflow.FullyReceived),
		string(workflow.Invoiced),
		string(workflow.Closed),
	}
	settledBillStatuses = []string{string(workflow.Paid), string(workflow.Cancelled)}
)

// Config groups optional collaborators.
type Config struct {
	Now     func() time.Time
	Metrics *Metrics
}

// Service builds read-only procurement reports.
type Service struct {
	repo    Repository
	engine  *workflow.Engine
	now     func() time.Time
	metrics *Metrics
}

// NewService constructs the report service.
func NewService(repo Repository, cfg Config) *Service {
	s := &Service{repo: repo, engine: workflow.New(), now: cfg.Now, metrics: cfg.Metrics}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Bucket classifies a bill by whole days until its due date.
func Bucket(daysUntilDue int) string {
	switch {
	case daysUntilDue < 0:
		return BucketOverdue
	case daysUntilDue <= DueSoonDays:
		return BucketDueSoon
	default:
		return BucketUpcoming
	}
}

func utcDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween counts calendar days from today to due, both taken as UTC dates.
func DaysBetween(today, due time.Time) int {
	return int(utcDate(due).Sub(utcDate(today)).Hours() / 24)
}

// PendingPOs lists orders still awaiting approval or goods, newest first.
func (s *Service) PendingPOs(ctx context.Context) (PendingPOReport, error) {
	defer s.metrics.observe("pending_po", time.Now())
	rows, err := s.repo.PendingPOs(ctx, pendingPOStatuses)
	if err != nil {
		return PendingPOReport{}, err
	}
	if rows == nil {
		rows = []PendingPO{}
	}
	total := decimal.Zero
	for _, po := range rows {
		total = total.Add(po.TotalAmount)
	}
	return PendingPOReport{PendingCount: len(rows), TotalValue: total, Orders: rows}, nil
}

// OutstandingBills buckets unpaid bills by days until due.
func (s *Service) OutstandingBills(ctx context.Context) (OutstandingBillsReport, error) {
	defer s.metrics.observe("outstanding_bills", time.Now())
	bills, err := s.repo.OpenBills(ctx)
	if err != nil {
		return OutstandingBillsReport{}, err
	}
	today := utcDate(s.now())
	report := OutstandingBillsReport{
		AsOf:             today,
		OutstandingCount: len(bills),
		TotalOutstanding: decimal.Zero,
		Overdue:          []OpenBill{},
		DueSoon:          []OpenBill{},
		Upcoming:         []OpenBill{},
		Totals: map[string]BucketTotal{
			BucketOverdue:  {Amount: decimal.Zero},
			BucketDueSoon:  {Amount: decimal.Zero},
			BucketUpcoming: {Amount: decimal.Zero},
		},
	}
	for _, b := range bills {
		b.DaysUntilDue = DaysBetween(today, b.DueDate)
		bucket := Bucket(b.DaysUntilDue)
		switch bucket {
		case BucketOverdue:
			report.Overdue = append(report.Overdue, b)
		case BucketDueSoon:
			report.DueSoon = append(report.DueSoon, b)
		default:
			report.Upcoming = append(report.Upcoming, b)
		}
		t := report.Totals[bucket]
		t.Count++
		t.Amount = t.Amount.Add(b.PendingAmount)
		report.Totals[bucket] = t
		report.TotalOutstanding = report.TotalOutstanding.Add(b.PendingAmount)
	}
	s.metrics.setOverdue(report.Totals[BucketOverdue])
	return report, nil
}

// VendorPerformance rates every vendor with at least one order, highest
// order value first.
func (s *Service) VendorPerformance(ctx context.Context) ([]VendorPerformance, error) {
	defer s.metrics.observe("vendor_performance", time.Now())
	var orders []VendorOrders
	var returns map[string]int
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		orders, err = s.repo.VendorOrders(gctx, completedPOStatuses)
		return err
	})
	g.Go(func() error {
		var err error
		returns, err = s.repo.ReturnsByVendor(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]VendorPerformance, 0, len(orders))
	for _, o := range orders {
		p := VendorPerformance{
			VendorCode:        o.VendorCode,
			VendorName:        o.VendorName,
			TotalOrders:       o.TotalOrders,
			CompletedOrders:   o.CompletedOrders,
			TotalValue:        o.TotalValue,
			AverageOrderValue: decimal.Zero,
			CompletionRate:    decimal.Zero,
			ReturnsCount:      returns[o.VendorCode],
		}
		if o.TotalOrders > 0 {
			n := decimal.NewFromInt(int64(o.TotalOrders))
			p.AverageOrderValue = shared.RoundMoney(o.TotalValue.Div(n))
			p.CompletionRate = decimal.NewFromInt(int64(o.CompletedOrders)).Div(n).Round(4)
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].TotalValue.Equal(out[j].TotalValue) {
			return out[i].TotalValue.GreaterThan(out[j].TotalValue)
		}
		return out[i].VendorCode < out[j].VendorCode
	})
	return out, nil
}

// PurchaseSummary counts and values every document kind. The breakdown lists
// every purchase order status, including those with no orders.
func (s *Service) PurchaseSummary(ctx context.Context) (PurchaseSummary, error) {
	defer s.metrics.observe("purchase_summary", time.Now())
	var summary PurchaseSummary
	var counts map[string]int

	g, gctx := errgroup.WithContext(ctx)
	totals := []struct {
		doc Document
		dst *DocumentTotals
	}{
		{DocPurchaseOrders, &summary.PurchaseOrders},
		{DocGoodsReceipts, &summary.GoodsReceipts},
		{DocReturns, &summary.Returns},
		{DocBills, &summary.Bills},
		{DocPendingBills, &summary.PendingBills},
	}
	for _, t := range totals {
		g.Go(func() error {
			v, err := s.repo.Totals(gctx, t.doc)
			if err != nil {
				return err
			}
			*t.dst = v
			return nil
		})
	}
	g.Go(func() error {
		var err error
		counts, err = s.repo.POStatusCounts(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return PurchaseSummary{}, err
	}

	summary.POStatusBreakdown = make(map[string]int)
	for _, st := range s.engine.States(workflow.KindPO) {
		summary.POStatusBreakdown[string(st)] = counts[string(st)]
	}
	return summary, nil
}
