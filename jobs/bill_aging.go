package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-procure/internal/jobs"
	"github.com/odyssey-erp/odyssey-procure/internal/reports"
)

// BillAger produces the outstanding bill report. Building it also refreshes
// the overdue gauges.
type BillAger interface {
	OutstandingBills(ctx context.Context) (reports.OutstandingBillsReport, error)
}

// BillAgingJob logs the vendor bill backlog per due bucket.
type BillAgingJob struct {
	Reports BillAger
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewBillAgingJob wires dependencies for the bill aging handler.
func NewBillAgingJob(reports BillAger, logger *slog.Logger, metrics *jobmetrics.Metrics) *BillAgingJob {
	return &BillAgingJob{Reports: reports, Logger: logger, Metrics: metrics}
}

// Handle processes TaskBillAging tasks.
func (j *BillAgingJob) Handle(ctx context.Context, _ *asynq.Task) (resultErr error) {
	if j == nil || j.Reports == nil {
		return errors.New("bill aging: handler not configured")
	}
	tracker := j.Metrics.Track(TaskBillAging)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	report, err := j.Reports.OutstandingBills(ctx)
	if err != nil {
		logger(j.Logger).Error("bill aging", slog.Any("error", err))
		return err
	}
	attrs := []any{
		slog.Time("as_of", report.AsOf),
		slog.Int("outstanding", report.OutstandingCount),
		slog.String("total_outstanding", report.TotalOutstanding.StringFixed(2)),
	}
	for _, bucket := range []string{reports.BucketOverdue, reports.BucketDueSoon, reports.BucketUpcoming} {
		total := report.Totals[bucket]
		attrs = append(attrs, slog.Group(bucket,
			slog.Int("count", total.Count),
			slog.String("amount", total.Amount.StringFixed(2)),
		))
	}
	level := slog.LevelInfo
	if report.Totals[reports.BucketOverdue].Count > 0 {
		level = slog.LevelWarn
	}
	logger(j.Logger).Log(ctx, level, "vendor bill aging", attrs...)
	return nil
}
