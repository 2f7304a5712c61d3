package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/odyssey-erp/odyssey-procure/internal/jobs"
	"github.com/odyssey-erp/odyssey-procure/internal/reports"
	_ "github.com/odyssey-erp/odyssey-procure/testing"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type stubCleaner struct {
	got     time.Duration
	removed int64
	err     error
}

func (s *stubCleaner) Cleanup(_ context.Context, olderThan time.Duration) (int64, error) {
	s.got = olderThan
	return s.removed, s.err
}

func TestIdempotencyCleanupUsesPayloadRetention(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)
	store := &stubCleaner{removed: 7}
	job := NewIdempotencyCleanupJob(store, quiet, metrics)

	task, err := NewIdempotencyCleanupTask(48 * time.Hour)
	require.NoError(t, err)
	require.Equal(t, TaskIdempotencyCleanup, task.Type())
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 48*time.Hour, store.got)

	count, err := testutil.GatherAndCount(reg, "odyssey_idempotency_keys_removed_total")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestIdempotencyCleanupDefaultsRetention(t *testing.T) {
	store := &stubCleaner{}
	job := NewIdempotencyCleanupJob(store, quiet, nil)
	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskIdempotencyCleanup, nil)))
	require.Equal(t, DefaultIdempotencyRetention, store.got)
}

func TestIdempotencyCleanupRejectsBadPayload(t *testing.T) {
	job := NewIdempotencyCleanupJob(&stubCleaner{}, quiet, nil)
	err := job.Handle(context.Background(), asynq.NewTask(TaskIdempotencyCleanup, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestIdempotencyCleanupRecordsFailure(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)
	job := NewIdempotencyCleanupJob(&stubCleaner{err: errors.New("db down")}, quiet, metrics)

	err := job.Handle(context.Background(), asynq.NewTask(TaskIdempotencyCleanup, nil))
	require.Error(t, err)
	count, err := testutil.GatherAndCount(reg, "odyssey_jobs_failures_total")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

type stubAger struct {
	report reports.OutstandingBillsReport
	err    error
	calls  int
}

func (s *stubAger) OutstandingBills(context.Context) (reports.OutstandingBillsReport, error) {
	s.calls++
	return s.report, s.err
}

func TestBillAgingBuildsReport(t *testing.T) {
	ager := &stubAger{report: reports.OutstandingBillsReport{
		OutstandingCount: 2,
		TotalOutstanding: decimal.RequireFromString("150"),
		Totals: map[string]reports.BucketTotal{
			reports.BucketOverdue: {Count: 1, Amount: decimal.RequireFromString("100")},
			reports.BucketDueSoon: {Count: 1, Amount: decimal.RequireFromString("50")},
		},
	}}
	task, err := NewBillAgingTask()
	require.NoError(t, err)
	require.NoError(t, NewBillAgingJob(ager, quiet, nil).Handle(context.Background(), task))
	require.Equal(t, 1, ager.calls)

	ager.err = errors.New("timeout")
	require.Error(t, NewBillAgingJob(ager, quiet, nil).Handle(context.Background(), task))
}

func TestUnconfiguredJobsFail(t *testing.T) {
	var cleanup *IdempotencyCleanupJob
	require.Error(t, cleanup.Handle(context.Background(), asynq.NewTask(TaskIdempotencyCleanup, nil)))
	require.Error(t, (&BillAgingJob{}).Handle(context.Background(), asynq.NewTask(TaskBillAging, nil)))
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) { return s.info, s.err }

func serveHealth(h *Handler) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Route("/jobs", h.MountRoutes)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	return rec
}

func TestJobsHealth(t *testing.T) {
	rec := serveHealth(NewHandler(stubInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 3, Retry: 1}}, quiet))
	require.Equal(t, http.StatusOK, rec.Code)
	var body queueHealth
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, 3, body.Pending)
	require.Equal(t, 1, body.Retry)

	rec = serveHealth(NewHandler(stubInspector{err: errors.New("redis down")}, quiet))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = serveHealth(NewHandler(nil, quiet))
	require.Equal(t, http.StatusOK, rec.Code)
}
