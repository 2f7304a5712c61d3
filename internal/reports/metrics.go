package reports

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics observes report builds and the open bill backlog.
type Metrics struct {
	buildDuration *prometheus.HistogramVec
	overdueBills  prometheus.Gauge
	overdueAmount prometheus.Gauge
}

// NewMetrics registers report collectors on reg. Collectors already present
// on reg are reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		buildDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "odyssey_report_build_duration_seconds",
			Help:    "Duration required to build procurement reports.",
			Buckets: prometheus.DefBuckets,
		}, []string{"report"}),
		overdueBills: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "odyssey_vendor_bills_overdue",
			Help: "Number of unpaid vendor bills past their due date.",
		}),
		overdueAmount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "odyssey_vendor_bills_overdue_amount",
			Help: "Pending amount of unpaid vendor bills past their due date.",
		}),
	}
	if err := register(reg, m.buildDuration, func(c prometheus.Collector) { m.buildDuration = c.(*prometheus.HistogramVec) }); err != nil {
		return nil, err
	}
	if err := register(reg, m.overdueBills, func(c prometheus.Collector) { m.overdueBills = c.(prometheus.Gauge) }); err != nil {
		return nil, err
	}
	if err := register(reg, m.overdueAmount, func(c prometheus.Collector) { m.overdueAmount = c.(prometheus.Gauge) }); err != nil {
		return nil, err
	}
	return m, nil
}

func register(reg prometheus.Registerer, c prometheus.Collector, reuse func(prometheus.Collector)) error {
	err := reg.Register(c)
	if err == nil {
		return nil
	}
	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		reuse(already.ExistingCollector)
		return nil
	}
	return err
}

func (m *Metrics) observe(report string, start time.Time) {
	if m == nil {
		return
	}
	m.buildDuration.WithLabelValues(report).Observe(time.Since(start).Seconds())
}

func (m *Metrics) setOverdue(total BucketTotal) {
	if m == nil {
		return
	}
	m.overdueBills.Set(float64(total.Count))
	m.overdueAmount.Set(total.Amount.InexactFloat64())
}
