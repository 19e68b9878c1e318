package dynalink

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Transaction kinds and outcomes reported by [Metrics].
const (
	kindWrite = "write"
	kindGet   = "get"

	outcomeCommitted = "committed"
	outcomeCanceled  = "canceled"
	outcomeRejected  = "rejected"
	outcomeError     = "error"
)

// Metrics holds the prometheus collectors updated by the transaction builders. A nil
// *Metrics records nothing.
type Metrics struct {
	transactions      *prometheus.CounterVec
	transactionItems  *prometheus.CounterVec
	conditionFailures prometheus.Counter
	latency           *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg. When reg is nil the
// collectors are created but not registered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dynalink_transactions_total",
			Help: "Transactions dispatched, by kind and outcome",
		}, []string{"kind", "outcome"}),
		transactionItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dynalink_transaction_items_total",
			Help: "Items submitted in transactions, by kind",
		}, []string{"kind"}),
		conditionFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dynalink_condition_check_failures_total",
			Help: "Transaction items canceled by a failed condition",
		}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dynalink_transaction_duration_seconds",
			Help:    "Transaction latency in seconds, by kind",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		}, []string{"kind"}),
	}

	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.transactions, m.transactionItems, m.conditionFailures, m.latency} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observe(kind, outcome string, items int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.transactions.WithLabelValues(kind, outcome).Inc()
	m.transactionItems.WithLabelValues(kind).Add(float64(items))
	if elapsed > 0 {
		m.latency.WithLabelValues(kind).Observe(elapsed.Seconds())
	}
}

func (m *Metrics) conditionFailed(n int) {
	if m == nil || n == 0 {
		return
	}
	m.conditionFailures.Add(float64(n))
}
