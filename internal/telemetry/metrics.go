package telemetry

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/swiftos/birdy/internal/messages"
)

const namespace = "birdy"

// Transaction outcomes recorded on birdy_transactions_total.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeAborted = "aborted"
)

// Metrics holds the process metrics. A nil *Metrics records nothing.
type Metrics struct {
	registry      *prometheus.Registry
	transactions  *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	cacheLookups  *prometheus.CounterVec
	downloadBytes prometheus.Counter
}

// NewMetrics registers every collector on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		transactions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transactions_total",
				Help:      "Install and remove transactions by outcome.",
			},
			[]string{"op", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "transaction_duration_seconds",
				Help:      "Wall time of install and remove transactions.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"op"},
		),
		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_lookups_total",
				Help:      "Archive cache lookups by result.",
			},
			[]string{"result"},
		),
		downloadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "download_bytes_total",
			Help:      "Archive bytes downloaded from the registry.",
		}),
	}
	m.registry.MustRegister(m.transactions, m.duration, m.cacheLookups, m.downloadBytes)
	return m
}

// ObserveTransaction records one finished transaction.
func (m *Metrics) ObserveTransaction(op string, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.transactions.WithLabelValues(op, outcome).Inc()
	m.duration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// ObserveCacheLookup records a cache hit or miss.
func (m *Metrics) ObserveCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// AddDownloadBytes adds n downloaded bytes.
func (m *Metrics) AddDownloadBytes(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.downloadBytes.Add(float64(n))
}

// WriteTextfile writes the current metrics in the node_exporter textfile format.
// An empty path is a no-op.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf(messages.TelemetryWriteTextfileFmt, path, err)
	}
	return nil
}
