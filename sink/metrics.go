package sink

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Dispatch results as reported on the records counter.
const (
	ResultSuccess        = "success"
	ResultNonSuccess     = "non_success"
	ResultTransportError = "transport_error"
	ResultCloneFailed    = "clone_failed"
)

// Metrics counts dispatched records. A nil *Metrics records nothing.
type Metrics struct {
	Records  *prometheus.CounterVec
	Duration prometheus.Histogram
}

// NewMetrics creates the dispatch metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "streamhttp",
			Name:      "records_total",
			Help:      "Records dispatched, by result.",
		}, []string{"result"}),
		Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "streamhttp",
			Name:      "request_duration_seconds",
			Help:      "Time from send to response for each record.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	for _, c := range []prometheus.Collector{m.Records, m.Duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observe(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Records.WithLabelValues(result).Inc()
	if result == ResultSuccess || result == ResultNonSuccess {
		m.Duration.Observe(elapsed.Seconds())
	}
}
