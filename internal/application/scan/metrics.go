package scan

import (
	"time"

	"github.com/khanhnv2901/headerscope/internal/checker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records scan outcomes. A nil *Metrics is valid and records nothing.
type Metrics struct {
	scansTotal   *prometheus.CounterVec
	scanScore    prometheus.Histogram
	scanDuration prometheus.Histogram
	wafSuspected prometheus.Counter
}

// NewMetrics registers scan metrics against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		scansTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "headerscope_scans_total",
			Help: "Total scans by outcome (ok or the failure kind).",
		}, []string{"outcome"}),
		scanScore: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "headerscope_scan_score",
			Help:    "Distribution of security header scores.",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		}),
		scanDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "headerscope_scan_duration_seconds",
			Help:    "Time spent fetching and evaluating a target.",
			Buckets: prometheus.DefBuckets,
		}),
		wafSuspected: factory.NewCounter(prometheus.CounterOpts{
			Name: "headerscope_waf_suspected_total",
			Help: "Total scans where a firewall was suspected of blocking the probe.",
		}),
	}
}

func (m *Metrics) recordSuccess(a *checker.Assessment, d time.Duration) {
	if m == nil {
		return
	}
	m.scansTotal.WithLabelValues("ok").Inc()
	m.scanScore.Observe(float64(a.Score))
	m.scanDuration.Observe(d.Seconds())
	if a.WAFSuspected {
		m.wafSuspected.Inc()
	}
}

func (m *Metrics) recordFailure(kind ErrorKind, d time.Duration) {
	if m == nil {
		return
	}
	m.scansTotal.WithLabelValues(string(kind)).Inc()
	m.scanDuration.Observe(d.Seconds())
}
