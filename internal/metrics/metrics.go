package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels successful analysis requests.
	OutcomeSuccess = "success"
	// OutcomeError labels failed analysis requests (bad input or pipeline issues).
	OutcomeError = "error"
)

// Line result labels for the ingest counter.
const (
	LineSlowQuery      = "slow_query"
	LineAuthentication = "authentication"
	LineConnection     = "connection"
	LineSkipped        = "skipped"
	LineParseError     = "parse_error"
)

var (
	ingestLinesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_slowlog",
			Name:      "ingest_lines_total",
			Help:      "Total number of log lines processed, partitioned by classification result.",
		},
		[]string{"result"},
	)

	ingestDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "mirador_slowlog",
			Name:      "ingest_seconds",
			Help:      "Ingest run latency in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
	)

	analysisRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_slowlog",
			Name:      "analysis_requests_total",
			Help:      "Total number of analysis requests handled, partitioned by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	analysisDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mirador_slowlog",
			Name:      "analysis_seconds",
			Help:      "Analysis request latency in seconds.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"kind"},
	)
)

// Register attaches mirador-slowlog collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		ingestLinesTotal,
		ingestDurationSeconds,
		analysisRequestsTotal,
		analysisDurationSeconds,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// CountLine records one classified log line.
func CountLine(result string) {
	ingestLinesTotal.WithLabelValues(result).Inc()
}

// ObserveIngest records the duration of one ingest run.
func ObserveIngest(duration time.Duration) {
	if duration < 0 {
		duration = 0
	}
	ingestDurationSeconds.Observe(duration.Seconds())
}

// ObserveAnalysis records an analysis request duration and outcome label.
func ObserveAnalysis(kind string, duration time.Duration, outcome string) {
	label := outcome
	if label != OutcomeError {
		label = OutcomeSuccess
	}
	analysisRequestsTotal.WithLabelValues(kind, label).Inc()
	if duration < 0 {
		duration = 0
	}
	analysisDurationSeconds.WithLabelValues(kind).Observe(duration.Seconds())
}
