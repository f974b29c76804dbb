package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "banko",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "banko",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	statementsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "banko",
			Subsystem: "statements",
			Name:      "processed_total",
			Help:      "Statement files processed, by format and outcome.",
		},
		[]string{"source", "format", "result"},
	)
	transactionsExtracted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "banko",
			Subsystem: "statements",
			Name:      "transactions_total",
			Help:      "Transactions extracted from statement entries.",
		},
		[]string{"format", "type"},
	)
	validationIssues = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "banko",
			Subsystem: "validation",
			Name:      "issues_total",
			Help:      "Validation issues reported, by code and severity.",
		},
		[]string{"code", "severity"},
	)
	duplicates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "banko",
			Subsystem: "statements",
			Name:      "duplicates_total",
			Help:      "Statement files skipped as duplicates.",
		},
		[]string{"source"},
	)
	eventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "banko",
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Events published to the broker.",
		},
		[]string{"subject", "success"},
	)
	analysisDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "banko",
			Subsystem: "analysis",
			Name:      "duration_seconds",
			Help:      "Time spent analyzing a batch of statement files.",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

// RegisterMetrics registers the collectors with the default registry once
func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			statementsProcessed, transactionsExtracted,
			validationIssues, duplicates,
			eventsPublished, analysisDuration,
		)
	})
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

// RecordStatement counts one processed file. Source is "http", "nats" or "cli".
func RecordStatement(source, format, result string) {
	RegisterMetrics()
	if format == "" {
		format = "unknown"
	}
	statementsProcessed.WithLabelValues(source, format, result).Inc()
}

func RecordTransactions(format, typ string, n int) {
	RegisterMetrics()
	transactionsExtracted.WithLabelValues(format, typ).Add(float64(n))
}

func RecordValidationIssue(code, severity string) {
	RegisterMetrics()
	validationIssues.WithLabelValues(code, severity).Inc()
}

func RecordDuplicate(source string) {
	RegisterMetrics()
	duplicates.WithLabelValues(source).Inc()
}

func RecordEventPublished(subject string, success bool) {
	RegisterMetrics()
	eventsPublished.WithLabelValues(subject, strconv.FormatBool(success)).Inc()
}

func RecordAnalysis(duration time.Duration) {
	RegisterMetrics()
	analysisDuration.Observe(duration.Seconds())
}
