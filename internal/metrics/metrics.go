// Package metrics exposes the ledger's Prometheus collectors. Observers are
// no-ops until Init has been called, so libraries and tests can record freely.
package metrics

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"feeledger/internal/core"
)

const (
	metricPrefix = "feeledger_"

	resultSuccess = "success"
	resultPartial = "partial"
	resultError   = "error"

	outcomeApplied  = "applied"
	outcomeSkipped  = "skipped"
	outcomeRejected = "rejected"
	outcomeFailed   = "failed"
)

// StatusSource supplies the status gauges.
type StatusSource interface {
	ListStatusCounts(ctx context.Context) (core.StatusCounts, error)
}

var (
	registerOnce sync.Once

	paymentsTotal *prometheus.CounterVec

	reconcileRuns        *prometheus.CounterVec
	reconcileLatency     *prometheus.HistogramVec
	reconcileTransitions *prometheus.CounterVec

	importRows *prometheus.CounterVec

	exportTotal   *prometheus.CounterVec
	exportLatency *prometheus.HistogramVec

	eventsPublished *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
)

// Init registers the collectors with the default registry. source may be nil;
// when set, the per-status student gauges are computed on scrape.
func Init(source StatusSource) {
	registerOnce.Do(func() {
		paymentsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "payments_total",
				Help: "Payments handled by method and outcome",
			},
			[]string{"method", "outcome"},
		)

		reconcileRuns = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "reconciliation_runs_total",
				Help: "Reconciliation runs by result",
			},
			[]string{"result"},
		)
		reconcileLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "reconciliation_duration_seconds",
				Help:    "Reconciliation run duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		reconcileTransitions = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "reconciliation_transitions_total",
				Help: "Balances rolled over by carry-forward rule",
			},
			[]string{"transition"},
		)

		importRows = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "import_rows_total",
				Help: "Statement import rows by outcome",
			},
			[]string{"outcome"},
		)

		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "report_export_total",
				Help: "Status report exports by format and result",
			},
			[]string{"format", "result"},
		)
		exportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "report_export_duration_seconds",
				Help:    "Status report export duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format"},
		)

		eventsPublished = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "events_published_total",
				Help: "Ledger events published by type and result",
			},
			[]string{"type", "result"},
		)

		httpRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "http_requests_total",
				Help: "HTTP requests by method, route and status code",
			},
			[]string{"method", "route", "code"},
		)
		httpLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		)

		prometheus.MustRegister(
			paymentsTotal,
			reconcileRuns,
			reconcileLatency,
			reconcileTransitions,
			importRows,
			exportTotal,
			exportLatency,
			eventsPublished,
			httpRequests,
			httpLatency,
		)

		if source != nil {
			registerStatusGauges(source)
		}
	})
}

func registerStatusGauges(source StatusSource) {
	for _, status := range []core.Status{core.StatusPaid, core.StatusPending, core.StatusExcess} {
		prometheus.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name:        metricPrefix + "students",
				Help:        "Students per derived balance status",
				ConstLabels: prometheus.Labels{"status": string(status)},
			},
			func() float64 {
				return statusCount(source, status)
			},
		))
	}
}

func statusCount(source StatusSource, status core.Status) float64 {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	counts, err := source.ListStatusCounts(ctx)
	if err != nil {
		slog.Warn("metrics status query failed", "error", err)
		return 0
	}
	switch status {
	case core.StatusPaid:
		return float64(counts.Paid)
	case core.StatusPending:
		return float64(counts.Pending)
	default:
		return float64(counts.Excess)
	}
}

// ObservePayment counts one payment attempt.
func ObservePayment(method, outcome string) {
	if method == "" {
		method = "unknown"
	}
	if paymentsTotal != nil {
		paymentsTotal.WithLabelValues(method, outcome).Inc()
	}
}

// ObserveReconciliation records run duration and result.
func ObserveReconciliation(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if reconcileRuns != nil {
		reconcileRuns.WithLabelValues(result).Inc()
	}
	if reconcileLatency != nil {
		reconcileLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// ObserveTransition counts one rolled over balance.
func ObserveTransition(transition string) {
	if reconcileTransitions != nil {
		reconcileTransitions.WithLabelValues(transition).Inc()
	}
}

// AddImportRows adds count rows with the given outcome.
func AddImportRows(outcome string, count int) {
	if count <= 0 {
		return
	}
	if importRows != nil {
		importRows.WithLabelValues(outcome).Add(float64(count))
	}
}

// ObserveExport records export latency and result.
func ObserveExport(format, result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, result).Inc()
	}
	if exportLatency != nil {
		exportLatency.WithLabelValues(format).Observe(duration.Seconds())
	}
}

// ObserveEventPublished counts a publish attempt.
func ObserveEventPublished(eventType string, err error) {
	result := resultSuccess
	if err != nil {
		result = resultError
	}
	if eventsPublished != nil {
		eventsPublished.WithLabelValues(eventType, result).Inc()
	}
}

// ObserveHTTPRequest records one served request. route is the mux pattern, not the raw path.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	if httpRequests != nil {
		httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	}
	if httpLatency != nil {
		httpLatency.WithLabelValues(method, route).Observe(duration.Seconds())
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultPartial = resultPartial
	ResultError   = resultError

	OutcomeApplied  = outcomeApplied
	OutcomeSkipped  = outcomeSkipped
	OutcomeRejected = outcomeRejected
	OutcomeFailed   = outcomeFailed
)
