// Package metrics exposes Prometheus collectors for the rank checker.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	apiRequestsTotal       *prometheus.CounterVec
	apiRequestDuration     *prometheus.HistogramVec
	rankRecordsTotal       *prometheus.CounterVec
	tasksPending           prometheus.Gauge
	pollCyclesTotal        prometheus.Counter
	rateLimitDelaySeconds  prometheus.Histogram
	submissionRetriesTotal prometheus.Counter
	readinessFailuresTotal prometheus.Counter

	once sync.Once
)

// Init initializes the Prometheus collectors. Safe to call multiple times.
func Init() {
	once.Do(func() {
		apiRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rankscope_api_requests_total",
				Help: "Total remote API requests, labeled by endpoint and outcome.",
			},
			[]string{"endpoint", "outcome"},
		)

		apiRequestDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rankscope_api_request_duration_seconds",
				Help:    "Remote API request latency by endpoint.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		)

		rankRecordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rankscope_rank_records_total",
				Help: "Terminal rank records produced, labeled by mode and outcome.",
			},
			[]string{"mode", "outcome"},
		)

		tasksPending = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "rankscope_tasks_pending",
				Help: "Queued tasks still awaiting a terminal result.",
			},
		)

		pollCyclesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "rankscope_poll_cycles_total",
				Help: "Readiness poll cycles executed.",
			},
		)

		rateLimitDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "rankscope_rate_limit_delay_seconds",
				Help:    "Delay introduced by the launch spacing limiter.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
		)

		submissionRetriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "rankscope_submission_retries_total",
				Help: "Batch submissions retried after transient failures.",
			},
		)

		readinessFailuresTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "rankscope_readiness_failures_total",
				Help: "Readiness queries that failed and fell back to direct sampling.",
			},
		)
	})
}

// ObserveRequest records one remote API call.
func ObserveRequest(endpoint, outcome string, dur time.Duration) {
	if apiRequestsTotal == nil {
		return
	}
	apiRequestsTotal.WithLabelValues(endpoint, outcome).Inc()
	apiRequestDuration.WithLabelValues(endpoint).Observe(dur.Seconds())
}

// IncRecord counts one terminal rank record.
func IncRecord(mode, outcome string) {
	if rankRecordsTotal == nil {
		return
	}
	rankRecordsTotal.WithLabelValues(mode, outcome).Inc()
}

// SetTasksPending updates the pending-task gauge.
func SetTasksPending(n int) {
	if tasksPending == nil {
		return
	}
	tasksPending.Set(float64(n))
}

// IncPollCycle counts one readiness poll cycle.
func IncPollCycle() {
	if pollCyclesTotal == nil {
		return
	}
	pollCyclesTotal.Inc()
}

// ObserveRateLimitDelay records time spent waiting on the launch limiter.
func ObserveRateLimitDelay(dur time.Duration) {
	if rateLimitDelaySeconds == nil {
		return
	}
	rateLimitDelaySeconds.Observe(dur.Seconds())
}

// IncSubmissionRetry counts one retried batch submission.
func IncSubmissionRetry() {
	if submissionRetriesTotal == nil {
		return
	}
	submissionRetriesTotal.Inc()
}

// IncReadinessFailure counts one failed readiness query.
func IncReadinessFailure() {
	if readinessFailuresTotal == nil {
		return
	}
	readinessFailuresTotal.Inc()
}

// Handler returns the /metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
