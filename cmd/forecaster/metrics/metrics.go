// Package metrics provides Prometheus instrumentation for the forecaster.
//
// Metrics exposed:
//   - runrate_request_seconds: Histogram of end-to-end forecast duration by endpoint
//   - runrate_evaluation_seconds: Histogram of per-method backtest duration
//   - runrate_method_failures_total: Counter of methods excluded from selection
//   - runrate_model_selected_total: Counter of forecasts served by each method
//   - runrate_cache_requests_total: Counter of outcome cache lookups by result
//   - runrate_errors_total: Counter of errors by component and reason
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/HatiCode/runrate/pkg/engine"
)

// evaluationBuckets cover fast closed-form fits through slow ARIMA grids.
var evaluationBuckets = []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5}

// Metrics holds all Prometheus metrics for the forecaster.
type Metrics struct {
	RequestSeconds    *prometheus.HistogramVec
	EvaluationSeconds *prometheus.HistogramVec
	MethodFailures    *prometheus.CounterVec
	ModelSelected     *prometheus.CounterVec
	CacheRequests     *prometheus.CounterVec
	ErrorsTotal       *prometheus.CounterVec
}

// New creates the metrics and registers them with reg. A nil reg uses the
// default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		RequestSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "runrate_request_seconds",
			Help:    "Time spent producing a forecast response",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),

		EvaluationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "runrate_evaluation_seconds",
			Help:    "Time spent backtesting one method, including grid search",
			Buckets: evaluationBuckets,
		}, []string{"method"}),

		MethodFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "runrate_method_failures_total",
			Help: "Methods excluded from selection by reason",
		}, []string{"method", "reason"}),

		ModelSelected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "runrate_model_selected_total",
			Help: "Forecasts served by each method",
		}, []string{"method"}),

		CacheRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "runrate_cache_requests_total",
			Help: "Outcome cache lookups by result (hit, miss, error)",
		}, []string{"result"}),

		ErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "runrate_errors_total",
			Help: "Total number of errors by component and reason",
		}, []string{"component", "reason"}),
	}
}

// RecordRequest records the duration of a forecast request.
func (m *Metrics) RecordRequest(endpoint string, d time.Duration) {
	m.RequestSeconds.WithLabelValues(endpoint).Observe(d.Seconds())
}

// RecordCache counts a cache lookup result.
func (m *Metrics) RecordCache(result string) {
	m.CacheRequests.WithLabelValues(result).Inc()
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(component, reason string) {
	m.ErrorsTotal.WithLabelValues(component, reason).Inc()
}

// ObserveEvaluation implements engine.Observer.
func (m *Metrics) ObserveEvaluation(method string, d time.Duration, err error) {
	m.EvaluationSeconds.WithLabelValues(method).Observe(d.Seconds())
	if err != nil {
		m.MethodFailures.WithLabelValues(method, engine.FailureReason(err)).Inc()
	}
}

// ObserveSelection implements engine.Observer.
func (m *Metrics) ObserveSelection(method string) {
	m.ModelSelected.WithLabelValues(method).Inc()
}

var _ engine.Observer = (*Metrics)(nil)
