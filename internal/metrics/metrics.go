// Package metrics exposes Prometheus counters for forecasting, dosing,
// ingestion and the HTTP edge.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records service metrics on a Prometheus registry.
type Collector struct {
	backendPredictions *prometheus.CounterVec
	backendFailures    *prometheus.CounterVec
	inferenceLatency   *prometheus.HistogramVec
	doses              prometheus.Counter
	doseFlags          *prometheus.CounterVec
	glucoseIngested    *prometheus.CounterVec
	alerts             *prometheus.CounterVec
	httpRequests       *prometheus.CounterVec
	httpLatency        *prometheus.HistogramVec
}

// NewCollector creates a Collector and registers it on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		backendPredictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "diabetes_backend_predictions_total",
			Help: "Forecasts produced per backend",
		}, []string{"backend"}),
		backendFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "diabetes_backend_failures_total",
			Help: "Backend inference failures per backend",
		}, []string{"backend"}),
		inferenceLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "diabetes_backend_inference_seconds",
			Help:    "Backend inference latency",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
		}, []string{"backend"}),
		doses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "diabetes_dose_calculations_total",
			Help: "Insulin dose calculations",
		}),
		doseFlags: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "diabetes_dose_safety_flags_total",
			Help: "Safety flags raised by dose calculations",
		}, []string{"flag"}),
		glucoseIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "diabetes_glucose_ingested_total",
			Help: "Ingested glucose readings by source and outcome",
		}, []string{"source", "outcome"}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "diabetes_alerts_total",
			Help: "Glucose alerts raised by type",
		}, []string{"type"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "diabetes_http_requests_total",
			Help: "HTTP responses by route and status code",
		}, []string{"method", "route", "status_code"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "diabetes_http_request_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}

	reg.MustRegister(
		c.backendPredictions,
		c.backendFailures,
		c.inferenceLatency,
		c.doses,
		c.doseFlags,
		c.glucoseIngested,
		c.alerts,
		c.httpRequests,
		c.httpLatency,
	)

	return c
}

// RecordBackendPrediction counts a successful backend run.
func (c *Collector) RecordBackendPrediction(backend string, d time.Duration) {
	c.backendPredictions.WithLabelValues(backend).Inc()
	c.inferenceLatency.WithLabelValues(backend).Observe(d.Seconds())
}

// RecordBackendFailure counts a failed backend run.
func (c *Collector) RecordBackendFailure(backend string) {
	c.backendFailures.WithLabelValues(backend).Inc()
}

// RecordDose counts a dose calculation and its safety flags.
func (c *Collector) RecordDose(flags []string) {
	c.doses.Inc()
	for _, f := range flags {
		c.doseFlags.WithLabelValues(f).Inc()
	}
}

// RecordIngest counts stored and duplicate readings for a source.
func (c *Collector) RecordIngest(source string, created, duplicates int) {
	c.glucoseIngested.WithLabelValues(source, "created").Add(float64(created))
	c.glucoseIngested.WithLabelValues(source, "duplicate").Add(float64(duplicates))
}

// RecordAlert counts a raised alert.
func (c *Collector) RecordAlert(alertType string) {
	c.alerts.WithLabelValues(alertType).Inc()
}

// RecordHTTPRequest counts a response and observes its latency.
func (c *Collector) RecordHTTPRequest(method, route string, status int, d time.Duration) {
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpLatency.WithLabelValues(route).Observe(d.Seconds())
}

// Handler serves the registry for Prometheus scrapes.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
