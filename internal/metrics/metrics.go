// Package metrics exposes Prometheus instruments for the employee service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector implements employee.MetricsRecorder and records HTTP status codes.
type Collector struct {
	employeesCreated prometheus.Counter
	loginAttempts    *prometheus.CounterVec
	tokensIssued     *prometheus.CounterVec
	hashLatency      prometheus.Histogram
	httpStatus       *prometheus.CounterVec
}

// NewCollector registers every instrument on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		employeesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "employee_created_total",
			Help: "Employees registered.",
		}),
		loginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "employee_login_attempts_total",
			Help: "Login attempts by result.",
		}, []string{"result"}),
		tokensIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "employee_token_pairs_issued_total",
			Help: "Token pairs issued by flow.",
		}, []string{"flow"}),
		hashLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "employee_secret_hash_seconds",
			Help:    "Time spent hashing secrets before a write.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2},
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "employee_http_responses_total",
			Help: "HTTP responses by status code.",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.employeesCreated,
		c.loginAttempts,
		c.tokensIssued,
		c.hashLatency,
		c.httpStatus,
	)
	return c
}

func (c *Collector) EmployeeCreated() { c.employeesCreated.Inc() }

// LoginAttempt counts a login by result ("accepted" or "rejected").
func (c *Collector) LoginAttempt(result string) {
	c.loginAttempts.WithLabelValues(result).Inc()
}

func (c *Collector) TokensIssued(flow string) {
	c.tokensIssued.WithLabelValues(flow).Inc()
}

func (c *Collector) ObserveHash(d time.Duration) {
	c.hashLatency.Observe(d.Seconds())
}

func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler serves the scrape endpoint for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
