// Package metrics exposes Prometheus collectors for the HTTP surface and the
// ventilation service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ventcalc/ventcalc/internal/domain/ventilation"
)

const namespace = "ventcalc"

// Metrics owns a private registry so that tests and multiple servers in one
// process do not collide on the global one.
type Metrics struct {
	registry     *prometheus.Registry
	calculations *prometheus.CounterVec
	worksheets   prometheus.Gauge
	requests     *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		calculations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calculations_total",
			Help:      "Calculations recorded to history, by kind.",
		}, []string{"kind"}),
		worksheets: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "worksheets_active",
			Help:      "Live worksheets held in memory.",
		}),
		requests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	m.registry.MustRegister(
		m.calculations,
		m.worksheets,
		m.requests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// CalculationRecorded implements ventilation.Observer.
func (m *Metrics) CalculationRecorded(kind ventilation.CalculationKind) {
	m.calculations.WithLabelValues(string(kind)).Inc()
}

// WorksheetsActive implements ventilation.Observer.
func (m *Metrics) WorksheetsActive(n int) {
	m.worksheets.Set(float64(n))
}

// Middleware observes request latency. The route label is the registered
// path pattern, not the raw URL, to keep cardinality bounded.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			m.requests.WithLabelValues(c.Request().Method, route, strconv.Itoa(status)).
				Observe(time.Since(start).Seconds())
			return err
		}
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

var _ ventilation.Observer = (*Metrics)(nil)
