package middleware

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics records request counts, latency and in-flight requests.
type HTTPMetrics struct {
	requests *prometheus.HistogramVec
	inFlight prometheus.Gauge
	respSize prometheus.Histogram
}

func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	m := &HTTPMetrics{
		requests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ancexport",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by method, route and status",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ancexport",
			Subsystem: "http",
			Name:      "active_requests",
			Help:      "Requests currently being served",
		}),
		respSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ancexport",
			Subsystem: "http",
			Name:      "response_size_bytes",
			Help:      "HTTP response body size",
			Buckets:   prometheus.ExponentialBuckets(256, 4, 8),
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.requests, m.inFlight, m.respSize)
	return m
}

// Middleware writes handler errors itself so the recorded status is final.
func (m *HTTPMetrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			m.inFlight.Inc()
			defer m.inFlight.Dec()

			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			// Route pattern keeps label cardinality bounded.
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			m.requests.
				WithLabelValues(c.Request().Method, route, strconv.Itoa(c.Response().Status)).
				Observe(time.Since(start).Seconds())
			if size := c.Response().Size; size > 0 {
				m.respSize.Observe(float64(size))
			}
			return nil
		}
	}
}
