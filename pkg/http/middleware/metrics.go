package middleware

import (
	"strconv"
	"sync"
	"time"

	"ShrimpCast/pkg/logger"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequests  *prometheus.CounterVec
	httpLatency   *prometheus.HistogramVec
	httpInFlight  prometheus.Gauge
	httpRejected  *prometheus.CounterVec
	httpMetricsOnce sync.Once
)

func registerHTTPMetrics() {
	httpMetricsOnce.Do(func() {
		httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shrimpcast", Subsystem: "http", Name: "requests_total",
			Help: "API requests by route template, method and status.",
		}, []string{"route", "method", "status"})
		httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "shrimpcast", Subsystem: "http", Name: "request_seconds",
			Help:    "API request latency by route template.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"route"})
		httpInFlight = promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "shrimpcast", Subsystem: "http", Name: "in_flight",
			Help: "API requests being served.",
		})
		httpRejected = promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shrimpcast", Subsystem: "http", Name: "rejected_total",
			Help: "API requests answered with a client error, by route and status.",
		}, []string{"route", "status"})
	})
}

// Metrics records request counts and latency per route template. Requests
// the skipper accepts, like long lived streams, are not measured. 5xx
// responses are logged as errors and requests slower than slow as warnings.
func Metrics(l *logger.Logger, slow time.Duration, skipper echomw.Skipper) echo.MiddlewareFunc {
	registerHTTPMetrics()
	if skipper == nil {
		skipper = echomw.DefaultSkipper
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if skipper(c) {
				return next(c)
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			httpInFlight.Inc()
			defer httpInFlight.Dec()
			start := time.Now()

			if err := next(c); err != nil {
				c.Error(err)
			}

			took := time.Since(start)
			code := c.Response().Status
			status := strconv.Itoa(code)
			httpRequests.WithLabelValues(route, c.Request().Method, status).Inc()
			httpLatency.WithLabelValues(route).Observe(took.Seconds())

			switch {
			case code >= 500:
				l.Error("http request failed",
					logger.String("route", route),
					logger.Int("status", code),
					logger.Duration("duration_ms", took))
			case code >= 400:
				httpRejected.WithLabelValues(route, status).Inc()
			case slow > 0 && took >= slow:
				l.Warn("http request slow",
					logger.String("route", route),
					logger.Duration("duration_ms", took))
			}
			return nil
		}
	}
}
