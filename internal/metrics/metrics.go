// Package metrics exposes the service's Prometheus collectors and the HTTP
// instrumentation middleware.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	checkoutAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_attempts_total",
			Help: "Checkout attempts by terminal outcome",
		},
		[]string{"outcome"},
	)

	paymentDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "payment_gateway_duration_seconds",
			Help:    "Latency of payment gateway sale calls",
			Buckets: prometheus.DefBuckets,
		},
	)

	reservationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stock_reservations_total",
			Help: "Reservation attempts by result",
		},
		[]string{"result"},
	)

	reservationsSweptTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stock_reservations_swept_total",
			Help: "Expired reservations released by the sweeper",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		checkoutAttemptsTotal,
		paymentDuration,
		reservationsTotal,
		reservationsSweptTotal,
	)
}

// Checkout outcome labels.
const (
	OutcomeFulfilled         = "fulfilled"
	OutcomeReplayed          = "replayed"
	OutcomeEmptyCart         = "empty_cart"
	OutcomeInsufficientStock = "insufficient_stock"
	OutcomePaymentDeclined   = "payment_declined"
	OutcomeInfraError        = "infra_error"
)

// RecordCheckoutOutcome counts a terminal checkout outcome.
func RecordCheckoutOutcome(outcome string) {
	checkoutAttemptsTotal.WithLabelValues(outcome).Inc()
}

// ObservePaymentDuration records the latency of a gateway sale call.
func ObservePaymentDuration(d time.Duration) {
	paymentDuration.Observe(d.Seconds())
}

// RecordReservation counts a reservation attempt result.
func RecordReservation(result string) {
	reservationsTotal.WithLabelValues(result).Inc()
}

// RecordSwept counts reservations released by the expiry sweep.
func RecordSwept(n int) {
	reservationsSweptTotal.Add(float64(n))
}

// Middleware instruments every request with count and latency metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the Prometheus scrape endpoint.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
