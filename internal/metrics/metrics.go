// Package metrics holds the prometheus collectors for the tips service.
package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sundayezeilo/tips/internal/errx"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tips_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "route", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tips_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"method", "route"})
)

// Store metrics
var (
	StoreOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tips_store_operations_total",
		Help: "Total number of tip store operations by result",
	}, []string{"operation", "result"})

	StoreOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tips_store_operation_duration_seconds",
		Help:    "Tip store operation duration in seconds, including connection setup",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"operation"})
)

// StoreObserver records tip store operations. It satisfies tips.Observer.
type StoreObserver struct{}

func (StoreObserver) ObserveStoreOp(operation string, d time.Duration, err error) {
	StoreOperationsTotal.WithLabelValues(operation, Result(err)).Inc()
	StoreOperationDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// Result turns an operation error into a bounded label value.
func Result(err error) string {
	if err == nil {
		return "ok"
	}
	return strings.ToLower(errx.KindOf(err).String())
}

// Route returns the label for a request's matched pattern, without the
// method prefix. Unmatched requests share one label.
func Route(pattern string) string {
	if pattern == "" {
		return "unmatched"
	}
	if _, path, ok := strings.Cut(pattern, " "); ok {
		return path
	}
	return pattern
}
