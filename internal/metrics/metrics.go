// Package metrics holds the Prometheus collectors shared by the rate cache,
// the ledger verifiers and the HTTP layer.
package metrics

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RateRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cryptofund",
		Subsystem: "rates",
		Name:      "refreshes_total",
		Help:      "Price oracle refresh attempts by result (ok, error, throttled).",
	}, []string{"result"})

	RateAge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "cryptofund",
		Subsystem: "rates",
		Name:      "snapshot_refreshed_timestamp_seconds",
		Help:      "Unix time of the last successful oracle refresh.",
	})

	Verifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cryptofund",
		Subsystem: "ledger",
		Name:      "verifications_total",
		Help:      "Payment verification outcomes by chain and reason.",
	}, []string{"chain", "reason"})

	ExplorerRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "cryptofund",
		Subsystem: "ledger",
		Name:      "explorer_request_duration_seconds",
		Help:      "Latency of chain explorer API requests.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"explorer", "call"})
)

type logFunc func(msg string, args ...any)

func (l logFunc) Println(v ...any) {
	l("metrics handler error", "error", v)
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
		ErrorLog:      logFunc(slog.Warn),
		ErrorHandling: promhttp.HTTPErrorOnError,
	})
}
