package observ

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	AlertsIngested = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "alerts_ingested_total", Help: "Raw alerts fetched from the source"},
	)
	SignalsParsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "signals_parsed_total", Help: "Parse outcomes by result"},
		[]string{"result"},
	)
	TradesExecuted = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "trades_executed_total", Help: "Execution results by mode and status"},
		[]string{"mode", "status"},
	)
	PreflightFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "preflight_failures_total", Help: "Failed preflight checks by name"},
		[]string{"check"},
	)
	DedupeHits = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "dedupe_hits_total", Help: "Alerts skipped because the fingerprint was already executed"},
	)
)

func init() {
	prometheus.MustRegister(AlertsIngested, SignalsParsed, TradesExecuted, PreflightFailures, DedupeHits)
}

// ServeMetrics exposes /metrics on addr. The server runs until the process
// exits; failures to bind are the caller's problem to log.
func ServeMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
