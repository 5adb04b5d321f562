package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ScansTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "scans_total", Help: "Completed scan cycles"},
	)
	SymbolsScanned = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "symbols_scanned_total", Help: "Symbols evaluated by the gate pipeline"},
	)
	GatePassTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "gate_pass_total", Help: "Symbols that passed the gate"},
		[]string{"side"},
	)
	VetoTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "veto_total", Help: "Hard vetoes fired during scoring"},
		[]string{"reason"},
	)
	OpensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "opens_total", Help: "Positions opened"},
		[]string{"symbol", "side"},
	)
	ClosesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "closes_total", Help: "Positions closed"},
		[]string{"symbol", "reason"},
	)
	NoTouchTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "no_touch_total", Help: "Open attempts abandoned because price moved away"},
	)
	FetchErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "fetch_errors_total", Help: "Market data fetches that failed after retries"},
		[]string{"kind"},
	)
	ThresholdGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "score_threshold", Help: "Current adaptive acceptance threshold"},
	)
	ActivePositions = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "active_positions", Help: "Open positions being monitored"},
	)
)

func init() {
	prometheus.MustRegister(
		ScansTotal, SymbolsScanned, GatePassTotal, VetoTotal,
		OpensTotal, ClosesTotal, NoTouchTotal, FetchErrorsTotal,
		ThresholdGauge, ActivePositions,
	)
}

func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
