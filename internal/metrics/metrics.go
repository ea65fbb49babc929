package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	BarsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "bars_total", Help: "Count of closed bars ingested"},
		[]string{"asset"},
	)
	RebalanceEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "rebalance_events_total", Help: "Rebalance events fired by the scheduler"},
		[]string{"event"},
	)
	IntentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "intents_total", Help: "Rebalance intents emitted"},
		[]string{"asset", "action"},
	)
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "orders_total", Help: "Orders submitted"},
		[]string{"asset", "side"},
	)
	OrderRejectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "order_rejects_total", Help: "Orders rejected by the venue"},
		[]string{"asset"},
	)
	PortfolioEquity = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "portfolio_equity", Help: "Marked-to-market portfolio equity"},
	)
)

func init() {
	prometheus.MustRegister(BarsTotal, RebalanceEventsTotal, IntentsTotal, OrdersTotal, OrderRejectsTotal, PortfolioEquity)
}

// Serve exposes /metrics on addr in the background.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
