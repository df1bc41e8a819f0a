package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	LedgerOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_operations_total",
			Help: "Total ledger operations.",
		},
		[]string{"op", "status"},
	)
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orders_total",
			Help: "Total orders by outcome.",
		},
		[]string{"action", "status"},
	)
	FillsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fills_total",
			Help: "Total execution reports applied.",
		},
		[]string{"status"},
	)
	WSClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ws_clients",
			Help: "Connected websocket clients.",
		},
	)
)

func Register(registry *prometheus.Registry) {
	registry.MustRegister(
		RequestCount,
		RequestDuration,
		LedgerOps,
		OrdersTotal,
		FillsTotal,
		WSClients,
	)
}

func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
