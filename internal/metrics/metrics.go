// Package metrics holds the Prometheus instrumentation for the control
// plane's three long-running components.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is a process-wide singleton registered against the default
// Prometheus registry at construction.
type Metrics struct {
	ForwardProxyBytesTotal       *prometheus.CounterVec
	ForwardProxyConnectionsTotal *prometheus.CounterVec
	ForwardProxyEnforcementTotal *prometheus.CounterVec

	GatewayRequestsTotal *prometheus.CounterVec
	GatewayBlockedRPCs   *prometheus.CounterVec
	GatewayWSSessions    prometheus.Gauge

	MonitorTickDuration  prometheus.Histogram
	MonitorVpsesStopped  *prometheus.CounterVec
	MonitorCollectErrors *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		ForwardProxyBytesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forwardproxy_bytes_total",
				Help: "Bytes relayed through the forward proxy, by direction.",
			},
			[]string{"direction"}, // up, down
		),
		ForwardProxyConnectionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forwardproxy_connections_total",
				Help: "Forward proxy connections by outcome.",
			},
			[]string{"outcome"}, // malformed, auth_failed, resolve_failed, connect, http
		),
		ForwardProxyEnforcementTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forwardproxy_enforcement_total",
				Help: "Per-request enforcement decisions; bandwidth-only providers always record allow.",
			},
			[]string{"decision"}, // allow, allow_overage, reject
		),
		GatewayRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_requests_total",
				Help: "Gateway reverse-proxy HTTP requests by outcome.",
			},
			[]string{"outcome"}, // forwarded, blocked_path, auth_failed, not_found, unavailable, upstream_failed
		),
		GatewayBlockedRPCs: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_blocked_rpcs_total",
				Help: "WebSocket RPC frames rejected by the method block set.",
			},
			[]string{"method"},
		),
		GatewayWSSessions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "gateway_ws_sessions",
				Help: "Currently open gateway WebSocket sessions.",
			},
		),
		MonitorTickDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "monitor_tick_duration_seconds",
				Help:    "Wall-clock duration of a full monitor poll tick.",
				Buckets: prometheus.DefBuckets,
			},
		),
		MonitorVpsesStopped: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "monitor_vpses_stopped_total",
				Help: "VPSes stopped by enforcement, by resource axis that triggered it.",
			},
			[]string{"resource"}, // bandwidth, cpu, memory
		),
		MonitorCollectErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "monitor_collect_errors_total",
				Help: "Per-VPS metric collection failures, including timeouts.",
			},
			[]string{"reason"}, // timeout, provider_error
		),
	}
}
