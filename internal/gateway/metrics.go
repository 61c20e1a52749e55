// ABOUTME: Prometheus metrics for the gateway's connection lifecycle
// ABOUTME: Each gateway owns its own registry so instances never collide

package gateway

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry *prometheus.Registry

	onlineUsers prometheus.Gauge
	connects    prometheus.Counter
	rejects     prometheus.Counter
	disconnects prometheus.Counter
	supersedes  prometheus.Counter
	resumes     prometheus.Counter
}

func newMetrics() *metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &metrics{
		registry: reg,
		onlineUsers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "presence_online_users",
			Help: "Number of users currently registered as online.",
		}),
		connects: factory.NewCounter(prometheus.CounterOpts{
			Name: "presence_connects_total",
			Help: "Total accepted WebSocket connections.",
		}),
		rejects: factory.NewCounter(prometheus.CounterOpts{
			Name: "presence_rejects_total",
			Help: "Total connections rejected during authentication.",
		}),
		disconnects: factory.NewCounter(prometheus.CounterOpts{
			Name: "presence_disconnects_total",
			Help: "Total sessions unregistered from presence.",
		}),
		supersedes: factory.NewCounter(prometheus.CounterOpts{
			Name: "presence_superseded_total",
			Help: "Total connections closed because a newer connection from the same user arrived.",
		}),
		resumes: factory.NewCounter(prometheus.CounterOpts{
			Name: "presence_resumes_total",
			Help: "Total sessions resumed within the reconnection grace window.",
		}),
	}
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
