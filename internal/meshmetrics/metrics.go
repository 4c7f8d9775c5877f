// Package meshmetrics holds the Prometheus instrumentation for a
// satellite mesh peer, isolated to its own registry so multiple peers
// can run in one test process without collector collisions.
package meshmetrics

import (
	"net/http"
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all custom satnode Prometheus metrics.
type Metrics struct {
	Registry *prometheus.Registry

	// Packet engine
	PacketsSentTotal      *prometheus.CounterVec
	PacketsForwardedTotal *prometheus.CounterVec
	PacketsDroppedTotal   *prometheus.CounterVec
	PacketsDeliveredTotal *prometheus.CounterVec

	// Neighbor table
	NeighborsAdmittedTotal *prometheus.CounterVec
	NeighborsEvictedTotal  *prometheus.CounterVec
	NeighborCount          prometheus.Gauge

	// Routing table
	RoutingPropagationsTotal *prometheus.CounterVec
	RouteCount               prometheus.Gauge

	// Key agent
	KeyExchangesTotal *prometheus.CounterVec

	// Clock service
	ClockAdjustmentSeconds prometheus.Histogram

	// Image reassembly
	ImageChunksBufferedTotal  prometheus.Counter
	ImagesReassembledTotal    prometheus.Counter
	ImageBuffersExpiredTotal  prometheus.Counter

	// Transport API
	APIRequestsTotal          *prometheus.CounterVec
	APIRequestDurationSeconds *prometheus.HistogramVec

	BuildInfo *prometheus.GaugeVec
}

// New creates a Metrics instance with all collectors registered on an
// isolated registry.
func New(nodeID string, version string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	constLabels := prometheus.Labels{"node_id": nodeID}

	m := &Metrics{
		Registry: reg,

		PacketsSentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "satnode_packets_sent_total",
				Help:        "Total packets originated by this node.",
				ConstLabels: constLabels,
			},
			[]string{"msg_type"},
		),
		PacketsForwardedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "satnode_packets_forwarded_total",
				Help:        "Total packets forwarded (routed or flooded) through this node.",
				ConstLabels: constLabels,
			},
			[]string{"mode"}, // "routed" or "flood"
		),
		PacketsDroppedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "satnode_packets_dropped_total",
				Help:        "Total packets dropped, labeled by reason.",
				ConstLabels: constLabels,
			},
			[]string{"reason"}, // ttl, nokey, crypto, parse, offline
		),
		PacketsDeliveredTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "satnode_packets_delivered_total",
				Help:        "Total packets delivered locally by this node.",
				ConstLabels: constLabels,
			},
			[]string{"msg_type"},
		),

		NeighborsAdmittedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "satnode_neighbors_admitted_total",
				Help:        "Total neighbor admission events.",
				ConstLabels: constLabels,
			},
			[]string{},
		),
		NeighborsEvictedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "satnode_neighbors_evicted_total",
				Help:        "Total neighbor eviction events, labeled by reason.",
				ConstLabels: constLabels,
			},
			[]string{"reason"}, // heartbeat_timeout
		),
		NeighborCount: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name:        "satnode_neighbor_count",
				Help:        "Current number of neighbors.",
				ConstLabels: constLabels,
			},
		),

		RoutingPropagationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "satnode_routing_propagations_total",
				Help:        "Total routing table propagations sent.",
				ConstLabels: constLabels,
			},
			[]string{},
		),
		RouteCount: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name:        "satnode_route_count",
				Help:        "Current number of routes in the routing table.",
				ConstLabels: constLabels,
			},
		),

		KeyExchangesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "satnode_key_exchanges_total",
				Help:        "Total key exchange attempts, labeled by result.",
				ConstLabels: constLabels,
			},
			[]string{"result"}, // ok, error
		),

		ClockAdjustmentSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:        "satnode_clock_adjustment_seconds",
				Help:        "Applied Berkeley-average clock adjustment per sync round.",
				ConstLabels: constLabels,
				Buckets:     prometheus.LinearBuckets(-5, 1, 11),
			},
		),

		ImageChunksBufferedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name:        "satnode_image_chunks_buffered_total",
				Help:        "Total image chunks buffered pending reassembly.",
				ConstLabels: constLabels,
			},
		),
		ImagesReassembledTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name:        "satnode_images_reassembled_total",
				Help:        "Total images fully reassembled and persisted.",
				ConstLabels: constLabels,
			},
		),
		ImageBuffersExpiredTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name:        "satnode_image_buffers_expired_total",
				Help:        "Total partial image buffers evicted by the TTL janitor.",
				ConstLabels: constLabels,
			},
		),

		APIRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "satnode_api_requests_total",
				Help:        "Total transport API requests, labeled by endpoint and status.",
				ConstLabels: constLabels,
			},
			[]string{"endpoint", "status"},
		),
		APIRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "satnode_api_request_duration_seconds",
				Help:        "Transport API request duration in seconds.",
				ConstLabels: constLabels,
				Buckets:     prometheus.ExponentialBuckets(0.001, 2, 12),
			},
			[]string{"endpoint"},
		),

		BuildInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "satnode_info",
				Help: "Build information for the running satnode instance.",
			},
			[]string{"node_id", "version", "go_version"},
		),
	}

	reg.MustRegister(
		m.PacketsSentTotal,
		m.PacketsForwardedTotal,
		m.PacketsDroppedTotal,
		m.PacketsDeliveredTotal,
		m.NeighborsAdmittedTotal,
		m.NeighborsEvictedTotal,
		m.NeighborCount,
		m.RoutingPropagationsTotal,
		m.RouteCount,
		m.KeyExchangesTotal,
		m.ClockAdjustmentSeconds,
		m.ImageChunksBufferedTotal,
		m.ImagesReassembledTotal,
		m.ImageBuffersExpiredTotal,
		m.APIRequestsTotal,
		m.APIRequestDurationSeconds,
		m.BuildInfo,
	)

	m.BuildInfo.WithLabelValues(nodeID, version, runtime.Version()).Set(1)

	return m
}

// Handler returns an http.Handler that serves the Prometheus metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
