// Package metrics holds the controller's Prometheus instrumentation,
// registered against a caller-supplied prometheus.Registerer rather than
// the global default, per the registry-injection pattern used throughout
// the telemetry services.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every counter/gauge/histogram the controller exposes.
type Metrics struct {
	DevicesConnected prometheus.Gauge
	DeviceLostTotal  prometheus.Counter

	PacketsInTotal  prometheus.Counter
	PacketsOutTotal prometheus.Counter

	WriteEntityDuration prometheus.Histogram
	WriteEntityErrors   *prometheus.CounterVec

	NorthboundRequests *prometheus.CounterVec
}

// New registers every metric against reg and returns the resulting
// Metrics. Call with prometheus.NewRegistry() in tests to avoid
// colliding with the process-wide default registry.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		DevicesConnected: factory.NewGauge(prometheus.GaugeOpts{
			Name: "p4ctl_devices_connected",
			Help: "Number of devices currently connected and registered with the manager.",
		}),
		DeviceLostTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "p4ctl_device_lost_total",
			Help: "Total number of device disconnect events.",
		}),
		PacketsInTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "p4ctl_packets_in_total",
			Help: "Total number of packet-in messages received from devices.",
		}),
		PacketsOutTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "p4ctl_packets_out_total",
			Help: "Total number of packet-out messages sent to devices.",
		}),
		WriteEntityDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "p4ctl_write_entity_duration_seconds",
			Help:    "Latency of WriteEntity calls to devices.",
			Buckets: prometheus.DefBuckets,
		}),
		WriteEntityErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "p4ctl_write_entity_errors_total",
			Help: "Total WriteEntity failures by reason.",
		}, []string{"reason"}),
		NorthboundRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "p4ctl_northbound_requests_total",
			Help: "Total northbound requests by service and outcome.",
		}, []string{"service", "outcome"}),
	}
}
