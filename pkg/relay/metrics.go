package relay

import (
	"github.com/geetika1312/VC/pkg/api"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes the relay counters to Prometheus.
// A nil *Metrics is valid and does nothing.
type Metrics struct {
	endpointsGauge prometheus.Gauge
	roomsGauge     prometheus.Gauge
	forwardedVec   *prometheus.CounterVec
	droppedVec     *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		endpointsGauge: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "vc", Subsystem: "relay", Name: "endpoints",
			Help: "Number of connected endpoints.",
		}),
		roomsGauge: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "vc", Subsystem: "relay", Name: "rooms",
			Help: "Number of non-empty rooms.",
		}),
		forwardedVec: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vc", Subsystem: "relay", Name: "forwarded_total",
			Help: "Directed packets delivered, by packet type.",
		}, []string{"type"}),
		droppedVec: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vc", Subsystem: "relay", Name: "dropped_total",
			Help: "Directed packets dropped, by packet type.",
		}, []string{"type"}),
	}
}

func (m *Metrics) setEndpoints(n int) {
	if m != nil {
		m.endpointsGauge.Set(float64(n))
	}
}

func (m *Metrics) setRooms(n int) {
	if m != nil {
		m.roomsGauge.Set(float64(n))
	}
}

func (m *Metrics) forwarded(t api.PT) {
	if m != nil {
		m.forwardedVec.WithLabelValues(t.String()).Inc()
	}
}

func (m *Metrics) dropped(t api.PT) {
	if m != nil {
		m.droppedVec.WithLabelValues(t.String()).Inc()
	}
}
