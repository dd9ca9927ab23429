// Package metrics exposes the relay's Prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector aggregates the relay's counters and gauges. Each Collector
// owns its registry so independent server instances never collide.
type Collector struct {
	registry *prometheus.Registry

	activeRooms    prometheus.Gauge
	activeSessions prometheus.Gauge
	presenceOnline prometheus.Gauge

	roomsCreated  prometheus.Counter
	sessionsTotal prometheus.Counter
	joinFailures  *prometheus.CounterVec

	controlFrames   *prometheus.CounterVec
	protocolErrors  prometheus.Counter
	audioDatagrams  prometheus.Counter
	audioBytes      prometheus.Counter
	audioUnroutable prometheus.Counter
}

func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &Collector{
		registry: registry,
		activeRooms: factory.NewGauge(prometheus.GaugeOpts{
			Name: "relay_active_rooms",
			Help: "Number of rooms waiting for a second occupant",
		}),
		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "relay_active_sessions",
			Help: "Number of paired sessions being forwarded",
		}),
		presenceOnline: factory.NewGauge(prometheus.GaugeOpts{
			Name: "relay_presence_online",
			Help: "Number of clients registered on the presence channel",
		}),
		roomsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_rooms_created_total",
			Help: "Total rooms created",
		}),
		sessionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_sessions_total",
			Help: "Total rooms promoted to sessions",
		}),
		joinFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_join_failures_total",
			Help: "Failed join attempts by reason",
		}, []string{"reason"}),
		controlFrames: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_control_frames_total",
			Help: "Control frames forwarded between session halves",
		}, []string{"type"}),
		protocolErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_protocol_errors_total",
			Help: "Connections dropped for malformed frames",
		}),
		audioDatagrams: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_audio_datagrams_total",
			Help: "Audio datagrams forwarded",
		}),
		audioBytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_audio_bytes_total",
			Help: "Audio payload bytes forwarded",
		}),
		audioUnroutable: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_audio_unroutable_total",
			Help: "Audio datagrams dropped for unknown stream or unknown peer endpoint",
		}),
	}
}

func (c *Collector) RoomCreated()             { c.roomsCreated.Inc(); c.activeRooms.Inc() }
func (c *Collector) RoomClosed()              { c.activeRooms.Dec() }
func (c *Collector) SessionStarted()          { c.sessionsTotal.Inc(); c.activeSessions.Inc() }
func (c *Collector) SessionEnded()            { c.activeSessions.Dec() }
func (c *Collector) JoinFailed(reason string) { c.joinFailures.WithLabelValues(reason).Inc() }
func (c *Collector) PresenceRegistered()      { c.presenceOnline.Inc() }
func (c *Collector) PresenceGone()            { c.presenceOnline.Dec() }
func (c *Collector) ProtocolError()           { c.protocolErrors.Inc() }

func (c *Collector) ControlForwarded(msgType string) {
	c.controlFrames.WithLabelValues(msgType).Inc()
}

func (c *Collector) AudioForwarded(payloadBytes int) {
	c.audioDatagrams.Inc()
	c.audioBytes.Add(float64(payloadBytes))
}

func (c *Collector) AudioUnroutable() { c.audioUnroutable.Inc() }

// Handler returns the HTTP handler for the metrics endpoint.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
