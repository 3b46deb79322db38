// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "roverdash"

var (
	TelemetryLines = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "telemetry_lines_total",
		Help:      "Raw lines read from the serial link.",
	})

	TelemetryReadings = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "telemetry_readings_total",
		Help:      "Telemetry lines by parse result.",
	}, []string{"result"})

	TrackPoints = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "track_points",
		Help:      "Points in the GPS track.",
	})

	VideoFrames = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "video_frames_total",
		Help:      "Camera frames fetched and decoded.",
	})

	VideoFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "video_fetch_failures_total",
		Help:      "Camera fetches that produced no frame.",
	})

	Commands = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "commands_total",
		Help:      "Rover commands by outcome.",
	}, []string{"result"})

	WSClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ws_clients",
		Help:      "Connected WebSocket clients.",
	})
)

// Parse results for TelemetryReadings.
const (
	ResultAccepted       = "accepted"
	ResultIgnored        = "ignored"
	ResultBadCoordinates = "bad_coordinates"
)

// Outcomes for Commands.
const (
	ResultSent    = "sent"
	ResultDropped = "dropped"
	ResultFailed  = "failed"
)
