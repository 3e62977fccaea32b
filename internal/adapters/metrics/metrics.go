// Package metrics exposes the viewer's Prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lchou/Shopwatch/internal/core"
)

// Metrics holds Prometheus gauges and counters for the viewer.
type Metrics struct {
	registry          *prometheus.Registry
	bitrateKbps       prometheus.Gauge
	framesPerSecond   prometheus.Gauge
	lossPercent       prometheus.Gauge
	frameWidth        prometheus.Gauge
	frameHeight       prometheus.Gauge
	sessionsTotal     prometheus.Counter
	sessionFailures   prometheus.Counter
	playbackFallbacks prometheus.Counter
}

// New creates and registers the viewer's metrics on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	bitrateKbps := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "shopwatch_stream_bitrate_kbps",
		Help: "Instantaneous inbound bitrate of the live stream",
	})
	framesPerSecond := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "shopwatch_stream_fps",
		Help: "Decoded frames per second of the live stream",
	})
	lossPercent := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "shopwatch_stream_loss_percent",
		Help: "Cumulative packet loss percentage of the live stream",
	})
	frameWidth := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "shopwatch_stream_frame_width",
		Help: "Width of the most recent decoded frame",
	})
	frameHeight := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "shopwatch_stream_frame_height",
		Help: "Height of the most recent decoded frame",
	})
	sessionsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shopwatch_sessions_started_total",
		Help: "Total number of live session attempts",
	})
	sessionFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shopwatch_session_failures_total",
		Help: "Total number of live sessions that ended in failure",
	})
	playbackFallbacks := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shopwatch_playback_fallbacks_total",
		Help: "Total number of adaptive-to-file playback fallbacks",
	})

	registry.MustRegister(
		bitrateKbps,
		framesPerSecond,
		lossPercent,
		frameWidth,
		frameHeight,
		sessionsTotal,
		sessionFailures,
		playbackFallbacks,
	)

	return &Metrics{
		registry:          registry,
		bitrateKbps:       bitrateKbps,
		framesPerSecond:   framesPerSecond,
		lossPercent:       lossPercent,
		frameWidth:        frameWidth,
		frameHeight:       frameHeight,
		sessionsTotal:     sessionsTotal,
		sessionFailures:   sessionFailures,
		playbackFallbacks: playbackFallbacks,
	}
}

// RecordQuality publishes one computed quality sample.
func (m *Metrics) RecordQuality(s core.QualitySample) {
	m.bitrateKbps.Set(s.BitrateKbps)
	m.framesPerSecond.Set(s.FramesPerSecond)
	m.lossPercent.Set(s.LossPercent)
	m.frameWidth.Set(float64(s.FrameWidth))
	m.frameHeight.Set(float64(s.FrameHeight))
}

// ClearQuality zeroes the stream gauges after a teardown.
func (m *Metrics) ClearQuality() {
	m.bitrateKbps.Set(0)
	m.framesPerSecond.Set(0)
	m.lossPercent.Set(0)
	m.frameWidth.Set(0)
	m.frameHeight.Set(0)
}

// IncSessions increments the session attempt counter.
func (m *Metrics) IncSessions() {
	m.sessionsTotal.Inc()
}

// IncSessionFailures increments the failed session counter.
func (m *Metrics) IncSessionFailures() {
	m.sessionFailures.Inc()
}

// IncPlaybackFallbacks increments the adaptive-to-file fallback counter.
func (m *Metrics) IncPlaybackFallbacks() {
	m.playbackFallbacks.Inc()
}

// Handler serves the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
