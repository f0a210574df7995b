// ABOUTME: Prometheus collectors for the mixer and playback engine
// ABOUTME: Implements both observer interfaces on a private registry served at /metrics
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/Resonate-Protocol/resonate-mixer/pkg/audio"
	"github.com/Resonate-Protocol/resonate-mixer/pkg/playback"
)

const namespace = "resonate_mixer"

// Metrics holds every collector
type Metrics struct {
	reg *prometheus.Registry

	active         *prometheus.GaugeVec
	rejected       *prometheus.CounterVec
	readFailures   *prometheus.CounterVec
	chunks         prometheus.Counter
	contributing   prometheus.Histogram
	refills        prometheus.Counter
	submitFailures prometheus.Counter
	engineState    prometheus.Gauge
}

// New creates and registers the collectors
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		active: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "streams_active",
			Help:      "Active sessions per category.",
		}, []string{"category"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_rejected_total",
			Help:      "Adds rejected because a budget was exhausted.",
		}, []string{"category"}),
		readFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_read_failures_total",
			Help:      "Stream reads that panicked and were replaced by silence.",
		}, []string{"category"}),
		chunks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_produced_total",
			Help:      "Mixed output chunks produced.",
		}),
		contributing: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chunk_streams",
			Help:      "Streams contributing to each mixed chunk.",
			Buckets:   []float64{0, 1, 2, 4, 8, 16, 32},
		}),
		refills: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_refills_total",
			Help:      "Buffers refilled and submitted to the device.",
		}),
		submitFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_submit_failures_total",
			Help:      "Buffer submissions the device rejected.",
		}),
		engineState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "engine_state",
			Help:      "Playback engine state (0 uninitialized .. 4 terminated).",
		}),
	}
	m.reg.MustRegister(
		m.active, m.rejected, m.readFailures, m.chunks, m.contributing,
		m.refills, m.submitFailures, m.engineState,
		prometheus.NewGoCollector(),
	)
	return m
}

// Registry exposes the private registry
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// StreamsActive implements mixer.Observer
func (m *Metrics) StreamsActive(c audio.Category, n int) {
	m.active.WithLabelValues(c.String()).Set(float64(n))
}

// StreamRejected implements mixer.Observer
func (m *Metrics) StreamRejected(c audio.Category) {
	m.rejected.WithLabelValues(c.String()).Inc()
}

// StreamReadFailed implements mixer.Observer
func (m *Metrics) StreamReadFailed(c audio.Category) {
	m.readFailures.WithLabelValues(c.String()).Inc()
}

// ChunkProduced implements mixer.Observer
func (m *Metrics) ChunkProduced(streams int) {
	m.chunks.Inc()
	m.contributing.Observe(float64(streams))
}

// BufferRefilled implements playback.Observer
func (m *Metrics) BufferRefilled() { m.refills.Inc() }

// SubmitFailed implements playback.Observer
func (m *Metrics) SubmitFailed() { m.submitFailures.Inc() }

// StateChanged implements playback.Observer
func (m *Metrics) StateChanged(s playback.State) { m.engineState.Set(float64(s)) }

// WatchEngine exports device underruns read from the engine on each scrape
func (m *Metrics) WatchEngine(e *playback.Engine) {
	m.reg.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "device_underruns_total",
		Help:      "Device reads that found no queued audio.",
	}, func() float64 { return float64(e.Stats().Underruns) }))
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Server serves /metrics on a port
type Server struct {
	srv *http.Server
	ln  net.Listener
}

// Listen binds the metrics endpoint. Port 0 picks a free port.
func (m *Metrics) Listen(port int) (*Server, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("failed to listen on metrics port: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return &Server{
		srv: &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		ln:  ln,
	}, nil
}

// Addr returns the bound address
func (s *Server) Addr() string { return s.ln.Addr().String() }

// Run serves until Shutdown
func (s *Server) Run() {
	log.Info().Str("c", "metrics").Str("addr", s.Addr()).Msg("metrics server listening")
	if err := s.srv.Serve(s.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Str("c", "metrics").Msg("metrics server failed")
	}
}

// Shutdown stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
