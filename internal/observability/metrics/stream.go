package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// StreamMetrics contains Prometheus metrics for recorder and player streams.
type StreamMetrics struct {
	registry *prometheus.Registry

	starts           *prometheus.CounterVec
	callbacks        *prometheus.CounterVec
	frames           *prometheus.CounterVec
	aborts           *prometheus.CounterVec
	loops            *prometheus.CounterVec
	callbackDuration *prometheus.HistogramVec
	fillRatio        *prometheus.GaugeVec

	// collectors is a slice of all collectors for easier iteration
	collectors []prometheus.Collector
}

// NewStreamMetrics creates and registers stream metrics.
func NewStreamMetrics(registry *prometheus.Registry) (*StreamMetrics, error) {
	m := &StreamMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *StreamMetrics) initMetrics() {
	m.starts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shmaudio_stream_starts_total",
			Help: "Total number of stream starts",
		},
		[]string{"kind"},
	)

	m.callbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shmaudio_stream_callbacks_total",
			Help: "Total number of real-time callback invocations",
		},
		[]string{"kind"},
	)

	m.frames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shmaudio_stream_frames_total",
			Help: "Total number of frames moved between device and buffer",
		},
		[]string{"kind"},
	)

	m.aborts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shmaudio_stream_aborts_total",
			Help: "Total number of stream halts by reason",
		},
		[]string{"kind", "reason"},
	)

	m.loops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shmaudio_stream_loop_wraps_total",
			Help: "Total number of times looping playback wrapped to the source start",
		},
		[]string{"kind"},
	)

	m.callbackDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shmaudio_stream_callback_duration_seconds",
			Help:    "Time spent inside the real-time callback",
			Buckets: prometheus.ExponentialBuckets(0.000001, 4, 10), // 1us to ~260ms
		},
		[]string{"kind"},
	)

	m.fillRatio = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "shmaudio_stream_buffer_fill_ratio",
			Help: "Fraction of the transfer target already moved",
		},
		[]string{"kind"},
	)

	m.collectors = []prometheus.Collector{
		m.starts, m.callbacks, m.frames, m.aborts, m.loops, m.callbackDuration, m.fillRatio,
	}
}

// Describe implements the Collector interface
func (m *StreamMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *StreamMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// Stream resolves the instruments for one stream kind. Resolved instruments
// do not allocate when updated, so they can be used from a real-time callback.
func (m *StreamMetrics) Stream(kind string) *StreamInstruments {
	return &StreamInstruments{
		starts:           m.starts.WithLabelValues(kind),
		callbacks:        m.callbacks.WithLabelValues(kind),
		frames:           m.frames.WithLabelValues(kind),
		loops:            m.loops.WithLabelValues(kind),
		callbackDuration: m.callbackDuration.WithLabelValues(kind),
		fillRatio:        m.fillRatio.WithLabelValues(kind),
		aborts: map[string]prometheus.Counter{
			ReasonComplete: m.aborts.WithLabelValues(kind, ReasonComplete),
			ReasonOverflow: m.aborts.WithLabelValues(kind, ReasonOverflow),
			ReasonStopped:  m.aborts.WithLabelValues(kind, ReasonStopped),
			ReasonBackend:  m.aborts.WithLabelValues(kind, ReasonBackend),
		},
	}
}

// StreamInstruments are the resolved metrics of one stream. A nil
// *StreamInstruments records nothing.
type StreamInstruments struct {
	starts           prometheus.Counter
	callbacks        prometheus.Counter
	frames           prometheus.Counter
	loops            prometheus.Counter
	callbackDuration prometheus.Observer
	fillRatio        prometheus.Gauge
	aborts           map[string]prometheus.Counter
}

// Started counts a stream start.
func (s *StreamInstruments) Started() {
	if s == nil {
		return
	}
	s.starts.Inc()
}

// Callback records one callback invocation.
func (s *StreamInstruments) Callback(frames int, elapsed time.Duration, fill float64) {
	if s == nil {
		return
	}
	s.callbacks.Inc()
	s.frames.Add(float64(frames))
	s.callbackDuration.Observe(elapsed.Seconds())
	s.fillRatio.Set(fill)
}

// LoopWrapped counts a wrap to the source start.
func (s *StreamInstruments) LoopWrapped() {
	if s == nil {
		return
	}
	s.loops.Inc()
}

// Aborted counts a stream halt. Unknown reasons are ignored.
func (s *StreamInstruments) Aborted(reason string) {
	if s == nil {
		return
	}
	if c, ok := s.aborts[reason]; ok {
		c.Inc()
	}
}
