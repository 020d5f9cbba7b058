package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MonitorMetrics contains Prometheus metrics for periodic monitors.
type MonitorMetrics struct {
	registry *prometheus.Registry

	ticks      *prometheus.CounterVec
	errors     *prometheus.CounterVec
	wakeLag    *prometheus.HistogramVec
	lastLevel  *prometheus.GaugeVec
	collectors []prometheus.Collector
}

// NewMonitorMetrics creates and registers monitor metrics.
func NewMonitorMetrics(registry *prometheus.Registry) (*MonitorMetrics, error) {
	m := &MonitorMetrics{registry: registry}
	m.ticks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shmaudio_monitor_ticks_total",
			Help: "Total number of monitor callback invocations",
		},
		[]string{"monitor"},
	)
	m.errors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shmaudio_monitor_callback_errors_total",
			Help: "Total number of monitor callbacks that returned an error",
		},
		[]string{"monitor"},
	)
	m.wakeLag = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shmaudio_monitor_wake_lag_seconds",
			Help:    "Delay between the scheduled and the actual monitor wake up",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 9), // 10us to ~650ms
		},
		[]string{"monitor"},
	)
	m.lastLevel = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "shmaudio_monitor_level_dbfs",
			Help: "Most recent level reported by a level monitor",
		},
		[]string{"monitor", "channel"},
	)
	m.collectors = []prometheus.Collector{m.ticks, m.errors, m.wakeLag, m.lastLevel}

	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Describe implements the Collector interface
func (m *MonitorMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *MonitorMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// Monitor resolves the instruments for one named monitor.
func (m *MonitorMetrics) Monitor(name string) *MonitorInstruments {
	return &MonitorInstruments{
		name:      name,
		ticks:     m.ticks.WithLabelValues(name),
		errors:    m.errors.WithLabelValues(name),
		wakeLag:   m.wakeLag.WithLabelValues(name),
		lastLevel: m.lastLevel,
	}
}

// MonitorInstruments are the resolved metrics of one monitor. A nil
// *MonitorInstruments records nothing.
type MonitorInstruments struct {
	name      string
	ticks     prometheus.Counter
	errors    prometheus.Counter
	wakeLag   prometheus.Observer
	lastLevel *prometheus.GaugeVec
}

// Tick records a callback invocation that woke lag after its schedule.
func (m *MonitorInstruments) Tick(lag time.Duration) {
	if m == nil {
		return
	}
	m.ticks.Inc()
	m.wakeLag.Observe(max(0, lag).Seconds())
}

// CallbackFailed counts a callback error.
func (m *MonitorInstruments) CallbackFailed() {
	if m == nil {
		return
	}
	m.errors.Inc()
}

// Level publishes the latest level of a channel.
func (m *MonitorInstruments) Level(channel string, db float64) {
	if m == nil {
		return
	}
	m.lastLevel.WithLabelValues(m.name, channel).Set(db)
}
