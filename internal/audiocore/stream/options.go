package stream

import (
	"github.com/tphakala/shmaudio/internal/logger"
	"github.com/tphakala/shmaudio/internal/observability/metrics"
)

// Option configures a Recorder or Player.
type Option func(*engine)

// WithLogger sets the logger used on control paths.
func WithLogger(l logger.Logger) Option {
	return func(e *engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithMetrics records callback and lifecycle metrics into inst.
func WithMetrics(inst *metrics.StreamInstruments) Option {
	return func(e *engine) {
		e.inst = inst
	}
}
