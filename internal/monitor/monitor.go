// Package monitor observes a live ring buffer on a fixed period without
// touching the real-time path. A Monitor waits for its source to start,
// then wakes on an absolute schedule, hands the next available chunk to a
// Handler and stops once the source reports it finished.
package monitor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tphakala/shmaudio/internal/audiocore"
	"github.com/tphakala/shmaudio/internal/audiocore/ringbuffer"
	"github.com/tphakala/shmaudio/internal/errors"
	"github.com/tphakala/shmaudio/internal/logger"
	"github.com/tphakala/shmaudio/internal/observability/metrics"
)

// Source is a stream a Monitor can observe. Recorder, Player and
// RegionObserver implement it.
type Source interface {
	// WaitRunning blocks until the source started or finished.
	WaitRunning(ctx context.Context) error
	// Finished reports whether the source finished.
	Finished() bool
	// Buffer returns a read-only view delivering chunk frames per step.
	Buffer(chunk int) *ringbuffer.View
}

// Handler receives the monitored audio. Setup runs before the periodic
// phase, Tick once per period and Teardown exactly once when the loop ends,
// including when Setup failed.
type Handler interface {
	Setup() error
	Tick(chunk audiocore.Block) error
	Teardown() error
}

// Func adapts a plain callback to a Handler with no setup or teardown.
type Func func(chunk audiocore.Block) error

func (Func) Setup() error                       { return nil }
func (f Func) Tick(chunk audiocore.Block) error { return f(chunk) }
func (Func) Teardown() error                    { return nil }

// Config controls the schedule.
type Config struct {
	Name      string        // label for logs and metrics
	Interval  time.Duration // period between callbacks
	ChunkSize int           // frames per callback, 0 uses the buffer chunk size
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithLogger sets the monitor logger.
func WithLogger(l logger.Logger) Option {
	return func(m *Monitor) {
		if l != nil {
			m.log = l
		}
	}
}

// WithMetrics records ticks, wake lag and callback errors.
func WithMetrics(inst *metrics.MonitorInstruments) Option {
	return func(m *Monitor) { m.inst = inst }
}

// Monitor runs a Handler against a Source in its own goroutine.
type Monitor struct {
	cfg     Config
	handler Handler
	log     logger.Logger
	inst    *metrics.MonitorInstruments

	mu      sync.Mutex
	done    chan struct{}
	err     error
	started bool

	ticks atomic.Int64
}

// New validates cfg and returns an idle monitor.
func New(cfg Config, handler Handler, opts ...Option) (*Monitor, error) {
	if cfg.Interval <= 0 {
		return nil, errors.New(nil).
			Component("monitor").
			Category(errors.CategoryValidation).
			Context("interval", cfg.Interval.String()).
			Context("error", "monitor interval must be positive").
			Build()
	}
	if handler == nil {
		return nil, errors.ValidationError("monitor needs a handler")
	}
	if cfg.Name == "" {
		cfg.Name = "monitor"
	}
	m := &Monitor{
		cfg:     cfg,
		handler: handler,
		log:     logger.Global().Module("monitor"),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.With(logger.String("monitor", cfg.Name))
	return m, nil
}

// Start attaches the monitor to src and returns immediately. A monitor runs
// one loop at a time; Start after Wait returned begins a new one.
func (m *Monitor) Start(ctx context.Context, src Source) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return errors.New(nil).
			Component("monitor").
			Category(errors.CategoryState).
			Context("monitor", m.cfg.Name).
			Context("error", "monitor already running").
			Build()
	}
	m.started = true
	m.err = nil
	m.ticks.Store(0)
	done := make(chan struct{})
	m.done = done

	go func() {
		err := m.loop(ctx, src)
		m.mu.Lock()
		m.err = err
		m.started = false
		m.mu.Unlock()
		close(done)
	}()
	return nil
}

// Wait blocks until the monitor goroutine exited and returns its error.
// Cancellation or expiry of the Start context is not an error.
func (m *Monitor) Wait() error {
	m.mu.Lock()
	done := m.done
	m.mu.Unlock()
	if done == nil {
		return nil
	}
	<-done

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Run starts the monitor and waits for it.
func (m *Monitor) Run(ctx context.Context, src Source) error {
	if err := m.Start(ctx, src); err != nil {
		return err
	}
	return m.Wait()
}

// Ticks returns the number of callbacks of the current or last loop.
func (m *Monitor) Ticks() int { return int(m.ticks.Load()) }

func (m *Monitor) loop(ctx context.Context, src Source) (err error) {
	defer func() {
		if terr := m.handler.Teardown(); terr != nil {
			m.log.Warn("monitor teardown failed", logger.Error(terr))
			err = errors.Join(err, terr)
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			err = nil
		}
		m.log.Debug("monitor stopped", logger.Int("ticks", m.Ticks()))
	}()

	if err := m.handler.Setup(); err != nil {
		return errors.New(err).
			Component("monitor").
			Category(errors.CategorySystem).
			Context("monitor", m.cfg.Name).
			Context("operation", "setup").
			Build()
	}
	if err := src.WaitRunning(ctx); err != nil {
		return err
	}
	view := src.Buffer(m.cfg.ChunkSize)

	timer := time.NewTimer(m.cfg.Interval)
	defer timer.Stop()
	next := time.Now().Add(m.cfg.Interval)
	for {
		if d := time.Until(next); d > 0 {
			timer.Reset(d)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
			}
		} else if ctx.Err() != nil {
			return ctx.Err()
		}
		lag := time.Since(next)

		chunk, err := view.Next()
		if err != nil && !errors.Is(err, audiocore.ErrExhausted) {
			return err
		}
		if err := m.handler.Tick(chunk); err != nil {
			m.inst.CallbackFailed()
			return errors.New(err).
				Component("monitor").
				Category(errors.CategoryGeneric).
				Context("monitor", m.cfg.Name).
				Context("operation", "tick").
				Build()
		}
		m.ticks.Add(1)
		m.inst.Tick(lag)

		if src.Finished() {
			return nil
		}
		next = next.Add(m.cfg.Interval)
	}
}
