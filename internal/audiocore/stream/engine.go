package stream

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/tphakala/shmaudio/internal/audiocore"
	"github.com/tphakala/shmaudio/internal/audiocore/ringbuffer"
	"github.com/tphakala/shmaudio/internal/errors"
	"github.com/tphakala/shmaudio/internal/logger"
	"github.com/tphakala/shmaudio/internal/observability/metrics"
)

// signals are the running and finished events of one run. Reset installs a
// fresh pair so callbacks of an earlier run cannot touch a later one.
type signals struct {
	running  chan struct{}
	done     chan struct{}
	runOnce  sync.Once
	doneOnce sync.Once
}

func newSignals() *signals {
	return &signals{running: make(chan struct{}), done: make(chan struct{})}
}

func (s *signals) isDone() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// engine is the state machine shared by Recorder and Player. The real-time
// callback only touches atomics and the ring buffer; everything that locks,
// logs or allocates runs on the control path.
type engine struct {
	kind     string
	dir      audiocore.Direction
	cfg      Config
	channels int // channels the backend stream is opened with
	backend  audiocore.Backend
	rb       *ringbuffer.RingBuffer
	log      logger.Logger
	inst     *metrics.StreamInstruments
	process  func(in, out audiocore.Block) error

	mu     sync.Mutex // guards stream
	stream audiocore.Stream

	state  atomic.Uint32
	frame  atomic.Int64
	target atomic.Int64
	status atomic.Uint32
	sig    atomic.Pointer[signals]

	closeOnce sync.Once
	closeErr  error
}

func newEngine(kind string, dir audiocore.Direction, cfg Config, backend audiocore.Backend, opts []Option) *engine {
	e := &engine{
		kind:    kind,
		dir:     dir,
		cfg:     cfg,
		backend: backend,
		log:     logger.Global().Module("stream"),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.With(logger.String("stream", kind))
	e.sig.Store(newSignals())
	return e
}

// openBuffer creates the ring buffer backing the stream.
func (e *engine) openBuffer(channels int) error {
	if e.backend == nil {
		return errors.New(nil).
			Component("stream").
			Category(errors.CategoryConfiguration).
			Context("error", "no audio backend").
			Build()
	}
	rb, err := ringbuffer.New(ringbuffer.Config{
		Name:       e.cfg.Region,
		Frames:     e.cfg.BufferSize,
		Channels:   channels,
		Type:       e.cfg.Type,
		SampleRate: e.cfg.SampleRate,
		ChunkSize:  e.cfg.ChunkSize,
	})
	if err != nil {
		return err
	}
	e.rb = rb
	return nil
}

// State returns the current lifecycle state.
func (e *engine) State() State { return State(e.state.Load()) }

// Frame returns the number of frames transferred so far.
func (e *engine) Frame() int { return int(e.frame.Load()) }

// Target returns the transfer goal of the current run.
func (e *engine) Target() int { return int(e.target.Load()) }

// Status returns the soft warnings collected since the last Reset.
func (e *engine) Status() StatusFlags { return StatusFlags(e.status.Load()) }

// RingBuffer returns the buffer the stream reads or writes.
func (e *engine) RingBuffer() *ringbuffer.RingBuffer { return e.rb }

// RegionName returns the shared region name observers attach with.
func (e *engine) RegionName() string { return e.rb.Name() }

// Config returns the configuration the stream was built with.
func (e *engine) Config() Config { return e.cfg }

func (e *engine) addStatus(f StatusFlags) {
	e.status.Or(uint32(f))
	e.rb.AddStatus(uint32(f))
}

// begin moves Idle to Running after the caller validated its input. The
// region header is reset so indices and signals left by an earlier owner of
// a named region do not leak into this run.
func (e *engine) begin() error {
	if !e.state.CompareAndSwap(uint32(StateIdle), uint32(StateRunning)) {
		return errors.New(audiocore.ErrInvalidState).
			Component("stream").
			Category(errors.CategoryState).
			Context("stream", e.kind).
			Context("state", e.State().String()).
			Context("error", "stream must be idle to start, call Reset after a run").
			Build()
	}
	e.rb.Reset()
	return nil
}

// launch opens and starts the backend stream for a run whose state is
// already Running. On failure the state returns to Idle.
func (e *engine) launch(ctx context.Context) error {
	sig := e.sig.Load()
	params := audiocore.StreamParams{
		Direction:  e.dir,
		Device:     e.cfg.Device,
		Channels:   e.channels,
		SampleRate: e.cfg.SampleRate,
		BlockSize:  e.cfg.BlockSize,
		Type:       e.cfg.Type,
		Latency:    e.cfg.Latency,
	}

	e.mu.Lock()
	s, err := e.backend.Open(ctx, params, audiocore.Callbacks{
		Process:  e.process,
		Finished: func() { e.onFinished(sig) },
	})
	if err == nil {
		e.stream = s
		err = s.Start()
	}
	e.mu.Unlock()

	if err != nil {
		e.release()
		e.state.Store(uint32(StateIdle))
		return errors.New(err).
			Component("stream").
			Category(errors.CategoryAudioDevice).
			Context("stream", e.kind).
			Context("backend", e.backend.Name()).
			Context("device", e.cfg.Device).
			Build()
	}

	sig.runOnce.Do(func() { close(sig.running) })
	e.rb.SetRunning(true)
	e.inst.Started()
	e.log.Info("stream started",
		logger.String("backend", e.backend.Name()),
		logger.String("device", e.cfg.Device),
		logger.String("region", e.rb.Name()),
		logger.Int("target_frames", e.Target()),
		logger.Int("channels", e.channels))
	return nil
}

// abort ends the run from inside the callback. It never blocks.
func (e *engine) abort(reason string) error {
	if e.state.CompareAndSwap(uint32(StateRunning), uint32(StateStopping)) {
		e.inst.Aborted(reason)
	}
	return audiocore.ErrStreamAbort
}

// onFinished is called by the backend once the stream of run sig stopped.
func (e *engine) onFinished(sig *signals) {
	if sig.isDone() {
		return
	}
	if e.state.CompareAndSwap(uint32(StateRunning), uint32(StateStopping)) {
		e.addStatus(StatusBackendStopped)
		e.inst.Aborted(metrics.ReasonBackend)
	}
	e.finish(sig)
}

// finish publishes the finished signal of run sig exactly once.
func (e *engine) finish(sig *signals) {
	sig.doneOnce.Do(func() {
		e.state.Store(uint32(StateFinished))
		e.rb.SetRunning(false)
		e.rb.SetFinished(true)
		close(sig.done)
	})
}

// Stop requests the end of the run and returns immediately. The backend
// halts on its next callback. Stop is idempotent and a no-op while idle.
func (e *engine) Stop() {
	if e.state.CompareAndSwap(uint32(StateRunning), uint32(StateStopping)) {
		e.addStatus(StatusStopped)
		e.inst.Aborted(metrics.ReasonStopped)
	}
	if e.State() == StateStopping {
		e.finish(e.sig.Load())
	}
}

// Wait blocks until the run finished, then releases the backend stream. When
// ctx ends first the run is stopped, StatusCancelled is set and ctx.Err() is
// returned.
func (e *engine) Wait(ctx context.Context) (StatusFlags, error) {
	if e.State() == StateIdle {
		return e.Status(), errors.New(audiocore.ErrInvalidState).
			Component("stream").
			Category(errors.CategoryState).
			Context("stream", e.kind).
			Context("error", "wait on a stream that was not started").
			Build()
	}

	sig := e.sig.Load()
	var err error
	select {
	case <-sig.done:
	case <-ctx.Done():
		e.addStatus(StatusCancelled)
		e.Stop()
		err = ctx.Err()
	}
	e.release()

	status := e.Status()
	e.log.Info("stream finished",
		logger.Int("frames", e.Frame()),
		logger.String("status", status.String()))
	return status, err
}

// WaitRunning blocks until the run started, the run finished or ctx ends.
func (e *engine) WaitRunning(ctx context.Context) error {
	sig := e.sig.Load()
	select {
	case <-sig.running:
		return nil
	case <-sig.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Running reports whether the running signal of the current run is set.
func (e *engine) Running() bool {
	select {
	case <-e.sig.Load().running:
		return !e.Finished()
	default:
		return false
	}
}

// Finished reports whether the finished signal of the current run is set.
func (e *engine) Finished() bool {
	return e.sig.Load().isDone()
}

// Buffer returns a read-only streaming view over the transferred frames. For
// a recorder the view follows the write index, for a player the read index.
func (e *engine) Buffer(chunk int) *ringbuffer.View {
	if e.dir == audiocore.Playback {
		return e.rb.PlaybackView(chunk)
	}
	return e.rb.View(chunk)
}

// Reset prepares the stream for another run. It zeroes the frame counter
// and status, resets the buffer indices and clears the signals. Reset fails
// while a run is active.
func (e *engine) Reset() error {
	switch e.State() {
	case StateRunning, StateStopping:
		return errors.New(audiocore.ErrInvalidState).
			Component("stream").
			Category(errors.CategoryState).
			Context("stream", e.kind).
			Context("state", e.State().String()).
			Context("error", "reset while running").
			Build()
	}
	e.release()
	e.frame.Store(0)
	e.target.Store(0)
	e.status.Store(0)
	e.rb.Reset()
	e.sig.Store(newSignals())
	e.state.Store(uint32(StateIdle))
	e.log.Debug("stream reset", logger.Uint64("generation", e.rb.Generation()))
	return nil
}

// audio copies frames [0, frame) into a self-contained unit.
func (e *engine) audio() audiocore.Audio {
	return audiocore.Audio{
		Block:      e.rb.Block(0, e.Frame()).Clone(),
		SampleRate: e.cfg.SampleRate,
		ChunkSize:  e.cfg.ChunkSize,
	}
}

// release stops and closes the backend stream if one is open.
func (e *engine) release() {
	e.mu.Lock()
	s := e.stream
	e.stream = nil
	e.mu.Unlock()
	if s == nil {
		return
	}
	if err := s.Stop(); err != nil {
		e.log.Warn("failed to stop backend stream", logger.Error(err))
	}
	if err := s.Close(); err != nil {
		e.log.Warn("failed to close backend stream", logger.Error(err))
	}
}

// Close stops any active run, releases the backend stream and this handle
// on the shared region. It is safe to call more than once.
func (e *engine) Close() error {
	e.closeOnce.Do(func() {
		e.Stop()
		e.release()
		if e.rb != nil {
			e.closeErr = e.rb.Close()
		}
	})
	return e.closeErr
}

// fill returns the buffer fill ratio reported to metrics.
func fill(n, capacity int) float64 {
	if capacity <= 0 {
		return 0
	}
	return float64(n) / float64(capacity)
}
