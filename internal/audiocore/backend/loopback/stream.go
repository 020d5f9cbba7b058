package loopback

import (
	"context"
	"sync"
	"time"

	"github.com/tphakala/shmaudio/internal/audiocore"
	"github.com/tphakala/shmaudio/internal/errors"
	"github.com/tphakala/shmaudio/internal/logger"
)

// stream drives one direction of the loopback device.
type stream struct {
	backend *Backend
	params  audiocore.StreamParams
	cb      audiocore.Callbacks
	period  time.Duration
	local   audiocore.Block // block exchanged with the callback
	wire    audiocore.Block // block in cable layout

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	closed  bool

	finishOnce sync.Once
}

// Start implements audiocore.Stream.
func (s *stream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New(nil).
			Component("loopback").
			Category(errors.CategoryState).
			Context("error", "stream is closed").
			Build()
	}
	if s.started {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.started = true
	s.wg.Go(func() { s.run(ctx) })
	return nil
}

// Stop implements audiocore.Stream.
func (s *stream) Stop() error {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	return nil
}

// Close implements audiocore.Stream.
func (s *stream) Close() error {
	err := s.Stop()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return err
}

// run ticks once per block period until the callback fails or the stream
// is stopped. Finished is called once when the loop ends.
func (s *stream) run(ctx context.Context) {
	defer s.finish()

	ticker := time.NewTicker(s.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if err := s.tick(); err != nil {
			return
		}
	}
}

func (s *stream) tick() error {
	if s.params.Direction == audiocore.Playback {
		return s.playback()
	}
	return s.capture()
}

func (s *stream) playback() error {
	if err := s.cb.Process(audiocore.Block{}, s.local); err != nil {
		return err
	}
	s.wire.Zero()
	for ch := range s.params.Channels {
		s.wire.CopyChannel(ch, s.local, ch)
	}
	if n := s.backend.push(s.wire.Data); n < s.wire.Frames() {
		s.backend.overruns.Add(1)
		s.backend.warnf("loopback cable full, dropping frames",
			logger.Int("dropped", s.wire.Frames()-n))
	}
	return nil
}

func (s *stream) capture() error {
	n := s.backend.pull(s.wire.Data)
	if n < s.wire.Frames() {
		s.wire.Slice(n, s.wire.Frames()).Zero()
		s.backend.underruns.Add(1)
		s.backend.warnf("loopback under-run, padding with silence",
			logger.Int("missing", s.wire.Frames()-n))
	}
	for ch := range s.params.Channels {
		s.local.CopyChannel(ch, s.wire, ch)
	}
	return s.cb.Process(s.local, audiocore.Block{})
}

func (s *stream) finish() {
	s.finishOnce.Do(func() {
		if s.cb.Finished != nil {
			s.cb.Finished()
		}
	})
}
