package stream

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/tphakala/shmaudio/internal/audiocore"
	"github.com/tphakala/shmaudio/internal/errors"
)

// fakeBackend opens streams that are driven by the test instead of a device.
type fakeBackend struct {
	mu      sync.Mutex
	streams []*fakeStream
	openErr error
}

func (b *fakeBackend) Name() string { return "fake" }

func (b *fakeBackend) Open(_ context.Context, params audiocore.StreamParams, cb audiocore.Callbacks) (audiocore.Stream, error) {
	if b.openErr != nil {
		return nil, b.openErr
	}
	s := &fakeStream{params: params, cb: cb}
	b.mu.Lock()
	b.streams = append(b.streams, s)
	b.mu.Unlock()
	return s, nil
}

func (b *fakeBackend) last() *fakeStream {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.streams) == 0 {
		return nil
	}
	return b.streams[len(b.streams)-1]
}

func (b *fakeBackend) opened() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.streams)
}

type fakeStream struct {
	params     audiocore.StreamParams
	cb         audiocore.Callbacks
	started    atomic.Bool
	stopped    atomic.Bool
	closed     atomic.Bool
	halted     atomic.Bool
	finishOnce sync.Once
	wg         sync.WaitGroup
}

func (s *fakeStream) Start() error {
	s.started.Store(true)
	return nil
}

func (s *fakeStream) Stop() error {
	s.stopped.Store(true)
	s.halted.Store(true)
	s.wg.Wait()
	return nil
}

func (s *fakeStream) Close() error {
	s.closed.Store(true)
	return nil
}

// halt mimics a backend reacting to a callback error: no further callbacks
// and Finished from another goroutine.
func (s *fakeStream) halt() {
	s.halted.Store(true)
	s.wg.Go(func() { s.finishOnce.Do(s.cb.Finished) })
}

// capture delivers one input block. It returns the callback error, or
// errHalted when the stream no longer calls back.
func (s *fakeStream) capture(in audiocore.Block) error {
	if s.halted.Load() {
		return errHalted
	}
	err := s.cb.Process(in, audiocore.Block{})
	if err != nil {
		s.halt()
	}
	return err
}

// play requests one output block of frames frames.
func (s *fakeStream) play(frames int) (audiocore.Block, error) {
	out := audiocore.NewBlock(frames, s.params.Channels, s.params.Type)
	if s.halted.Load() {
		return out, errHalted
	}
	err := s.cb.Process(audiocore.Block{}, out)
	if err != nil {
		s.halt()
	}
	return out, err
}

// disconnect mimics the device going away.
func (s *fakeStream) disconnect() {
	s.halt()
	s.wg.Wait()
}

var errHalted = errors.NewStd("fake stream halted")
