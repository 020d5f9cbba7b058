package stream

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/shmaudio/internal/audiocore"
	"github.com/tphakala/shmaudio/internal/audiocore/channelmap"
	"github.com/tphakala/shmaudio/internal/audiocore/ringbuffer"
	"github.com/tphakala/shmaudio/internal/conf"
	"github.com/tphakala/shmaudio/internal/errors"
	"github.com/tphakala/shmaudio/internal/observability/metrics"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testConfig() Config {
	return Config{
		DeviceChannels: 4,
		SampleRate:     48000,
		BlockSize:      4,
		BufferSize:     100,
		Type:           audiocore.Int16,
		Latency:        audiocore.LatencyLow,
		ChunkSize:      4,
	}
}

// channelBlock returns frames where channel c holds (c+1)/10.
func channelBlock(frames, channels int) audiocore.Block {
	b := audiocore.NewBlock(frames, channels, audiocore.Int16)
	for f := range frames {
		for c := range channels {
			b.SetSample(f, c, float64(c+1)/10)
		}
	}
	return b
}

func newRecorder(t *testing.T, cfg Config) (*Recorder, *fakeBackend) {
	t.Helper()
	backend := &fakeBackend{}
	rec, err := NewRecorder(cfg, backend)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rec.Close() })
	return rec, backend
}

func newPlayer(t *testing.T, cfg Config) (*Player, *fakeBackend) {
	t.Helper()
	backend := &fakeBackend{}
	p, err := NewPlayer(cfg, backend)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p, backend
}

func TestRecorderRecordsMappedChannels(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.ChannelMap = channelmap.Map{2, 4}
	rec, backend := newRecorder(t, cfg)

	require.NoError(t, rec.Start(t.Context(), 10))
	assert.Equal(t, StateRunning, rec.State())
	assert.True(t, rec.Running())
	assert.True(t, rec.RingBuffer().Running())

	s := backend.last()
	require.NotNil(t, s)
	assert.Equal(t, 4, s.params.Channels, "stream opens up to the highest mapped channel")
	assert.Equal(t, audiocore.Capture, s.params.Direction)

	in := channelBlock(4, 4)
	require.NoError(t, s.capture(in))
	require.NoError(t, s.capture(in))
	require.NoError(t, s.capture(in), "last block is truncated to the target")
	assert.Equal(t, 10, rec.Frame())
	assert.Equal(t, 10, rec.RingBuffer().WriteIndex())

	require.ErrorIs(t, s.capture(in), audiocore.ErrStreamAbort)

	status, err := rec.Wait(t.Context())
	require.NoError(t, err)
	assert.Equal(t, StatusFlags(0), status)
	assert.Equal(t, StateFinished, rec.State())
	assert.True(t, rec.Finished())
	assert.True(t, rec.RingBuffer().Finished())
	assert.False(t, rec.RingBuffer().Running())
	assert.True(t, s.stopped.Load())
	assert.True(t, s.closed.Load())

	audio := rec.Recording()
	require.Equal(t, 10, audio.Frames())
	require.Equal(t, 2, audio.Channels())
	assert.Equal(t, 48000, audio.SampleRate)
	assert.Equal(t, 4, audio.ChunkSize)
	assert.InDelta(t, 0.2, audio.Block.Sample(9, 0), 1e-3)
	assert.InDelta(t, 0.4, audio.Block.Sample(9, 1), 1e-3)
}

func TestRecorderValidatesBeforeHardware(t *testing.T) {
	t.Parallel()

	rec, backend := newRecorder(t, testConfig())

	err := rec.Start(t.Context(), 101)
	require.ErrorIs(t, err, audiocore.ErrCapacity)

	err = rec.Start(t.Context(), 0)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))

	assert.Equal(t, 0, backend.opened())
	assert.Equal(t, StateIdle, rec.State())

	_, err = rec.Wait(t.Context())
	require.ErrorIs(t, err, audiocore.ErrInvalidState)
}

func TestRecorderMappingErrors(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.ChannelMap = channelmap.Map{5}
	_, err := NewRecorder(cfg, &fakeBackend{})
	require.ErrorIs(t, err, audiocore.ErrMappingMismatch)

	cfg.ChannelMap = nil
	cfg.BufferSize = 0
	_, err = NewRecorder(cfg, &fakeBackend{})
	require.Error(t, err)

	_, err = NewRecorder(testConfig(), nil)
	require.Error(t, err)
}

func TestStopIsAsynchronousAndIdempotent(t *testing.T) {
	t.Parallel()

	rec, backend := newRecorder(t, testConfig())
	rec.Stop()
	assert.Equal(t, StateIdle, rec.State(), "stop while idle is a no-op")

	require.NoError(t, rec.Start(t.Context(), 50))
	s := backend.last()
	require.NoError(t, s.capture(channelBlock(4, 4)))

	rec.Stop()
	rec.Stop()
	assert.True(t, rec.Finished())

	require.ErrorIs(t, s.capture(channelBlock(4, 4)), audiocore.ErrStreamAbort,
		"the next callback halts the stream")
	assert.Equal(t, 4, rec.Frame())

	status, err := rec.Wait(t.Context())
	require.NoError(t, err)
	assert.True(t, status.Has(StatusStopped))
	assert.Equal(t, 4, rec.Recording().Frames())
}

func TestStartRequiresReset(t *testing.T) {
	t.Parallel()

	rec, backend := newRecorder(t, testConfig())
	require.NoError(t, rec.Start(t.Context(), 4))
	s := backend.last()
	require.NoError(t, s.capture(channelBlock(4, 4)))
	require.ErrorIs(t, s.capture(channelBlock(4, 4)), audiocore.ErrStreamAbort)
	_, err := rec.Wait(t.Context())
	require.NoError(t, err)

	require.ErrorIs(t, rec.Start(t.Context(), 4), audiocore.ErrInvalidState)

	gen := rec.RingBuffer().Generation()
	require.NoError(t, rec.Reset())
	assert.Equal(t, StateIdle, rec.State())
	assert.Equal(t, 0, rec.Frame())
	assert.Equal(t, 0, rec.RingBuffer().WriteIndex())
	assert.False(t, rec.Finished())
	assert.False(t, rec.RingBuffer().Finished())
	assert.Greater(t, rec.RingBuffer().Generation(), gen)

	require.NoError(t, rec.Start(t.Context(), 8))
	assert.Equal(t, 2, backend.opened(), "each run opens a new backend stream")
	require.ErrorIs(t, rec.Reset(), audiocore.ErrInvalidState)
	rec.Stop()
	_, err = rec.Wait(t.Context())
	require.NoError(t, err)
}

func TestWaitCancelled(t *testing.T) {
	t.Parallel()

	rec, _ := newRecorder(t, testConfig())
	require.NoError(t, rec.Start(t.Context(), 50))

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	status, err := rec.Wait(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, status.Has(StatusCancelled))
	assert.True(t, status.Has(StatusStopped))
	assert.True(t, rec.Finished())
}

func TestBackendStoppedOnItsOwn(t *testing.T) {
	t.Parallel()

	rec, backend := newRecorder(t, testConfig())
	require.NoError(t, rec.Start(t.Context(), 50))
	backend.last().disconnect()

	status, err := rec.Wait(t.Context())
	require.NoError(t, err)
	assert.True(t, status.Has(StatusBackendStopped))
	assert.Equal(t, uint32(StatusBackendStopped), rec.RingBuffer().Status())
}

func TestOpenFailureLeavesRecorderIdle(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{openErr: errors.NewStd("device busy")}
	rec, err := NewRecorder(testConfig(), backend)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rec.Close() })

	err = rec.Start(t.Context(), 10)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryAudioDevice))
	assert.Equal(t, StateIdle, rec.State())

	backend.openErr = nil
	require.NoError(t, rec.Start(t.Context(), 10), "a failed start does not require reset")
	rec.Stop()
	_, err = rec.Wait(t.Context())
	require.NoError(t, err)
}

func TestRecorderBufferViewFollowsWrites(t *testing.T) {
	t.Parallel()

	rec, backend := newRecorder(t, testConfig())
	view := rec.Buffer(3)

	require.NoError(t, rec.Start(t.Context(), 8))
	s := backend.last()

	chunk, err := view.Next()
	require.NoError(t, err)
	assert.True(t, chunk.Empty(), "nothing recorded yet")

	require.NoError(t, s.capture(channelBlock(4, 4)))
	chunk, err = view.Next()
	require.NoError(t, err)
	assert.Equal(t, 3, chunk.Frames())
	assert.Equal(t, 1, view.Pending())
	assert.Equal(t, 0, rec.RingBuffer().ReadIndex(), "views never move the buffer indices")

	rec.Stop()
	_, err = rec.Wait(t.Context())
	require.NoError(t, err)
}

func TestObserverSeesSignalsThroughRegion(t *testing.T) {
	t.Parallel()

	rec, backend := newRecorder(t, testConfig())
	observer, err := ringbuffer.Attach(rec.RegionName())
	require.NoError(t, err)
	t.Cleanup(func() { _ = observer.Close() })

	assert.False(t, observer.Running())
	require.NoError(t, rec.Start(t.Context(), 4))
	assert.True(t, observer.Running())

	s := backend.last()
	require.NoError(t, s.capture(channelBlock(4, 4)))
	assert.Equal(t, 4, observer.WriteIndex())
	require.ErrorIs(t, s.capture(channelBlock(4, 4)), audiocore.ErrStreamAbort)

	_, err = rec.Wait(t.Context())
	require.NoError(t, err)
	assert.True(t, observer.Finished())
	assert.False(t, observer.Running())
}

func TestRecorderMetrics(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	sm, err := metrics.NewStreamMetrics(registry)
	require.NoError(t, err)

	backend := &fakeBackend{}
	rec, err := NewRecorder(testConfig(), backend, WithMetrics(sm.Stream(metrics.KindRecorder)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = rec.Close() })

	require.NoError(t, rec.Start(t.Context(), 4))
	s := backend.last()
	require.NoError(t, s.capture(channelBlock(4, 4)))
	require.ErrorIs(t, s.capture(channelBlock(4, 4)), audiocore.ErrStreamAbort)

	status, err := rec.Wait(t.Context())
	require.NoError(t, err)
	assert.Equal(t, StatusFlags(0), status)

	families, err := registry.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "shmaudio_stream_starts_total")
}

func TestConfigFromSettings(t *testing.T) {
	t.Parallel()

	s := conf.DefaultSettings()
	s.Recorder.ChannelMap = nil
	s.Monitor.ChunkSize = 1024

	rc, err := RecorderConfig(s)
	require.NoError(t, err)
	assert.Equal(t, audiocore.Float32, rc.Type)
	assert.Nil(t, rc.ChannelMap)
	assert.Equal(t, 1024, rc.ChunkSize)
	assert.Equal(t, conf.DefaultBufferSize, rc.BufferSize)

	pc, err := PlayerConfig(s, 1)
	require.NoError(t, err)
	assert.Equal(t, channelmap.Map{1, 2}, pc.ChannelMap)
	assert.Equal(t, 1, pc.Channels)

	s.Audio.DType = "uint8"
	_, err = RecorderConfig(s)
	require.Error(t, err)
}

func TestStatusFlagsString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "ok", StatusFlags(0).String())
	assert.Equal(t, "input-overflow|cancelled", (StatusInputOverflow | StatusCancelled).String())
	assert.Equal(t, "stopping", StateStopping.String())
}

// dirtyRegion creates a named region holding frames of leftover data and
// stale signals, as a crashed earlier run would leave it.
func dirtyRegion(t *testing.T, cfg Config, channels, frames int) *ringbuffer.RingBuffer {
	t.Helper()
	rb, err := ringbuffer.New(ringbuffer.Config{
		Frames:     cfg.BufferSize,
		Channels:   channels,
		Type:       cfg.Type,
		SampleRate: cfg.SampleRate,
		ChunkSize:  cfg.ChunkSize,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rb.Close() })

	leftover := audiocore.NewBlock(frames, channels, cfg.Type)
	for f := range frames {
		for c := range channels {
			leftover.SetSample(f, c, 0.9)
		}
	}
	require.Equal(t, frames, rb.WriteNext(leftover))
	rb.AddStatus(uint32(StatusInputOverflow))
	rb.SetFinished(true)
	return rb
}

func TestRecorderIgnoresStaleRegionState(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.DeviceChannels = 2
	stale := dirtyRegion(t, cfg, 2, 60)
	cfg.Region = stale.Name()

	rec, backend := newRecorder(t, cfg)
	require.NoError(t, rec.Start(t.Context(), 50))
	assert.Equal(t, 0, stale.WriteIndex(), "start rewinds the shared indices")
	assert.False(t, stale.Finished())
	assert.Zero(t, stale.Status())

	s := backend.last()
	for range 12 {
		require.NoError(t, s.capture(channelBlock(4, 2)))
	}
	require.NoError(t, s.capture(channelBlock(4, 2)), "last block is truncated to the target")
	require.ErrorIs(t, s.capture(channelBlock(4, 2)), audiocore.ErrStreamAbort)

	status, err := rec.Wait(t.Context())
	require.NoError(t, err)
	assert.Equal(t, StatusFlags(0), status)
	assert.Equal(t, 50, rec.Frame())
	assert.Equal(t, 50, stale.WriteIndex())

	audio := rec.Recording()
	require.Equal(t, 50, audio.Frames())
	for f := range 50 {
		assert.InDelta(t, 0.1, audio.Block.Sample(f, 0), 1e-3)
		assert.InDelta(t, 0.2, audio.Block.Sample(f, 1), 1e-3)
	}
}

func TestRecorderOverflowTruncates(t *testing.T) {
	t.Parallel()

	rec, backend := newRecorder(t, testConfig())
	require.NoError(t, rec.Start(t.Context(), 10))
	// Start rejects targets beyond the buffer, so raise it afterwards to
	// let the buffer fill before the target is reached.
	rec.target.Store(int64(rec.RingBuffer().Frames() + 2))

	s := backend.last()
	for range 25 {
		require.NoError(t, s.capture(channelBlock(4, 4)))
	}
	assert.True(t, rec.RingBuffer().Full())
	require.ErrorIs(t, s.capture(channelBlock(4, 4)), audiocore.ErrStreamAbort)

	status, err := rec.Wait(t.Context())
	require.NoError(t, err, "overflow is reported, not raised")
	assert.True(t, status.Has(StatusInputOverflow))
	assert.Equal(t, 100, rec.Frame())
	assert.Equal(t, 100, rec.Recording().Frames())
	assert.NotZero(t, rec.RingBuffer().Status()&uint32(StatusInputOverflow))
}
