package monitor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/shmaudio/internal/audiocore"
	"github.com/tphakala/shmaudio/internal/audiocore/backend/loopback"
	"github.com/tphakala/shmaudio/internal/audiocore/ringbuffer"
	"github.com/tphakala/shmaudio/internal/audiocore/stream"
	"github.com/tphakala/shmaudio/internal/errors"
	"github.com/tphakala/shmaudio/internal/observability/metrics"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var _ Source = (*stream.Recorder)(nil)
var _ Source = (*stream.Player)(nil)
var _ Source = (*RegionObserver)(nil)

// testSource is a Source driven by the test.
type testSource struct {
	rb       *ringbuffer.RingBuffer
	running  chan struct{}
	runOnce  sync.Once
	finished atomic.Bool
}

func newTestSource(t *testing.T, frames int) *testSource {
	t.Helper()
	rb, err := ringbuffer.New(ringbuffer.Config{
		Frames:     frames,
		Channels:   2,
		Type:       audiocore.Float32,
		SampleRate: 48000,
		ChunkSize:  4,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rb.Close() })
	return &testSource{rb: rb, running: make(chan struct{})}
}

func (s *testSource) start() { s.runOnce.Do(func() { close(s.running) }) }

func (s *testSource) finish() {
	s.finished.Store(true)
	s.start()
}

func (s *testSource) WaitRunning(ctx context.Context) error {
	select {
	case <-s.running:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *testSource) Finished() bool { return s.finished.Load() }

func (s *testSource) Buffer(chunk int) *ringbuffer.View { return s.rb.View(chunk) }

// countingHandler records calls and can fail on demand.
type countingHandler struct {
	setupErr error
	failAt   int           // Tick number that fails, 0 never
	delay    time.Duration // time each Tick takes

	setups    atomic.Int32
	teardowns atomic.Int32
	ticks     atomic.Int32
	frames    atomic.Int64
}

func (h *countingHandler) Setup() error {
	h.setups.Add(1)
	return h.setupErr
}

func (h *countingHandler) Tick(chunk audiocore.Block) error {
	n := h.ticks.Add(1)
	h.frames.Add(int64(chunk.Frames()))
	if h.delay > 0 {
		time.Sleep(h.delay)
	}
	if h.failAt > 0 && int(n) == h.failAt {
		return errors.NewStd("tick failed")
	}
	return nil
}

func (h *countingHandler) Teardown() error {
	h.teardowns.Add(1)
	return nil
}

func TestNewValidates(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, &countingHandler{})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))

	_, err = New(Config{Interval: time.Millisecond}, nil)
	require.Error(t, err)
}

func TestTickCountFollowsSchedule(t *testing.T) {
	t.Parallel()

	const period = 10 * time.Millisecond
	src := newTestSource(t, 64)
	// Slow callbacks must not push the schedule back.
	h := &countingHandler{delay: 3 * time.Millisecond}
	m, err := New(Config{Name: "schedule", Interval: period}, h)
	require.NoError(t, err)

	require.NoError(t, m.Start(t.Context(), src))
	started := time.Now()
	src.start()
	time.Sleep(300 * time.Millisecond)
	elapsed := time.Since(started)
	src.finish()
	require.NoError(t, m.Wait())

	// One tick per elapsed period plus the final callback after finish.
	want := int(elapsed/period) + 1
	assert.InDelta(t, want, m.Ticks(), 1)
	assert.Equal(t, int32(m.Ticks()), h.ticks.Load())
	assert.Equal(t, int32(1), h.setups.Load())
	assert.Equal(t, int32(1), h.teardowns.Load())
}

func TestFinishedSourceGetsOneFinalCallback(t *testing.T) {
	t.Parallel()

	src := newTestSource(t, 64)
	src.finish()
	h := &countingHandler{}
	m, err := New(Config{Interval: time.Millisecond}, h)
	require.NoError(t, err)

	require.NoError(t, m.Run(t.Context(), src))
	assert.Equal(t, 1, m.Ticks())
	assert.Equal(t, int32(1), h.teardowns.Load())
}

func TestSetupFailureStillTearsDown(t *testing.T) {
	t.Parallel()

	src := newTestSource(t, 64)
	src.start()
	h := &countingHandler{setupErr: errors.NewStd("no log file")}
	m, err := New(Config{Interval: time.Millisecond}, h)
	require.NoError(t, err)

	err = m.Run(t.Context(), src)
	require.Error(t, err)
	assert.ErrorContains(t, err, "no log file")
	assert.Equal(t, int32(0), h.ticks.Load())
	assert.Equal(t, int32(1), h.teardowns.Load())
}

func TestTickErrorEndsLoop(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	mm, err := metrics.NewMonitorMetrics(registry)
	require.NoError(t, err)

	src := newTestSource(t, 64)
	src.start()
	h := &countingHandler{failAt: 3}
	m, err := New(Config{Name: "failing", Interval: time.Millisecond}, h, WithMetrics(mm.Monitor("failing")))
	require.NoError(t, err)

	err = m.Run(t.Context(), src)
	require.Error(t, err)
	assert.ErrorContains(t, err, "tick failed")
	assert.Equal(t, int32(3), h.ticks.Load())
	assert.Equal(t, 2, m.Ticks(), "failed callbacks are not counted")
	assert.Equal(t, int32(1), h.teardowns.Load())

	families, err := registry.Gather()
	require.NoError(t, err)
	var failures float64
	for _, f := range families {
		if f.GetName() == "shmaudio_monitor_callback_errors_total" {
			failures = f.GetMetric()[0].GetCounter().GetValue()
		}
	}
	assert.InDelta(t, 1, failures, 0)
}

func TestCancelWhileWaitingForStart(t *testing.T) {
	t.Parallel()

	src := newTestSource(t, 64)
	h := &countingHandler{}
	m, err := New(Config{Interval: time.Millisecond}, h)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	require.NoError(t, m.Start(ctx, src))
	require.Error(t, m.Start(ctx, src), "a monitor runs one loop at a time")
	cancel()

	require.NoError(t, m.Wait())
	assert.Equal(t, 0, m.Ticks())
	assert.Equal(t, int32(1), h.teardowns.Load())

	// The monitor can be started again once the loop ended.
	src.finish()
	require.NoError(t, m.Run(t.Context(), src))
	assert.Equal(t, 1, m.Ticks())
}

func TestChunksFollowWriteIndex(t *testing.T) {
	t.Parallel()

	src := newTestSource(t, 16)
	src.start()
	var mu sync.Mutex
	var sizes []int
	handler := Func(func(chunk audiocore.Block) error {
		mu.Lock()
		sizes = append(sizes, chunk.Frames())
		mu.Unlock()
		return nil
	})
	m, err := New(Config{Interval: 2 * time.Millisecond, ChunkSize: 4}, handler)
	require.NoError(t, err)
	require.NoError(t, m.Start(t.Context(), src))

	src.rb.WriteNext(audiocore.NewBlock(6, 2, audiocore.Float32))
	time.Sleep(20 * time.Millisecond)
	src.rb.WriteNext(audiocore.NewBlock(10, 2, audiocore.Float32))
	time.Sleep(20 * time.Millisecond)
	src.finish()
	require.NoError(t, m.Wait())

	mu.Lock()
	defer mu.Unlock()
	total := 0
	for _, n := range sizes {
		assert.LessOrEqual(t, n, 4)
		total += n
	}
	assert.Equal(t, 16, total, "every frame is delivered exactly once")
}

func TestMonitorFollowsRecorder(t *testing.T) {
	t.Parallel()

	backend, err := loopback.New(loopback.Options{Channels: 2, Type: audiocore.Float32, CableSize: 4800}, nil)
	require.NoError(t, err)
	rec, err := stream.NewRecorder(stream.Config{
		DeviceChannels: 2,
		SampleRate:     48000,
		BlockSize:      480,
		BufferSize:     4800,
		Type:           audiocore.Float32,
		ChunkSize:      480,
	}, backend)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rec.Close() })

	h := &countingHandler{}
	m, err := New(Config{Name: "recorder", Interval: 20 * time.Millisecond}, h)
	require.NoError(t, err)
	require.NoError(t, m.Start(t.Context(), rec))

	_, status, err := rec.Run(t.Context(), 4800)
	require.NoError(t, err)
	assert.Equal(t, stream.StatusFlags(0), status)
	require.NoError(t, m.Wait())

	assert.Positive(t, m.Ticks())
	assert.LessOrEqual(t, h.frames.Load(), int64(4800))
	assert.Equal(t, int32(1), h.teardowns.Load())
}

func TestRegionObserver(t *testing.T) {
	t.Parallel()

	rb, err := ringbuffer.New(ringbuffer.Config{Frames: 32, Channels: 1, Type: audiocore.Int16, ChunkSize: 8})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rb.Close() })

	obs, err := Observe(rb.Name(), false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = obs.Close() })

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, obs.WaitRunning(ctx), context.DeadlineExceeded)

	go func() {
		time.Sleep(10 * time.Millisecond)
		rb.SetRunning(true)
	}()
	require.NoError(t, obs.WaitRunning(t.Context()))
	assert.False(t, obs.Finished())

	rb.WriteNext(audiocore.NewBlock(12, 1, audiocore.Int16))
	view := obs.Buffer(0)
	assert.Equal(t, 8, view.ChunkSize())
	b, err := view.Next()
	require.NoError(t, err)
	assert.Equal(t, 8, b.Frames())

	rb.SetRunning(false)
	rb.SetFinished(true)
	assert.True(t, obs.Finished())
}

func TestObserveMissingRegion(t *testing.T) {
	t.Parallel()

	_, err := Observe("shmaudio-test-missing-region", false)
	require.Error(t, err)
}

func TestLevelMonitorLog(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "logs", "levels.log")
	registry := prometheus.NewRegistry()
	mm, err := metrics.NewMonitorMetrics(registry)
	require.NoError(t, err)

	lm := NewLevelMonitor("input", path, 0, mm.Monitor("input"))
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	lm.now = func() time.Time { return fixed }
	lm.SetEndNote("recording done")

	block := audiocore.NewBlock(4, 2, audiocore.Float32)
	for f := range 4 {
		block.SetSample(f, 0, 0.5)
	}

	require.NoError(t, lm.Setup())
	require.NoError(t, lm.Tick(block))
	require.NoError(t, lm.Tick(audiocore.Block{Channels: 2, Type: audiocore.Float32}))
	require.NoError(t, lm.Teardown())
	require.NoError(t, lm.Teardown(), "teardown after close is a no-op")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	stamp := fixed.Format(timeLayout)
	want := "-------------\n# LOG OUTPUT FILE\n# input\n# " + stamp + "\n\n" +
		stamp + "\tData shape=(4, 2)\tRMS=[0.5 0]\tdB=[-6.0206 -Inf]\n" +
		stamp + "\tData shape=(0, 2)\tRMS=[0 0]\tdB=[-Inf -Inf]\n" +
		"\n# recording done\n-------------\n\n"
	assert.Equal(t, want, string(data))

	// A second session appends.
	require.NoError(t, lm.Setup())
	require.NoError(t, lm.Teardown())
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "# LOG OUTPUT FILE"))

	families, err := registry.Gather()
	require.NoError(t, err)
	var levels int
	for _, f := range families {
		if f.GetName() == "shmaudio_monitor_level_dbfs" {
			levels = len(f.GetMetric())
		}
	}
	assert.Equal(t, 2, levels)
}

func TestLevelMonitorSetupError(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	lm := NewLevelMonitor("bad", filepath.Join(blocker, "levels.log"), 1, nil)
	err := lm.Setup()
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryFileIO))
	require.NoError(t, lm.Teardown())
}

func TestRMSAndDB(t *testing.T) {
	t.Parallel()

	b := audiocore.NewBlock(2, 1, audiocore.Float32)
	b.SetSample(0, 0, 0.5)
	b.SetSample(1, 0, -0.5)
	assert.InDeltaSlice(t, []float64{0.5}, RMS(b), 1e-9)
	assert.InDelta(t, 0, DB(1, 1), 1e-12)
	assert.InDelta(t, -20, DB(0.1, 1), 1e-9)
	assert.InDelta(t, 6.0206, DB(1, 0.5), 1e-4)
}
