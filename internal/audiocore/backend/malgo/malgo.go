// Package malgo implements the real-time audio backend on miniaudio through
// malgo. Each opened stream owns its own malgo context and device.
package malgo

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"github.com/tphakala/shmaudio/internal/audiocore"
	"github.com/tphakala/shmaudio/internal/errors"
	"github.com/tphakala/shmaudio/internal/logger"
)

// Name is the backend name used in configuration.
const Name = "malgo"

// Backend opens capture and playback streams on the platform audio API.
type Backend struct {
	log logger.Logger
}

// New returns a malgo backend. A nil logger falls back to the global one.
func New(log logger.Logger) *Backend {
	if log == nil {
		log = logger.Global().Module("malgo")
	}
	return &Backend{log: log}
}

// Name implements audiocore.Backend.
func (b *Backend) Name() string { return Name }

func (b *Backend) initContext() (*malgo.AllocatedContext, error) {
	backend, err := getBackendForPlatform()
	if err != nil {
		return nil, err
	}
	mctx, err := malgo.InitContext([]malgo.Backend{backend}, malgo.ContextConfig{}, func(message string) {
		b.log.Debug("miniaudio", logger.String("message", strings.TrimSpace(message)))
	})
	if err != nil {
		return nil, errors.New(err).
			Component("malgo").
			Category(errors.CategoryAudio).
			Context("operation", "init_context").
			Context("backend", runtime.GOOS).
			Build()
	}
	return mctx, nil
}

func freeContext(mctx *malgo.AllocatedContext) {
	_ = mctx.Uninit()
	mctx.Free()
}

// Open initializes a device for params. The device is not started.
func (b *Backend) Open(ctx context.Context, params audiocore.StreamParams, cb audiocore.Callbacks) (audiocore.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	format, err := formatFor(params.Type)
	if err != nil {
		return nil, err
	}
	if params.Channels <= 0 || params.SampleRate <= 0 {
		return nil, errors.New(nil).
			Component("malgo").
			Category(errors.CategoryValidation).
			Context("channels", params.Channels).
			Context("sample_rate", params.SampleRate).
			Context("error", "stream needs channels and a sample rate").
			Build()
	}

	mctx, err := b.initContext()
	if err != nil {
		return nil, err
	}

	kind := deviceType(params.Direction)
	infos, err := mctx.Devices(kind)
	if err != nil {
		freeContext(mctx)
		return nil, errors.New(err).
			Component("malgo").
			Category(errors.CategoryAudioDevice).
			Context("operation", "enumerate_devices").
			Build()
	}
	index, err := SelectDevice(describe(infos, params.Direction), params.Device)
	if err != nil {
		freeContext(mctx)
		return nil, err
	}
	info := &infos[index]

	deviceConfig := malgo.DefaultDeviceConfig(kind)
	sub := &deviceConfig.Capture
	if params.Direction == audiocore.Playback {
		sub = &deviceConfig.Playback
	}
	sub.Format = format
	sub.Channels = uint32(params.Channels)
	sub.DeviceID = info.ID.Pointer()
	deviceConfig.SampleRate = uint32(params.SampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(max(0, params.BlockSize))
	deviceConfig.PerformanceProfile = performanceProfile(params.Latency)
	deviceConfig.Alsa.NoMMap = 1

	s := &stream{
		mctx:     mctx,
		cb:       cb,
		dir:      params.Direction,
		channels: params.Channels,
		typ:      params.Type,
	}
	device, err := malgo.InitDevice(mctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: s.onData,
		Stop: s.onStop,
	})
	if err != nil {
		freeContext(mctx)
		return nil, errors.New(err).
			Component("malgo").
			Category(errors.CategoryAudioDevice).
			Context("device_name", info.Name()).
			Context("operation", "init_device").
			Build()
	}
	s.device = device

	actual := device.CaptureFormat()
	if params.Direction == audiocore.Playback {
		actual = device.PlaybackFormat()
	}
	if got := sampleTypeFor(actual); got != params.Type {
		_, name := GetFormatInfo(actual)
		device.Uninit()
		freeContext(mctx)
		return nil, errors.New(nil).
			Component("malgo").
			Category(errors.CategoryAudioDevice).
			Context("device_name", info.Name()).
			Context("requested", params.Type.String()).
			Context("actual", name).
			Context("error", "device format differs from the requested sample type").
			Build()
	}

	b.log.Debug("device initialized",
		logger.String("device", info.Name()),
		logger.String("direction", params.Direction.String()),
		logger.Int("channels", params.Channels),
		logger.Int("sample_rate", int(device.SampleRate())),
		logger.Int("period_frames", params.BlockSize))
	return s, nil
}

// stream adapts a malgo device to audiocore.Stream.
type stream struct {
	mctx     *malgo.AllocatedContext
	device   *malgo.Device
	cb       audiocore.Callbacks
	dir      audiocore.Direction
	channels int
	typ      audiocore.SampleType

	aborted    atomic.Bool
	finishOnce sync.Once
	stopMu     sync.Mutex
	wg         sync.WaitGroup
	closeOnce  sync.Once
}

// onData runs on the device thread.
func (s *stream) onData(out, in []byte, _ uint32) {
	if s.aborted.Load() {
		clear(out)
		return
	}
	var err error
	if s.dir == audiocore.Capture {
		err = s.cb.Process(audiocore.Block{Data: in, Channels: s.channels, Type: s.typ}, audiocore.Block{})
	} else {
		err = s.cb.Process(audiocore.Block{}, audiocore.Block{Data: out, Channels: s.channels, Type: s.typ})
	}
	if err != nil && s.aborted.CompareAndSwap(false, true) {
		// A device cannot be stopped from its own callback.
		s.wg.Go(func() {
			_ = s.stopDevice()
			s.finish()
		})
	}
}

// onStop is called by miniaudio whenever the device stops.
func (s *stream) onStop() {
	s.finish()
}

func (s *stream) finish() {
	s.finishOnce.Do(func() {
		if s.cb.Finished != nil {
			s.cb.Finished()
		}
	})
}

func (s *stream) stopDevice() error {
	s.stopMu.Lock()
	defer s.stopMu.Unlock()
	if s.device == nil || !s.device.IsStarted() {
		return nil
	}
	return s.device.Stop()
}

// Start implements audiocore.Stream.
func (s *stream) Start() error {
	if err := s.device.Start(); err != nil {
		return errors.New(err).
			Component("malgo").
			Category(errors.CategoryAudioDevice).
			Context("operation", "start_device").
			Build()
	}
	return nil
}

// Stop implements audiocore.Stream.
func (s *stream) Stop() error {
	err := s.stopDevice()
	s.wg.Wait()
	if err != nil {
		return errors.New(err).
			Component("malgo").
			Category(errors.CategoryAudioDevice).
			Context("operation", "stop_device").
			Build()
	}
	return nil
}

// Close implements audiocore.Stream.
func (s *stream) Close() error {
	s.closeOnce.Do(func() {
		_ = s.Stop()
		s.device.Uninit()
		freeContext(s.mctx)
	})
	return nil
}
