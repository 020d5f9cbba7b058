// Package loopback implements a virtual duplex audio device. Playback streams
// write into a byte cable and capture streams read from it, each driven by its
// own goroutine at the block period. It lets the recorder, player and monitor
// run end to end without sound hardware.
package loopback

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smallnest/ringbuffer"
	"golang.org/x/time/rate"

	"github.com/tphakala/shmaudio/internal/audiocore"
	"github.com/tphakala/shmaudio/internal/errors"
	"github.com/tphakala/shmaudio/internal/logger"
)

// Name is the backend name used in configuration.
const Name = "loopback"

// DefaultBlockSize is used when a stream does not request a block size.
const DefaultBlockSize = 256

// Options describe the cable.
type Options struct {
	Channels   int // channels carried by the cable
	Type       audiocore.SampleType
	CableSize  int // cable capacity in frames
	DeviceName string
}

// Backend is a loopback device shared by every stream opened on it.
type Backend struct {
	opts      Options
	frameSize int
	log       logger.Logger
	warn      *rate.Limiter

	mu    sync.Mutex // serializes compound cable operations
	cable *ringbuffer.RingBuffer

	underruns atomic.Uint64
	overruns  atomic.Uint64
}

// New creates a loopback device.
func New(opts Options, log logger.Logger) (*Backend, error) {
	if opts.Channels <= 0 || !opts.Type.Valid() || opts.CableSize <= 0 {
		return nil, errors.New(nil).
			Component("loopback").
			Category(errors.CategoryValidation).
			Context("channels", opts.Channels).
			Context("sample_type", opts.Type.String()).
			Context("cable_frames", opts.CableSize).
			Context("error", "invalid loopback cable").
			Build()
	}
	if opts.DeviceName == "" {
		opts.DeviceName = "Loopback"
	}
	if log == nil {
		log = logger.Global().Module("loopback")
	}
	frameSize := opts.Channels * opts.Type.Size()
	return &Backend{
		opts:      opts,
		frameSize: frameSize,
		log:       log,
		warn:      rate.NewLimiter(rate.Every(time.Second), 1),
		cable:     ringbuffer.New(opts.CableSize * frameSize),
	}, nil
}

// Name implements audiocore.Backend.
func (b *Backend) Name() string { return Name }

// Devices implements audiocore.DeviceLister.
func (b *Backend) Devices(context.Context) ([]audiocore.DeviceInfo, error) {
	return []audiocore.DeviceInfo{
		{Index: 0, Name: b.opts.DeviceName, ID: "loopback:capture", Direction: audiocore.Capture, Default: true},
		{Index: 0, Name: b.opts.DeviceName, ID: "loopback:playback", Direction: audiocore.Playback, Default: true},
	}, nil
}

// Underruns returns how many capture blocks were padded with silence.
func (b *Backend) Underruns() uint64 { return b.underruns.Load() }

// Overruns returns how many playback blocks did not fit the cable.
func (b *Backend) Overruns() uint64 { return b.overruns.Load() }

// Buffered returns the frames waiting in the cable.
func (b *Backend) Buffered() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cable.Length() / b.frameSize
}

// push writes whole frames of data into the cable and returns the frames
// written.
func (b *Backend) push(data []byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := min(len(data), b.cable.Free()/b.frameSize*b.frameSize)
	if n == 0 {
		return 0
	}
	written, _ := b.cable.Write(data[:n])
	return written / b.frameSize
}

// pull reads whole frames from the cable into data and returns the frames read.
func (b *Backend) pull(data []byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := min(len(data), b.cable.Length()/b.frameSize*b.frameSize)
	if n == 0 {
		return 0
	}
	read, _ := b.cable.Read(data[:n])
	return read / b.frameSize
}

func (b *Backend) warnf(msg string, fields ...logger.Field) {
	if b.warn.Allow() {
		b.log.Warn(msg, fields...)
	}
}

// Open implements audiocore.Backend.
func (b *Backend) Open(ctx context.Context, params audiocore.StreamParams, cb audiocore.Callbacks) (audiocore.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if params.Type != b.opts.Type {
		return nil, errors.New(nil).
			Component("loopback").
			Category(errors.CategoryAudioDevice).
			Context("requested", params.Type.String()).
			Context("cable", b.opts.Type.String()).
			Context("error", "sample type differs from the cable").
			Build()
	}
	if params.Channels <= 0 || params.Channels > b.opts.Channels {
		return nil, errors.New(nil).
			Component("loopback").
			Category(errors.CategoryAudioDevice).
			Context("requested", params.Channels).
			Context("available", b.opts.Channels).
			Context("error", "device does not have that many channels").
			Build()
	}
	if params.SampleRate <= 0 {
		return nil, errors.ValidationError("loopback stream needs a sample rate")
	}

	block := params.BlockSize
	if block <= 0 {
		block = DefaultBlockSize
	}
	period := time.Duration(float64(block) / float64(params.SampleRate) * float64(time.Second))

	return &stream{
		backend: b,
		params:  params,
		cb:      cb,
		period:  period,
		local:   audiocore.NewBlock(block, params.Channels, params.Type),
		wire:    audiocore.NewBlock(block, b.opts.Channels, b.opts.Type),
	}, nil
}
