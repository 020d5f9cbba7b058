package stream

import (
	"context"
	"time"

	"github.com/tphakala/shmaudio/internal/audiocore"
	"github.com/tphakala/shmaudio/internal/audiocore/channelmap"
	"github.com/tphakala/shmaudio/internal/errors"
	"github.com/tphakala/shmaudio/internal/observability/metrics"
)

// Recorder captures mapped input channels into a shared ring buffer.
type Recorder struct {
	*engine
	input channelmap.Input
}

// NewRecorder resolves the input mapping and creates the ring buffer. No
// device is touched until Start.
func NewRecorder(cfg Config, backend audiocore.Backend, opts ...Option) (*Recorder, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	input, err := channelmap.ResolveInput(cfg.ChannelMap, cfg.DeviceChannels)
	if err != nil {
		return nil, err
	}

	r := &Recorder{
		engine: newEngine(metrics.KindRecorder, audiocore.Capture, cfg, backend, opts),
		input:  input,
	}
	r.channels = input.DeviceChannels
	r.process = r.callback
	if err := r.openBuffer(input.Channels); err != nil {
		return nil, err
	}
	return r, nil
}

// Input returns the resolved channel mapping.
func (r *Recorder) Input() channelmap.Input { return r.input }

// Start begins recording frames frames. It fails with a capacity error when
// frames exceed the buffer and with a state error unless the recorder is
// idle. Start returns once the backend stream is running.
func (r *Recorder) Start(ctx context.Context, frames int) error {
	if frames > r.rb.Frames() {
		return capacityError(r.kind, frames, r.rb.Frames())
	}
	if frames <= 0 {
		return errors.New(nil).
			Component("stream").
			Category(errors.CategoryValidation).
			Context("frames", frames).
			Context("error", "recording length must be positive").
			Build()
	}
	if err := r.begin(); err != nil {
		return err
	}
	r.target.Store(int64(frames))
	return r.launch(ctx)
}

// Run records frames frames and blocks until the recording finished.
func (r *Recorder) Run(ctx context.Context, frames int) (audiocore.Audio, StatusFlags, error) {
	if err := r.Start(ctx, frames); err != nil {
		return audiocore.Audio{}, 0, err
	}
	status, err := r.Wait(ctx)
	return r.Recording(), status, err
}

// Recording returns a copy of the frames recorded so far.
func (r *Recorder) Recording() audiocore.Audio {
	return r.audio()
}

// callback runs on the backend's real-time thread.
func (r *Recorder) callback(in, _ audiocore.Block) error {
	if r.State() != StateRunning {
		return r.abort(metrics.ReasonStopped)
	}
	start := time.Now()

	frame := int(r.frame.Load())
	n := min(int(r.target.Load())-frame, in.Frames())
	if n <= 0 {
		return r.abort(metrics.ReasonComplete)
	}

	k := max(0, min(n, r.rb.Frames()-frame))
	r.input.Apply(r.rb.Block(frame, frame+k), in.Slice(0, k))
	r.rb.Publish(frame + k)
	r.frame.Store(int64(frame + k))
	r.inst.Callback(k, time.Since(start), fill(frame+k, r.rb.Frames()))

	if k < n {
		r.addStatus(StatusInputOverflow)
		return r.abort(metrics.ReasonOverflow)
	}
	return nil
}

func capacityError(kind string, frames, capacity int) error {
	return errors.New(audiocore.ErrCapacity).
		Component("stream").
		Category(errors.CategoryCapacity).
		Context("stream", kind).
		Context("frames", frames).
		Context("capacity", capacity).
		Build()
}
