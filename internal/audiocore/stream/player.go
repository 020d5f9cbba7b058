package stream

import (
	"context"
	"time"

	"github.com/tphakala/shmaudio/internal/audiocore"
	"github.com/tphakala/shmaudio/internal/audiocore/channelmap"
	"github.com/tphakala/shmaudio/internal/errors"
	"github.com/tphakala/shmaudio/internal/observability/metrics"
)

// Player plays audio from a shared ring buffer to mapped output channels.
type Player struct {
	*engine
	output channelmap.Output
}

// NewPlayer resolves the output mapping for cfg.Channels source channels and
// creates the ring buffer. No device is touched until Start.
func NewPlayer(cfg Config, backend audiocore.Backend, opts ...Option) (*Player, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Channels <= 0 {
		return nil, invalidConfig("source channels must be positive", cfg.Channels)
	}
	output, err := channelmap.ResolveOutput(cfg.ChannelMap, cfg.Channels, cfg.DeviceChannels)
	if err != nil {
		return nil, err
	}

	p := &Player{
		engine: newEngine(metrics.KindPlayer, audiocore.Playback, cfg, backend, opts),
		output: output,
	}
	p.channels = output.Channels
	p.process = p.callback
	if err := p.openBuffer(cfg.Channels); err != nil {
		return nil, err
	}
	return p, nil
}

// Output returns the resolved channel mapping.
func (p *Player) Output() channelmap.Output { return p.output }

// Start copies src into the ring buffer and begins playback. The source must
// fit the buffer, match its channel count and sample rate, and hold at least
// one frame. Samples of another type are converted.
func (p *Player) Start(ctx context.Context, src audiocore.Audio) error {
	frames := src.Frames()
	if frames > p.rb.Frames() {
		return capacityError(p.kind, frames, p.rb.Frames())
	}
	if frames == 0 {
		return errors.New(nil).
			Component("stream").
			Category(errors.CategoryValidation).
			Context("error", "nothing to play").
			Build()
	}
	if src.Channels() != p.rb.Channels() {
		return errors.Newf("source has %d channels, player expects %d", src.Channels(), p.rb.Channels()).
			Component("stream").
			Category(errors.CategoryChannelMapping).
			Context("mapping", p.output.Mapping.String()).
			Build()
	}
	if src.SampleRate != 0 && src.SampleRate != p.cfg.SampleRate {
		return errors.New(nil).
			Component("stream").
			Category(errors.CategoryValidation).
			Context("source_rate", src.SampleRate).
			Context("stream_rate", p.cfg.SampleRate).
			Context("error", "sample rate conversion is not supported").
			Build()
	}
	if err := p.begin(); err != nil {
		return err
	}

	data := src.Block
	if data.Type != p.rb.Type() {
		data = data.ConvertTo(p.rb.Type())
	}
	p.rb.Publish(p.rb.Block(0, frames).CopyFrom(data))
	p.target.Store(int64(frames))

	if err := p.launch(ctx); err != nil {
		p.rb.Reset()
		return err
	}
	return nil
}

// Run plays src and blocks until playback finished. A looping player only
// finishes through Stop or ctx.
func (p *Player) Run(ctx context.Context, src audiocore.Audio) (StatusFlags, error) {
	if err := p.Start(ctx, src); err != nil {
		return 0, err
	}
	return p.Wait(ctx)
}

// Playback returns a copy of the source frames played in the current pass.
func (p *Player) Playback() audiocore.Audio {
	return p.audio()
}

// callback runs on the backend's real-time thread. It fills the whole output
// block, wrapping to the source start as often as needed when looping, and
// zero fills whatever the source cannot cover.
func (p *Player) callback(_, out audiocore.Block) error {
	if p.State() != StateRunning {
		out.Zero()
		return p.abort(metrics.ReasonStopped)
	}
	start := time.Now()

	target := int(p.target.Load())
	frame := int(p.frame.Load())
	total := out.Frames()
	filled := 0
	for filled < total {
		n := min(target-frame, total-filled)
		if n <= 0 {
			if !p.cfg.Loop {
				break
			}
			frame = 0
			p.rb.RewindRead()
			p.inst.LoopWrapped()
			continue
		}
		p.output.Apply(out.Slice(filled, filled+n), p.rb.Block(frame, frame+n))
		frame += n
		filled += n
		p.rb.AdvanceRead(frame)
	}
	p.frame.Store(int64(frame))
	if filled < total {
		out.Slice(filled, total).Zero()
	}
	p.inst.Callback(filled, time.Since(start), fill(p.rb.ReadIndex(), target))

	if filled == 0 {
		return p.abort(metrics.ReasonComplete)
	}
	return nil
}
