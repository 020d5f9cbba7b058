package audiocore

import (
	"iter"
	"math"
	"time"

	"github.com/go-audio/audio"

	"github.com/tphakala/shmaudio/internal/errors"
)

// Audio is a self-contained audio unit handed to downstream consumers: the
// samples, their rate and the chunk size the producer works in.
type Audio struct {
	Block      Block
	SampleRate int
	ChunkSize  int
}

// NewAudio allocates silent audio.
func NewAudio(frames, channels int, t SampleType, sampleRate, chunkSize int) Audio {
	return Audio{
		Block:      NewBlock(frames, channels, t),
		SampleRate: sampleRate,
		ChunkSize:  chunkSize,
	}
}

// Frames returns the number of frames.
func (a Audio) Frames() int { return a.Block.Frames() }

// Channels returns the channel count.
func (a Audio) Channels() int { return a.Block.Channels }

// Duration returns the playing time at the sample rate.
func (a Audio) Duration() time.Duration {
	if a.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(a.Frames()) / float64(a.SampleRate) * float64(time.Second))
}

// Chunks yields consecutive views of ChunkSize frames. The last chunk may be
// shorter.
func (a Audio) Chunks() iter.Seq[Block] {
	return func(yield func(Block) bool) {
		size := a.ChunkSize
		if size <= 0 {
			size = a.Frames()
		}
		for from := 0; from < a.Frames(); from += size {
			if !yield(a.Block.Slice(from, min(from+size, a.Frames()))) {
				return
			}
		}
	}
}

// Float32Buffer converts the samples to a go-audio float buffer in [-1, 1).
func (a Audio) Float32Buffer() *audio.Float32Buffer {
	frames, channels := a.Frames(), a.Channels()
	data := make([]float32, frames*channels)
	i := 0
	for f := range frames {
		for c := range channels {
			data[i] = float32(a.Block.Sample(f, c))
			i++
		}
	}
	return &audio.Float32Buffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: a.SampleRate},
		Data:           data,
		SourceBitDepth: a.Block.Type.BitDepth(),
	}
}

// IntBuffer converts the samples to a go-audio int buffer. Integer types keep
// their native depth; float samples are scaled to 24 bits.
func (a Audio) IntBuffer() *audio.IntBuffer {
	depth := a.Block.Type.BitDepth()
	if a.Block.Type == Float32 {
		depth = 24
	}
	scale := math.Ldexp(1, depth-1)
	frames, channels := a.Frames(), a.Channels()
	data := make([]int, frames*channels)
	i := 0
	for f := range frames {
		for c := range channels {
			v := math.Round(a.Block.Sample(f, c) * scale)
			data[i] = int(math.Max(-scale, math.Min(scale-1, v)))
			i++
		}
	}
	return &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: a.SampleRate},
		Data:           data,
		SourceBitDepth: depth,
	}
}

// FromBuffer converts any go-audio buffer into Audio stored as t.
func FromBuffer(buf audio.Buffer, t SampleType, chunkSize int) (Audio, error) {
	if buf == nil || buf.PCMFormat() == nil {
		return Audio{}, errors.ValidationError("audio buffer has no format")
	}
	if !t.Valid() {
		return Audio{}, errors.Newf("invalid sample type %d", t).
			Component(ComponentAudioCore).
			Category(errors.CategoryValidation).
			Build()
	}
	format := buf.PCMFormat()
	if format.NumChannels <= 0 {
		return Audio{}, errors.New(nil).
			Component(ComponentAudioCore).
			Category(errors.CategoryValidation).
			Context("channels", format.NumChannels).
			Context("error", "audio buffer needs at least one channel").
			Build()
	}

	fb := buf.AsFloat32Buffer()
	if len(fb.Data)%format.NumChannels != 0 {
		return Audio{}, errors.New(nil).
			Component(ComponentAudioCore).
			Category(errors.CategoryValidation).
			Context("samples", len(fb.Data)).
			Context("channels", format.NumChannels).
			Context("error", "sample count is not a whole number of frames").
			Build()
	}

	frames := len(fb.Data) / format.NumChannels
	a := NewAudio(frames, format.NumChannels, t, format.SampleRate, chunkSize)
	i := 0
	for f := range frames {
		for c := range format.NumChannels {
			a.Block.SetSample(f, c, float64(fb.Data[i]))
			i++
		}
	}
	return a, nil
}
