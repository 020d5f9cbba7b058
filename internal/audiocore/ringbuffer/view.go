package ringbuffer

import (
	"github.com/tphakala/shmaudio/internal/audiocore"
)

// View is a read-only cursor over a RingBuffer. It keeps its own position and
// never modifies the buffer indices, so any number of views can follow a
// stream without disturbing it.
type View struct {
	rb       *RingBuffer
	chunk    int
	cursor   int
	gen      uint64
	playback bool
}

// View returns a cursor bounded by the write index, for following a recording.
func (rb *RingBuffer) View(chunk int) *View {
	return rb.newView(chunk, false)
}

// PlaybackView returns a cursor bounded by the read index, for following a
// player. When the player rewinds for another loop pass the cursor restarts
// from the first frame.
func (rb *RingBuffer) PlaybackView(chunk int) *View {
	return rb.newView(chunk, true)
}

func (rb *RingBuffer) newView(chunk int, playback bool) *View {
	if chunk <= 0 {
		chunk = rb.ChunkSize()
	}
	return &View{rb: rb, chunk: chunk, gen: rb.Generation(), playback: playback}
}

func (v *View) limit() int {
	if v.playback {
		return v.rb.ReadIndex()
	}
	return v.rb.WriteIndex()
}

func (v *View) sync() int {
	if g := v.rb.Generation(); g != v.gen {
		v.gen = g
		v.cursor = 0
	}
	limit := v.limit()
	if v.playback && limit < v.cursor {
		v.cursor = 0
	}
	return limit
}

// Next returns up to one chunk of frames past the cursor. It returns an empty
// block when nothing new is available and audiocore.ErrExhausted once the
// cursor has reached the buffer capacity.
func (v *View) Next() (audiocore.Block, error) {
	limit := v.sync()
	if v.cursor >= v.rb.frames {
		return v.rb.empty(), audiocore.ErrExhausted
	}
	k := min(v.chunk, max(0, limit-v.cursor))
	if k == 0 {
		return v.rb.empty(), nil
	}
	b := v.rb.Block(v.cursor, v.cursor+k)
	v.cursor += k
	return b, nil
}

// Pending returns frames available past the cursor.
func (v *View) Pending() int {
	return max(0, v.sync()-v.cursor)
}

// Position returns the cursor frame.
func (v *View) Position() int { return v.cursor }

// ChunkSize returns frames per Next.
func (v *View) ChunkSize() int { return v.chunk }

// Channels returns the channel count of returned blocks.
func (v *View) Channels() int { return v.rb.channels }

// SampleRate returns the buffer sample rate.
func (v *View) SampleRate() int { return v.rb.SampleRate() }
