// Package ringbuffer implements the fixed capacity sample store shared
// between a stream and its observers. Frames are appended at the write index
// w and consumed at the read index r with 0 <= r <= w <= capacity; both only
// move forward until Reset. Exactly one writer may append. Any number of
// readers, in this or other processes, may observe the buffer; a reader never
// sees frames at or past w.
package ringbuffer

import (
	"sync"

	"github.com/tphakala/shmaudio/internal/audiocore"
	"github.com/tphakala/shmaudio/internal/errors"
	"github.com/tphakala/shmaudio/internal/shm"
)

// Config describes a buffer. A zero geometry (Frames, Channels and Type
// unset) attaches to an existing region and adopts its geometry.
type Config struct {
	Name       string // region name, empty generates one
	Frames     int    // capacity in frames
	Channels   int
	Type       audiocore.SampleType
	SampleRate int
	ChunkSize  int // default frames per ReadNext
}

func (c Config) attachOnly() bool {
	return c.Frames == 0 && c.Channels == 0 && c.Type == audiocore.SampleInvalid
}

// RingBuffer composes a SampleStore with the SharedRegion it lives in.
type RingBuffer struct {
	SampleStore
	region    SharedRegion
	hdr       header
	closeOnce sync.Once
	closeErr  error
}

// New creates the region described by cfg or attaches to an existing region
// of the same name. Attaching checks that the geometry matches.
func New(cfg Config) (*RingBuffer, error) {
	if cfg.attachOnly() {
		if cfg.Name == "" {
			return nil, allocationError(cfg.Name, "attach", "region name is required to attach")
		}
		region, err := shm.Open(cfg.Name)
		if err != nil {
			return nil, err
		}
		return fromRegion(region, cfg)
	}

	if cfg.Frames <= 0 || cfg.Channels <= 0 || !cfg.Type.Valid() {
		return nil, errors.New(nil).
			Component("ringbuffer").
			Category(errors.CategoryAllocation).
			Context("frames", cfg.Frames).
			Context("channels", cfg.Channels).
			Context("sample_type", cfg.Type.String()).
			Context("error", "invalid buffer geometry").
			Build()
	}

	size := headerSize + cfg.Frames*cfg.Channels*cfg.Type.Size()
	region, err := shm.Create(cfg.Name, size)
	if err != nil {
		return nil, err
	}
	if region.Created() {
		initHeader(header{b: region.Bytes()}, cfg)
	}
	return fromRegion(region, cfg)
}

// Attach maps an existing buffer by name.
func Attach(name string) (*RingBuffer, error) {
	return New(Config{Name: name})
}

func initHeader(h header, cfg Config) {
	h.store64(offFrames, uint64(cfg.Frames))
	h.store32(offChannels, uint32(cfg.Channels))
	h.store32(offSampleType, uint32(cfg.Type))
	h.store32(offSampleRate, uint32(cfg.SampleRate))
	h.store32(offChunkSize, uint32(cfg.ChunkSize))
	h.store64(offWrite, 0)
	h.store64(offRead, 0)
	h.store32(offFlags, 0)
	h.store32(offStatus, 0)
	h.store64(offMagic, headerMagic)
}

// fromRegion validates the header against cfg and builds the buffer. The
// region is closed on failure.
func fromRegion(region SharedRegion, cfg Config) (*RingBuffer, error) {
	data := region.Bytes()
	fail := func(msg string) (*RingBuffer, error) {
		_ = region.Close()
		return nil, allocationError(region.Name(), "attach", msg)
	}
	if len(data) < headerSize {
		return fail("region smaller than header")
	}

	h := header{b: data}
	if h.load64(offMagic) != headerMagic {
		return fail("region is not an initialized ring buffer")
	}

	frames := int(h.load64(offFrames))
	channels := int(h.load32(offChannels))
	typ := audiocore.SampleType(h.load32(offSampleType))
	if !typ.Valid() || channels <= 0 || len(data) < headerSize+frames*channels*typ.Size() {
		return fail("corrupt ring buffer header")
	}
	if !cfg.attachOnly() && (frames != cfg.Frames || channels != cfg.Channels || typ != cfg.Type) {
		return fail("existing region has a different geometry")
	}

	return &RingBuffer{
		SampleStore: newSampleStore(data[headerSize:], frames, channels, typ),
		region:      region,
		hdr:         h,
	}, nil
}

// Name returns the region name other processes attach with.
func (rb *RingBuffer) Name() string { return rb.region.Name() }

// Frames returns the capacity in frames.
func (rb *RingBuffer) Frames() int { return rb.frames }

// Channels returns the number of channels per frame.
func (rb *RingBuffer) Channels() int { return rb.channels }

// Type returns the sample type.
func (rb *RingBuffer) Type() audiocore.SampleType { return rb.typ }

// SampleRate returns the rate recorded in the header.
func (rb *RingBuffer) SampleRate() int { return int(rb.hdr.load32(offSampleRate)) }

// ChunkSize returns the default ReadNext size. It falls back to the capacity.
func (rb *RingBuffer) ChunkSize() int {
	if c := int(rb.hdr.load32(offChunkSize)); c > 0 {
		return c
	}
	return rb.frames
}

// WriteIndex returns w.
func (rb *RingBuffer) WriteIndex() int { return int(rb.hdr.load64(offWrite)) }

// ReadIndex returns r.
func (rb *RingBuffer) ReadIndex() int { return int(rb.hdr.load64(offRead)) }

// Full reports whether w has reached the capacity.
func (rb *RingBuffer) Full() bool { return rb.WriteIndex() == rb.frames }

// ReadyToRead returns w - r, never negative.
func (rb *RingBuffer) ReadyToRead() int {
	r := rb.ReadIndex()
	return max(0, rb.WriteIndex()-r)
}

// WriteNext appends as many frames of samples as fit and returns that count.
// Frames that do not fit are dropped without error.
func (rb *RingBuffer) WriteNext(samples audiocore.Block) int {
	dst := rb.Reserve(samples.Frames())
	n := dst.CopyFrom(samples)
	rb.Commit(n)
	return n
}

// Reserve returns a writable view of up to n frames starting at w. The frames
// become visible to readers only after Commit.
func (rb *RingBuffer) Reserve(n int) audiocore.Block {
	w := rb.WriteIndex()
	return rb.Block(w, w+max(0, min(n, rb.frames-w)))
}

// Commit publishes n reserved frames by advancing w.
func (rb *RingBuffer) Commit(n int) {
	w := rb.WriteIndex()
	rb.hdr.store64(offWrite, uint64(w+max(0, min(n, rb.frames-w))))
}

// Publish sets w to frame w, clamped to the capacity. Writers that fill
// Block(from, to) directly use it to make the frames visible to readers.
func (rb *RingBuffer) Publish(w int) {
	rb.hdr.store64(offWrite, uint64(max(0, min(w, rb.frames))))
}

// ReadNext returns up to n frames starting at r and advances r past them.
// n <= 0 uses the chunk size. The returned block is a view that stays valid
// until Reset. It returns an empty block when no frames are ready and
// audiocore.ErrExhausted once r has reached the capacity.
func (rb *RingBuffer) ReadNext(n int) (audiocore.Block, error) {
	r := rb.ReadIndex()
	if r >= rb.frames {
		return rb.empty(), audiocore.ErrExhausted
	}
	if n <= 0 {
		n = rb.ChunkSize()
	}
	k := min(n, max(0, rb.WriteIndex()-r))
	if k == 0 {
		return rb.empty(), nil
	}
	rb.hdr.store64(offRead, uint64(r+k))
	return rb.Block(r, r+k), nil
}

// AdvanceRead moves r to the given frame, clamped to [0, w].
func (rb *RingBuffer) AdvanceRead(to int) {
	rb.hdr.store64(offRead, uint64(max(0, min(to, rb.WriteIndex()))))
}

// RewindRead moves r back to the first frame for another pass over the data.
func (rb *RingBuffer) RewindRead() {
	rb.hdr.store64(offRead, 0)
}

// Reset zeroes w and r and clears the signals and status. Sample data is
// kept. Views created before Reset restart from the first frame.
func (rb *RingBuffer) Reset() {
	rb.hdr.store64(offRead, 0)
	rb.hdr.store64(offWrite, 0)
	rb.hdr.store32(offFlags, 0)
	rb.hdr.store32(offStatus, 0)
	rb.hdr.add64(offGeneration, 1)
}

// Clear zeroes the sample data.
func (rb *RingBuffer) Clear() {
	clear(rb.data)
}

// Snapshot returns frames [0, w) as a view, or as an owned copy when copied
// is true.
func (rb *RingBuffer) Snapshot(copied bool) audiocore.Block {
	b := rb.Block(0, rb.WriteIndex())
	if copied {
		return b.Clone()
	}
	return b
}

// SetRunning publishes the running signal.
func (rb *RingBuffer) SetRunning(on bool) { rb.hdr.setFlag(flagRunning, on) }

// Running reports the running signal.
func (rb *RingBuffer) Running() bool { return rb.hdr.flag(flagRunning) }

// SetFinished publishes the finished signal.
func (rb *RingBuffer) SetFinished(on bool) { rb.hdr.setFlag(flagFinished, on) }

// Finished reports the finished signal.
func (rb *RingBuffer) Finished() bool { return rb.hdr.flag(flagFinished) }

// AddStatus ORs bits into the status word.
func (rb *RingBuffer) AddStatus(bits uint32) { rb.hdr.or32(offStatus, bits) }

// Status returns the status word.
func (rb *RingBuffer) Status() uint32 { return rb.hdr.load32(offStatus) }

// Generation increases on every Reset.
func (rb *RingBuffer) Generation() uint64 { return rb.hdr.load64(offGeneration) }

// Close releases this handle on the region exactly once.
func (rb *RingBuffer) Close() error {
	rb.closeOnce.Do(func() {
		rb.closeErr = rb.region.Close()
	})
	return rb.closeErr
}

func allocationError(name, op, msg string) error {
	return errors.New(nil).
		Component("ringbuffer").
		Category(errors.CategoryAllocation).
		Context("region", name).
		Context("operation", op).
		Context("error", msg).
		Build()
}
