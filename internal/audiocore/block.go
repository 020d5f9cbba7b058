package audiocore

// Block is a view over interleaved frames. Slicing a Block shares memory with
// the original; use Clone for an independent copy.
type Block struct {
	Data     []byte
	Channels int
	Type     SampleType
}

// NewBlock allocates a zeroed block.
func NewBlock(frames, channels int, t SampleType) Block {
	return Block{
		Data:     make([]byte, frames*channels*t.Size()),
		Channels: channels,
		Type:     t,
	}
}

// FrameSize returns bytes per frame.
func (b Block) FrameSize() int {
	return b.Channels * b.Type.Size()
}

// Frames returns the number of complete frames in the block.
func (b Block) Frames() int {
	fs := b.FrameSize()
	if fs == 0 {
		return 0
	}
	return len(b.Data) / fs
}

// Empty reports whether the block holds no frames.
func (b Block) Empty() bool {
	return b.Frames() == 0
}

// Slice returns frames [from, to) as a view.
func (b Block) Slice(from, to int) Block {
	fs := b.FrameSize()
	return Block{Data: b.Data[from*fs : to*fs], Channels: b.Channels, Type: b.Type}
}

// Clone returns a copy that owns its memory.
func (b Block) Clone() Block {
	data := make([]byte, len(b.Data))
	copy(data, b.Data)
	return Block{Data: data, Channels: b.Channels, Type: b.Type}
}

// Zero sets every sample to silence.
func (b Block) Zero() {
	clear(b.Data)
}

// CopyFrom copies as many whole frames from src as fit and returns the frame
// count. Both blocks must have the same layout.
func (b Block) CopyFrom(src Block) int {
	n := min(b.Frames(), src.Frames())
	copy(b.Data[:n*b.FrameSize()], src.Data)
	return n
}

// CopyChannel copies channel srcCh of src into channel dstCh of b for as many
// frames as both blocks hold. Both blocks must share a sample type.
func (b Block) CopyChannel(dstCh int, src Block, srcCh int) {
	size := b.Type.Size()
	dfs, sfs := b.FrameSize(), src.FrameSize()
	n := min(b.Frames(), src.Frames())
	d, s := dstCh*size, srcCh*size
	for range n {
		copy(b.Data[d:d+size], src.Data[s:s+size])
		d += dfs
		s += sfs
	}
}

// ZeroChannel silences one channel.
func (b Block) ZeroChannel(ch int) {
	size := b.Type.Size()
	fs := b.FrameSize()
	for off := ch * size; off < len(b.Data); off += fs {
		clear(b.Data[off : off+size])
	}
}

// Sample returns one sample scaled to [-1, 1).
func (b Block) Sample(frame, ch int) float64 {
	size := b.Type.Size()
	off := frame*b.FrameSize() + ch*size
	return b.Type.decode(b.Data[off : off+size])
}

// SetSample stores a sample given in [-1, 1]. Integer types clip.
func (b Block) SetSample(frame, ch int, v float64) {
	size := b.Type.Size()
	off := frame*b.FrameSize() + ch*size
	b.Type.encode(b.Data[off:off+size], v)
}

// ConvertTo returns a copy stored as t. The copy shares nothing with b.
func (b Block) ConvertTo(t SampleType) Block {
	if t == b.Type {
		return b.Clone()
	}
	out := NewBlock(b.Frames(), b.Channels, t)
	for f := range b.Frames() {
		for c := range b.Channels {
			out.SetSample(f, c, b.Sample(f, c))
		}
	}
	return out
}
