package ringbuffer

import (
	"sync/atomic"
	"unsafe"
)

// Region header layout. All fields are little endian machine words accessed
// atomically; the sample data starts at headerSize.
const (
	headerSize = 64

	offMagic      = 0  // uint64, written last by the creator
	offFrames     = 8  // uint64 capacity in frames
	offChannels   = 16 // uint32
	offSampleType = 20 // uint32
	offSampleRate = 24 // uint32
	offChunkSize  = 28 // uint32
	offWrite      = 32 // uint64 write index
	offRead       = 40 // uint64 read index
	offFlags      = 48 // uint32 signal bits
	offStatus     = 52 // uint32 stream status bits
	offGeneration = 56 // uint64 bumped by Reset

	headerMagic uint64 = 0x31304455414d4853 // "SHMAUD01"
)

// Signal bits in the flags word.
const (
	flagRunning uint32 = 1 << iota
	flagFinished
)

// header gives atomic access to the fields at the start of a region.
type header struct {
	b []byte
}

func (h header) u64(off int) *uint64 {
	return (*uint64)(unsafe.Pointer(&h.b[off]))
}

func (h header) u32(off int) *uint32 {
	return (*uint32)(unsafe.Pointer(&h.b[off]))
}

func (h header) load64(off int) uint64     { return atomic.LoadUint64(h.u64(off)) }
func (h header) store64(off int, v uint64) { atomic.StoreUint64(h.u64(off), v) }
func (h header) load32(off int) uint32     { return atomic.LoadUint32(h.u32(off)) }
func (h header) store32(off int, v uint32) { atomic.StoreUint32(h.u32(off), v) }

func (h header) add64(off int, d uint64)   { atomic.AddUint64(h.u64(off), d) }
func (h header) or32(off int, bits uint32) { atomic.OrUint32(h.u32(off), bits) }

func (h header) setFlag(bit uint32, on bool) {
	if on {
		atomic.OrUint32(h.u32(offFlags), bit)
	} else {
		atomic.AndUint32(h.u32(offFlags), ^bit)
	}
}

func (h header) flag(bit uint32) bool {
	return h.load32(offFlags)&bit != 0
}
