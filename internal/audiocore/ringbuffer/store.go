package ringbuffer

import (
	"github.com/tphakala/shmaudio/internal/audiocore"
)

// SampleStore is the frames x channels sample matrix held in a region.
type SampleStore struct {
	data     []byte
	frames   int
	channels int
	typ      audiocore.SampleType
}

func newSampleStore(data []byte, frames, channels int, typ audiocore.SampleType) SampleStore {
	return SampleStore{
		data:     data[:frames*channels*typ.Size()],
		frames:   frames,
		channels: channels,
		typ:      typ,
	}
}

// Block returns frames [from, to) as a view into the store.
func (s SampleStore) Block(from, to int) audiocore.Block {
	fs := s.channels * s.typ.Size()
	return audiocore.Block{
		Data:     s.data[from*fs : to*fs : to*fs],
		Channels: s.channels,
		Type:     s.typ,
	}
}

// empty returns a zero frame block with the store layout.
func (s SampleStore) empty() audiocore.Block {
	return audiocore.Block{Channels: s.channels, Type: s.typ}
}

// SharedRegion is the named memory a RingBuffer lives in. *shm.Region
// implements it.
type SharedRegion interface {
	Name() string
	Bytes() []byte
	Close() error
}
