package audiocore

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/go-audio/audio"
)

// SampleType is the storage format of one sample.
type SampleType uint8

const (
	SampleInvalid SampleType = iota
	Int16
	Int24 // packed little endian, 3 bytes
	Int32
	Float32
)

// ParseSampleType maps a dtype name to a SampleType. float64 is stored as
// float32.
func ParseSampleType(name string) (SampleType, error) {
	switch strings.ToLower(name) {
	case "int16":
		return Int16, nil
	case "int24":
		return Int24, nil
	case "int32":
		return Int32, nil
	case "float32", "float64":
		return Float32, nil
	default:
		return SampleInvalid, fmt.Errorf("unsupported sample type %q", name)
	}
}

// Size returns bytes per sample.
func (t SampleType) Size() int {
	switch t {
	case Int16:
		return 2
	case Int24:
		return 3
	case Int32, Float32:
		return 4
	default:
		return 0
	}
}

// BitDepth returns the sample resolution in bits.
func (t SampleType) BitDepth() int {
	return t.Size() * 8
}

// Valid reports whether t is a known sample type.
func (t SampleType) Valid() bool {
	return t >= Int16 && t <= Float32
}

func (t SampleType) String() string {
	switch t {
	case Int16:
		return "int16"
	case Int24:
		return "int24"
	case Int32:
		return "int32"
	case Float32:
		return "float32"
	default:
		return "invalid"
	}
}

const (
	int16Scale = 1 << 15
	int24Scale = 1 << 23
	int32Scale = 1 << 31
)

// decode returns the sample in b as a value in [-1, 1).
func (t SampleType) decode(b []byte) float64 {
	switch t {
	case Int16:
		return float64(int16(binary.LittleEndian.Uint16(b))) / int16Scale
	case Int24:
		return float64(audio.Int24LETo32(b)) / int24Scale
	case Int32:
		return float64(int32(binary.LittleEndian.Uint32(b))) / int32Scale
	case Float32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	default:
		return 0
	}
}

// encode stores v into b, clipping integer formats to their range.
func (t SampleType) encode(b []byte, v float64) {
	switch t {
	case Int16:
		binary.LittleEndian.PutUint16(b, uint16(int16(clip(v*int16Scale, math.MinInt16, math.MaxInt16))))
	case Int24:
		copy(b, audio.Int32toInt24LEBytes(int32(clip(v*int24Scale, -int24Scale, int24Scale-1))))
	case Int32:
		binary.LittleEndian.PutUint32(b, uint32(int32(clip(v*int32Scale, math.MinInt32, math.MaxInt32))))
	case Float32:
		binary.LittleEndian.PutUint32(b, math.Float32bits(float32(v)))
	}
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return math.Round(v)
}
