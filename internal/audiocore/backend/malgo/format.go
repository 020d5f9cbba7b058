package malgo

import (
	"github.com/gen2brain/malgo"

	"github.com/tphakala/shmaudio/internal/audiocore"
	"github.com/tphakala/shmaudio/internal/errors"
)

// formatFor returns the miniaudio format for a sample type.
func formatFor(t audiocore.SampleType) (malgo.FormatType, error) {
	switch t {
	case audiocore.Int16:
		return malgo.FormatS16, nil
	case audiocore.Int24:
		return malgo.FormatS24, nil
	case audiocore.Int32:
		return malgo.FormatS32, nil
	case audiocore.Float32:
		return malgo.FormatF32, nil
	default:
		return malgo.FormatUnknown, errors.New(nil).
			Component("malgo").
			Category(errors.CategoryValidation).
			Context("sample_type", t.String()).
			Context("error", "sample type has no device format").
			Build()
	}
}

// sampleTypeFor is the inverse of formatFor. Unsigned 8-bit and unknown
// formats map to audiocore.SampleInvalid.
func sampleTypeFor(f malgo.FormatType) audiocore.SampleType {
	switch f {
	case malgo.FormatS16:
		return audiocore.Int16
	case malgo.FormatS24:
		return audiocore.Int24
	case malgo.FormatS32:
		return audiocore.Int32
	case malgo.FormatF32:
		return audiocore.Float32
	default:
		return audiocore.SampleInvalid
	}
}

// GetFormatInfo returns bytes per sample and a display name for a format.
func GetFormatInfo(format malgo.FormatType) (bytesPerSample int, name string) {
	switch format {
	case malgo.FormatU8:
		return 1, "U8"
	case malgo.FormatS16:
		return 2, "S16"
	case malgo.FormatS24:
		return 3, "S24"
	case malgo.FormatS32:
		return 4, "S32"
	case malgo.FormatF32:
		return 4, "F32"
	default:
		return 0, "Unknown"
	}
}

// performanceProfile maps the latency preset to a miniaudio profile.
func performanceProfile(l audiocore.Latency) malgo.PerformanceProfile {
	if l == audiocore.LatencyHigh {
		return malgo.Conservative
	}
	return malgo.LowLatency
}
