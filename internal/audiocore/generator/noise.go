// Package generator produces synthetic test signals.
package generator

import (
	"math"
	"math/rand/v2"

	"github.com/tphakala/shmaudio/internal/audiocore"
)

// DefaultGainDB is the level used by the playrec command.
const DefaultGainDB = -6.0

// WhiteNoise returns Gaussian white noise. Each channel is normalized to a
// peak of 1 and then scaled by gainDB, so the peak amplitude is
// 10^(gainDB/20).
func WhiteNoise(frames, channels int, gainDB float64, sampleRate int) audiocore.Audio {
	return WhiteNoiseFrom(rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())), frames, channels, gainDB, sampleRate)
}

// WhiteNoiseFrom is WhiteNoise with an explicit random source, for
// reproducible signals.
func WhiteNoiseFrom(r *rand.Rand, frames, channels int, gainDB float64, sampleRate int) audiocore.Audio {
	frames, channels = max(0, frames), max(1, channels)
	samples := make([]float64, frames*channels)
	peaks := make([]float64, channels)
	for i := range samples {
		v := r.NormFloat64()
		samples[i] = v
		c := i % channels
		peaks[c] = max(peaks[c], math.Abs(v))
	}

	gain := math.Pow(10, gainDB/20)
	a := audiocore.NewAudio(frames, channels, audiocore.Float32, sampleRate, 0)
	for f := range frames {
		for c := range channels {
			v := samples[f*channels+c]
			if peaks[c] > 0 {
				v /= peaks[c]
			}
			a.Block.SetSample(f, c, gain*v)
		}
	}
	return a
}

// Frames converts a duration in seconds to frames at sampleRate.
func Frames(seconds float64, sampleRate int) int {
	return int(seconds * float64(sampleRate))
}
