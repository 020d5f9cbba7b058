package generator

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/shmaudio/internal/audiocore"
)

func TestWhiteNoisePeakMatchesGain(t *testing.T) {
	t.Parallel()

	a := WhiteNoiseFrom(rand.New(rand.NewPCG(1, 2)), 4800, 2, -6, 48000)
	require.Equal(t, 4800, a.Frames())
	require.Equal(t, 2, a.Channels())
	assert.Equal(t, audiocore.Float32, a.Block.Type)
	assert.Equal(t, 48000, a.SampleRate)

	want := math.Pow(10, -6.0/20)
	for c := range 2 {
		peak, sum := 0.0, 0.0
		for f := range a.Frames() {
			v := a.Block.Sample(f, c)
			peak = max(peak, math.Abs(v))
			sum += v
		}
		assert.InDelta(t, want, peak, 1e-6, "channel %d", c)
		assert.InDelta(t, 0, sum/float64(a.Frames()), 0.05, "zero mean, channel %d", c)
	}
}

func TestWhiteNoiseIsReproducible(t *testing.T) {
	t.Parallel()

	a := WhiteNoiseFrom(rand.New(rand.NewPCG(7, 7)), 64, 1, 0, 48000)
	b := WhiteNoiseFrom(rand.New(rand.NewPCG(7, 7)), 64, 1, 0, 48000)
	assert.Equal(t, a.Block.Data, b.Block.Data)

	c := WhiteNoise(64, 1, 0, 48000)
	assert.NotEqual(t, a.Block.Data, c.Block.Data)
}

func TestWhiteNoiseEdgeCases(t *testing.T) {
	t.Parallel()

	assert.Zero(t, WhiteNoise(0, 2, 0, 48000).Frames())
	assert.Equal(t, 1, WhiteNoise(10, 0, 0, 48000).Channels())
	assert.Equal(t, 24000, Frames(0.5, 48000))
}
