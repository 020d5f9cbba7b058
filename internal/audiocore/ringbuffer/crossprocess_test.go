//go:build unix

package ringbuffer

import (
	"os"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/shmaudio/internal/audiocore"
)

const helperEnv = "SHMAUDIO_RINGBUFFER_HELPER_REGION"

// TestCrossProcessRoundTrip writes a pattern, lets a child process attach by
// name and verify it, then checks the signal the child published.
func TestCrossProcessRoundTrip(t *testing.T) {
	rb, err := New(Config{Frames: 4800, Channels: 2, Type: audiocore.Int32, SampleRate: 48000, ChunkSize: 480})
	require.NoError(t, err)
	defer rb.Close()

	pattern := audiocore.NewBlock(4800, 2, audiocore.Int32)
	for i := range pattern.Data {
		pattern.Data[i] = byte(i * 7)
	}
	require.Equal(t, 4800, rb.WriteNext(pattern))

	cmd := exec.Command(os.Args[0], "-test.run=^TestHelperAttachAndVerify$", "-test.v")
	cmd.Env = append(os.Environ(), helperEnv+"="+rb.Name())
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, string(out))

	assert.True(t, rb.Finished(), "child sets the finished signal")
	assert.Equal(t, 4800, rb.ReadIndex(), "child consumed every frame")
}

func TestHelperAttachAndVerify(t *testing.T) {
	name := os.Getenv(helperEnv)
	if name == "" {
		t.Skip("helper process only")
	}

	rb, err := Attach(name)
	require.NoError(t, err)
	defer rb.Close()

	require.Equal(t, 4800, rb.Frames())
	require.Equal(t, 4800, rb.ReadyToRead())

	offset := 0
	for {
		chunk, err := rb.ReadNext(0)
		if err != nil {
			require.ErrorIs(t, err, audiocore.ErrExhausted)
			break
		}
		for i, b := range chunk.Data {
			if b != byte((offset+i)*7) {
				t.Fatalf("byte %d differs", offset+i)
			}
		}
		offset += len(chunk.Data)
	}
	require.Equal(t, 4800*2*4, offset)
	rb.SetFinished(true)
}
