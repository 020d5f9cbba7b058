//go:build unix

package shm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A second mmap of the same file stands in for another process.
func TestIndependentMappingsShareMemory(t *testing.T) {
	t.Parallel()

	r, err := Create("", 8192)
	require.NoError(t, err)
	defer r.Close()

	other, err := attachRegion(r.Name())
	require.NoError(t, err)
	defer func() { require.NoError(t, unmapRegion(other)) }()

	require.Len(t, other, 8192)
	for i := range 256 {
		r.Bytes()[i] = byte(i)
	}
	assert.Equal(t, r.Bytes()[:256], other[:256])

	other[8000] = 0xff
	assert.Equal(t, byte(0xff), r.Bytes()[8000])
}

func TestCreatorRemovesFile(t *testing.T) {
	t.Parallel()

	r, err := Create("", 64)
	require.NoError(t, err)
	path := regionPath(r.Name())
	assert.FileExists(t, path)

	require.NoError(t, r.Close())
	assert.NoFileExists(t, path)
}
