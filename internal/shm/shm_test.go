package shm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/shmaudio/internal/errors"
)

func TestCreateGeneratesName(t *testing.T) {
	t.Parallel()

	r, err := Create("", 4096)
	require.NoError(t, err)
	defer r.Close()

	assert.Contains(t, r.Name(), NamePrefix)
	assert.True(t, r.Created())
	assert.Equal(t, 4096, r.Size())
	assert.Len(t, r.Bytes(), 4096)
}

func TestCreateAttachesByName(t *testing.T) {
	t.Parallel()

	name := NewName()
	first, err := Create(name, 1024)
	require.NoError(t, err)

	second, err := Create(name, 512)
	require.NoError(t, err)
	assert.Equal(t, 1024, second.Size(), "attach keeps the existing size")
	assert.True(t, first.Created())
	assert.False(t, second.Created())
	assert.Equal(t, 2, handles(name))

	first.Bytes()[10] = 0x5a
	assert.Equal(t, byte(0x5a), second.Bytes()[10])

	require.NoError(t, first.Close())
	assert.Equal(t, 1, handles(name))
	assert.Equal(t, byte(0x5a), second.Bytes()[10], "mapping survives while a handle is open")

	require.NoError(t, second.Close())
	assert.Equal(t, 0, handles(name))

	_, err = Open(name)
	require.Error(t, err, "creator removes the name on final release")
	assert.True(t, errors.IsCategory(err, errors.CategoryAllocation))
}

func TestCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	name := NewName()
	a, err := Create(name, 64)
	require.NoError(t, err)
	b, err := Open(name)
	require.NoError(t, err)

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
	assert.Equal(t, 1, handles(name), "double close releases one reference")

	require.NoError(t, b.Close())
	assert.Equal(t, 0, handles(name))
}

func TestAttachLargerThanRegionFails(t *testing.T) {
	t.Parallel()

	name := NewName()
	r, err := Create(name, 128)
	require.NoError(t, err)
	defer r.Close()

	_, err = Create(name, 256)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryAllocation))
}

func TestOpenMissingRegion(t *testing.T) {
	t.Parallel()

	_, err := Open(NewName())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryAllocation))

	_, err = Create(NewName(), 0)
	require.Error(t, err, "size 0 only attaches")
}

func TestInvalidNames(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"a/b", "..", `c\d`} {
		_, err := Create(name, 16)
		require.Error(t, err, name)
		assert.True(t, errors.IsCategory(err, errors.CategoryAllocation), name)
	}
	_, err := Create("x", -1)
	require.Error(t, err)
}

func TestUnlinkKeepsExistingMappings(t *testing.T) {
	t.Parallel()

	name := NewName()
	r, err := Create(name, 128)
	require.NoError(t, err)
	r.Bytes()[0] = 7

	require.NoError(t, Unlink(name))
	assert.Equal(t, byte(7), r.Bytes()[0])
	require.NoError(t, r.Close())

	require.Error(t, Unlink("a/b"))
}
