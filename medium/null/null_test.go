package null

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/c360/blockstore/medium"
)

func TestSaveDiscards(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "uid-1", make([]byte, 4096)))
	require.NoError(t, s.Save(ctx, "uid-2", make([]byte, 100)))

	blobs, bytes := s.Discarded()
	require.Equal(t, int64(2), blobs)
	require.Equal(t, int64(4196), bytes)
}

func TestLoadSynthesizesDeterministicData(t *testing.T) {
	s := New()
	ctx := context.Background()

	a, err := s.Load(ctx, "uid-1", 4096)
	require.NoError(t, err)
	require.Len(t, a, 4096)

	b, err := s.Load(ctx, "uid-1", 4096)
	require.NoError(t, err)
	require.Equal(t, a, b, "same uid must synthesize the same bytes")

	c, err := s.Load(ctx, "uid-2", 4096)
	require.NoError(t, err)
	require.NotEqual(t, a, c, "different uids should synthesize different bytes")
}

func TestLoadSizes(t *testing.T) {
	s := New()
	ctx := context.Background()

	for _, size := range []int{0, 1, 7, 8, 9, 4096} {
		data, err := s.Load(ctx, "uid", size)
		require.NoError(t, err)
		require.Len(t, data, size)
	}

	data, err := s.Load(ctx, "uid", -5)
	require.NoError(t, err)
	require.Empty(t, data)
}

func TestNoOptionalCapabilities(t *testing.T) {
	var m medium.Medium = New()

	_, updatable := m.(medium.Updatable)
	require.False(t, updatable)
	_, deletable := m.(medium.Deletable)
	require.False(t, deletable)
	_, listable := m.(medium.Listable)
	require.False(t, listable)
	_, randomAccess := m.(medium.RandomAccessReadable)
	require.False(t, randomAccess)
}
