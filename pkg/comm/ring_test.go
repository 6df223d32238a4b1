package comm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRingWrapAround(t *testing.T) {
	r := NewRing(4)
	require.Equal(t, 3, r.Write([]byte{1, 2, 3}))
	r.Skip(2)
	require.Equal(t, 3, r.Write([]byte{4, 5, 6, 7}))
	require.Equal(t, 4, r.Len())
	require.Zero(t, r.Free())
	require.Zero(t, r.Write([]byte{8}))

	out := make([]byte, 8)
	require.Equal(t, 4, r.Peek(out))
	require.Equal(t, []byte{3, 4, 5, 6}, out[:4])
	require.Equal(t, byte(5), r.At(2))

	require.Equal(t, 2, r.Read(out[:2]))
	require.Equal(t, []byte{3, 4}, out[:2])
	require.Equal(t, 2, r.Len())
	r.Skip(10)
	require.Zero(t, r.Len())
	require.Equal(t, 4, r.Free())
}

func TestRingReset(t *testing.T) {
	r := NewRing(3)
	r.Write([]byte{1, 2})
	r.Reset()
	require.Zero(t, r.Len())
	require.Equal(t, 3, r.Write([]byte{7, 8, 9}))
	require.Equal(t, byte(9), r.At(2))
}
