package gpu

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWorkgroups(t *testing.T) {
	cases := []struct {
		n, size, want int
	}{
		{0, 8, 0},
		{-3, 8, 0},
		{1, 8, 1},
		{8, 8, 1},
		{9, 8, 2},
		{640, 8, 80},
		{641, 8, 81},
	}
	for _, c := range cases {
		require.Equal(t, c.want, Workgroups(c.n, c.size), "Workgroups(%d, %d)", c.n, c.size)
	}
}

func TestMemBufferRoundTrip(t *testing.T) {
	dev := NewMemDevice()
	buf, err := dev.CreateBuffer("scratch", 16)
	require.NoError(t, err)
	require.Equal(t, 16, buf.Size())

	require.NoError(t, buf.Write([]byte{1, 2, 3, 4}))
	dst := make([]byte, 4)
	require.NoError(t, buf.Read(dst))
	require.Equal(t, []byte{1, 2, 3, 4}, dst)
}

func TestMemBufferBounds(t *testing.T) {
	dev := NewMemDevice()
	buf, err := dev.CreateBuffer("tiny", 2)
	require.NoError(t, err)

	require.Error(t, buf.Write(make([]byte, 3)))
	require.Error(t, buf.Read(make([]byte, 3)))

	_, err = dev.CreateBuffer("empty", 0)
	require.Error(t, err)
}

func TestMemBufferReleaseIsIdempotent(t *testing.T) {
	dev := NewMemDevice()
	buf, err := dev.CreateBuffer("once", 8)
	require.NoError(t, err)
	require.Equal(t, 1, dev.AliveBuffers())

	buf.Release()
	buf.Release()
	require.Equal(t, 0, dev.AliveBuffers())
	require.Error(t, buf.Write([]byte{1}))
	require.Error(t, buf.Read(make([]byte, 1)))
}

func TestMemDeviceCannotCompile(t *testing.T) {
	dev := NewMemDevice()
	_, err := dev.CompileKernel("k", "@compute fn main() {}", "main", 2)
	require.Error(t, err)
}
