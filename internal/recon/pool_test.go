package recon

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pointlab/depthstream/internal/gpu"
)

func TestPoolGrowsAllFiveBuffersTogether(t *testing.T) {
	dev := gpu.NewMemDevice()
	pool := NewPool(dev)

	require.NoError(t, pool.EnsureCapacity(100))
	require.Equal(t, 100, pool.Capacity())
	require.Equal(t, 5, dev.AliveBuffers())
	require.Equal(t, 100*depthStride, pool.Depth.Size())
	require.Equal(t, 100*positionStride, pool.Positions.Size())
	require.Equal(t, 100*colorStride, pool.Colors.Size())
	require.Equal(t, counterBytes, pool.ValidCount.Size())
	require.Equal(t, counterBytes, pool.VisibleCount.Size())
}

func TestPoolShrinkIsNoOp(t *testing.T) {
	dev := gpu.NewMemDevice()
	pool := NewPool(dev)
	require.NoError(t, pool.EnsureCapacity(100))

	depth := pool.Depth
	require.NoError(t, pool.EnsureCapacity(50))
	require.Equal(t, 100, pool.Capacity(), "shrinking must keep the larger allocation")
	require.Same(t, depth, pool.Depth, "shrinking must not touch existing buffers")
}

func TestPoolReallocatesOnGrowth(t *testing.T) {
	dev := gpu.NewMemDevice()
	pool := NewPool(dev)
	require.NoError(t, pool.EnsureCapacity(100))
	old := pool.Depth

	require.NoError(t, pool.EnsureCapacity(500))
	require.Equal(t, 500, pool.Capacity())
	require.NotSame(t, old, pool.Depth)
	require.Equal(t, 5, dev.AliveBuffers(), "old buffers must be released after the swap")
	require.Equal(t, 500*positionStride, pool.Positions.Size())
}

func TestPoolRejectsNonPositiveCapacity(t *testing.T) {
	pool := NewPool(gpu.NewMemDevice())
	require.Error(t, pool.EnsureCapacity(0))
	require.Error(t, pool.EnsureCapacity(-8))
}

func TestPoolReleaseIdempotentAndSafeWhenEmpty(t *testing.T) {
	dev := gpu.NewMemDevice()
	pool := NewPool(dev)
	pool.Release() // empty pool, startup case

	require.NoError(t, pool.EnsureCapacity(10))
	pool.Release()
	pool.Release()
	require.Equal(t, 0, dev.AliveBuffers())
	require.Equal(t, 0, pool.Capacity())
}
