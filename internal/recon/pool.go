// Package recon drives per-frame point cloud reconstruction: it sizes
// the GPU resource pool to the incoming stream, uploads depth and color
// data, and submits the compute kernel with throttled counter readback.
package recon

import (
	"fmt"

	"github.com/pointlab/depthstream/internal/gpu"
)

// Bytes per pixel for each pool buffer.
const (
	depthStride    = 4  // one uint32 depth sample
	positionStride = 12 // xyz float32
	colorStride    = 16 // rgba float32
	counterBytes   = 4
)

// Pool owns the five reconstruction buffers, all sized to the same
// pixel capacity. Reallocation is wholesale: either every buffer is
// swapped for a larger one or none is.
type Pool struct {
	dev      gpu.Device
	capacity int

	Depth        gpu.Buffer
	Positions    gpu.Buffer
	Colors       gpu.Buffer
	ValidCount   gpu.Buffer
	VisibleCount gpu.Buffer
}

func NewPool(dev gpu.Device) *Pool {
	return &Pool{dev: dev}
}

// Capacity reports the pixel count the buffers are sized for.
func (p *Pool) Capacity() int { return p.capacity }

// EnsureCapacity grows the pool to hold at least pixels. Shrinking is a
// no-op so that dimension flapping does not churn allocations. New
// buffers are fully allocated before the old set is released.
func (p *Pool) EnsureCapacity(pixels int) error {
	if pixels <= 0 {
		return fmt.Errorf("recon: ensure capacity %d", pixels)
	}
	if pixels <= p.capacity {
		return nil
	}

	next := make([]gpu.Buffer, 0, 5)
	alloc := func(label string, size int) (gpu.Buffer, error) {
		b, err := p.dev.CreateBuffer(label, size)
		if err != nil {
			for _, nb := range next {
				nb.Release()
			}
			return nil, fmt.Errorf("recon: grow pool to %d px: %w", pixels, err)
		}
		next = append(next, b)
		return b, nil
	}

	depth, err := alloc("pool_depth", pixels*depthStride)
	if err != nil {
		return err
	}
	positions, err := alloc("pool_positions", pixels*positionStride)
	if err != nil {
		return err
	}
	colors, err := alloc("pool_colors", pixels*colorStride)
	if err != nil {
		return err
	}
	valid, err := alloc("pool_valid_count", counterBytes)
	if err != nil {
		return err
	}
	visible, err := alloc("pool_visible_count", counterBytes)
	if err != nil {
		return err
	}

	p.Release()
	p.Depth, p.Positions, p.Colors = depth, positions, colors
	p.ValidCount, p.VisibleCount = valid, visible
	p.capacity = pixels
	return nil
}

// Release frees all buffers. Safe on an empty pool and idempotent.
func (p *Pool) Release() {
	for _, b := range []gpu.Buffer{p.Depth, p.Positions, p.Colors, p.ValidCount, p.VisibleCount} {
		if b != nil {
			b.Release()
		}
	}
	p.Depth, p.Positions, p.Colors, p.ValidCount, p.VisibleCount = nil, nil, nil, nil, nil
	p.capacity = 0
}
