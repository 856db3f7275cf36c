package gpu

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// MemDevice is a host-memory Device. It backs tests and nogpu builds,
// where compute runs on a CPU kernel against the same Buffer contract.
type MemDevice struct {
	alive atomic.Int64
}

var _ Device = (*MemDevice)(nil)

func NewMemDevice() *MemDevice { return &MemDevice{} }

func (d *MemDevice) CreateBuffer(label string, size int) (Buffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("gpu: create buffer %q: size %d", label, size)
	}
	d.alive.Add(1)
	return &memBuffer{dev: d, label: label, data: make([]byte, size)}, nil
}

// CompileKernel always fails: there is no WGSL runtime on the host.
// Callers pair a MemDevice with a CPU kernel instead.
func (d *MemDevice) CompileKernel(label, wgsl, entry string, storageBindings int) (Kernel, error) {
	return nil, fmt.Errorf("gpu: mem device cannot compile kernel %q", label)
}

func (d *MemDevice) Close() {}

// AliveBuffers reports the number of buffers created and not yet
// released.
func (d *MemDevice) AliveBuffers() int { return int(d.alive.Load()) }

type memBuffer struct {
	dev   *MemDevice
	label string

	mu       sync.Mutex
	data     []byte
	released bool
}

func (b *memBuffer) Label() string { return b.label }

func (b *memBuffer) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

func (b *memBuffer) Write(data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return fmt.Errorf("gpu: write on released buffer %q", b.label)
	}
	if len(data) > len(b.data) {
		return errBufferBounds("write", b.label, len(data), len(b.data))
	}
	copy(b.data, data)
	return nil
}

func (b *memBuffer) Read(dst []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return fmt.Errorf("gpu: read on released buffer %q", b.label)
	}
	if len(dst) > len(b.data) {
		return errBufferBounds("read", b.label, len(dst), len(b.data))
	}
	copy(dst, b.data)
	return nil
}

func (b *memBuffer) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return
	}
	b.released = true
	b.data = nil
	b.dev.alive.Add(-1)
}
