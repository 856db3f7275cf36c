// Package gpu owns the device and buffer abstractions the reconstruction
// pipeline allocates against. The real implementation runs on the
// pure-Go WebGPU HAL; an in-memory device backs tests and nogpu builds.
package gpu

import "fmt"

// Buffer is one GPU-resident storage buffer with explicit create/destroy
// semantics. There are no finalizers: the owner releases it
// deterministically on pool reallocation and on shutdown.
type Buffer interface {
	Label() string
	// Size is the allocation size in bytes.
	Size() int
	// Write uploads len(data) bytes from the host starting at offset 0.
	Write(data []byte) error
	// Read copies len(dst) bytes back to the host. Readback can stall
	// the queue; callers are expected to rate-limit it.
	Read(dst []byte) error
	// Release frees the buffer. Safe to call more than once.
	Release()
}

// Kernel is a compiled compute pass. Dispatch binds the uniform block at
// binding 0 and the buffers at bindings 1..n in argument order, then
// submits a groupsX × groupsY workgroup grid.
type Kernel interface {
	Dispatch(groupsX, groupsY int, uniforms []byte, buffers ...Buffer) error
	Release()
}

// Device creates buffers and compiles kernels.
type Device interface {
	CreateBuffer(label string, size int) (Buffer, error)
	// CompileKernel builds a compute pipeline from WGSL source. The
	// storageBindings count fixes the bind group layout; it must match
	// the buffer count later passed to Dispatch.
	CompileKernel(label, wgsl, entry string, storageBindings int) (Kernel, error)
	Close()
}

// Workgroups returns the number of workgroups needed to cover n
// elements at the given group size: ceil(n / size).
func Workgroups(n, size int) int {
	if n <= 0 {
		return 0
	}
	return (n + size - 1) / size
}

// errBufferBounds reports a Write or Read exceeding the allocation.
func errBufferBounds(op, label string, want, have int) error {
	return fmt.Errorf("gpu: %s on %q needs %d bytes, buffer holds %d", op, label, want, have)
}
