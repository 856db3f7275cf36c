//go:build !nogpu

package gpu

import (
	"fmt"
	"log"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	// Import Vulkan backend so it registers via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

// submitWait bounds how long a dispatch may occupy the GPU before the
// fence wait gives up.
const submitWait = 5 * time.Second

// HALDevice is the WebGPU-backed Device built on gogpu's wgpu HAL.
type HALDevice struct {
	instance hal.Instance
	device   hal.Device
	queue    hal.Queue
}

var _ Device = (*HALDevice)(nil)

// NewHALDevice brings up the Vulkan backend and opens the first discrete
// or integrated adapter.
func NewHALDevice() (*HALDevice, error) {
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return nil, fmt.Errorf("gpu: vulkan backend not available")
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("gpu: create instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, fmt.Errorf("gpu: no adapters found")
	}
	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}
	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("gpu: open device: %w", err)
	}
	log.Printf("gpu: device initialized (%s)", selected.Info.Name)
	return &HALDevice{instance: instance, device: openDev.Device, queue: openDev.Queue}, nil
}

func (d *HALDevice) CreateBuffer(label string, size int) (Buffer, error) {
	buf, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  uint64(size),
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: create buffer %q: %w", label, err)
	}
	return &halBuffer{dev: d, buf: buf, label: label, size: size}, nil
}

func (d *HALDevice) Close() {
	if d.device != nil {
		d.device.Destroy()
		d.device = nil
	}
	if d.instance != nil {
		d.instance.Destroy()
		d.instance = nil
	}
	d.queue = nil
}

type halBuffer struct {
	dev   *HALDevice
	buf   hal.Buffer
	label string
	size  int
}

func (b *halBuffer) Label() string { return b.label }
func (b *halBuffer) Size() int     { return b.size }

func (b *halBuffer) Write(data []byte) error {
	if len(data) > b.size {
		return errBufferBounds("write", b.label, len(data), b.size)
	}
	b.dev.queue.WriteBuffer(b.buf, 0, data)
	return nil
}

// Read copies the front of the buffer back to the host through a staging
// buffer behind a fence.
func (b *halBuffer) Read(dst []byte) error {
	if len(dst) > b.size {
		return errBufferBounds("read", b.label, len(dst), b.size)
	}
	size := uint64(len(dst))

	staging, err := b.dev.device.CreateBuffer(&hal.BufferDescriptor{
		Label: b.label + "_staging",
		Size:  size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("gpu: create staging for %q: %w", b.label, err)
	}
	defer b.dev.device.DestroyBuffer(staging)

	encoder, err := b.dev.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: b.label + "_read"})
	if err != nil {
		return fmt.Errorf("gpu: create encoder: %w", err)
	}
	if err := encoder.BeginEncoding(b.label + "_read"); err != nil {
		return fmt.Errorf("gpu: begin encoding: %w", err)
	}
	encoder.CopyBufferToBuffer(b.buf, staging, []hal.BufferCopy{{SrcOffset: 0, DstOffset: 0, Size: size}})
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("gpu: end encoding: %w", err)
	}
	defer b.dev.device.FreeCommandBuffer(cmdBuf)

	if err := submitAndWait(b.dev, []hal.CommandBuffer{cmdBuf}); err != nil {
		return err
	}
	if err := b.dev.queue.ReadBuffer(staging, 0, dst); err != nil {
		return fmt.Errorf("gpu: readback %q: %w", b.label, err)
	}
	return nil
}

func (b *halBuffer) Release() {
	if b.buf != nil {
		b.dev.device.DestroyBuffer(b.buf)
		b.buf = nil
	}
}

func submitAndWait(dev *HALDevice, cmds []hal.CommandBuffer) error {
	fence, err := dev.device.CreateFence()
	if err != nil {
		return fmt.Errorf("gpu: create fence: %w", err)
	}
	defer dev.device.DestroyFence(fence)
	if err := dev.queue.Submit(cmds, fence, 1); err != nil {
		return fmt.Errorf("gpu: submit: %w", err)
	}
	ok, err := dev.device.Wait(fence, 1, submitWait)
	if err != nil || !ok {
		return fmt.Errorf("gpu: fence wait: ok=%v err=%w", ok, err)
	}
	return nil
}
