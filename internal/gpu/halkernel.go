//go:build !nogpu

package gpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// halKernel is a compiled WGSL compute pipeline with a fixed bind group
// layout: binding 0 is the uniform block, bindings 1..n are storage
// buffers in Dispatch argument order.
type halKernel struct {
	dev        *HALDevice
	label      string
	shader     hal.ShaderModule
	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	pipeline   hal.ComputePipeline
	storageN   int
}

func (d *HALDevice) CompileKernel(label, wgsl, entry string, storageBindings int) (Kernel, error) {
	shader, err := d.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  label,
		Source: hal.ShaderSource{WGSL: wgsl},
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: compile %q: %w", label, err)
	}

	entries := make([]gputypes.BindGroupLayoutEntry, 0, storageBindings+1)
	entries = append(entries, gputypes.BindGroupLayoutEntry{
		Binding:    0,
		Visibility: gputypes.ShaderStageCompute,
		Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
	})
	for i := 1; i <= storageBindings; i++ {
		entries = append(entries, gputypes.BindGroupLayoutEntry{
			Binding:    uint32(i),
			Visibility: gputypes.ShaderStageCompute,
			Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage},
		})
	}
	bindLayout, err := d.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   label + "_bind_layout",
		Entries: entries,
	})
	if err != nil {
		d.device.DestroyShaderModule(shader)
		return nil, fmt.Errorf("gpu: bind layout for %q: %w", label, err)
	}

	pipeLayout, err := d.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label: label + "_pipe_layout", BindGroupLayouts: []hal.BindGroupLayout{bindLayout},
	})
	if err != nil {
		d.device.DestroyBindGroupLayout(bindLayout)
		d.device.DestroyShaderModule(shader)
		return nil, fmt.Errorf("gpu: pipeline layout for %q: %w", label, err)
	}

	pipeline, err := d.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label: label + "_pipeline", Layout: pipeLayout,
		Compute: hal.ComputeState{Module: shader, EntryPoint: entry},
	})
	if err != nil {
		d.device.DestroyPipelineLayout(pipeLayout)
		d.device.DestroyBindGroupLayout(bindLayout)
		d.device.DestroyShaderModule(shader)
		return nil, fmt.Errorf("gpu: compute pipeline for %q: %w", label, err)
	}

	return &halKernel{
		dev: d, label: label, shader: shader,
		bindLayout: bindLayout, pipeLayout: pipeLayout, pipeline: pipeline,
		storageN: storageBindings,
	}, nil
}

func (k *halKernel) Dispatch(groupsX, groupsY int, uniforms []byte, buffers ...Buffer) error {
	if len(buffers) != k.storageN {
		return fmt.Errorf("gpu: kernel %q compiled for %d storage bindings, got %d buffers",
			k.label, k.storageN, len(buffers))
	}
	if groupsX <= 0 || groupsY <= 0 {
		return nil
	}

	uniformBuf, err := k.dev.device.CreateBuffer(&hal.BufferDescriptor{
		Label: k.label + "_uniforms", Size: uint64(len(uniforms)),
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("gpu: create uniform buffer: %w", err)
	}
	defer k.dev.device.DestroyBuffer(uniformBuf)
	k.dev.queue.WriteBuffer(uniformBuf, 0, uniforms)

	bindEntries := make([]gputypes.BindGroupEntry, 0, len(buffers)+1)
	bindEntries = append(bindEntries, gputypes.BindGroupEntry{
		Binding:  0,
		Resource: gputypes.BufferBinding{Buffer: uniformBuf.NativeHandle(), Offset: 0, Size: uint64(len(uniforms))},
	})
	for i, b := range buffers {
		hb, ok := b.(*halBuffer)
		if !ok {
			return fmt.Errorf("gpu: kernel %q got a non-HAL buffer %q", k.label, b.Label())
		}
		bindEntries = append(bindEntries, gputypes.BindGroupEntry{
			Binding:  uint32(i + 1),
			Resource: gputypes.BufferBinding{Buffer: hb.buf.NativeHandle(), Offset: 0, Size: uint64(hb.size)},
		})
	}
	bindGroup, err := k.dev.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label: k.label + "_bind_group", Layout: k.bindLayout, Entries: bindEntries,
	})
	if err != nil {
		return fmt.Errorf("gpu: create bind group: %w", err)
	}
	defer k.dev.device.DestroyBindGroup(bindGroup)

	encoder, err := k.dev.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: k.label + "_encoder"})
	if err != nil {
		return fmt.Errorf("gpu: create encoder: %w", err)
	}
	if err := encoder.BeginEncoding(k.label); err != nil {
		return fmt.Errorf("gpu: begin encoding: %w", err)
	}
	pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: k.label + "_pass"})
	pass.SetPipeline(k.pipeline)
	pass.SetBindGroup(0, bindGroup, nil)
	pass.Dispatch(uint32(groupsX), uint32(groupsY), 1)
	pass.End()
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("gpu: end encoding: %w", err)
	}
	defer k.dev.device.FreeCommandBuffer(cmdBuf)

	return submitAndWait(k.dev, []hal.CommandBuffer{cmdBuf})
}

func (k *halKernel) Release() {
	if k.pipeline != nil {
		k.dev.device.DestroyComputePipeline(k.pipeline)
		k.pipeline = nil
	}
	if k.pipeLayout != nil {
		k.dev.device.DestroyPipelineLayout(k.pipeLayout)
		k.pipeLayout = nil
	}
	if k.bindLayout != nil {
		k.dev.device.DestroyBindGroupLayout(k.bindLayout)
		k.bindLayout = nil
	}
	if k.shader != nil {
		k.dev.device.DestroyShaderModule(k.shader)
		k.shader = nil
	}
}
