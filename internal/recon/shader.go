package recon

import "github.com/pointlab/depthstream/internal/gpu"

// CompileKernel builds the reconstruction compute pipeline on a real
// device. The WGSL below mirrors CPUKernel exactly; both consume the
// Uniforms layout from uniforms.go and the StorageBindings bind order.
func CompileKernel(dev gpu.Device) (gpu.Kernel, error) {
	return dev.CompileKernel("reconstruct", reconstructWGSL, "main", StorageBindings)
}

const reconstructWGSL = `
struct Params {
    fx: f32,
    fy: f32,
    cx: f32,
    cy: f32,
    cull_min: f32,
    cull_max: f32,
    x_cull: f32,
    y_cull: f32,
    width: u32,
    height: u32,
    pad0: u32,
    pad1: u32,
    model: mat4x4<f32>,
    view_proj: mat4x4<f32>,
}

@group(0) @binding(0) var<uniform> params: Params;
@group(0) @binding(1) var<storage, read> depth_mm: array<u32>;
@group(0) @binding(2) var<storage, read> color_rgba8: array<u32>;
@group(0) @binding(3) var<storage, read_write> positions: array<f32>;
@group(0) @binding(4) var<storage, read_write> colors: array<vec4<f32>>;
@group(0) @binding(5) var<storage, read_write> valid_count: atomic<u32>;
@group(0) @binding(6) var<storage, read_write> visible_count: atomic<u32>;

fn unpack_color(i: u32) -> vec4<f32> {
    let c = color_rgba8[i];
    return vec4<f32>(
        f32(c & 0xffu),
        f32((c >> 8u) & 0xffu),
        f32((c >> 16u) & 0xffu),
        f32((c >> 24u) & 0xffu)) / 255.0;
}

@compute @workgroup_size(8, 8)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    if (gid.x >= params.width || gid.y >= params.height) {
        return;
    }
    let i = gid.y * params.width + gid.x;

    let mm = depth_mm[i];
    let z = f32(mm) / 1000.0;
    if (mm == 0u || z < params.cull_min || z > params.cull_max) {
        return;
    }
    let x = (f32(gid.x) - params.cx) * z / params.fx;
    let y = (f32(gid.y) - params.cy) * z / params.fy;
    if (abs(x) > params.x_cull || abs(y) > params.y_cull) {
        return;
    }

    var world = params.model * vec4<f32>(x, y, z, 1.0);
    if (world.w != 0.0 && world.w != 1.0) {
        world = world / world.w;
    }
    positions[i * 3u] = world.x;
    positions[i * 3u + 1u] = world.y;
    positions[i * 3u + 2u] = world.z;
    colors[i] = unpack_color(i);

    atomicAdd(&valid_count, 1u);
    let clip = params.view_proj * vec4<f32>(world.xyz, 1.0);
    if (clip.w > 0.0 && abs(clip.x) <= clip.w && abs(clip.y) <= clip.w
        && clip.z >= 0.0 && clip.z <= clip.w) {
        atomicAdd(&visible_count, 1u);
    }
}
`
