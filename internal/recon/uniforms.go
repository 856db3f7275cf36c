package recon

import (
	"encoding/binary"
	"math"
)

// Mat4 is a column-major 4x4 float32 matrix, laid out the way WGSL
// expects a mat4x4<f32> uniform.
type Mat4 [16]float32

// Identity returns the identity transform.
func Identity() Mat4 {
	return Mat4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// Uniforms is the per-dispatch parameter block. The packed layout is
// shared with the WGSL kernel: eight floats, two dimension words, two
// padding words to align the matrices to 16 bytes, then two mat4s.
type Uniforms struct {
	Fx, Fy, Cx, Cy float32

	// Culling thresholds in meters, adopted from the sender each frame.
	CullMin, CullMax, XCull, YCull float32

	Width, Height uint32

	// Model places reconstructed points in world space. ViewProj is the
	// camera transform used for the visible-point count.
	Model    Mat4
	ViewProj Mat4
}

// UniformsSize is the byte length of a packed Uniforms block.
const UniformsSize = 8*4 + 4*4 + 2*16*4

// Pack serializes the block little-endian for upload.
func (u *Uniforms) Pack() []byte {
	out := make([]byte, 0, UniformsSize)
	for _, f := range []float32{u.Fx, u.Fy, u.Cx, u.Cy, u.CullMin, u.CullMax, u.XCull, u.YCull} {
		out = binary.LittleEndian.AppendUint32(out, math.Float32bits(f))
	}
	out = binary.LittleEndian.AppendUint32(out, u.Width)
	out = binary.LittleEndian.AppendUint32(out, u.Height)
	out = binary.LittleEndian.AppendUint32(out, 0)
	out = binary.LittleEndian.AppendUint32(out, 0)
	for _, m := range []Mat4{u.Model, u.ViewProj} {
		for _, f := range m {
			out = binary.LittleEndian.AppendUint32(out, math.Float32bits(f))
		}
	}
	return out
}

// UnpackUniforms is the inverse of Pack. The CPU kernel uses it to read
// the same bytes the GPU kernel would.
func UnpackUniforms(data []byte) (Uniforms, bool) {
	if len(data) < UniformsSize {
		return Uniforms{}, false
	}
	f32 := func(i int) float32 {
		return math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	var u Uniforms
	u.Fx, u.Fy, u.Cx, u.Cy = f32(0), f32(1), f32(2), f32(3)
	u.CullMin, u.CullMax, u.XCull, u.YCull = f32(4), f32(5), f32(6), f32(7)
	u.Width = binary.LittleEndian.Uint32(data[32:])
	u.Height = binary.LittleEndian.Uint32(data[36:])
	for i := 0; i < 16; i++ {
		u.Model[i] = f32(12 + i)
		u.ViewProj[i] = f32(28 + i)
	}
	return u, true
}
