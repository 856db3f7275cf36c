package recon

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/chewxy/math32"

	"github.com/pointlab/depthstream/internal/gpu"
)

// CPUKernel is the host-side reference implementation of the
// reconstruction pass. It honors the same bind order and uniform layout
// as the WGSL kernel, so it can stand in on machines without a GPU and
// anchor the kernel contract in tests.
type CPUKernel struct{}

var _ gpu.Kernel = (*CPUKernel)(nil)

func NewCPUKernel() *CPUKernel { return &CPUKernel{} }

func (k *CPUKernel) Release() {}

func (k *CPUKernel) Dispatch(groupsX, groupsY int, uniforms []byte, buffers ...gpu.Buffer) error {
	if len(buffers) != StorageBindings {
		return fmt.Errorf("recon: cpu kernel wants %d buffers, got %d", StorageBindings, len(buffers))
	}
	u, ok := UnpackUniforms(uniforms)
	if !ok {
		return fmt.Errorf("recon: cpu kernel got %d uniform bytes, want %d", len(uniforms), UniformsSize)
	}
	depthBuf, colorBuf := buffers[0], buffers[1]
	posBuf, outColorBuf := buffers[2], buffers[3]
	validBuf, visibleBuf := buffers[4], buffers[5]

	w, h := int(u.Width), int(u.Height)
	if w <= 0 || h <= 0 {
		return nil
	}
	// The workgroup grid must cover the frame; extra threads fall off
	// the edge exactly as they would on the GPU.
	if groupsX*8 < w || groupsY*8 < h {
		return fmt.Errorf("recon: grid %dx%d groups cannot cover %dx%d frame", groupsX, groupsY, w, h)
	}
	pixels := w * h

	depth := make([]byte, pixels*depthStride)
	if err := depthBuf.Read(depth); err != nil {
		return err
	}
	rgba := make([]byte, pixels*4)
	if err := colorBuf.Read(rgba); err != nil {
		return err
	}

	positions := make([]byte, pixels*positionStride)
	colors := make([]byte, pixels*colorStride)
	var valid, visible uint32

	for py := 0; py < h; py++ {
		for px := 0; px < w; px++ {
			i := py*w + px
			mm := binary.LittleEndian.Uint32(depth[i*depthStride:])
			z := float32(mm) / 1000.0
			if mm == 0 || z < u.CullMin || z > u.CullMax {
				continue
			}
			x := (float32(px) - u.Cx) * z / u.Fx
			y := (float32(py) - u.Cy) * z / u.Fy
			if math32.Abs(x) > u.XCull || math32.Abs(y) > u.YCull {
				continue
			}

			wx, wy, wz, ww := transform(u.Model, x, y, z)
			if ww != 0 && ww != 1 {
				wx, wy, wz = wx/ww, wy/ww, wz/ww
			}
			putFloat32(positions[i*positionStride:], wx, wy, wz)

			r := float32(rgba[i*4+0]) / 255.0
			g := float32(rgba[i*4+1]) / 255.0
			b := float32(rgba[i*4+2]) / 255.0
			a := float32(rgba[i*4+3]) / 255.0
			putFloat32(colors[i*colorStride:], r, g, b, a)

			valid++
			if inClipVolume(u.ViewProj, wx, wy, wz) {
				visible++
			}
		}
	}

	if err := posBuf.Write(positions); err != nil {
		return err
	}
	if err := outColorBuf.Write(colors); err != nil {
		return err
	}
	var counter [counterBytes]byte
	binary.LittleEndian.PutUint32(counter[:], valid)
	if err := validBuf.Write(counter[:]); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(counter[:], visible)
	return visibleBuf.Write(counter[:])
}

// transform applies a column-major mat4 to (x, y, z, 1).
func transform(m Mat4, x, y, z float32) (tx, ty, tz, tw float32) {
	tx = m[0]*x + m[4]*y + m[8]*z + m[12]
	ty = m[1]*x + m[5]*y + m[9]*z + m[13]
	tz = m[2]*x + m[6]*y + m[10]*z + m[14]
	tw = m[3]*x + m[7]*y + m[11]*z + m[15]
	return
}

// inClipVolume projects a world point and tests it against the clip
// volume, the same test the GPU kernel uses for the visible counter.
func inClipVolume(viewProj Mat4, x, y, z float32) bool {
	cx, cy, cz, cw := transform(viewProj, x, y, z)
	if cw <= 0 {
		return false
	}
	return math32.Abs(cx) <= cw && math32.Abs(cy) <= cw && cz >= 0 && cz <= cw
}

func putFloat32(dst []byte, vals ...float32) {
	for i, v := range vals {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(v))
	}
}
