// Package stream defines the RGB-D frame packet, its wire codec, and the
// latest-wins hand-off between the network receiver and the host tick loop.
package stream

// FramePacket is one decoded RGB-D frame plus the camera parameters the
// sender attached to it. Packets are immutable once decoded: the receiver
// creates them, the queue holds at most one, and the dispatcher consumes
// and discards them within a single tick.
type FramePacket struct {
	Width  int
	Height int

	// RGB is the compressed color payload. The format is decided by the
	// sender and the caller-supplied color decoder; this core treats it
	// as opaque bytes.
	RGB []byte

	// Depth holds raw unsigned 16-bit samples, little-endian,
	// len = Width*Height*2, in millimeters.
	Depth []byte

	// Camera intrinsics: focal lengths and principal point, in pixels.
	Fx, Fy, Cx, Cy float32

	// Scene culling thresholds in meters, adopted by the consumer on
	// every frame.
	CullMin, CullMax, XCull, YCull float32
}

// Pixels returns the pixel count of the frame grid.
func (p *FramePacket) Pixels() int { return p.Width * p.Height }

// Valid reports whether the packet may be handed to a consumer: both
// payloads present and a positive pixel grid. Invalid packets are never
// enqueued.
func (p *FramePacket) Valid() bool {
	return p != nil && p.Width > 0 && p.Height > 0 && len(p.RGB) > 0 && len(p.Depth) > 0
}

// DepthSamples returns the depth payload widened to uint32, one value per
// pixel, capped at Width*Height samples. Values are widened only, never
// rescaled: the 32-bit representation exists so GPU compute paths see a
// uniform word width.
func (p *FramePacket) DepthSamples() []uint32 {
	n := p.Pixels()
	if max := len(p.Depth) / 2; n > max {
		n = max
	}
	out := make([]uint32, n)
	for i := 0; i < n; i++ {
		out[i] = uint32(p.Depth[2*i]) | uint32(p.Depth[2*i+1])<<8
	}
	return out
}
