package stream

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Wire layout constants. One message carries one frame, little-endian:
//
//	width    int32
//	height   int32
//	rgbLen   int32
//	rgbBytes [rgbLen]byte
//	depthLen int32
//	depthBytes [depthLen]byte
//	fx, fy, cx, cy           float32
//	cullMin, cullMax, xCull, yCull float32
const (
	lenFieldSize  = 4
	floatTailSize = 8 * 4 // intrinsics + culling, 8 × float32
)

// ErrTruncated reports a message shorter than its declared field lengths.
// It is the only decode failure class: all numeric fields are fixed-width
// and unambiguous, so a message either parses completely or is short.
var ErrTruncated = fmt.Errorf("stream: truncated frame message")

// Decode parses a raw frame message into a FramePacket. Every
// length-prefixed field is validated against the remaining buffer before
// its slice is taken, so truncated input can never yield a packet with
// mismatched payload lengths. Decode is pure and safe to fuzz.
func Decode(data []byte) (*FramePacket, error) {
	r := reader{buf: data}

	width, ok := r.int32()
	if !ok {
		return nil, fmt.Errorf("%w: width", ErrTruncated)
	}
	height, ok := r.int32()
	if !ok {
		return nil, fmt.Errorf("%w: height", ErrTruncated)
	}
	rgb, ok := r.sized()
	if !ok {
		return nil, fmt.Errorf("%w: rgb payload", ErrTruncated)
	}
	depth, ok := r.sized()
	if !ok {
		return nil, fmt.Errorf("%w: depth payload", ErrTruncated)
	}
	floats, ok := r.floats(8)
	if !ok {
		return nil, fmt.Errorf("%w: intrinsics tail", ErrTruncated)
	}

	return &FramePacket{
		Width:   int(width),
		Height:  int(height),
		RGB:     rgb,
		Depth:   depth,
		Fx:      floats[0],
		Fy:      floats[1],
		Cx:      floats[2],
		Cy:      floats[3],
		CullMin: floats[4],
		CullMax: floats[5],
		XCull:   floats[6],
		YCull:   floats[7],
	}, nil
}

// Encode serializes a packet into the wire layout. It is the exact
// inverse of Decode and exists for the frame simulator, the replay
// server, and round-trip tests.
func Encode(p *FramePacket) []byte {
	size := 2*lenFieldSize + // width, height
		lenFieldSize + len(p.RGB) +
		lenFieldSize + len(p.Depth) +
		floatTailSize
	buf := make([]byte, 0, size)

	buf = binary.LittleEndian.AppendUint32(buf, uint32(int32(p.Width)))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(int32(p.Height)))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(int32(len(p.RGB))))
	buf = append(buf, p.RGB...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(int32(len(p.Depth))))
	buf = append(buf, p.Depth...)
	for _, f := range []float32{p.Fx, p.Fy, p.Cx, p.Cy, p.CullMin, p.CullMax, p.XCull, p.YCull} {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(f))
	}
	return buf
}

// reader walks a byte buffer with bounds checks on every field.
type reader struct {
	buf []byte
	off int
}

func (r *reader) remaining() int { return len(r.buf) - r.off }

func (r *reader) int32() (int32, bool) {
	if r.remaining() < lenFieldSize {
		return 0, false
	}
	v := int32(binary.LittleEndian.Uint32(r.buf[r.off:]))
	r.off += lenFieldSize
	return v, true
}

// sized reads an int32 length prefix followed by that many bytes. A
// negative length or a shortfall is a truncation. The returned slice is
// copied so packets never alias the transport's receive buffer.
func (r *reader) sized() ([]byte, bool) {
	n, ok := r.int32()
	if !ok || n < 0 || r.remaining() < int(n) {
		return nil, false
	}
	out := make([]byte, n)
	copy(out, r.buf[r.off:r.off+int(n)])
	r.off += int(n)
	return out, true
}

func (r *reader) floats(n int) ([]float32, bool) {
	if r.remaining() < n*4 {
		return nil, false
	}
	out := make([]float32, n)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(r.buf[r.off:]))
		r.off += 4
	}
	return out, true
}
